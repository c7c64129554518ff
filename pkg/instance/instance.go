package instance

import "github.com/paymall/paymall-backend/pkg/env"

// GetID names the running process for logs. It prefers an explicit
// PAYMALL_INSTANCE_ID, then the platform dyno or host name.
func GetID(fallback string) string {
	for _, key := range []string{"PAYMALL_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if id := env.Get(key, ""); id != "" {
			return id
		}
	}
	return fallback
}
