package enums

import "fmt"

// CartStatus is kept as a column so the one-active-cart-per-user unique index
// can be expressed as (user_id, status).
type CartStatus string

const (
	CartStatusActive CartStatus = "ACTIVE"
)

func (s CartStatus) String() string {
	return string(s)
}

func (s CartStatus) IsValid() bool {
	return s == CartStatusActive
}

func ParseCartStatus(value string) (CartStatus, error) {
	if CartStatus(value).IsValid() {
		return CartStatus(value), nil
	}
	return "", fmt.Errorf("invalid cart status %q", value)
}
