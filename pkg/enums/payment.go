package enums

import (
	"fmt"
	"strings"
)

// PaymentAttemptStatus is the status of a single entry in an order's attempt log.
type PaymentAttemptStatus string

const (
	PaymentAttemptCreated PaymentAttemptStatus = "CREATED"
	PaymentAttemptPending PaymentAttemptStatus = "PENDING"
	PaymentAttemptSuccess PaymentAttemptStatus = "SUCCESS"
	PaymentAttemptFailed  PaymentAttemptStatus = "FAILED"
	PaymentAttemptExpired PaymentAttemptStatus = "EXPIRED"
)

var validPaymentAttemptStatuses = []PaymentAttemptStatus{
	PaymentAttemptCreated,
	PaymentAttemptPending,
	PaymentAttemptSuccess,
	PaymentAttemptFailed,
	PaymentAttemptExpired,
}

func (s PaymentAttemptStatus) String() string {
	return string(s)
}

func (s PaymentAttemptStatus) IsValid() bool {
	for _, candidate := range validPaymentAttemptStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether the attempt can still be settled.
func (s PaymentAttemptStatus) IsOpen() bool {
	return s == PaymentAttemptCreated || s == PaymentAttemptPending
}

func ParsePaymentAttemptStatus(value string) (PaymentAttemptStatus, error) {
	for _, candidate := range validPaymentAttemptStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment attempt status %q", value)
}

// PaymentProvider names the gateway that owns an attempt.
type PaymentProvider string

const (
	PaymentProviderMock     PaymentProvider = "MOCK"
	PaymentProviderRazorpay PaymentProvider = "RAZORPAY"
	PaymentProviderPhonePe  PaymentProvider = "PHONEPE"
)

var validPaymentProviders = []PaymentProvider{
	PaymentProviderMock,
	PaymentProviderRazorpay,
	PaymentProviderPhonePe,
}

func (p PaymentProvider) String() string {
	return string(p)
}

func (p PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentProvider is case-insensitive and falls back to fallback when
// value is blank.
func ParsePaymentProvider(value string, fallback PaymentProvider) (PaymentProvider, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if trimmed == "" {
		return fallback, nil
	}
	for _, candidate := range validPaymentProviders {
		if string(candidate) == trimmed {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}
