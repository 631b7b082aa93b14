package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "quantity must be > 0"}
	if err.Error() != "quantity must be > 0" {
		t.Errorf("Error() = %q, want %q", err.Error(), "quantity must be > 0")
	}
}

func TestInvalidStateError(t *testing.T) {
	err := InvalidStateError(OrderStatusCompleted)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatal("InvalidStateError() does not wrap ErrInvalidState")
	}
	if !strings.Contains(err.Error(), "COMPLETED") {
		t.Errorf("Error() = %q, want it to name the status", err.Error())
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrAccountExists,
		ErrAccountNotFound,
		ErrOrderNotFound,
		ErrUnauthorized,
		ErrInvalidState,
		ErrStateConflict,
		ErrPriceUnavailable,
		ErrInsufficientFunds,
		ErrInsufficientHoldings,
		ErrWebhookNotFound,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
