package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"insufficient stock", InsufficientStock("p1", "Tomato", 2), http.StatusBadRequest},
		{"conflict", Conflict("dup"), http.StatusBadRequest},
		{"race conflict", RaceConflict(errors.New("unique"), "dup"), http.StatusConflict},
		{"forbidden", Forbidden("no"), http.StatusForbidden},
		{"not found", NotFound("gone"), http.StatusNotFound},
		{"unauthorized", Unauthorized("who"), http.StatusUnauthorized},
		{"internal", Internal(errors.New("boom"), "failed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestKindThroughWrapping(t *testing.T) {
	base := NotFound("offer not found")
	wrapped := fmt.Errorf("respond: %w", base)

	if !Is(wrapped, KindNotFound) {
		t.Errorf("expected wrapped error to be NotFound, got %v", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("plain errors should classify as internal")
	}
	if Is(nil, KindInternal) {
		t.Error("nil error should not match any kind")
	}
}

func TestInsufficientStockIsValidation(t *testing.T) {
	err := InsufficientStock("p1", "Onion", 3)
	if !IsValidation(err) {
		t.Error("insufficient stock should be a validation error")
	}
	if err.ProductID != "p1" {
		t.Errorf("ProductID = %q, want p1", err.ProductID)
	}
	if IsValidation(Conflict("x")) {
		t.Error("conflict is not a validation error")
	}
}

func TestIsRace(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed")
	err := fmt.Errorf("block: %w", RaceConflict(cause, "already blocked"))
	if !IsRace(err) {
		t.Error("expected race conflict")
	}
	if !errors.Is(err, cause) {
		t.Error("race conflict should unwrap to its cause")
	}
	if IsRace(Conflict("plain")) {
		t.Error("plain conflict is not a race")
	}
}
