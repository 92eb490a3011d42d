package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestMetadataFor(t *testing.T) {
	tests := []struct {
		code       Code
		status     int
		retryable  bool
	}{
		{CodeValidation, http.StatusBadRequest, false},
		{CodeInsufficientCredit, http.StatusUnprocessableEntity, false},
		{CodeInsufficientStock, http.StatusUnprocessableEntity, false},
		{CodeAccountBlocked, http.StatusUnprocessableEntity, false},
		{CodeInvalidTransition, http.StatusUnprocessableEntity, false},
		{CodeCreditNotReserved, http.StatusUnprocessableEntity, false},
		{CodeConflict, http.StatusConflict, false},
		{CodeLockTimeout, http.StatusServiceUnavailable, true},
		{CodeNotFound, http.StatusNotFound, false},
		{CodeInternal, http.StatusInternalServerError, true},
		{Code("unknown"), http.StatusInternalServerError, true},
	}
	for _, tc := range tests {
		meta := MetadataFor(tc.code)
		if meta.HTTPStatus != tc.status {
			t.Fatalf("%s: status %d, want %d", tc.code, meta.HTTPStatus, tc.status)
		}
		if meta.Retryable != tc.retryable {
			t.Fatalf("%s: retryable %v, want %v", tc.code, meta.Retryable, tc.retryable)
		}
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("row missing")
	err := Wrap(CodeNotFound, cause, "order not found")
	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive errors.Is")
	}
	typed := As(err)
	if typed == nil || typed.Code() != CodeNotFound {
		t.Fatalf("unexpected typed error: %v", typed)
	}
}

func TestIsCode(t *testing.T) {
	err := New(CodeInsufficientCredit, "limit exceeded").WithDetails(map[string]any{"available_cents": 25000})
	if !IsCode(err, CodeInsufficientCredit) {
		t.Fatal("expected IsCode to match")
	}
	if IsCode(err, CodeInsufficientStock) {
		t.Fatal("expected IsCode mismatch")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatal("plain errors carry no code")
	}
}

func TestNilReceiverSafety(t *testing.T) {
	var err *Error
	if err.Code() != CodeInternal {
		t.Fatal("nil error should report internal code")
	}
	if err.Error() != "" || err.Message() != "" || err.Details() != nil {
		t.Fatal("nil error accessors should be zero-valued")
	}
}
