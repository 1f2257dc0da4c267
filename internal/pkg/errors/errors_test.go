package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeValidation, "invalid input"),
			want: "VALIDATION_ERROR: invalid input",
		},
		{
			name: "with wrapped error",
			err:  Wrap(CodeInternal, "something failed", errors.New("underlying")),
			want: "INTERNAL_ERROR: something failed: underlying",
		},
		{
			name: "backend failure",
			err:  BackendFailureError("nearest lookup", errors.New("connection refused")),
			want: "BACKEND_FAILURE: nearest lookup failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeInternal, "wrapped", underlying)

	if unwrapped := err.Unwrap(); unwrapped != underlying {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, underlying)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find the wrapped error")
	}
}

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidRequest, http.StatusBadRequest},
		{CodeMalformedDataset, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeBackendFailure, http.StatusBadGateway},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeInternal, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test")
			if status := err.HTTPStatus(); status != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", status, tt.status)
			}
		})
	}
}

func TestAppError_WithDetails(t *testing.T) {
	err := New(CodeValidation, "invalid").
		WithDetails(map[string]string{"field": "name"})

	if err.Details["field"] != "name" {
		t.Errorf("Details[field] = %s, want name", err.Details["field"])
	}

	err = MalformedDatasetError("conflicting clique").
		WithDetail("track_id", "t1").
		WithDetail("row", "12")
	if len(err.Details) != 2 {
		t.Errorf("len(Details) = %d, want 2", len(err.Details))
	}
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("loading: %w", MalformedDatasetError("bad row"))

	if !IsMalformedDataset(wrapped) {
		t.Error("IsMalformedDataset should see through fmt wrapping")
	}
	if IsValidation(wrapped) {
		t.Error("IsValidation should be false for a dataset error")
	}
	if !IsNotFound(NotFoundError("run")) {
		t.Error("IsNotFound should be true")
	}
	if !IsBackendFailure(BackendFailureError("query", nil)) {
		t.Error("IsBackendFailure should be true")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf should be empty for plain errors")
	}
}

func TestWriteError(t *testing.T) {
	t.Run("app error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, NotFoundError("run abc"))

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
		var resp ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Code != CodeNotFound {
			t.Errorf("code = %s, want %s", resp.Code, CodeNotFound)
		}
		if resp.Message != "run abc not found" {
			t.Errorf("message = %q", resp.Message)
		}
	})

	t.Run("plain error is sanitized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("secret dsn leaked"))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		var resp ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Code != CodeInternal {
			t.Errorf("code = %s, want %s", resp.Code, CodeInternal)
		}
		if resp.Error != "internal server error" {
			t.Errorf("error = %q", resp.Error)
		}
	})
}
