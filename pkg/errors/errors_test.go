package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient data", fmt.Errorf("%w: need 2 points", ErrInsufficientData), http.StatusUnprocessableEntity},
		{"degenerate", fmt.Errorf("%w: same year", ErrDegenerateInput), http.StatusUnprocessableEntity},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"session", fmt.Errorf("lookup: %w", ErrSessionNotFound), http.StatusNotFound},
		{"company", ErrCompanyNotFound, http.StatusNotFound},
		{"media", ErrUnsupportedMedia, http.StatusUnsupportedMediaType},
		{"upstream", ErrUpstream, http.StatusBadGateway},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
		{"app error wins", New(ErrInvalidInput, http.StatusConflict, "taken"), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrDocumentNotFound, http.StatusNotFound, "document %q", "r-1")
	wrapped := fmt.Errorf("handler: %w", err)
	if got := HTTPStatusCode(wrapped); got != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", got)
	}
	if want := `document not found: document "r-1"`; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
