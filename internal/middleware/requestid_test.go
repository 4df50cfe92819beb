package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{name: "missing", inbound: "", keep: false},
		{name: "well formed", inbound: "req-123.abc_X", keep: true},
		{name: "log injection", inbound: "abc\nlevel=error", keep: false},
		{name: "too long", inbound: string(make([]byte, 65)), keep: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.inbound != "" {
				req.Header.Set(RequestIDHeader, tc.inbound)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Header().Get(RequestIDHeader) != seen {
				t.Fatalf("header %q != context %q", rec.Header().Get(RequestIDHeader), seen)
			}
			if tc.keep && seen != tc.inbound {
				t.Fatalf("request id = %q, want %q", seen, tc.inbound)
			}
			if !tc.keep {
				if _, err := uuid.Parse(seen); err != nil {
					t.Fatalf("request id = %q, want a fresh uuid", seen)
				}
			}
		})
	}
}
