package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		origin      string
		preflight   bool
		wantStatus  int
		wantOrigin  string
		wantCreds   bool
		wantReached bool
	}{
		{name: "listed origin", allowed: []string{"https://app.example"}, origin: "https://app.example", wantStatus: http.StatusOK, wantOrigin: "https://app.example", wantCreds: true, wantReached: true},
		{name: "unlisted origin", allowed: []string{"https://app.example"}, origin: "https://evil.example", wantStatus: http.StatusOK, wantReached: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://any.example", wantStatus: http.StatusOK, wantOrigin: "*", wantReached: true},
		{name: "preflight", allowed: []string{"https://app.example"}, origin: "https://app.example", preflight: true, wantStatus: http.StatusNoContent, wantOrigin: "https://app.example", wantCreds: true},
		{name: "no origin", allowed: []string{"*"}, wantStatus: http.StatusOK, wantReached: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reached := false
			h := CORS(tc.allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true }))
			method := http.MethodGet
			if tc.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/v1/conversions", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus || reached != tc.wantReached {
				t.Fatalf("status = %d reached = %v, want %d %v", rec.Code, reached, tc.wantStatus, tc.wantReached)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials") == "true"; got != tc.wantCreds {
				t.Fatalf("credentials = %v, want %v", got, tc.wantCreds)
			}
		})
	}
}
