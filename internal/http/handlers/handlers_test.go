package handlers_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"illustrator/internal/adapter/memstore"
	"illustrator/internal/conversion"
	"illustrator/internal/credits"
	"illustrator/internal/generation"
	"illustrator/internal/http/handlers"
	"illustrator/internal/http/httpapi"
	"illustrator/internal/infra"
	"illustrator/internal/middleware"
	provider "illustrator/internal/providers/image"
	"illustrator/internal/storage"
)

const (
	secret    = "test-secret"
	accountID = "5f0c6a4e-3d1b-4c8a-9e2f-7a6b5c4d3e21"
)

type okGenerator struct{}

func (okGenerator) Attempt(ctx context.Context, in generation.AttemptInput) (*provider.Asset, error) {
	return &provider.Asset{Data: []byte("illustration"), MIME: "image/png"}, nil
}

type server struct {
	handler http.Handler
	svc     *conversion.Service
}

func newServer(t *testing.T) *server {
	t.Helper()
	ledgerRepo := memstore.NewLedger()
	metrics := infra.NewMetrics()
	ledger := credits.NewLedger(ledgerRepo, zerolog.Nop(), credits.Options{Metrics: metrics})
	svc := conversion.NewService(conversion.Settings{MaxImagesPerJob: 4, MaxImageBytes: 1 << 20}, conversion.Deps{
		Ledger:    ledger,
		Jobs:      memstore.NewJobs(),
		Blobs:     storage.NewMemoryStore(),
		Generator: okGenerator{},
		Logger:    zerolog.Nop(),
		Metrics:   metrics,
		Sleep:     func(context.Context, time.Duration) error { return nil },
	})
	app := &handlers.App{
		Conversions:    svc,
		Credits:        ledger,
		Metrics:        metrics,
		Logger:         zerolog.Nop(),
		MaxUploadBytes: 8 << 20,
	}
	h := httpapi.NewRouter(app, httpapi.Options{JWTSecret: secret, Accounts: ledgerRepo, RateLimit: 100})
	return &server{handler: h, svc: svc}
}

func (s *server) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := middleware.SignToken(secret, accountID, time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	return "Bearer " + token
}

func multipartRequest(t *testing.T, style string, images int) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("styleId", style)
	for i := 0; i < images; i++ {
		fw, _ := mw.CreateFormFile("images", "photo.png")
		_ = png.Encode(fw, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/conversions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope %q: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestConversionLifecycle(t *testing.T) {
	s := newServer(t)
	req := multipartRequest(t, "watercolor", 2)
	req.Header.Set(middleware.LegacyIDHeader, "legacy-42")
	rec := s.do(t, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit = %d %s", rec.Code, rec.Body.String())
	}
	var accepted conversion.SubmitResult
	_ = json.Unmarshal(rec.Body.Bytes(), &accepted)
	if accepted.JobID == "" || accepted.TotalImages != 2 || accepted.Status != "pending" {
		t.Fatalf("accepted = %+v", accepted)
	}
	_ = s.svc.Dispatcher().Wait(context.Background())

	status := httptest.NewRequest(http.MethodGet, "/v1/conversions/"+accepted.JobID, nil)
	status.Header.Set(middleware.LegacyIDHeader, "legacy-42")
	rec = s.do(t, status)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	var job struct {
		Status          string   `json:"status"`
		CompletedImages int      `json:"completedImages"`
		ResultIDs       []string `json:"resultIds"`
		FailedIndices   []int    `json:"failedIndices"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &job)
	if job.Status != "completed" || job.CompletedImages != 2 || len(job.ResultIDs) != 2 || job.FailedIndices == nil {
		t.Fatalf("job = %+v", job)
	}

	archive := httptest.NewRequest(http.MethodGet, "/v1/conversions/"+accepted.JobID+"/archive", nil)
	archive.Header.Set(middleware.LegacyIDHeader, "legacy-42")
	rec = s.do(t, archive)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("archive = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil || len(zr.File) != 2 {
		t.Fatalf("archive entries = %v, err = %v", zr, err)
	}

	other := httptest.NewRequest(http.MethodGet, "/v1/conversions/"+accepted.JobID, nil)
	other.Header.Set(middleware.LegacyIDHeader, "legacy-43")
	if rec = s.do(t, other); rec.Code != http.StatusNotFound || errorCode(t, rec) != "NOT_FOUND" {
		t.Fatalf("foreign status = %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitErrors(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, multipartRequest(t, "watercolor", 1))
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "UNAUTHORIZED" {
		t.Fatalf("no identity = %d %s", rec.Code, rec.Body.String())
	}

	req := multipartRequest(t, "oil_painting", 1)
	req.Header.Set(middleware.LegacyIDHeader, "legacy-1")
	if rec = s.do(t, req); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "INVALID_INPUT" {
		t.Fatalf("unknown style = %d %s", rec.Code, rec.Body.String())
	}

	req = multipartRequest(t, "watercolor", 4)
	req.Header.Set("Authorization", bearer(t))
	if rec = s.do(t, req); rec.Code != http.StatusPaymentRequired || errorCode(t, rec) != "INSUFFICIENT_CREDITS" {
		t.Fatalf("over budget = %d %s", rec.Code, rec.Body.String())
	}

	req = multipartRequest(t, "watercolor", 4)
	req.Header.Set(middleware.LegacyIDHeader, "legacy-2")
	if rec = s.do(t, req); rec.Code != http.StatusTooManyRequests || errorCode(t, rec) != "ANONYMOUS_LIMIT_REACHED" {
		t.Fatalf("anonymous over cap = %d %s", rec.Code, rec.Body.String())
	}
}

func TestCredits(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/credits/balance", nil)
	req.Header.Set("Authorization", bearer(t))
	rec := s.do(t, req)
	var bal struct {
		Free, Paid, Total int
		Authenticated     bool
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &bal)
	if rec.Code != http.StatusOK || bal.Free != 3 || bal.Total != 3 || !bal.Authenticated {
		t.Fatalf("balance = %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/credits/history?limit=5", nil)
	req.Header.Set("Authorization", bearer(t))
	rec = s.do(t, req)
	var history struct {
		Items []struct {
			Amount int    `json:"amount"`
			Reason string `json:"reason"`
		} `json:"items"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &history)
	if rec.Code != http.StatusOK || len(history.Items) != 1 || history.Items[0].Reason != "daily_reset" || history.Items[0].Amount != 3 {
		t.Fatalf("history = %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/credits/history?limit=abc", nil)
	req.Header.Set("Authorization", bearer(t))
	if rec = s.do(t, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/credits/history", nil)
	req.Header.Set(middleware.LegacyIDHeader, "legacy-1")
	if rec = s.do(t, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous history = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/credits/balance", nil)
	req.Header.Set(middleware.LegacyIDHeader, "legacy-1")
	rec = s.do(t, req)
	_ = json.Unmarshal(rec.Body.Bytes(), &bal)
	if rec.Code != http.StatusOK || bal.Free != 3 || bal.Authenticated {
		t.Fatalf("anonymous balance = %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "illustrator_credits_reserved_total") {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	if rec.Code != http.StatusOK || !json.Valid(rec.Body.Bytes()) {
		t.Fatalf("openapi = %d, valid json = %v", rec.Code, json.Valid(rec.Body.Bytes()))
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil)
	req.Header.Set("If-None-Match", etag)
	if rec = s.do(t, req); rec.Code != http.StatusNotModified {
		t.Fatalf("revalidation = %d, want 304", rec.Code)
	}
}
