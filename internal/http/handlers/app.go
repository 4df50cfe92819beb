package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"illustrator/internal/conversion"
	"illustrator/internal/credits"
	"illustrator/internal/domain"
	"illustrator/internal/infra"
	"illustrator/internal/middleware"
	"illustrator/pkg/zip"
)

// Conversions is the job surface of conversion.Service.
type Conversions interface {
	Submit(ctx context.Context, req conversion.SubmitRequest) (*conversion.SubmitResult, error)
	Status(ctx context.Context, owner credits.Owner, jobID string) (*domain.ConversionJob, error)
	Archive(ctx context.Context, job *domain.ConversionJob) ([]zip.Asset, error)
}

// Credits is the read surface of credits.Ledger.
type Credits interface {
	Balance(ctx context.Context, owner credits.Owner) (credits.Balance, error)
	History(ctx context.Context, accountID string, limit, offset int) ([]domain.CreditTransaction, error)
}

type App struct {
	Conversions    Conversions
	Credits        Credits
	Metrics        *infra.Metrics
	Logger         infra.Logger
	MaxUploadBytes int64
	// Ping reports store health. Nil means always healthy.
	Ping func(ctx context.Context) error
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

// fail maps err to its stable code. Internal errors are logged and hidden from the caller.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorKind(err)
	status := statusForCode(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("http: request failed")
		message = "internal error"
	}
	a.error(w, status, code, message)
}

func statusForCode(code string) int {
	switch code {
	case domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeInsufficientCredits:
		return http.StatusPaymentRequired
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeAnonymousLimitReached, domain.CodeQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) owner(w http.ResponseWriter, r *http.Request) (credits.Owner, bool) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		a.error(w, http.StatusUnauthorized, domain.CodeUnauthorized, "missing caller identity")
	}
	return owner, ok
}
