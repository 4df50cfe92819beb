package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"illustrator/internal/http/handlers"
	"illustrator/internal/middleware"
)

// Options configures the cross-cutting middleware of the router.
type Options struct {
	JWTSecret      string
	Accounts       middleware.AccountEnsurer
	RateLimit      int
	AllowedOrigins []string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Method(http.MethodGet, "/metrics", app.MetricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.Identity(opts.JWTSecret, opts.Accounts),
			middleware.RateLimit(opts.RateLimit, time.Minute),
		)

		r.Route("/v1/conversions", func(r chi.Router) {
			r.Post("/", app.SubmitConversion)
			r.Get("/{id}", app.ConversionStatus)
			r.Get("/{id}/archive", app.ConversionArchive)
		})
		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/balance", app.CreditBalance)
			r.Get("/history", app.CreditHistory)
		})
	})

	return r
}
