// Package api é a superfície HTTP do gateway: rotas chi, middlewares de
// borda e a política de resposta.
package api

import (
	"net/http"

	"userdata-gateway/logging"
	"userdata-gateway/middleware/identity"
	"userdata-gateway/middleware/ratelimit"
	ratelimitdomain "userdata-gateway/middleware/ratelimit/domain"
	"userdata-gateway/userdata/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Handlers Handlers
	// Throttle nil desliga o slow-down.
	Throttle    *ratelimit.Options
	Concurrency ratelimit.ConcurrencyOptions
	Identity    identity.Resolver
	Logger      *zap.Logger
}

// NewRouter monta o pipeline throttle → concorrência → identidade → handler em /api.
func NewRouter(d Deps) http.Handler {
	logger := logging.OrNop(d.Logger)
	h := d.Handlers
	h.Logger = logging.OrNop(h.Logger)

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		// throttle fora do slot: o atraso não segura vaga e o 429 nunca espera fila
		if d.Throttle != nil {
			opts := *d.Throttle
			if opts.Logger == nil {
				opts.Logger = logger
			}
			opts.OnReject = func(w http.ResponseWriter, _ *http.Request, _ ratelimitdomain.Decision) {
				Write(w, OutcomeThrottled)
			}
			r.Use(ratelimit.Middleware(opts))
		}
		r.Use(ratelimit.ConcurrencyMiddleware(d.Concurrency))
		r.Use(identity.Middleware(d.Identity))

		r.Get("/user", h.GetUser)
		for _, kind := range domain.Kinds() {
			r.Post("/update/"+string(kind), h.Update(kind))
		}
	})

	return r
}
