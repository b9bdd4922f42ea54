package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"userdata-gateway/middleware/identity"
	"userdata-gateway/userdata/application"
	"userdata-gateway/userdata/domain"
	"userdata-gateway/userdata/validation"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Handlers atende /api/user e /api/update/*. O throttle já rodou antes.
type Handlers struct {
	Users        application.Router
	MaxBodyBytes int64
	// StoreTimeout limita cada chamada ao storage; estourar vira falha de storage.
	StoreTimeout time.Duration
	Logger       *zap.Logger
}

func (h Handlers) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.StoreTimeout)
}

// GetUser devolve {email, settings, statistics, times} do usuário autenticado.
func (h Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		Write(w, OutcomeUnauthenticated)
		return
	}

	ctx, cancel := h.storeContext(r.Context())
	defer cancel()

	info, err := h.Users.User(ctx, id.Email())
	if err != nil {
		h.logFailure(r, "user", id, err)
		Write(w, Classify(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(info)
}

// Update monta o handler de POST /api/update/<kind>.
func (h Handlers) Update(kind domain.EndpointKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity.FromContext(r.Context())
		if !ok {
			Write(w, OutcomeUnauthenticated)
			return
		}

		err := h.update(r, kind, id)
		if err != nil {
			h.logFailure(r, string(kind), id, err)
		}
		Write(w, Classify(err))
	}
}

func (h Handlers) update(r *http.Request, kind domain.EndpointKind, id identity.Identity) error {
	body, err := h.readBody(r)
	if err != nil {
		return err
	}

	m, err := validation.Validate(kind, body)
	if err != nil {
		return err
	}

	ctx, cancel := h.storeContext(r.Context())
	defer cancel()
	return h.Users.Apply(ctx, id.Email(), m)
}

func (h Handlers) readBody(r *http.Request) ([]byte, error) {
	var src io.Reader = r.Body
	if h.MaxBodyBytes > 0 {
		// lê um byte a mais para distinguir "no limite" de "acima do limite"
		src = io.LimitReader(r.Body, h.MaxBodyBytes+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.WithMessage(domain.ErrValidation, "read body: "+err.Error())
	}
	if h.MaxBodyBytes > 0 && int64(len(body)) > h.MaxBodyBytes {
		return nil, errors.WithMessagef(domain.ErrValidation, "body exceeds %d bytes", h.MaxBodyBytes)
	}
	return body, nil
}

func (h Handlers) logFailure(r *http.Request, endpoint string, id identity.Identity, err error) {
	fields := []zap.Field{
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("endpoint", endpoint),
		zap.String("identity", id.Email()),
		zap.Error(err),
	}
	switch Classify(err) {
	case OutcomeInvalid:
		h.Logger.Info("request rejected by validation", fields...)
	case OutcomeStorageFailed:
		h.Logger.Error("storage operation failed", fields...)
	default:
		h.Logger.Warn("request failed", fields...)
	}
}
