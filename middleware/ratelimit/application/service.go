package application

import (
	"context"
	"time"

	"userdata-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// Service concentra a regra de aplicação do throttle: conta a requisição na
// janela do cliente e traduz o contador em passa / atrasa / bloqueia.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store  domain.WindowStore
	Policy domain.Policy
	Logger *zap.Logger
	Now    func() time.Time
}

func (s Service) Decide(ctx context.Context, key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.Now == nil {
		s.Now = time.Now
	}

	st, err := s.Store.Hit(ctx, key)
	if err != nil {
		// fail-open: o throttle nunca vira erro de storage para o cliente
		if s.Logger != nil {
			s.Logger.Warn("throttle store unavailable, admitting request",
				zap.String("key", string(key)),
				zap.Error(err))
		}
		return domain.Decision{Allowed: true}
	}

	dec := domain.Decision{Count: st.Count, ResetAt: st.ResetAt}
	if s.Policy.Blocks(st.Count) {
		dec.RetryAfter = st.ResetAt.Sub(s.Now())
		if dec.RetryAfter < time.Second {
			dec.RetryAfter = time.Second
		}
		return dec
	}

	dec.Allowed = true
	dec.Delay = s.Policy.DelayFor(st.Count)
	return dec
}
