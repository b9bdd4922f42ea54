package application

import (
	"context"
	"errors"
	"time"

	"userdata-gateway/middleware/ratelimit/domain"
)

var (
	// ErrNoSlot indica que o AcquireTimeout venceu sem vaga livre.
	ErrNoSlot = errors.New("concurrency: no slot available")
	// ErrCanceled indica que o cliente desistiu (ctx da request encerrado) antes da vaga.
	ErrCanceled = errors.New("concurrency: request canceled while waiting")
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - AcquireTimeout <= 0: espera até ctx cancelar.
//   - AcquireTimeout > 0: espera no máximo o timeout.
//
// Em caso de erro nenhuma vaga foi adquirida e release é nil.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if ok {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, ErrCanceled
	}
	return nil, ErrNoSlot
}
