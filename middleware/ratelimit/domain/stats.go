package domain

import (
	"context"
	"time"
)

// Outcome classifica a decisão do throttle para estatística.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDelayed Outcome = "delayed"
	OutcomeDenied  Outcome = "denied"
)

// OutcomeOf resume uma Decision.
func OutcomeOf(d Decision) Outcome {
	switch {
	case !d.Allowed:
		return OutcomeDenied
	case d.Delay > 0:
		return OutcomeDelayed
	default:
		return OutcomeAllowed
	}
}

// StatsEvent representa um evento de decisão do throttle.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de chaves no Redis).
type StatsEvent struct {
	Key     Key
	Outcome Outcome
	Delay   time.Duration

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do throttle.
//
// O middleware trata erro como best-effort (não derruba a request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
