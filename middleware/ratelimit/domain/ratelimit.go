package domain

// Camada de domínio do throttle (slow-down + bloqueio).
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// WindowState é o estado de um cliente dentro da janela fixa corrente,
// já incluindo a requisição que acabou de ser contada.
type WindowState struct {
	Count int64
	Start time.Time
	// ResetAt é o instante exato em que o contador volta a zero.
	ResetAt time.Time
}

// WindowStore conta requisições por chave em janelas fixas.
//
// Hit incrementa e lê o contador numa única operação atômica: duas chamadas
// concorrentes para a mesma chave nunca observam o mesmo Count.
type WindowStore interface {
	Hit(ctx context.Context, key Key) (WindowState, error)
}

// Policy define os limiares do throttle.
//
//   - Count <= Threshold: passa sem atraso.
//   - Threshold < Count < HardCap: passa com atraso (Count-Threshold)*DelayStep, até MaxDelay.
//   - Count >= HardCap: bloqueado até o fim da janela.
type Policy struct {
	Window    time.Duration
	Threshold int64
	DelayStep time.Duration
	MaxDelay  time.Duration
	HardCap   int64
}

// DelayFor retorna o atraso imposto à requisição de número count na janela.
// É não-decrescente em count e nunca passa de MaxDelay.
func (p Policy) DelayFor(count int64) time.Duration {
	if count <= p.Threshold || p.DelayStep <= 0 {
		return 0
	}
	over := count - p.Threshold
	if p.MaxDelay <= 0 {
		return time.Duration(over) * p.DelayStep
	}
	// compara antes de multiplicar para não estourar int64
	if over > int64(p.MaxDelay/p.DelayStep) {
		return p.MaxDelay
	}
	return min(time.Duration(over)*p.DelayStep, p.MaxDelay)
}

// Blocks informa se a requisição de número count atingiu o teto rígido.
// HardCap <= 0 desliga o bloqueio.
func (p Policy) Blocks(count int64) bool {
	return p.HardCap > 0 && count >= p.HardCap
}

type Decision struct {
	Allowed bool
	// Delay é o atraso artificial a aplicar antes de seguir (só quando Allowed).
	Delay time.Duration
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration

	Count   int64
	ResetAt time.Time
}
