package infra

import (
	"context"
	"sync"
	"time"

	"userdata-gateway/middleware/ratelimit/domain"
)

// WindowStore conta requisições por chave em janelas fixas, em memória.
//
// O estado de cada cliente é descartado quando a janela vence (Sweep/janitor),
// e WithMaxKeys limita quantos clientes ficam em memória ao mesmo tempo.
type WindowStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry

	window       time.Duration
	maxKeys      int
	cleanupEvery time.Duration
	now          func() time.Time
}

type windowEntry struct {
	count int64
	start time.Time
}

type WindowStoreOption func(*WindowStore)

// WithMaxKeys limita o número de clientes rastreados. Ao atingir o limite,
// janelas vencidas são varridas e, se ainda faltar espaço, a janela mais
// antiga é descartada. 0 desliga o limite.
func WithMaxKeys(n int) WindowStoreOption {
	return func(s *WindowStore) { s.maxKeys = n }
}

func WithSweepEvery(d time.Duration) WindowStoreOption {
	return func(s *WindowStore) { s.cleanupEvery = d }
}

func WithClock(now func() time.Time) WindowStoreOption {
	return func(s *WindowStore) { s.now = now }
}

func NewWindowStore(window time.Duration, opts ...WindowStoreOption) *WindowStore {
	s := &WindowStore{
		entries:      make(map[string]*windowEntry),
		window:       window,
		cleanupEvery: time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WindowStore) Window() time.Duration { return s.window }

// Hit implementa domain.WindowStore. Nunca retorna erro.
func (s *WindowStore) Hit(_ context.Context, key domain.Key) (domain.WindowState, error) {
	now := s.now()
	k := string(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[k]
	if ok && !now.Before(ent.start.Add(s.window)) {
		// janela venceu: zera exatamente na fronteira
		ent.count = 0
		ent.start = now
	}
	if !ok {
		if s.maxKeys > 0 && len(s.entries) >= s.maxKeys {
			s.makeRoomLocked(now)
		}
		ent = &windowEntry{start: now}
		s.entries[k] = ent
	}

	ent.count++
	return domain.WindowState{
		Count:   ent.count,
		Start:   ent.start,
		ResetAt: ent.start.Add(s.window),
	}, nil
}

// Len retorna quantos clientes estão sendo rastreados.
func (s *WindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep remove as janelas já vencidas.
func (s *WindowStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *WindowStore) sweepLocked(now time.Time) int {
	removed := 0
	for k, ent := range s.entries {
		if !now.Before(ent.start.Add(s.window)) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *WindowStore) makeRoomLocked(now time.Time) {
	if s.sweepLocked(now) > 0 {
		return
	}
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, ent := range s.entries {
		if oldestKey == "" || ent.start.Before(oldest) {
			oldestKey, oldest = k, ent.start
		}
	}
	delete(s.entries, oldestKey)
}

// StartJanitor inicia uma goroutine que varre janelas vencidas periodicamente.
// Pare cancelando o contexto.
func (s *WindowStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}
