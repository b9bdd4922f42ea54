package infra

import (
	"context"
	"maps"
	"slices"
	"sync"

	"userdata-gateway/userdata/domain"
)

// MemoryStore guarda os registros em memória. Um único lock serializa as
// escritas, então appends concorrentes do mesmo usuário nunca se perdem.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*domain.UserRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*domain.UserRecord)}
}

func (s *MemoryStore) FindUser(ctx context.Context, email string) (domain.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.UserRecord{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[email]
	if !ok {
		return domain.UserRecord{}, domain.ErrUserNotFound
	}
	return domain.UserRecord{
		Email:      u.Email,
		Settings:   maps.Clone(u.Settings),
		Statistics: u.Statistics,
		Times:      slices.Clone(u.Times),
	}, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[email]; ok {
		return domain.ErrUserExists
	}
	s.users[email] = &domain.UserRecord{
		Email:    email,
		Settings: make(map[string]any),
	}
	return nil
}

func (s *MemoryStore) UpdateSettings(ctx context.Context, email, key string, value any) error {
	return s.update(ctx, email, func(u *domain.UserRecord) {
		u.Settings[key] = value
	})
}

func (s *MemoryStore) UpdateStatistics(ctx context.Context, email string, stats domain.Statistics) error {
	return s.update(ctx, email, func(u *domain.UserRecord) {
		u.Statistics = stats
	})
}

func (s *MemoryStore) AddTime(ctx context.Context, email string, t int64) error {
	return s.update(ctx, email, func(u *domain.UserRecord) {
		u.Times = append(u.Times, t)
	})
}

func (s *MemoryStore) update(ctx context.Context, email string, fn func(*domain.UserRecord)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if !ok {
		return domain.ErrUserNotFound
	}
	fn(u)
	return nil
}
