package application

import (
	"context"
	"fmt"

	"userdata-gateway/userdata/domain"

	"github.com/pkg/errors"
)

type Router struct {
	Store domain.Store
	// AutoProvision cria o registro na primeira leitura de um usuário novo.
	AutoProvision bool
}

// Apply executa a mutação no registro de email.
func (r Router) Apply(ctx context.Context, email string, m domain.Mutation) error {
	if email == "" {
		return domain.ErrUnauthenticated
	}

	var (
		op  string
		err error
	)
	switch m := m.(type) {
	case domain.SettingsUpdate:
		op = "update settings"
		err = r.Store.UpdateSettings(ctx, email, m.Key, m.Value)
	case domain.StatisticsUpdate:
		op = "update statistics"
		err = r.Store.UpdateStatistics(ctx, email, m.Statistics)
	case domain.TimeEntry:
		op = "add time"
		err = r.Store.AddTime(ctx, email, m.Time)
	default:
		return errors.WithMessage(domain.ErrValidation, fmt.Sprintf("unsupported mutation %T", m))
	}
	if err != nil {
		return &domain.StorageError{Op: op, Email: email, Err: err}
	}
	return nil
}

// User devolve a projeção pública do registro de email.
func (r Router) User(ctx context.Context, email string) (domain.UserInfo, error) {
	if email == "" {
		return domain.UserInfo{}, domain.ErrUnauthenticated
	}

	rec, err := r.Store.FindUser(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) && r.AutoProvision {
		err = r.Store.CreateUser(ctx, email)
		if err == nil || errors.Is(err, domain.ErrUserExists) {
			rec, err = r.Store.FindUser(ctx, email)
		}
	}
	if err != nil {
		return domain.UserInfo{}, &domain.StorageError{Op: "find user", Email: email, Err: err}
	}
	return rec.Project(), nil
}
