package domain

import "context"

// Store é o storage de documentos de usuário, indexado pelo e-mail.
//
// Todas as operações retornam ErrUserNotFound quando o registro não existe.
// AddTime deve serializar appends do mesmo usuário: appends concorrentes
// nunca se perdem.
type Store interface {
	FindUser(ctx context.Context, email string) (UserRecord, error)
	CreateUser(ctx context.Context, email string) error
	UpdateSettings(ctx context.Context, email, key string, value any) error
	UpdateStatistics(ctx context.Context, email string, stats Statistics) error
	AddTime(ctx context.Context, email string, time int64) error
}
