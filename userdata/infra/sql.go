package infra

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"userdata-gateway/config"
	"userdata-gateway/userdata/domain"

	"github.com/pkg/errors"
	_ "github.com/tursodatabase/go-libsql"
)

const driverLibsql = "libsql"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS user_settings (
		email TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (email, key)
	);`,
	`CREATE TABLE IF NOT EXISTS user_statistics (
		email TEXT PRIMARY KEY,
		average INTEGER NOT NULL,
		average_of5 INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS user_times (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		time INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_user_times_email ON user_times(email, id);`,
}

// SQLStore guarda os registros em libsql (SQLite local ou Turso remoto).
// O histórico de tempos é uma tabela só de INSERT, ordenada pelo id.
type SQLStore struct {
	DB *sql.DB
}

// OpenSQLStore abre a conexão libsql e aplica o schema.
func OpenSQLStore(ctx context.Context, cfg config.StoreConfig) (*SQLStore, error) {
	dsn, err := buildLibsqlDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverLibsql, dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}

	s := &SQLStore{DB: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *SQLStore) FindUser(ctx context.Context, email string) (domain.UserRecord, error) {
	if ok, err := userExists(ctx, s.DB, email); err != nil {
		return domain.UserRecord{}, err
	} else if !ok {
		return domain.UserRecord{}, domain.ErrUserNotFound
	}

	rec := domain.UserRecord{Email: email, Settings: make(map[string]any), Times: []int64{}}

	rows, err := s.DB.QueryContext(ctx, `SELECT key, value FROM user_settings WHERE email = ?`, email)
	if err != nil {
		return domain.UserRecord{}, errors.WithMessage(err, "query settings")
	}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			_ = rows.Close()
			return domain.UserRecord{}, errors.WithMessage(err, "scan setting")
		}
		v, err := decodeSetting(raw)
		if err != nil {
			_ = rows.Close()
			return domain.UserRecord{}, errors.WithMessagef(err, "decode setting %q", key)
		}
		rec.Settings[key] = v
	}
	if err := rows.Close(); err != nil {
		return domain.UserRecord{}, errors.WithMessage(err, "close settings rows")
	}
	if err := rows.Err(); err != nil {
		return domain.UserRecord{}, errors.WithMessage(err, "iterate settings")
	}

	err = s.DB.QueryRowContext(ctx,
		`SELECT average, average_of5 FROM user_statistics WHERE email = ?`, email,
	).Scan(&rec.Statistics.Average, &rec.Statistics.AverageOf5)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.UserRecord{}, errors.WithMessage(err, "query statistics")
	}

	rows, err = s.DB.QueryContext(ctx, `SELECT time FROM user_times WHERE email = ? ORDER BY id`, email)
	if err != nil {
		return domain.UserRecord{}, errors.WithMessage(err, "query times")
	}
	defer rows.Close() // nolint:errcheck
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return domain.UserRecord{}, errors.WithMessage(err, "scan time")
		}
		rec.Times = append(rec.Times, t)
	}
	if err := rows.Err(); err != nil {
		return domain.UserRecord{}, errors.WithMessage(err, "iterate times")
	}
	return rec, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, email string) error {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (email, created_at) VALUES (?, ?) ON CONFLICT(email) DO NOTHING`,
		email, time.Now().UTC().Unix())
	if err != nil {
		return errors.WithMessage(err, "insert user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserExists
	}
	return nil
}

func (s *SQLStore) UpdateSettings(ctx context.Context, email, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.WithMessage(err, "encode setting")
	}
	return s.withUser(ctx, email, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_settings (email, key, value) VALUES (?, ?, ?)
			ON CONFLICT(email, key) DO UPDATE SET value = excluded.value
		`, email, key, string(raw))
		return errors.WithMessage(err, "upsert setting")
	})
}

func (s *SQLStore) UpdateStatistics(ctx context.Context, email string, stats domain.Statistics) error {
	return s.withUser(ctx, email, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_statistics (email, average, average_of5) VALUES (?, ?, ?)
			ON CONFLICT(email) DO UPDATE SET
				average = excluded.average,
				average_of5 = excluded.average_of5
		`, email, stats.Average, stats.AverageOf5)
		return errors.WithMessage(err, "upsert statistics")
	})
}

func (s *SQLStore) AddTime(ctx context.Context, email string, t int64) error {
	return s.withUser(ctx, email, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO user_times (email, time) VALUES (?, ?)`, email, t)
		return errors.WithMessage(err, "insert time")
	})
}

// withUser roda fn numa transação, só se o usuário existir.
func (s *SQLStore) withUser(ctx context.Context, email string, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithMessage(err, "begin tx")
	}
	defer tx.Rollback() // nolint:errcheck

	ok, err := userExists(ctx, tx, email)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUserNotFound
	}
	if err := fn(tx); err != nil {
		return err
	}
	return errors.WithMessage(tx.Commit(), "commit")
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func userExists(ctx context.Context, q queryRower, email string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM users WHERE email = ?`, email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithMessage(err, "lookup user")
	}
	return true, nil
}

func buildLibsqlDSN(cfg config.StoreConfig) (string, error) {
	if dsn := strings.TrimSpace(cfg.URL); dsn != "" {
		return addAuthToken(dsn, cfg.AuthToken)
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return "", errors.New("store path or url is required")
	case path == ":memory:", strings.HasPrefix(path, "file:"), strings.HasPrefix(path, "libsql:"):
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create store dir: %w", err)
	}
	return "file:" + filepath.Clean(path), nil
}

func addAuthToken(dsn string, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}

	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", token)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}
