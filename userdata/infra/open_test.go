package infra

import (
	"context"
	"path/filepath"
	"testing"

	"userdata-gateway/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, closer, err := Open(ctx, config.StoreConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	assert.NoError(t, closer.Close())

	_, _, err = Open(ctx, config.StoreConfig{Driver: "redis"}, nil)
	assert.ErrorContains(t, err, "requires a redis client")

	_, _, err = Open(ctx, config.StoreConfig{Driver: "mongo"}, nil)
	assert.ErrorContains(t, err, `unknown store driver "mongo"`)
}

func TestBuildLibsqlDSN(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		want    string
		wantErr bool
	}{
		{name: "memory", cfg: config.StoreConfig{Path: ":memory:"}, want: ":memory:"},
		{name: "file prefix kept", cfg: config.StoreConfig{Path: "file:data.db"}, want: "file:data.db"},
		{name: "plain path", cfg: config.StoreConfig{Path: filepath.Join(dir, "a.db")}, want: "file:" + filepath.Join(dir, "a.db")},
		{
			name: "remote with token",
			cfg:  config.StoreConfig{URL: "libsql://db.turso.io", AuthToken: "tok"},
			want: "libsql://db.turso.io?authToken=tok",
		},
		{
			name: "token already in url",
			cfg:  config.StoreConfig{URL: "libsql://db.turso.io?authToken=x", AuthToken: "tok"},
			want: "libsql://db.turso.io?authToken=x",
		},
		{name: "nothing configured", cfg: config.StoreConfig{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildLibsqlDSN(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
