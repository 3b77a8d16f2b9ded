package platform

import (
	"io"
	"log/slog"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	var cfg Config
	applyDefaults(&cfg)
	cfg.Database.DSN = "postgres://localhost/sightline?sslmode=disable"
	cfg.Pseudonym.Key = "test-session-key"
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestNew(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	cfg := testConfig(t)
	p, err := New(cfg,
		WithDB(db),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	assert.Equal(t, cfg, p.Config())
	assert.Equal(t, db, p.DB())
	assert.NotNil(t, p.httpServer)
	assert.Equal(t, cfg.Server.Address, p.httpServer.Addr)
	assert.NotNil(t, p.httpServer.Handler)
	assert.False(t, p.checker.IsReady(), "not ready before Start")
}

func TestNew_BadPseudonymKey(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	cfg := testConfig(t)
	cfg.Pseudonym.Key = ""

	_, err = New(cfg, WithDB(db))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pseudonym hasher")
}

func TestApplyOptions_Defaults(t *testing.T) {
	options := applyOptions(nil)
	assert.NotNil(t, options.logger)
	assert.Nil(t, options.db)
}
