package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dekarrin/lectern/bind"
	"github.com/dekarrin/lectern/books"
	"github.com/dekarrin/lectern/config"
	"github.com/dekarrin/lectern/dao"
	"github.com/dekarrin/lectern/dao/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Environment_NewServer(t *testing.T) {
	testCases := []struct {
		name      string
		env       func() *Environment
		cfg       func(t *testing.T) *config.Config
		expectErr bool
	}{
		{
			name: "nil config uses defaults",
			env:  func() *Environment { return &Environment{} },
			cfg:  func(t *testing.T) *config.Config { return nil },
		},
		{
			name: "sqlite store",
			env:  func() *Environment { return &Environment{} },
			cfg: func(t *testing.T) *config.Config {
				return &config.Config{
					Store: config.Store{Type: config.StoreSQLite, Dir: t.TempDir(), File: "test.db"},
				}
			},
		},
		{
			name:      "invalid config",
			env:       func() *Environment { return &Environment{} },
			cfg:       func(t *testing.T) *config.Config { return &config.Config{Interceptors: []string{"retry"}} },
			expectErr: true,
		},
		{
			name:      "defaults disabled",
			env:       func() *Environment { return &Environment{DisableDefaults: true} },
			cfg:       func(t *testing.T) *config.Config { return &config.Config{} },
			expectErr: true,
		},
		{
			name: "custom connector",
			env: func() *Environment {
				env := &Environment{DisableDefaults: true}
				env.RegisterConnector("memory", func(config.Store) (dao.Connector, error) {
					return inmem.New(), nil
				})
				return env
			},
			cfg: func(t *testing.T) *config.Config { return &config.Config{Store: config.Store{Type: "memory"}} },
		},
		{
			name: "connector fails",
			env: func() *Environment {
				env := &Environment{}
				env.RegisterConnector("broken", func(config.Store) (dao.Connector, error) {
					return nil, errors.New("broken")
				})
				return env
			},
			cfg:       func(t *testing.T) *config.Config { return &config.Config{Store: config.Store{Type: "broken"}} },
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			srv, err := tc.env().NewServer(tc.cfg(t))

			if tc.expectErr {
				assert.Error(err)
				return
			}
			require.NoError(t, err)
			defer srv.Shutdown(context.Background())

			for _, key := range []string{books.KeyRepository, books.KeyOpCreate, KeyOpPing, dao.KeyStore, bind.KeyLogger.String()} {
				assert.True(srv.Bindings().IsBound(key), "expected %q to be bound", key)
			}
		})
	}
}

// unreachableConnector fails to connect and records whether it was closed.
type unreachableConnector struct {
	*inmem.Connector
	closed bool
}

func (uc *unreachableConnector) Connect(ctx context.Context) error {
	return errors.New("create table: disk I/O error")
}

func (uc *unreachableConnector) Close() error {
	uc.closed = true
	return nil
}

func Test_Environment_NewServer_closesStoreWhenConnectFails(t *testing.T) {
	assert := assert.New(t)
	conn := &unreachableConnector{Connector: inmem.New()}

	env := &Environment{}
	require.NoError(t, env.RegisterConnector("unreachable", func(config.Store) (dao.Connector, error) {
		return conn, nil
	}))

	_, err := env.NewServer(&config.Config{Store: config.Store{Type: "unreachable"}})

	assert.ErrorContains(err, "disk I/O error")
	assert.True(conn.closed)
}

func Test_Environment_NewServer_doesNotModifyConfig(t *testing.T) {
	assert := assert.New(t)
	cfg := &config.Config{Message: "hi"}

	srv, err := (&Environment{}).NewServer(cfg)
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	assert.Equal(config.Config{Message: "hi"}, *cfg)
	assert.Equal(8080, srv.Config().Port)
}

func Test_Environment_LoadConfig(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "lectern.yml")
	require.NoError(t, os.WriteFile(path, []byte("message: from file\ninterceptors: []\n"), 0660))

	cfg, err := (&Environment{}).LoadConfig(path)

	require.NoError(t, err)
	assert.Equal("from file", cfg.Message)
	assert.Empty(cfg.Interceptors)
}

func Test_Environment_DumpConfig(t *testing.T) {
	assert := assert.New(t)
	env := &Environment{}

	data := env.DumpConfig(config.Config{Message: "dumped"}.FillDefaults())

	assert.Contains(string(data), "message: dumped")
	assert.Contains(string(data), "type: inmem")
}
