package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/escrowd/internal/config"
	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

const testGenesis = `
[[account]]
identity = "creator"
balance  = 500
`

func writeGenesis(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.toml")
	require.NoError(t, os.WriteFile(path, []byte(testGenesis), 0o600))
	return path
}

func serve(t *testing.T, a *app, method, target, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set(auth.DefaultCallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	a.server.Echo().ServeHTTP(rec, req)
	return rec
}

func TestNewApp_AppliesGenesis(t *testing.T) {
	cfg := config.Default()
	cfg.Ledger.GenesisPath = writeGenesis(t)

	a, err := newApp(context.Background(), cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer a.Close()

	bal, err := a.ledger.Balance(context.Background(), "creator")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), bal)
	assert.Nil(t, a.natsConn)
}

func TestNewApp_BadGenesis(t *testing.T) {
	cfg := config.Default()
	cfg.Ledger.GenesisPath = filepath.Join(t.TempDir(), "missing.toml")

	_, err := newApp(context.Background(), cfg, zap.NewNop(), nil)
	require.Error(t, err)
}

func TestNewApp_EmbeddedNATSPublishesEvents(t *testing.T) {
	cfg := config.Default()
	cfg.Ledger.GenesisPath = writeGenesis(t)
	cfg.NATS.Enabled = true
	cfg.NATS.Embedded = true
	cfg.NATS.SubjectPrefix = "escrow"

	a, err := newApp(context.Background(), cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.natsServer)

	nc, err := nats.Connect(a.natsServer.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	sub, err := nc.SubscribeSync("escrow.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	rec := serve(t, a, http.MethodPost, "/api/v1/tasks", "creator", `{"name":"alpha","locked_amount":100}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "escrow.created", msg.Subject)

	rec = serve(t, a, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"nats":"ok"`)
}

func TestNewApp_MetricsEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Ledger.GenesisPath = writeGenesis(t)

	a, err := newApp(context.Background(), cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer a.Close()

	rec := serve(t, a, http.MethodPost, "/api/v1/tasks", "creator", `{"name":"alpha","locked_amount":100}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(t, a, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_moves_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Version:    dev")
}

func TestConfigCommand_RedactsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nats:\n  token: hunter2\n"), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--config", path})
	require.NoError(t, cmd.Execute())

	assert.NotContains(t, out.String(), "hunter2")
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
}
