package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provenance/internal/config"
	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/stream"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestBackendSource_FeedsBroadcaster(t *testing.T) {
	b := graph.NewMemory("g1")
	events := stream.NewBroadcaster(0)
	detach := events.Attach(backendSource{b})

	require.NoError(t, b.AddNode(context.Background(), graph.NewNode(1, "state", nil)))
	recent := events.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, "g1", recent[0].Graph)
	assert.Equal(t, int64(1), recent[0].Node)

	detach()
	require.NoError(t, b.AddNode(context.Background(), graph.NewNode(2, "state", nil)))
	assert.Len(t, events.Recent(0), 1)
}

func TestServe_ScenarioGraphIsListed(t *testing.T) {
	t.Setenv("PROVENANCE_SQLITE", "")
	t.Setenv("MQTT_URL", "")
	cfg := config.Default()
	cfg.Storage.SQLite = filepath.Join(t.TempDir(), "serve.db")

	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text", cfg: cfg},
		Listen:      freeAddr(t),
		Scenario:    "../harness/testdata/scenarios/create_rename_undo.yaml",
		Recent:      10,
	}

	ctx, cancel := context.WithCancel(context.Background())
	st, err := openStores(ctx, cfg)
	require.NoError(t, err)
	defer st.Close()

	done := make(chan error, 1)
	go func() { done <- serve(ctx, opts, st) }()

	url := fmt.Sprintf("http://%s/api/graphs", opts.Listen)
	var descs []graph.Descriptor
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		descs = nil
		return resp.StatusCode == http.StatusOK &&
			json.NewDecoder(resp.Body).Decode(&descs) == nil &&
			len(descs) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "create_rename_undo", descs[0].Name)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_GraphAndScenarioExclusive(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--graph", "g1", "--scenario", "x.yaml"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
