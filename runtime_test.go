package chainorch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/chainorch/config"
	"github.com/viant/chainorch/model"
	"github.com/viant/chainorch/service/dao/record"
	fsqueue "github.com/viant/chainorch/service/messaging/fs"
)

type fakeProcess struct{}

func (fakeProcess) Start(ctx context.Context) (int, error) { return 4242, nil }

func (fakeProcess) Stop(ctx context.Context, pid int) error { return nil }

func (fakeProcess) Alive(ctx context.Context, pid int) bool { return pid == 4242 }

// node fakes the remote service: the factory application opens chains, chain
// applications record scores
type node struct {
	mu          sync.Mutex
	chains      []string
	hold        chan struct{}
	recordCalls int
}

func (n *node) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var request struct {
		Query string `json:"query"`
	}
	_ = json.Unmarshal(data, &request)
	switch {
	case strings.Contains(request.Query, "openAndCreate"):
		n.mu.Lock()
		hold := n.hold
		n.mu.Unlock()
		if hold != nil {
			<-hold
		}
		n.mu.Lock()
		n.chains = append(n.chains, fmt.Sprintf("chain-%d", len(n.chains)+1))
		n.mu.Unlock()
		_, _ = w.Write([]byte(`{"data":{"openAndCreate":true}}`))
	case strings.Contains(request.Query, "allOpenedChains"):
		n.mu.Lock()
		out, _ := json.Marshal(map[string]interface{}{"data": map[string]interface{}{"allOpenedChains": n.chains}})
		n.mu.Unlock()
		_, _ = w.Write(out)
	case strings.Contains(request.Query, "allChildApps"):
		n.mu.Lock()
		var apps []map[string]string
		for _, chainID := range n.chains {
			apps = append(apps, map[string]string{"chainId": chainID, "appId": "app-" + chainID})
		}
		n.mu.Unlock()
		out, _ := json.Marshal(map[string]interface{}{"data": map[string]interface{}{"allChildApps": apps}})
		_, _ = w.Write(out)
	case strings.Contains(request.Query, "recordScore"):
		n.mu.Lock()
		n.recordCalls++
		n.mu.Unlock()
		parts := strings.Split(r.URL.Path, "/")
		_, _ = w.Write([]byte(fmt.Sprintf(`{"data":{"recordScore":"op-%s"}}`, parts[2])))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (n *node) RecordCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.recordCalls
}

func testConfig(t *testing.T, serviceURL, baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Service.URL = serviceURL
	cfg.Service.PublisherChain = "publisher"
	cfg.Service.FactoryApp = "factory"
	cfg.Launcher.Command = "node service"
	cfg.Store.BaseURL = baseURL
	cfg.Watchdog.PollInterval = 5 * time.Millisecond
	cfg.Watchdog.SettleDelay = time.Millisecond
	cfg.Stability = config.Stability{Timeout: time.Second, Poll: time.Millisecond, Window: 10 * time.Millisecond, RetryDelay: time.Millisecond}
	cfg.Sender.RetryBase = time.Millisecond
	cfg.Sender.RetryStep = time.Millisecond
	cfg.Allocation.PollDelay = time.Millisecond
	cfg.Overflow.FailurePause = time.Millisecond
	cfg.Scheduler.DrainInterval = 20 * time.Millisecond
	require.NoError(t, cfg.Validate())
	return cfg
}

func newRuntime(t *testing.T, remote *node, baseURL string) *Runtime {
	server := httptest.NewServer(remote)
	t.Cleanup(server.Close)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv, err := New(context.Background(), testConfig(t, server.URL, baseURL),
		WithLauncher(fakeProcess{}), WithProber(fakeProcess{}), WithLogger(logger))
	require.NoError(t, err)
	rt := srv.Runtime()
	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	return rt
}

func matchResult() *model.MatchResult {
	return &model.MatchResult{Player1Username: "alice", Player2Username: "bob", WinnerUsername: "alice", LoserUsername: "bob", Player1Score: 3, Player2Score: 1}
}

func TestRuntime_OpenAndSubmit(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, &node{}, t.TempDir())
	require.True(t, rt.IsServiceStable(ctx, time.Second))

	record, err := rt.EnqueueOpen(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "chain-1", record.ChainID)
	assert.Equal(t, "app-chain-1", record.AppID)

	receipt, err := rt.EnqueueSubmit(ctx, record.ChainID, matchResult())
	require.NoError(t, err)
	assert.False(t, receipt.Queued)
	assert.Equal(t, "op-chain-1", receipt.OpID)
	assert.Equal(t, "chain-1", receipt.MatchID, "match id defaults to chain id")

	stored, err := rt.GetRecord(ctx, "chain-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, stored.Status)

	_, err = rt.EnqueueSubmit(ctx, record.ChainID, matchResult())
	assert.ErrorIs(t, err, model.ErrInvalidState, "duplicate submission")

	stats, err := rt.GetPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Wins)
	snapshot, err := rt.Snapshot(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snapshot.TopPlayers, 1)
	assert.Equal(t, "alice", snapshot.TopPlayers[0].Username)
	assert.Equal(t, 2, snapshot.AllPlayers)

	status := rt.Status(ctx)
	assert.Equal(t, 4242, status.Process.PID)
	assert.Equal(t, 0, status.PendingOpen)
	assert.Equal(t, 1, status.Records)
}

func TestRuntime_SubmitUnknownChain(t *testing.T) {
	rt := newRuntime(t, &node{}, t.TempDir())
	_, err := rt.EnqueueSubmit(context.Background(), "missing", matchResult())
	assert.ErrorIs(t, err, model.ErrInvalidState)
	_, err = rt.EnqueueOpen(context.Background(), "alice", " ")
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestRuntime_SubmitDuringOpenIsQueued(t *testing.T) {
	ctx := context.Background()
	remote := &node{}
	rt := newRuntime(t, remote, t.TempDir())
	first, err := rt.EnqueueOpen(ctx, "alice", "bob")
	require.NoError(t, err)

	hold := make(chan struct{})
	remote.mu.Lock()
	remote.hold = hold
	remote.mu.Unlock()
	opened := make(chan error, 1)
	go func() {
		_, err := rt.EnqueueOpen(ctx, "carol", "dave")
		opened <- err
	}()
	require.Eventually(t, func() bool { return rt.Status(ctx).PendingOpen == 1 }, time.Second, time.Millisecond)

	receipt, err := rt.EnqueueSubmit(ctx, first.ChainID, matchResult())
	require.NoError(t, err)
	assert.True(t, receipt.Queued)
	assert.Equal(t, 1, rt.Status(ctx).OverflowDepth)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, remote.RecordCalls(), "no submission while an allocation is in flight")

	remote.mu.Lock()
	remote.hold = nil
	remote.mu.Unlock()
	close(hold)
	require.NoError(t, <-opened)

	require.Eventually(t, func() bool {
		record, _ := rt.GetRecord(ctx, first.ChainID)
		return record.Status == model.StatusSubmitted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, rt.Status(ctx).OverflowDepth)
	assert.Equal(t, 1, remote.RecordCalls())
}

func TestRuntime_Restart(t *testing.T) {
	ctx := context.Background()
	baseURL := t.TempDir()
	remote := &node{}
	rt := newRuntime(t, remote, baseURL)
	record, err := rt.EnqueueOpen(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, rt.Shutdown(ctx))

	restarted := newRuntime(t, remote, baseURL)
	stored, err := restarted.GetRecord(ctx, record.ChainID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.StatusCreated, stored.Status)
	receipt, err := restarted.EnqueueSubmit(ctx, record.ChainID, matchResult())
	require.NoError(t, err)
	assert.Equal(t, "op-chain-1", receipt.OpID)
}

func TestRuntime_RestartDeliversQueuedSubmission(t *testing.T) {
	ctx := context.Background()
	baseURL := t.TempDir()
	cfg := testConfig(t, "http://127.0.0.1:1", baseURL)

	records, err := record.New(ctx, afs.New(), cfg.Store.URL(cfg.Store.Records))
	require.NoError(t, err)
	placeholder, err := records.BeginCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = records.CompleteCreate(ctx, placeholder, "chain-1", "app-chain-1")
	require.NoError(t, err)
	_, err = records.BeginSubmit(ctx, "chain-1")
	require.NoError(t, err)
	overflow, err := fsqueue.New(ctx, afs.New(), cfg.OverflowConfig())
	require.NoError(t, err)
	_, err = overflow.Append(ctx, "chain-1", matchResult())
	require.NoError(t, err)

	remote := &node{chains: []string{"chain-1"}}
	rt := newRuntime(t, remote, baseURL)
	stored, err := rt.GetRecord(ctx, "chain-1")
	require.NoError(t, err)
	require.NotNil(t, stored, "startup sweep keeps records with a queued submission")

	require.Eventually(t, func() bool {
		stored, _ := rt.GetRecord(ctx, "chain-1")
		return stored != nil && stored.Status == model.StatusSubmitted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, remote.RecordCalls())
	assert.Equal(t, 0, rt.Status(ctx).OverflowDepth)
	assert.Empty(t, rt.DeadLetters())
}
