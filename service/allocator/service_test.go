package allocator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/chainorch/model"
	"github.com/viant/chainorch/service/dao/record"
	"github.com/viant/chainorch/service/sender"
)

type stable struct{}

func (stable) WaitUntilStable(ctx context.Context, timeout, pollInterval, window time.Duration) bool {
	return true
}

// node fakes the factory application endpoint
type node struct {
	mu        sync.Mutex
	chains    []string
	apps      map[string]string
	openDelay int
	pending   []string
	hideApps  bool
	rejectAll bool
}

func (n *node) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var req struct {
		Query string `json:"query"`
	}
	_ = json.Unmarshal(data, &req)
	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case strings.Contains(req.Query, "openAndCreate"):
		if n.rejectAll {
			_, _ = w.Write([]byte(`{"errors":[{"message":"factory closed"}]}`))
			return
		}
		id := fmt.Sprintf("chain-%d", len(n.chains)+len(n.pending)+1)
		n.pending = append(n.pending, id)
		_, _ = w.Write([]byte(`{"data":{"openAndCreate":true}}`))
	case strings.Contains(req.Query, "allOpenedChains"):
		if n.openDelay > 0 {
			n.openDelay--
		} else {
			for _, id := range n.pending {
				n.chains = append(n.chains, id)
				n.apps[id] = "app-" + id
			}
			n.pending = nil
		}
		out, _ := json.Marshal(map[string]interface{}{"data": map[string]interface{}{"allOpenedChains": n.chains}})
		_, _ = w.Write(out)
	case strings.Contains(req.Query, "allChildApps"):
		var items []map[string]string
		if !n.hideApps {
			for chainID, appID := range n.apps {
				items = append(items, map[string]string{"chainId": chainID, "appId": appID})
			}
		}
		out, _ := json.Marshal(map[string]interface{}{"data": map[string]interface{}{"allChildApps": items}})
		_, _ = w.Write(out)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newAllocator(t *testing.T, remote *node) (*Service, *record.Service) {
	server := httptest.NewServer(remote)
	t.Cleanup(server.Close)
	records, err := record.New(context.Background(), afs.New(), path.Join(t.TempDir(), "match_mapping.json"))
	require.NoError(t, err)
	send, err := sender.New(stable{})
	require.NoError(t, err)
	config := DefaultConfig()
	config.FactoryURL = server.URL + "/chains/publisher/applications/factory"
	config.PollDelay = time.Millisecond
	config.PollAttempts = 3
	srv, err := New(send, records, config, nil)
	require.NoError(t, err)
	return srv, records
}

func TestService_Allocate(t *testing.T) {
	ctx := context.Background()
	remote := &node{chains: []string{"existing"}, apps: map[string]string{"existing": "app-existing"}, openDelay: 2}
	srv, records := newAllocator(t, remote)

	created, err := srv.Allocate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "chain-2", created.ChainID)
	assert.Equal(t, "app-chain-2", created.AppID)
	assert.Equal(t, model.StatusCreated, created.Status)
	assert.Equal(t, "alice", created.Player1)
	assert.True(t, srv.Claimed("chain-2"))
	assert.Equal(t, 1, records.Len())

	second, err := srv.Allocate(ctx, "carol", "dave")
	require.NoError(t, err)
	assert.Equal(t, "chain-3", second.ChainID)
}

func TestService_AllocateConcurrent(t *testing.T) {
	remote := &node{apps: map[string]string{}}
	srv, records := newAllocator(t, remote)

	var wg sync.WaitGroup
	results := make([]*model.AllocationRecord, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = srv.Allocate(context.Background(), fmt.Sprintf("p%d", i), "q")
		}(i)
	}
	wg.Wait()
	seen := map[string]bool{}
	for _, item := range results {
		if item == nil {
			continue
		}
		assert.False(t, seen[item.ChainID], "chain %v allocated twice", item.ChainID)
		seen[item.ChainID] = true
	}
	assert.NotEmpty(t, seen)
	assert.Equal(t, 4, records.Len())
}

func TestService_AllocateFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected", func(t *testing.T) {
		srv, records := newAllocator(t, &node{apps: map[string]string{}, rejectAll: true})
		_, err := srv.Allocate(ctx, "alice", "bob")
		assert.ErrorIs(t, err, model.ErrRemoteRejected)
		items := records.List(ctx)
		require.Len(t, items, 1)
		assert.Equal(t, model.StatusCreateFailed, items[0].Status)
	})

	t.Run("never appears", func(t *testing.T) {
		srv, records := newAllocator(t, &node{apps: map[string]string{}, openDelay: 100})
		_, err := srv.Allocate(ctx, "alice", "bob")
		assert.ErrorIs(t, err, model.ErrTimeout)
		items := records.List(ctx)
		require.Len(t, items, 1)
		assert.Equal(t, model.StatusCreateFailed, items[0].Status)
	})

	t.Run("application unresolved", func(t *testing.T) {
		srv, _ := newAllocator(t, &node{apps: map[string]string{}, hideApps: true})
		created, err := srv.Allocate(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Equal(t, "chain-1", created.ChainID)
		assert.Empty(t, created.AppID)
	})
}

func TestNew(t *testing.T) {
	send, err := sender.New(stable{})
	require.NoError(t, err)
	_, err = New(send, nil, DefaultConfig(), nil)
	assert.Error(t, err)
	_, err = New(nil, nil, DefaultConfig(), nil)
	assert.Error(t, err)
}
