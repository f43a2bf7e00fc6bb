package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/chainorch/internal/clock"
	"github.com/viant/chainorch/internal/idgen"
	"github.com/viant/chainorch/model"
)

func TestService_Capture(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ids := []string{"s1", "s2"}
	defer func(nowFunc func() time.Time, newFunc func() string) {
		clock.NowFunc, idgen.NewFunc = nowFunc, newFunc
	}(clock.NowFunc, idgen.NewFunc)
	clock.NowFunc = func() time.Time { return now }
	idgen.NewFunc = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	URL := filepath.Join(t.TempDir(), "snapshots.json")
	srv, err := New(ctx, afs.New(), URL)
	require.NoError(t, err)
	ranked := []*model.PlayerStats{{Username: "alice", Wins: 3}, {Username: "bob", Wins: 1}, {Username: "carol"}}

	var testCases = []struct {
		description string
		top         int
		expectTop   int
	}{
		{description: "top limited", top: 2, expectTop: 2},
		{description: "zero keeps all", top: 0, expectTop: 3},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			snapshot, err := srv.Capture(ctx, ranked, testCase.top)
			require.NoError(t, err)
			assert.Len(t, snapshot.TopPlayers, testCase.expectTop)
			assert.Equal(t, 3, snapshot.AllPlayers)
			now = now.Add(time.Minute)
		})
	}

	reloaded, err := New(ctx, afs.New(), URL)
	require.NoError(t, err)
	history, err := reloaded.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "s2", history[0].ID)
	assert.Equal(t, "s1", history[1].ID)

	loaded, err := reloaded.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "alice", loaded.TopPlayers[0].Username)
}

func TestService_LoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	srv, err := New(ctx, afs.New(), filepath.Join(t.TempDir(), "snapshots.json"))
	require.NoError(t, err)
	ranked := []*model.PlayerStats{{Username: "alice", Wins: 3, Chains: []string{"chain-1"}}}
	captured, err := srv.Capture(ctx, ranked, 1)
	require.NoError(t, err)
	ranked[0].Wins = 10
	captured.TopPlayers[0].Username = "mallory"

	loaded, err := srv.Load(ctx, captured.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "alice", loaded.TopPlayers[0].Username)
	assert.Equal(t, 3, loaded.TopPlayers[0].Wins)
	loaded.TopPlayers[0].Chains[0] = "chain-x"
	loaded.AllPlayers = 99

	history, err := srv.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].AllPlayers)
	assert.Equal(t, []string{"chain-1"}, history[0].TopPlayers[0].Chains)
	history[0].TopPlayers[0].Username = "eve"

	again, err := srv.Load(ctx, captured.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", again.TopPlayers[0].Username)
}
