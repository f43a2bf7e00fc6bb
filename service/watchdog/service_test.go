package watchdog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcesses struct {
	mu       sync.Mutex
	nextPID  int
	alive    map[int]bool
	failures int
	started  int
	stopped  []int
}

func newFakeProcesses() *fakeProcesses {
	return &fakeProcesses{nextPID: 100, alive: map[int]bool{}}
}

func (f *fakeProcesses) Start(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return 0, fmt.Errorf("launch failed")
	}
	f.nextPID++
	f.alive[f.nextPID] = true
	f.started++
	return f.nextPID, nil
}

func (f *fakeProcesses) Stop(ctx context.Context, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[pid] = false
	f.stopped = append(f.stopped, pid)
	return nil
}

func (f *fakeProcesses) Alive(ctx context.Context, pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeProcesses) kill(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[pid] = false
}

func (f *fakeProcesses) startedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func testConfig() Config {
	return Config{
		PollInterval: 5 * time.Millisecond,
		SettleDelay:  time.Millisecond,
		BackoffBase:  time.Millisecond,
		BackoffMax:   4 * time.Millisecond,
		MaxExponent:  6,
		StopTimeout:  time.Second,
	}
}

func TestService_RestartsDeadProcess(t *testing.T) {
	processes := newFakeProcesses()
	srv, err := New(processes, WithConfig(testConfig()), WithProber(processes))
	require.NoError(t, err)
	assert.Equal(t, StateStopped, srv.State())

	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop()
	require.Eventually(t, func() bool { return srv.PID() == 101 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return srv.State() == StateRunning }, time.Second, time.Millisecond)

	processes.kill(101)
	require.Eventually(t, func() bool { return srv.PID() == 102 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, processes.startedCount())
	assert.Equal(t, 2, srv.Restarts())
}

func TestService_BackoffOnStartFailure(t *testing.T) {
	processes := newFakeProcesses()
	processes.failures = 3
	srv, err := New(processes, WithConfig(testConfig()), WithProber(processes))
	require.NoError(t, err)

	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop()
	require.Eventually(t, func() bool { return srv.PID() > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, srv.Failures(), "failure counter resets after a successful start")
}

func TestService_Backoff(t *testing.T) {
	srv, err := New(newFakeProcesses(), WithConfig(DefaultConfig()))
	require.NoError(t, err)
	var testCases = []struct {
		failures int
		expect   time.Duration
	}{
		{failures: 1, expect: 2 * time.Second},
		{failures: 3, expect: 8 * time.Second},
		{failures: 4, expect: 16 * time.Second},
		{failures: 5, expect: 30 * time.Second},
		{failures: 50, expect: 30 * time.Second},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expect, srv.backoff(testCase.failures), fmt.Sprintf("failures=%d", testCase.failures))
	}
}

func TestService_StopJoinsLoop(t *testing.T) {
	processes := newFakeProcesses()
	srv, err := New(processes, WithConfig(testConfig()), WithProber(processes))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Start(context.Background()))
	require.Eventually(t, func() bool { return srv.PID() > 0 }, time.Second, time.Millisecond)

	assert.NoError(t, srv.Stop())
	assert.Equal(t, StateStopped, srv.State())
	assert.NoError(t, srv.Stop())
	assert.True(t, processes.Alive(context.Background(), srv.PID()), "stop leaves the process running")
}

func TestService_Terminate(t *testing.T) {
	processes := newFakeProcesses()
	srv, err := New(processes, WithConfig(testConfig()), WithProber(processes))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	require.Eventually(t, func() bool { return srv.PID() > 0 }, time.Second, time.Millisecond)
	pid := srv.PID()

	require.NoError(t, srv.Terminate(context.Background()))
	assert.Equal(t, []int{pid}, processes.stopped)
	assert.Equal(t, 0, srv.PID())
}

func TestService_WaitUntilStable(t *testing.T) {
	window := 80 * time.Millisecond
	poll := 5 * time.Millisecond

	t.Run("constant pid", func(t *testing.T) {
		processes := newFakeProcesses()
		processes.alive[7] = true
		srv, err := New(processes, WithConfig(testConfig()), WithProber(processes))
		require.NoError(t, err)
		srv.Adopt(7)

		started := time.Now()
		assert.True(t, srv.WaitUntilStable(context.Background(), time.Second, poll, window))
		assert.Less(t, time.Since(started), window+poll+50*time.Millisecond)
		assert.True(t, srv.IsStable(context.Background(), window))
	})

	t.Run("pid flapping", func(t *testing.T) {
		processes := newFakeProcesses()
		srv, err := New(processes, WithConfig(testConfig()), WithProber(processes))
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			pid := 1000
			for ctx.Err() == nil {
				pid++
				processes.mu.Lock()
				processes.alive[pid] = true
				processes.mu.Unlock()
				srv.Adopt(pid)
				time.Sleep(window / 2)
			}
		}()
		assert.False(t, srv.WaitUntilStable(context.Background(), 5*window, poll, window))
	})

	t.Run("no process", func(t *testing.T) {
		srv, err := New(newFakeProcesses(), WithConfig(testConfig()), WithProber(newFakeProcesses()))
		require.NoError(t, err)
		assert.False(t, srv.WaitUntilStable(context.Background(), 30*time.Millisecond, poll, window))
		assert.False(t, srv.IsStable(context.Background(), 0))
	})

	t.Run("cancelled", func(t *testing.T) {
		srv, err := New(newFakeProcesses(), WithConfig(testConfig()))
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, srv.WaitUntilStable(ctx, time.Second, poll, window))
	})
}
