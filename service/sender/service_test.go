package sender

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/chainorch/model"
)

type fakeStabilizer struct {
	stable bool
	calls  int32
}

func (f *fakeStabilizer) WaitUntilStable(ctx context.Context, timeout, pollInterval, window time.Duration) bool {
	atomic.AddInt32(&f.calls, 1)
	return f.stable
}

func testConfig() Config {
	return Config{
		WaitTimeout:     50 * time.Millisecond,
		AttemptTimeout:  100 * time.Millisecond,
		MaxAttempts:     3,
		StabilityPoll:   time.Millisecond,
		StabilityWindow: time.Millisecond,
		RewaitCap:       10 * time.Millisecond,
		RetryBase:       time.Millisecond,
		RetryStep:       time.Millisecond,
	}
}

func staticBody(payload string) func() ([]byte, error) {
	return func() ([]byte, error) { return []byte(payload), nil }
}

func TestService_Send(t *testing.T) {
	var testCases = []struct {
		description    string
		statuses       []int
		stable         bool
		expectStatus   int
		expectCalls    int32
		expectErr      error
		expectAttempts int
	}{
		{description: "ok first attempt", statuses: []int{200}, stable: true, expectStatus: 200, expectCalls: 1, expectAttempts: 1},
		{description: "503 then ok", statuses: []int{503, 503, 201}, stable: true, expectStatus: 201, expectCalls: 3, expectAttempts: 3},
		{description: "client error is not retried", statuses: []int{400}, stable: true, expectStatus: 400, expectCalls: 1, expectAttempts: 1},
		{description: "server error is not retried", statuses: []int{500}, stable: true, expectStatus: 500, expectCalls: 1, expectAttempts: 1},
		{description: "503 exhausted", statuses: []int{503, 503, 503}, stable: true, expectStatus: 503, expectCalls: 3, expectErr: model.ErrServiceNotReady, expectAttempts: 3},
		{description: "not ready", statuses: []int{200}, stable: false, expectCalls: 0, expectErr: model.ErrServiceNotReady},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				index := atomic.AddInt32(&calls, 1) - 1
				data, _ := io.ReadAll(r.Body)
				assert.Equal(t, `{"query":"q"}`, string(data), "every attempt gets a fresh body")
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				w.WriteHeader(testCase.statuses[int(index)%len(testCase.statuses)])
				_, _ = w.Write([]byte(`{"data":{}}`))
			}))
			defer server.Close()

			stabilizer := &fakeStabilizer{stable: testCase.stable}
			srv, err := New(stabilizer, WithConfig(testConfig()))
			require.NoError(t, err)

			resp, err := srv.Post(context.Background(), server.URL, staticBody(`{"query":"q"}`))
			assert.Equal(t, testCase.expectCalls, atomic.LoadInt32(&calls))
			if testCase.expectErr != nil {
				assert.ErrorIs(t, err, testCase.expectErr)
			} else {
				assert.NoError(t, err)
			}
			if testCase.expectStatus == 0 {
				assert.Nil(t, resp)
				return
			}
			require.NotNil(t, resp)
			assert.Equal(t, testCase.expectStatus, resp.StatusCode)
			assert.Equal(t, testCase.expectAttempts, resp.Attempts)
		})
	}
}

func TestService_SendTimeout(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	stabilizer := &fakeStabilizer{stable: true}
	srv, err := New(stabilizer, WithConfig(testConfig()))
	require.NoError(t, err)
	resp, err := srv.Send(context.Background(), server.URL, staticBody("{}"), 0, 20*time.Millisecond, 2)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, model.ErrTimeout)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.EqualValues(t, 2, atomic.LoadInt32(&stabilizer.calls), "initial wait plus one re-wait")
}

func TestService_SendTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	URL := server.URL
	server.Close()

	srv, err := New(&fakeStabilizer{stable: true}, WithConfig(testConfig()))
	require.NoError(t, err)
	_, err = srv.Post(context.Background(), URL, staticBody("{}"))
	assert.ErrorIs(t, err, model.ErrTransient)
	assert.True(t, model.Retryable(err))
}

func TestService_SendCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	config := testConfig()
	config.RetryBase = time.Second
	srv, err := New(&fakeStabilizer{stable: true}, WithConfig(config))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = srv.Post(ctx, server.URL, staticBody("{}"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
