package sender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/chainorch/internal/clock"
	"github.com/viant/chainorch/metrics"
	"github.com/viant/chainorch/model"
	"github.com/viant/chainorch/tracing"
)

// Stabilizer reports whether the remote service process is stable
type Stabilizer interface {
	WaitUntilStable(ctx context.Context, timeout, pollInterval, window time.Duration) bool
}

// Config represents sender configuration
type Config struct {
	WaitTimeout     time.Duration // stability budget before the first attempt
	AttemptTimeout  time.Duration // per attempt request timeout
	MaxAttempts     int
	StabilityPoll   time.Duration
	StabilityWindow time.Duration
	RewaitCap       time.Duration // cap on the stability wait between attempts
	RetryBase       time.Duration // delay before retry = RetryBase + RetryStep*attempt
	RetryStep       time.Duration
}

// DefaultConfig returns default sender configuration
func DefaultConfig() Config {
	return Config{
		WaitTimeout:     8 * time.Second,
		AttemptTimeout:  30 * time.Second,
		MaxAttempts:     3,
		StabilityPoll:   500 * time.Millisecond,
		StabilityWindow: time.Second,
		RewaitCap:       5 * time.Second,
		RetryBase:       2 * time.Second,
		RetryStep:       300 * time.Millisecond,
	}
}

// Response represents a completed HTTP exchange
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// OK returns true for 2xx responses
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Service sends JSON requests gated on service stability with bounded retries
type Service struct {
	config     Config
	client     *http.Client
	stabilizer Stabilizer
	logger     logrus.FieldLogger
	metrics    *metrics.Collector
}

// New creates a sender
func New(stabilizer Stabilizer, options ...Option) (*Service, error) {
	ret := &Service{
		config:     DefaultConfig(),
		client:     &http.Client{},
		stabilizer: stabilizer,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.stabilizer == nil {
		return nil, fmt.Errorf("stabilizer is required")
	}
	if ret.config.MaxAttempts <= 0 {
		ret.config.MaxAttempts = 1
	}
	ret.logger = ret.logger.WithField("component", "sender")
	return ret, nil
}

// Post sends with the configured budgets
func (s *Service) Post(ctx context.Context, URL string, buildBody func() ([]byte, error)) (*Response, error) {
	return s.Send(ctx, URL, buildBody, 0, 0, 0)
}

// Send waits for the service to be stable, then POSTs a body built fresh for
// every attempt. A 2xx response or any non-503 status is returned as is.
// A 503, a timeout or a transport error is retried after a short stability
// re-wait and a linearly growing delay; once attempts are exhausted the last
// error is returned, together with the last response when there was one.
// Zero budgets fall back to the configured defaults.
func (s *Service) Send(ctx context.Context, URL string, buildBody func() ([]byte, error), waitTimeout, attemptTimeout time.Duration, maxAttempts int) (resp *Response, err error) {
	if waitTimeout <= 0 {
		waitTimeout = s.config.WaitTimeout
	}
	if attemptTimeout <= 0 {
		attemptTimeout = s.config.AttemptTimeout
	}
	if maxAttempts <= 0 {
		maxAttempts = s.config.MaxAttempts
	}
	ctx, span := tracing.StartSpan(ctx, "sender.Send", "CLIENT")
	span.WithAttributes(map[string]string{"http.url": URL})
	defer func() {
		if resp != nil {
			span.WithAttributes(map[string]string{"http.attempts": strconv.Itoa(resp.Attempts)})
		}
		tracing.EndSpan(span, err)
	}()

	if !s.stabilizer.WaitUntilStable(ctx, waitTimeout, s.config.StabilityPoll, s.config.StabilityWindow) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.metrics.SendAttempt("not_ready")
		return nil, fmt.Errorf("%w: not stable within %s", model.ErrServiceNotReady, waitTimeout)
	}

	var lastResp *Response
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, buildErr := buildBody()
		if buildErr != nil {
			return nil, fmt.Errorf("failed to build request body: %w", buildErr)
		}
		current, sendErr := s.attempt(ctx, URL, body, attemptTimeout)
		if current != nil {
			current.Attempts = attempt
		}
		switch {
		case sendErr == nil && current.StatusCode == http.StatusServiceUnavailable:
			s.metrics.SendAttempt("unavailable")
			lastResp = current
			lastErr = fmt.Errorf("%w: %s answered %d", model.ErrServiceNotReady, URL, current.StatusCode)
		case sendErr == nil:
			if current.OK() {
				s.metrics.SendAttempt("ok")
			} else {
				s.metrics.SendAttempt("rejected")
			}
			span.SetStatusFromHTTPCode(current.StatusCode)
			return current, nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			lastResp = nil
			lastErr = classify(sendErr)
			s.metrics.SendAttempt(outcome(lastErr))
		}
		if attempt == maxAttempts {
			break
		}
		s.logger.WithError(lastErr).WithFields(logrus.Fields{"url": URL, "attempt": attempt}).Warn("request failed, retrying")
		rewait := s.config.RewaitCap
		if waitTimeout < rewait {
			rewait = waitTimeout
		}
		s.stabilizer.WaitUntilStable(ctx, rewait, s.config.StabilityPoll, s.config.StabilityWindow)
		if sleepErr := clock.Sleep(ctx, s.config.RetryBase+time.Duration(attempt)*s.config.RetryStep); sleepErr != nil {
			return nil, sleepErr
		}
	}
	return lastResp, lastErr
}

func (s *Service) attempt(ctx context.Context, URL string, body []byte, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	request, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := s.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: response.StatusCode, Header: response.Header, Body: data}, nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", model.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", model.ErrTransient, err)
}

func outcome(err error) string {
	if errors.Is(err, model.ErrTimeout) {
		return "timeout"
	}
	return "transport_error"
}
