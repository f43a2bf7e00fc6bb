package watchdog

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/chainorch/internal/clock"
	"github.com/viant/chainorch/metrics"
)

// State represents watchdog state
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
)

// Config represents watchdog configuration
type Config struct {
	// PollInterval is how often a live process is re-checked
	PollInterval time.Duration
	// SettleDelay is the pause after a successful start before the next check
	SettleDelay time.Duration
	// BackoffBase is doubled per consecutive start failure
	BackoffBase time.Duration
	// BackoffMax caps the start failure backoff
	BackoffMax time.Duration
	// MaxExponent caps the doubling exponent
	MaxExponent int
	// StopTimeout bounds how long Stop waits for the loop to exit
	StopTimeout time.Duration
}

// DefaultConfig returns default watchdog configuration
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		SettleDelay:  1500 * time.Millisecond,
		BackoffBase:  time.Second,
		BackoffMax:   30 * time.Second,
		MaxExponent:  6,
		StopTimeout:  5 * time.Second,
	}
}

// Handle is the watchdog view of the supervised process
type Handle struct {
	PID         int       `json:"pid,omitempty"`
	StableSince time.Time `json:"stableSince,omitempty"`
}

// Service supervises the external service process
type Service struct {
	config   Config
	launcher Launcher
	prober   Prober
	logger   logrus.FieldLogger
	metrics  *metrics.Collector

	mu       sync.RWMutex
	state    State
	handle   Handle
	failures int
	restarts int

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped watchdog
func New(launcher Launcher, options ...Option) (*Service, error) {
	ret := &Service{
		config:   DefaultConfig(),
		launcher: launcher,
		prober:   ProcessProber{},
		logger:   logrus.StandardLogger(),
		state:    StateStopped,
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}
	if ret.config.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be > 0")
	}
	ret.logger = ret.logger.WithField("component", "watchdog")
	return ret, nil
}

// Start spawns the monitoring loop; calling it on a started watchdog is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.done != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.setState(StateStarting)
	go s.run(loopCtx, s.done)
	return nil
}

// Stop signals the loop and waits up to StopTimeout for it to exit.
// The supervised process is left running.
func (s *Service) Stop() error {
	s.loopMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.loopMu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	timer := time.NewTimer(s.config.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("watchdog loop did not stop within %s", s.config.StopTimeout)
	}
}

// Terminate stops the loop and the supervised process
func (s *Service) Terminate(ctx context.Context) error {
	err := s.Stop()
	pid := s.PID()
	if pid <= 0 {
		return err
	}
	if stopErr := s.launcher.Stop(ctx, pid); stopErr != nil {
		return fmt.Errorf("failed to stop service pid %d: %w", pid, stopErr)
	}
	s.mu.Lock()
	s.handle = Handle{}
	s.mu.Unlock()
	s.metrics.ServiceUp(false)
	return err
}

func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.setState(StateStopped)
	for ctx.Err() == nil {
		pid := s.PID()
		if pid > 0 && s.prober.Alive(ctx, pid) {
			s.setState(StateRunning)
			s.metrics.ServiceUp(true)
			if clock.Sleep(ctx, s.config.PollInterval) != nil {
				return
			}
			continue
		}
		if pid > 0 {
			s.logger.WithField("pid", pid).Warn("service process is not alive, restarting")
			s.metrics.ServiceUp(false)
			s.mu.Lock()
			s.handle = Handle{}
			s.state = StateRestarting
			s.mu.Unlock()
		}
		if ctx.Err() != nil {
			return
		}
		newPID, err := s.launcher.Start(ctx)
		if err != nil || newPID <= 0 {
			if err == nil {
				err = fmt.Errorf("launcher returned invalid pid %d", newPID)
			}
			delay := s.recordFailure()
			s.logger.WithError(err).WithField("retryIn", delay.String()).Error("failed to start service")
			if clock.Sleep(ctx, delay) != nil {
				return
			}
			continue
		}
		s.adopt(newPID)
		s.metrics.Restart()
		s.metrics.ServiceUp(true)
		s.logger.WithField("pid", newPID).Info("service started")
		if clock.Sleep(ctx, s.config.SettleDelay) != nil {
			return
		}
	}
}

func (s *Service) recordFailure() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return s.backoff(s.failures)
}

func (s *Service) backoff(failures int) time.Duration {
	exponent := failures
	if s.config.MaxExponent > 0 && exponent > s.config.MaxExponent {
		exponent = s.config.MaxExponent
	}
	delay := time.Duration(float64(s.config.BackoffBase) * math.Pow(2, float64(exponent)))
	if s.config.BackoffMax > 0 && delay > s.config.BackoffMax {
		delay = s.config.BackoffMax
	}
	return delay
}

func (s *Service) adopt(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle.PID != pid {
		s.handle = Handle{PID: pid, StableSince: clock.Now()}
	}
	s.failures = 0
	s.restarts++
	if s.state != StateStopped {
		s.state = StateRunning
	}
}

// Adopt attaches the watchdog to an already running process
func (s *Service) Adopt(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle.PID != pid {
		s.handle = Handle{PID: pid, StableSince: clock.Now()}
	}
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State returns current watchdog state
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// PID returns the supervised process id, 0 when unknown
func (s *Service) PID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle.PID
}

// Handle returns a copy of the process handle
func (s *Service) Handle() Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// Failures returns consecutive start failures
func (s *Service) Failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// Restarts returns number of successful starts
func (s *Service) Restarts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restarts
}

// WaitUntilStable polls until one process id has been continuously alive for
// at least window, or returns false once timeout elapses or ctx is done.
// A pid change restarts the stability clock.
func (s *Service) WaitUntilStable(ctx context.Context, timeout, pollInterval, window time.Duration) bool {
	if pollInterval <= 0 {
		pollInterval = s.config.PollInterval
	}
	deadline := clock.Now().Add(timeout)
	trackedPID := 0
	var since time.Time
	for {
		handle := s.Handle()
		now := clock.Now()
		if handle.PID > 0 && s.prober.Alive(ctx, handle.PID) {
			if handle.PID != trackedPID {
				trackedPID = handle.PID
				since = now
				if !handle.StableSince.IsZero() && handle.StableSince.Before(now) {
					since = handle.StableSince
				}
			}
			if now.Sub(since) >= window {
				return true
			}
		} else {
			trackedPID = 0
		}
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			return false
		}
		wait := pollInterval
		if remaining < wait {
			wait = remaining
		}
		if clock.Sleep(ctx, wait) != nil {
			return false
		}
	}
}

// IsStable returns true when the current process satisfies window without waiting
func (s *Service) IsStable(ctx context.Context, window time.Duration) bool {
	handle := s.Handle()
	if handle.PID <= 0 || !s.prober.Alive(ctx, handle.PID) {
		return false
	}
	return clock.Since(handle.StableSince) >= window
}
