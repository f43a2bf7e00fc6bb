package fs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/chainorch/internal/clock"
	"github.com/viant/chainorch/internal/idgen"
	"github.com/viant/chainorch/model"
	"github.com/viant/chainorch/service/dao/store"
)

// Config holds configuration for the overflow queue
type Config struct {
	URL           string        // queue document
	DeadLetterURL string        // dead letter document, empty disables dead lettering
	BackoffBase   time.Duration // base retry delay, doubled per attempt
	BackoffMax    time.Duration // retry delay cap
	MaxExponent   int           // cap on the doubling exponent
	FailurePause  time.Duration // pause after each failed attempt within a pass
	MaxAttempts   int           // attempts before dead lettering, 0 means unlimited
}

// DefaultConfig returns default overflow configuration
func DefaultConfig() Config {
	return Config{
		URL:           "/tmp/chainorch/submit_requests.json",
		DeadLetterURL: "/tmp/chainorch/submit_requests.dlq.json",
		BackoffBase:   time.Second,
		BackoffMax:    60 * time.Second,
		MaxExponent:   10,
		FailurePause:  200 * time.Millisecond,
	}
}

// Handler processes one deferred request
type Handler func(ctx context.Context, request *model.PendingSubmitRequest) error

// ErrStopPass returned by a Handler ends the pass early; the entry stays at the
// head of the queue and no attempt is counted.
var ErrStopPass = errors.New("overflow pass stopped")

// DrainStats summarises a drain pass
type DrainStats struct {
	Processed    int
	Succeeded    int
	Failed       int
	Deferred     int
	DeadLettered int
	Stopped      bool
}

// Overflow is a durable FIFO of deferred submit requests. The in-memory list
// is authoritative while running; the document is rewritten after every change.
type Overflow struct {
	config     Config
	mu         sync.Mutex
	entries    []*model.PendingSubmitRequest
	deadLetter []*model.PendingSubmitRequest
	document   *store.JSONStore[[]*model.PendingSubmitRequest]
	dlq        *store.JSONStore[[]*model.PendingSubmitRequest]
	drainMu    sync.Mutex
	logger     logrus.FieldLogger
}

// Option configures overflow queue
type Option func(o *Overflow)

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Overflow) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an overflow queue and loads persisted entries
func New(ctx context.Context, fs afs.Service, config Config, options ...Option) (*Overflow, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("overflow queue URL cannot be empty")
	}
	ret := &Overflow{config: config, logger: logrus.StandardLogger()}
	for _, opt := range options {
		opt(ret)
	}
	ret.logger = ret.logger.WithField("queue", "overflow")
	ret.document = store.NewJSONStore[[]*model.PendingSubmitRequest](fs, config.URL, store.WithLogger(ret.logger))
	entries, err := ret.document.Load(ctx)
	if err != nil {
		return nil, err
	}
	ret.entries = compact(entries)
	if config.DeadLetterURL != "" {
		ret.dlq = store.NewJSONStore[[]*model.PendingSubmitRequest](fs, config.DeadLetterURL, store.WithLogger(ret.logger))
		if ret.deadLetter, err = ret.dlq.Load(ctx); err != nil {
			return nil, err
		}
		ret.deadLetter = compact(ret.deadLetter)
	}
	return ret, nil
}

func compact(entries []*model.PendingSubmitRequest) []*model.PendingSubmitRequest {
	ret := entries[:0]
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if entry.ID == "" {
			entry.ID = idgen.New()
		}
		ret = append(ret, entry)
	}
	return ret
}

// Append adds a deferred request at the tail
func (o *Overflow) Append(ctx context.Context, chainID string, result *model.MatchResult) (*model.PendingSubmitRequest, error) {
	now := clock.UTC()
	request := &model.PendingSubmitRequest{
		ID:          idgen.New(),
		ChainID:     chainID,
		MatchResult: result,
		NextTryAt:   now,
		CreatedAt:   now,
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, request)
	if err := o.document.Save(ctx, o.entries); err != nil {
		o.entries = o.entries[:len(o.entries)-1]
		return nil, fmt.Errorf("failed to persist overflow request: %w", err)
	}
	ret := *request
	return &ret, nil
}

// DrainOnePass visits every entry present when the pass starts exactly once,
// oldest first. Successful entries are removed; failed ones get attempts,
// lastError and nextTryAt updated and move to the tail, followed by a short
// pause. Entries whose nextTryAt is still in the future are rotated without
// an attempt. A handler returning ErrStopPass ends the pass, leaving that entry
// and the rest in place. A caller arriving while another pass runs waits for it to end
// and returns without a pass of its own.
func (o *Overflow) DrainOnePass(ctx context.Context, handler Handler) (DrainStats, error) {
	var stats DrainStats
	if !o.drainMu.TryLock() {
		o.drainMu.Lock()
		o.drainMu.Unlock()
		return stats, nil
	}
	defer o.drainMu.Unlock()

	pending := o.Len()
	for i := 0; i < pending; i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		entry := o.head()
		if entry == nil {
			break
		}
		if entry.NextTryAt.After(clock.Now()) {
			o.rotate(ctx, entry.ID, nil)
			stats.Deferred++
			continue
		}
		err := handler(ctx, entry)
		if errors.Is(err, ErrStopPass) {
			stats.Stopped = true
			return stats, nil
		}
		stats.Processed++
		switch {
		case err == nil:
			o.remove(ctx, entry.ID)
			stats.Succeeded++
			continue
		case o.isPermanent(entry, err):
			o.bury(ctx, entry.ID, err)
			stats.DeadLettered++
		default:
			o.rotate(ctx, entry.ID, err)
			stats.Failed++
		}
		o.logger.WithError(err).WithFields(logrus.Fields{"chainId": entry.ChainID, "attempts": entry.Attempts + 1}).Warn("overflow request failed")
		if err = clock.Sleep(ctx, o.config.FailurePause); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (o *Overflow) isPermanent(entry *model.PendingSubmitRequest, err error) bool {
	if o.dlq == nil {
		return false
	}
	if errors.Is(err, model.ErrInvalidState) {
		return true
	}
	return o.config.MaxAttempts > 0 && entry.Attempts+1 >= o.config.MaxAttempts
}

// Backoff returns the retry delay after the given number of attempts
func (o *Overflow) Backoff(attempts int) time.Duration {
	exponent := attempts
	if o.config.MaxExponent > 0 && exponent > o.config.MaxExponent {
		exponent = o.config.MaxExponent
	}
	delay := time.Duration(float64(o.config.BackoffBase) * math.Pow(2, float64(exponent)))
	if o.config.BackoffMax > 0 && delay > o.config.BackoffMax {
		delay = o.config.BackoffMax
	}
	return delay
}

// head returns a copy of the oldest entry
func (o *Overflow) head() *model.PendingSubmitRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.entries) == 0 {
		return nil
	}
	ret := *o.entries[0]
	return &ret
}

func (o *Overflow) take(id string) *model.PendingSubmitRequest {
	for i, entry := range o.entries {
		if entry.ID == id {
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			return entry
		}
	}
	return nil
}

func (o *Overflow) remove(ctx context.Context, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.take(id) != nil {
		o.persist(ctx)
	}
}

// rotate moves the entry to the tail; a non nil cause counts as a failed attempt.
func (o *Overflow) rotate(ctx context.Context, id string, cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry := o.take(id)
	if entry == nil {
		return
	}
	if cause != nil {
		entry.Attempts++
		entry.LastError = cause.Error()
		entry.NextTryAt = clock.UTC().Add(o.Backoff(entry.Attempts))
	}
	o.entries = append(o.entries, entry)
	o.persist(ctx)
}

func (o *Overflow) bury(ctx context.Context, id string, cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry := o.take(id)
	if entry == nil {
		return
	}
	entry.Attempts++
	entry.LastError = cause.Error()
	o.deadLetter = append(o.deadLetter, entry)
	o.persist(ctx)
	if err := o.dlq.Save(ctx, o.deadLetter); err != nil {
		o.logger.WithError(err).Error("failed to persist dead letter requests")
	}
}

func (o *Overflow) persist(ctx context.Context) {
	if err := o.document.Save(ctx, o.entries); err != nil {
		o.logger.WithError(err).Error("failed to persist overflow requests")
	}
}

// Len returns number of pending entries
func (o *Overflow) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

// List returns copies of pending entries in queue order
func (o *Overflow) List() []*model.PendingSubmitRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyAll(o.entries)
}

// DeadLetters returns copies of dead lettered entries
func (o *Overflow) DeadLetters() []*model.PendingSubmitRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyAll(o.deadLetter)
}

func copyAll(entries []*model.PendingSubmitRequest) []*model.PendingSubmitRequest {
	ret := make([]*model.PendingSubmitRequest, 0, len(entries))
	for _, entry := range entries {
		clone := *entry
		ret = append(ret, &clone)
	}
	return ret
}
