package chainorch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/chainorch/config"
	"github.com/viant/chainorch/internal/clock"
	"github.com/viant/chainorch/metrics"
	"github.com/viant/chainorch/model"
	"github.com/viant/chainorch/service/dao"
	"github.com/viant/chainorch/service/dao/criteria"
	"github.com/viant/chainorch/service/dao/player"
	"github.com/viant/chainorch/service/dao/record"
	"github.com/viant/chainorch/service/dao/snapshot"
	fsqueue "github.com/viant/chainorch/service/messaging/fs"
	"github.com/viant/chainorch/service/processor"
	"github.com/viant/chainorch/service/sweeper"
	"github.com/viant/chainorch/service/watchdog"
	"github.com/viant/chainorch/tracing"
)

const serviceName = "chainorch"

// Runtime exposes orchestrator operations
type Runtime struct {
	config    *config.Config
	fs        afs.Service
	logger    logrus.FieldLogger
	metrics   *metrics.Collector
	records   *record.Service
	players   *player.Service
	snapshots *snapshot.Service
	overflow  *fsqueue.Overflow
	watchdog  *watchdog.Service
	processor *processor.Service
	sweeper   *sweeper.Service
	closers   []io.Closer

	mu      sync.Mutex
	started bool
}

// Start sweeps leftovers from a previous run, starts supervising the service
// process and starts the scheduler workers.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if output := r.config.Tracing.OutputFile; output != "" {
		if err := tracing.Init(serviceName, "", output); err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
	}
	if err := r.sweeper.Start(ctx); err != nil {
		return err
	}
	if err := r.watchdog.Start(ctx); err != nil {
		return err
	}
	if err := r.processor.Start(ctx); err != nil {
		return err
	}
	r.metrics.SetOverflowDepth(r.overflow.Len())
	r.started = true
	r.logger.WithFields(logrus.Fields{"records": r.records.Len(), "overflow": r.overflow.Len()}).Info("runtime started")
	return nil
}

// Shutdown stops accepting jobs, drains queued jobs within ctx, then stops
// the sweeper and the watchdog. The service process is left running.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	if err := r.processor.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	r.sweeper.Stop()
	if err := r.watchdog.Stop(); err != nil {
		errs = append(errs, err)
	}
	for _, closer := range r.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.started = false
	return errors.Join(errs...)
}

// EnqueueOpen allocates a chain for two participants
func (r *Runtime) EnqueueOpen(ctx context.Context, participantA, participantB string) (*model.AllocationRecord, error) {
	participantA, participantB = strings.TrimSpace(participantA), strings.TrimSpace(participantB)
	if participantA == "" || participantB == "" {
		return nil, fmt.Errorf("%w: both participants are required", model.ErrInvalidState)
	}
	return r.processor.EnqueueOpen(ctx, participantA, participantB)
}

// EnqueueSubmit records payload against chainID. The match id defaults to the
// chain id and a zero timestamp to the current time.
func (r *Runtime) EnqueueSubmit(ctx context.Context, chainID string, payload *model.MatchResult) (*model.SubmitReceipt, error) {
	chainID = strings.TrimSpace(chainID)
	if payload == nil {
		return nil, fmt.Errorf("%w: match result is required", model.ErrInvalidState)
	}
	result := *payload
	if strings.TrimSpace(result.MatchID) == "" {
		result.MatchID = chainID
	}
	if result.Timestamp == 0 {
		result.Timestamp = clock.UTC().Unix()
	}
	return r.processor.EnqueueSubmit(ctx, chainID, &result)
}

// GetRecord returns the allocation record of chainID, nil when absent
func (r *Runtime) GetRecord(ctx context.Context, chainID string) (*model.AllocationRecord, error) {
	return r.records.Get(ctx, chainID), nil
}

// Records returns allocation records, optionally only those in one of statuses
func (r *Runtime) Records(ctx context.Context, statuses ...string) ([]*model.AllocationRecord, error) {
	if len(statuses) == 0 {
		return r.records.List(ctx), nil
	}
	return r.records.List(ctx, dao.NewParameter(criteria.StatusParameter, statuses...)), nil
}

// IsServiceStable waits up to timeout for the service process to be stable
func (r *Runtime) IsServiceStable(ctx context.Context, timeout time.Duration) bool {
	return r.watchdog.WaitUntilStable(ctx, timeout, r.config.Stability.Poll, r.config.Stability.Window)
}

// GetPlayer returns participant statistics, nil when unknown
func (r *Runtime) GetPlayer(ctx context.Context, name string) (*model.PlayerStats, error) {
	return r.players.Get(ctx, strings.TrimSpace(name))
}

// Snapshot captures current standings; top limits the ranked list, 0 keeps all
func (r *Runtime) Snapshot(ctx context.Context, top int) (*model.Snapshot, error) {
	ranked, err := r.players.Ranked(ctx)
	if err != nil {
		return nil, err
	}
	return r.snapshots.Capture(ctx, ranked, top)
}

// LoadSnapshot returns a snapshot, nil when unknown
func (r *Runtime) LoadSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	return r.snapshots.Load(ctx, id)
}

// ListSnapshots returns snapshots newest first
func (r *Runtime) ListSnapshots(ctx context.Context) ([]*model.Snapshot, error) {
	return r.snapshots.History(ctx)
}

// Sweep removes failed and abandoned allocation records
func (r *Runtime) Sweep(ctx context.Context) int {
	return r.sweeper.RunOnce(ctx, r.config.Sweep.StaleAfter)
}

// DeadLetters returns submissions given up by the overflow queue
func (r *Runtime) DeadLetters() []*model.PendingSubmitRequest {
	return r.overflow.DeadLetters()
}

// DefaultChain returns the default chain id from the wallet
func (r *Runtime) DefaultChain(ctx context.Context) (string, error) {
	return config.DefaultChain(ctx, r.fs, r.config.Service.WalletURL, r.config.Service.WalletTimeout, r.config.Service.WalletPoll)
}

// Status summarises the process, the scheduler and the persisted queues
func (r *Runtime) Status(ctx context.Context) *model.RuntimeStatus {
	handle := r.watchdog.Handle()
	process := model.ProcessStatus{
		State:    string(r.watchdog.State()),
		PID:      handle.PID,
		Stable:   r.watchdog.IsStable(ctx, r.config.Stability.Window),
		Restarts: r.watchdog.Restarts(),
		Failures: r.watchdog.Failures(),
	}
	if !handle.StableSince.IsZero() {
		stableSince := handle.StableSince
		process.StableSince = &stableSince
	}
	return &model.RuntimeStatus{
		Process:       process,
		PendingOpen:   r.processor.Pending(),
		OverflowDepth: r.overflow.Len(),
		DeadLetters:   len(r.overflow.DeadLetters()),
		Records:       r.records.Len(),
		Jobs: []model.JobCounters{
			r.processor.Progress(model.QueueOpen),
			r.processor.Progress(model.QueueSubmit),
		},
	}
}
