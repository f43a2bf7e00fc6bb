package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/chainorch/internal/clock"
	"github.com/viant/chainorch/metrics"
	"github.com/viant/chainorch/model"
	"github.com/viant/chainorch/progress"
	"github.com/viant/chainorch/service/messaging"
	fsqueue "github.com/viant/chainorch/service/messaging/fs"
	"github.com/viant/chainorch/service/messaging/memory"
	"github.com/viant/chainorch/tracing"
)

// Allocator runs the allocation protocol for an open job
type Allocator interface {
	Allocate(ctx context.Context, player1, player2 string) (*model.AllocationRecord, error)
}

// Submitter records a result for a submit job
type Submitter interface {
	Submit(ctx context.Context, chainID string, result *model.MatchResult) (*model.SubmitReceipt, error)
}

// Overflow is the durable holding area for deferred submissions
type Overflow interface {
	Append(ctx context.Context, chainID string, result *model.MatchResult) (*model.PendingSubmitRequest, error)
	DrainOnePass(ctx context.Context, handler fsqueue.Handler) (fsqueue.DrainStats, error)
	Len() int
}

// Stabilizer reports whether the external service is ready
type Stabilizer interface {
	WaitUntilStable(ctx context.Context, timeout, pollInterval, window time.Duration) bool
}

// Records looks up allocation records
type Records interface {
	Get(ctx context.Context, key string) *model.AllocationRecord
}

// Config represents scheduler configuration
type Config struct {
	OpenWorkers    int
	SubmitWorkers  int
	OpenCapacity   int
	SubmitCapacity int

	// StabilityTimeout bounds one readiness wait of an open worker; the worker
	// retries after StabilityRetryDelay until the service is ready or shutdown.
	StabilityTimeout    time.Duration
	StabilityPoll       time.Duration
	StabilityWindow     time.Duration
	StabilityRetryDelay time.Duration

	// DrainInterval triggers an overflow pass without live submit traffic, 0 disables it
	DrainInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		OpenWorkers:         2,
		SubmitWorkers:       2,
		OpenCapacity:        150,
		SubmitCapacity:      500,
		StabilityTimeout:    10 * time.Second,
		StabilityPoll:       500 * time.Millisecond,
		StabilityWindow:     time.Second,
		StabilityRetryDelay: 500 * time.Millisecond,
		DrainInterval:       5 * time.Second,
	}
}

type openResult struct {
	record *model.AllocationRecord
	err    error
}

type openJob struct {
	player1    string
	player2    string
	enqueuedAt time.Time
	reply      chan openResult
}

type submitResult struct {
	receipt *model.SubmitReceipt
	err     error
}

type submitJob struct {
	chainID    string
	result     *model.MatchResult
	enqueuedAt time.Time
	reply      chan submitResult
}

// Service is the dual-priority scheduler
type Service struct {
	config     Config
	allocator  Allocator
	submitter  Submitter
	overflow   Overflow
	stabilizer Stabilizer
	records    Records

	openQueue   *memory.Queue[openJob]
	submitQueue *memory.Queue[submitJob]
	gate        *gate
	drainSignal chan struct{}

	openProgress   *progress.Progress
	submitProgress *progress.Progress

	closed   int32
	started  int32
	cancelFn context.CancelFunc
	workerWg sync.WaitGroup
	drainWg  sync.WaitGroup
	logger   logrus.FieldLogger
	metrics  *metrics.Collector
}

type worker struct {
	id      int
	queue   model.QueueName
	service *Service
	logger  logrus.FieldLogger
}

// New creates a scheduler
func New(options ...Option) (*Service, error) {
	s := &Service{
		config:         DefaultConfig(),
		gate:           newGate(),
		drainSignal:    make(chan struct{}, 1),
		openProgress:   progress.New(string(model.QueueOpen)),
		submitProgress: progress.New(string(model.QueueSubmit)),
		logger:         logrus.StandardLogger(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.allocator == nil {
		return nil, fmt.Errorf("allocator is required")
	}
	if s.submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if s.overflow == nil {
		return nil, fmt.Errorf("overflow queue is required")
	}
	if s.stabilizer == nil {
		return nil, fmt.Errorf("stabilizer is required")
	}
	if s.config.OpenWorkers <= 0 || s.config.SubmitWorkers <= 0 {
		return nil, fmt.Errorf("invalid worker counts: open %d, submit %d", s.config.OpenWorkers, s.config.SubmitWorkers)
	}
	s.openQueue = memory.NewQueue[openJob](memory.Config{Capacity: s.config.OpenCapacity})
	s.submitQueue = memory.NewQueue[submitJob](memory.Config{Capacity: s.config.SubmitCapacity})
	s.logger = s.logger.WithField("component", "processor")
	s.gate.onZero = s.signalDrain
	return s, nil
}

// Start spawns open and submit workers and the overflow drainer
func (s *Service) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}
	ctx, s.cancelFn = context.WithCancel(ctx)
	for i := 0; i < s.config.OpenWorkers; i++ {
		s.spawn(ctx, i, model.QueueOpen)
	}
	for i := 0; i < s.config.SubmitWorkers; i++ {
		s.spawn(ctx, i, model.QueueSubmit)
	}
	s.drainWg.Add(1)
	go s.drainLoop(ctx)
	s.logger.WithFields(logrus.Fields{"open": s.config.OpenWorkers, "submit": s.config.SubmitWorkers}).Info("scheduler started")
	return nil
}

func (s *Service) spawn(ctx context.Context, id int, queue model.QueueName) {
	w := &worker{id: id, queue: queue, service: s,
		logger: s.logger.WithFields(logrus.Fields{"queue": queue, "worker": id})}
	s.workerWg.Add(1)
	go w.run(ctx)
}

// EnqueueOpen queues an allocation for two participants and waits for its outcome
func (s *Service) EnqueueOpen(ctx context.Context, player1, player2 string) (*model.AllocationRecord, error) {
	if s.isClosed() {
		return nil, model.ErrClosed
	}
	s.metrics.SetPendingOpen(s.gate.Add())
	job := &openJob{player1: player1, player2: player2, enqueuedAt: clock.Now(), reply: make(chan openResult, 1)}
	s.openProgress.Update(progress.Delta{Queued: 1})
	if err := s.openQueue.Publish(ctx, job); err != nil {
		s.openProgress.Update(progress.Delta{Queued: -1})
		s.metrics.SetPendingOpen(s.gate.Done())
		return nil, s.publishError(err)
	}
	s.metrics.JobState(string(model.QueueOpen), string(model.JobStateQueued))
	select {
	case result := <-job.reply:
		return result.record, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EnqueueSubmit queues a submission. While open jobs are pending the request
// is written to the overflow queue and acknowledged as queued.
func (s *Service) EnqueueSubmit(ctx context.Context, chainID string, result *model.MatchResult) (*model.SubmitReceipt, error) {
	if s.isClosed() {
		return nil, model.ErrClosed
	}
	if chainID == "" || result == nil {
		return nil, fmt.Errorf("%w: chain id and match result are required", model.ErrInvalidState)
	}
	if s.records != nil && s.records.Get(ctx, chainID) == nil {
		return nil, fmt.Errorf("%w: no allocation record for chain %q", model.ErrInvalidState, chainID)
	}
	if s.gate.Pending() > 0 {
		return s.spill(ctx, chainID, result, "allocation in progress")
	}
	job := &submitJob{chainID: chainID, result: result, enqueuedAt: clock.Now(), reply: make(chan submitResult, 1)}
	s.submitProgress.Update(progress.Delta{Queued: 1})
	if err := s.submitQueue.Publish(ctx, job); err != nil {
		s.submitProgress.Update(progress.Delta{Queued: -1})
		return nil, s.publishError(err)
	}
	s.metrics.JobState(string(model.QueueSubmit), string(model.JobStateQueued))
	select {
	case reply := <-job.reply:
		return reply.receipt, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// spill appends the submission to the overflow queue
func (s *Service) spill(ctx context.Context, chainID string, result *model.MatchResult, reason string) (*model.SubmitReceipt, error) {
	request, err := s.overflow.Append(ctx, chainID, result)
	if err != nil {
		return nil, err
	}
	s.metrics.SetOverflowDepth(s.overflow.Len())
	s.logger.WithFields(logrus.Fields{"chainId": chainID, "request": request.ID, "reason": reason}).Info("submission deferred")
	return &model.SubmitReceipt{ChainID: chainID, MatchID: result.MatchID, Queued: true, Message: "queued: " + reason}, nil
}

func (s *Service) publishError(err error) error {
	if errors.Is(err, messaging.ErrQueueClosed) {
		return model.ErrClosed
	}
	return err
}

func (w *worker) run(ctx context.Context) {
	defer w.service.workerWg.Done()
	for {
		var err error
		switch w.queue {
		case model.QueueOpen:
			err = w.consumeOpen(ctx)
		default:
			err = w.consumeSubmit(ctx)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, messaging.ErrQueueClosed) || ctx.Err() != nil {
			return
		}
		w.logger.WithError(err).Warn("failed to consume")
	}
}

func (w *worker) consumeOpen(ctx context.Context) error {
	msg, err := w.service.openQueue.Consume(ctx)
	if err != nil {
		return err
	}
	job := msg.T()
	record, err := w.service.runOpen(ctx, job)
	job.reply <- openResult{record: record, err: err}
	return msg.Ack()
}

func (w *worker) consumeSubmit(ctx context.Context) error {
	msg, err := w.service.submitQueue.Consume(ctx)
	if err != nil {
		return err
	}
	job := msg.T()
	receipt, err := w.service.runSubmit(ctx, job)
	job.reply <- submitResult{receipt: receipt, err: err}
	return msg.Ack()
}

func (s *Service) runOpen(ctx context.Context, job *openJob) (record *model.AllocationRecord, err error) {
	defer func() { s.metrics.SetPendingOpen(s.gate.Done()) }()
	ctx, span := tracing.StartSpan(ctx, "processor.open", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	s.begin(model.QueueOpen, s.openProgress)
	defer func() { s.finish(model.QueueOpen, s.openProgress, job.enqueuedAt, err) }()

	for !s.stabilizer.WaitUntilStable(ctx, s.config.StabilityTimeout, s.config.StabilityPoll, s.config.StabilityWindow) {
		s.logger.WithField("players", []string{job.player1, job.player2}).Warn("service not stable, allocation waiting")
		if err = clock.Sleep(ctx, s.config.StabilityRetryDelay); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrServiceNotReady, err)
		}
	}
	if err = s.gate.Idle(ctx); err != nil {
		return nil, err
	}
	return s.allocator.Allocate(ctx, job.player1, job.player2)
}

func (s *Service) runSubmit(ctx context.Context, job *submitJob) (receipt *model.SubmitReceipt, err error) {
	ctx, span := tracing.StartSpan(ctx, "processor.submit", "INTERNAL")
	span.WithAttributes(map[string]string{"chain.id": job.chainID})
	defer func() { tracing.EndSpan(span, err) }()
	s.begin(model.QueueSubmit, s.submitProgress)
	defer func() { s.finish(model.QueueSubmit, s.submitProgress, job.enqueuedAt, err) }()

	if err = s.gate.Wait(ctx); err != nil {
		return nil, err
	}
	s.drain(ctx)
	if err = s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	receipt, err = s.submitter.Submit(ctx, job.chainID, job.result)
	s.gate.Release()
	if err != nil && s.gate.Pending() > 0 && !errors.Is(err, model.ErrInvalidState) {
		return s.spill(ctx, job.chainID, job.result, err.Error())
	}
	return receipt, err
}

// drain runs one overflow pass through the submitter. The pass stops at the
// first entry met while an open job is pending.
func (s *Service) drain(ctx context.Context) {
	if s.overflow.Len() == 0 {
		return
	}
	var err error
	ctx, span := tracing.StartSpan(ctx, "processor.drain", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	stats, err := s.overflow.DrainOnePass(ctx, func(ctx context.Context, request *model.PendingSubmitRequest) error {
		if !s.gate.TryAcquire() {
			return fsqueue.ErrStopPass
		}
		defer s.gate.Release()
		_, err := s.submitter.Submit(ctx, request.ChainID, request.MatchResult)
		return err
	})
	s.metrics.SetOverflowDepth(s.overflow.Len())
	if err != nil {
		s.logger.WithError(err).Warn("overflow pass interrupted")
	}
	if stats.Processed > 0 || stats.Deferred > 0 || stats.Stopped {
		s.logger.WithFields(logrus.Fields{
			"stopped":      stats.Stopped,
			"processed":    stats.Processed,
			"succeeded":    stats.Succeeded,
			"failed":       stats.Failed,
			"deferred":     stats.Deferred,
			"deadLettered": stats.DeadLettered,
		}).Info("overflow pass")
	}
}

// drainLoop drains the overflow queue when the gate opens and on DrainInterval
func (s *Service) drainLoop(ctx context.Context) {
	defer s.drainWg.Done()
	var tick <-chan time.Time
	if s.config.DrainInterval > 0 {
		ticker := time.NewTicker(s.config.DrainInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.drainSignal:
		case <-tick:
		}
		if s.gate.Wait(ctx) != nil {
			return
		}
		s.drain(ctx)
	}
}

func (s *Service) signalDrain() {
	select {
	case s.drainSignal <- struct{}{}:
	default:
	}
}

func (s *Service) begin(queue model.QueueName, tracker *progress.Progress) {
	tracker.Transition(model.JobStateQueued, model.JobStateRunning)
	s.metrics.JobState(string(queue), string(model.JobStateRunning))
}

func (s *Service) finish(queue model.QueueName, tracker *progress.Progress, enqueuedAt time.Time, err error) {
	state := model.JobStateDone
	if err != nil {
		state = model.JobStateFailed
	}
	tracker.Transition(model.JobStateRunning, state)
	s.metrics.JobState(string(queue), string(state))
	s.metrics.ObserveJob(string(queue), clock.Since(enqueuedAt))
}

// Pending returns the number of pending open jobs
func (s *Service) Pending() int {
	return s.gate.Pending()
}

// OverflowDepth returns the number of deferred submissions
func (s *Service) OverflowDepth() int {
	return s.overflow.Len()
}

// Progress returns job counters of queue
func (s *Service) Progress(queue model.QueueName) progress.Counters {
	if queue == model.QueueOpen {
		return s.openProgress.Snapshot()
	}
	return s.submitProgress.Snapshot()
}

func (s *Service) isClosed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}

// Shutdown closes both queues to new jobs and lets workers finish what is
// already queued. When ctx expires first, workers are cancelled and jobs still
// queued are answered with ErrClosed.
func (s *Service) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	_ = s.openQueue.Close()
	_ = s.submitQueue.Close()
	if atomic.LoadInt32(&s.started) == 0 {
		s.reject()
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.workerWg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.cancelFn()
	<-done
	s.drainWg.Wait()
	s.reject()
	s.logger.Info("scheduler stopped")
	return err
}

// reject answers jobs left in closed queues
func (s *Service) reject() {
	ctx := context.Background()
	for {
		msg, err := s.openQueue.Consume(ctx)
		if err != nil {
			break
		}
		job := msg.T()
		s.metrics.SetPendingOpen(s.gate.Done())
		s.openProgress.Transition(model.JobStateQueued, model.JobStateFailed)
		job.reply <- openResult{err: model.ErrClosed}
		_ = msg.Ack()
	}
	for {
		msg, err := s.submitQueue.Consume(ctx)
		if err != nil {
			break
		}
		job := msg.T()
		s.submitProgress.Transition(model.JobStateQueued, model.JobStateFailed)
		job.reply <- submitResult{err: model.ErrClosed}
		_ = msg.Ack()
	}
}
