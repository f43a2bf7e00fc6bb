package chainorch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/chainorch/config"
	"github.com/viant/chainorch/metrics"
	"github.com/viant/chainorch/service/allocator"
	"github.com/viant/chainorch/service/dao/player"
	"github.com/viant/chainorch/service/dao/record"
	"github.com/viant/chainorch/service/dao/snapshot"
	"github.com/viant/chainorch/service/dao/store"
	fsqueue "github.com/viant/chainorch/service/messaging/fs"
	"github.com/viant/chainorch/service/launcher"
	"github.com/viant/chainorch/service/processor"
	"github.com/viant/chainorch/service/sender"
	"github.com/viant/chainorch/service/submitter"
	"github.com/viant/chainorch/service/sweeper"
	"github.com/viant/chainorch/service/watchdog"
)

// Service wires the orchestrator components from configuration
type Service struct {
	runtime    *Runtime
	config     *config.Config
	fs         afs.Service
	logger     logrus.FieldLogger
	metrics    *metrics.Collector
	launcher   watchdog.Launcher
	prober     watchdog.Prober
	httpClient *http.Client
}

// errUnmanaged is returned when the watchdog asks to start a process it does not own
var errUnmanaged = errors.New("service process is not managed")

type unmanaged struct{}

func (unmanaged) Start(ctx context.Context) (int, error) { return 0, errUnmanaged }

func (unmanaged) Stop(ctx context.Context, pid int) error { return errUnmanaged }

// New loads persisted state and builds the runtime
func New(ctx context.Context, cfg *config.Config, options ...Option) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	s := &Service{config: cfg}
	for _, opt := range options {
		opt(s)
	}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) init(ctx context.Context) error {
	cfg := s.config
	s.ensureBaseSetup()
	rt := &Runtime{config: cfg, fs: s.fs, logger: s.logger, metrics: s.metrics}
	var err error
	if rt.records, err = record.New(ctx, s.fs, cfg.Store.URL(cfg.Store.Records), record.WithLogger(s.logger)); err != nil {
		return fmt.Errorf("failed to load allocation records: %w", err)
	}
	if rt.players, err = player.New(ctx, s.fs, cfg.Store.URL(cfg.Store.Players), store.WithLogger(s.logger)); err != nil {
		return fmt.Errorf("failed to load participant statistics: %w", err)
	}
	if rt.snapshots, err = snapshot.New(ctx, s.fs, cfg.Store.URL(cfg.Store.Snapshots), store.WithLogger(s.logger)); err != nil {
		return fmt.Errorf("failed to load snapshots: %w", err)
	}
	if rt.overflow, err = fsqueue.New(ctx, s.fs, cfg.OverflowConfig(), fsqueue.WithLogger(s.logger)); err != nil {
		return fmt.Errorf("failed to load overflow queue: %w", err)
	}

	if s.launcher == nil {
		if s.launcher, err = s.newLauncher(); err != nil {
			return err
		}
	}
	if closer, ok := s.launcher.(io.Closer); ok {
		rt.closers = append(rt.closers, closer)
	}
	watchdogOptions := []watchdog.Option{
		watchdog.WithConfig(cfg.WatchdogConfig()),
		watchdog.WithPID(cfg.Service.PID),
		watchdog.WithLogger(s.logger),
		watchdog.WithMetrics(s.metrics),
	}
	if s.prober != nil {
		watchdogOptions = append(watchdogOptions, watchdog.WithProber(s.prober))
	}
	if rt.watchdog, err = watchdog.New(s.launcher, watchdogOptions...); err != nil {
		return err
	}

	senderOptions := []sender.Option{
		sender.WithConfig(cfg.SenderConfig()),
		sender.WithLogger(s.logger),
		sender.WithMetrics(s.metrics),
	}
	if s.httpClient != nil {
		senderOptions = append(senderOptions, sender.WithHTTPClient(s.httpClient))
	}
	send, err := sender.New(rt.watchdog, senderOptions...)
	if err != nil {
		return err
	}
	allocate, err := allocator.New(send, rt.records, cfg.AllocatorConfig(), s.logger)
	if err != nil {
		return err
	}
	submit, err := submitter.New(cfg.Service.URL, send, rt.records, submitter.WithStats(rt.players), submitter.WithLogger(s.logger))
	if err != nil {
		return err
	}
	if rt.processor, err = processor.New(
		processor.WithConfig(cfg.SchedulerConfig()),
		processor.WithAllocator(allocate),
		processor.WithSubmitter(submit),
		processor.WithOverflow(rt.overflow),
		processor.WithStabilizer(rt.watchdog),
		processor.WithRecords(rt.records),
		processor.WithLogger(s.logger),
		processor.WithMetrics(s.metrics),
	); err != nil {
		return err
	}
	if rt.sweeper, err = sweeper.New(rt.records, cfg.Sweep, s.logger, s.metrics, sweeper.WithQueue(rt.overflow)); err != nil {
		return err
	}
	s.runtime = rt
	return nil
}

func (s *Service) ensureBaseSetup() {
	if s.fs == nil {
		s.fs = afs.New()
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.metrics == nil {
		s.metrics = metrics.New(s.config.Metrics.Namespace)
	}
}

func (s *Service) newLauncher() (watchdog.Launcher, error) {
	if !s.config.Service.Manage {
		return unmanaged{}, nil
	}
	return launcher.New(s.config.Launcher, s.logger)
}

// Runtime returns the orchestrator runtime
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Metrics returns the metrics collector
func (s *Service) Metrics() *metrics.Collector {
	return s.metrics
}
