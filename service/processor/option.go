package processor

import (
	"github.com/sirupsen/logrus"
	"github.com/viant/chainorch/metrics"
)

// Option configures the scheduler
type Option func(*Service)

// WithConfig sets the configuration
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithAllocator sets the open job handler
func WithAllocator(allocator Allocator) Option {
	return func(s *Service) {
		s.allocator = allocator
	}
}

// WithSubmitter sets the submit job handler
func WithSubmitter(submitter Submitter) Option {
	return func(s *Service) {
		s.submitter = submitter
	}
}

// WithOverflow sets the durable overflow queue
func WithOverflow(overflow Overflow) Option {
	return func(s *Service) {
		s.overflow = overflow
	}
}

// WithStabilizer sets the service readiness check used by open workers
func WithStabilizer(stabilizer Stabilizer) Option {
	return func(s *Service) {
		s.stabilizer = stabilizer
	}
}

// WithRecords enables early rejection of submissions for unknown chains
func WithRecords(records Records) Option {
	return func(s *Service) {
		s.records = records
	}
}

// WithWorkers sets the number of open and submit workers
func WithWorkers(open, submit int) Option {
	return func(s *Service) {
		s.config.OpenWorkers = open
		s.config.SubmitWorkers = submit
	}
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Service) {
		s.metrics = collector
	}
}
