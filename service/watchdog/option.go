package watchdog

import (
	"github.com/sirupsen/logrus"
	"github.com/viant/chainorch/metrics"
)

// Option configures watchdog
type Option func(s *Service)

// WithConfig sets the configuration
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithProber sets the liveness prober
func WithProber(prober Prober) Option {
	return func(s *Service) {
		if prober != nil {
			s.prober = prober
		}
	}
}

// WithPID adopts an already running process
func WithPID(pid int) Option {
	return func(s *Service) {
		if pid > 0 {
			s.Adopt(pid)
		}
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

// WithMetrics sets metrics collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Service) {
		s.metrics = collector
	}
}
