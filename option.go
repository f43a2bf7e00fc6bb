package chainorch

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/chainorch/metrics"
	"github.com/viant/chainorch/service/watchdog"
)

// Option configures the service
type Option func(s *Service)

// WithFs sets the file system used by every persisted document
func WithFs(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Service) {
		s.metrics = collector
	}
}

// WithLauncher replaces the shell launcher of the service process
func WithLauncher(launcher watchdog.Launcher) Option {
	return func(s *Service) {
		s.launcher = launcher
	}
}

// WithProber replaces the process liveness check
func WithProber(prober watchdog.Prober) Option {
	return func(s *Service) {
		s.prober = prober
	}
}

// WithHTTPClient sets the client used for requests to the service
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.httpClient = client
	}
}
