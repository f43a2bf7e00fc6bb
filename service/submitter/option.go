package submitter

import "github.com/sirupsen/logrus"

// Option configures submitter
type Option func(s *Service)

// WithStats sets participant statistics index
func WithStats(stats Stats) Option {
	return func(s *Service) {
		s.stats = stats
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
