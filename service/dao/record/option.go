package record

import "github.com/sirupsen/logrus"

// Option configures record service
type Option func(s *Service)

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
