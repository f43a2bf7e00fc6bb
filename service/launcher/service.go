package launcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
)

// Config describes how the external service is launched
type Config struct {
	Command      string            `yaml:"command"`
	LogFile      string            `yaml:"logFile"`
	WorkDir      string            `yaml:"workDir"`
	Env          map[string]string `yaml:"env"`
	StartTimeout time.Duration     `yaml:"startTimeout"`
}

// Service launches the external service in a background shell and reports its pid
type Service struct {
	config Config
	logger logrus.FieldLogger
	mux    sync.Mutex
	shell  *gosh.Service
}

// New creates launcher service
func New(config Config, logger logrus.FieldLogger) (*Service, error) {
	if strings.TrimSpace(config.Command) == "" {
		return nil, fmt.Errorf("launcher command cannot be empty")
	}
	if config.LogFile == "" {
		config.LogFile = "/dev/null"
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{config: config, logger: logger.WithField("component", "launcher")}, nil
}

// Start launches the service detached from the shell and returns its pid
func (s *Service) Start(ctx context.Context) (int, error) {
	stdout, err := s.run(ctx, StartCommand(s.config))
	if err != nil {
		return 0, fmt.Errorf("failed to launch %q: %w", s.config.Command, err)
	}
	pid, err := ParsePID(stdout)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{"pid": pid, "log": s.config.LogFile}).Info("launched service")
	return pid, nil
}

// Stop sends SIGTERM to pid
func (s *Service) Stop(ctx context.Context, pid int) error {
	if pid <= 0 {
		return nil
	}
	_, err := s.run(ctx, fmt.Sprintf("kill %d", pid))
	return err
}

func (s *Service) run(ctx context.Context, command string) (string, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.shell == nil {
		var options []runner.Option
		if len(s.config.Env) > 0 {
			options = append(options, runner.WithEnvironment(s.config.Env))
		}
		shell, err := gosh.New(ctx, local.New(options...))
		if err != nil {
			return "", fmt.Errorf("failed to open shell: %w", err)
		}
		s.shell = shell
	}
	stdout, status, err := s.shell.Run(ctx, command, runner.WithTimeout(int(s.config.StartTimeout.Milliseconds())))
	if err != nil {
		_ = s.shell.Close()
		s.shell = nil
		return "", err
	}
	if status != 0 {
		return "", fmt.Errorf("command %q exited with status %d: %s", command, status, strings.TrimSpace(stdout))
	}
	return stdout, nil
}

// Close releases the shell session
func (s *Service) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.shell == nil {
		return nil
	}
	err := s.shell.Close()
	s.shell = nil
	return err
}

// StartCommand builds the shell line starting the service in the background and echoing its pid
func StartCommand(config Config) string {
	builder := strings.Builder{}
	if config.WorkDir != "" {
		builder.WriteString("cd " + strconv.Quote(config.WorkDir) + " && ")
	}
	logFile := config.LogFile
	if logFile == "" {
		logFile = "/dev/null"
	}
	builder.WriteString("nohup " + strings.TrimSpace(config.Command) + " > " + strconv.Quote(logFile) + " 2>&1 & echo $!")
	return builder.String()
}

// ParsePID extracts the pid echoed as the last numeric line of output
func ParsePID(output string) (int, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil || pid <= 0 {
			return 0, fmt.Errorf("unexpected launcher output %q", line)
		}
		return pid, nil
	}
	return 0, fmt.Errorf("launcher produced no pid")
}
