// Package config defines the YAML configuration document and converts its
// sections into component configurations.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/viant/chainorch/internal/logging"
	"github.com/viant/chainorch/service/allocator"
	"github.com/viant/chainorch/service/envelope"
	fsqueue "github.com/viant/chainorch/service/messaging/fs"
	"github.com/viant/chainorch/service/launcher"
	"github.com/viant/chainorch/service/processor"
	"github.com/viant/chainorch/service/sender"
	"github.com/viant/chainorch/service/sweeper"
	"github.com/viant/chainorch/service/watchdog"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration document. Durations use Go duration syntax ("1.5s").
type Config struct {
	Service    Service         `yaml:"service"`
	Store      Store           `yaml:"store"`
	Launcher   launcher.Config `yaml:"launcher"`
	Watchdog   Watchdog        `yaml:"watchdog"`
	Stability  Stability       `yaml:"stability"`
	Sender     Sender          `yaml:"sender"`
	Allocation Allocation      `yaml:"allocation"`
	Scheduler  Scheduler       `yaml:"scheduler"`
	Overflow   Overflow        `yaml:"overflow"`
	Sweep      sweeper.Config  `yaml:"sweep"`
	HTTP       HTTP            `yaml:"http"`
	Log        logging.Config  `yaml:"log"`
	Tracing    Tracing         `yaml:"tracing"`
	Metrics    Metrics         `yaml:"metrics"`
}

// Service locates the external service
type Service struct {
	URL            string `yaml:"url"`
	PublisherChain string `yaml:"publisherChain"`
	FactoryApp     string `yaml:"factoryApp"`
	// Manage starts and supervises the service process; otherwise an already running process is adopted by PID
	Manage        bool          `yaml:"manage"`
	PID           int           `yaml:"pid"`
	WalletURL     string        `yaml:"walletURL"`
	WalletTimeout time.Duration `yaml:"walletTimeout"`
	WalletPoll    time.Duration `yaml:"walletPoll"`
}

// Store locates the persisted documents
type Store struct {
	BaseURL    string `yaml:"baseURL"`
	Records    string `yaml:"records"`
	Overflow   string `yaml:"overflow"`
	DeadLetter string `yaml:"deadLetter"`
	Players    string `yaml:"players"`
	Snapshots  string `yaml:"snapshots"`
}

type Watchdog struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	SettleDelay  time.Duration `yaml:"settleDelay"`
	BackoffBase  time.Duration `yaml:"backoffBase"`
	BackoffMax   time.Duration `yaml:"backoffMax"`
	MaxExponent  int           `yaml:"maxExponent"`
	StopTimeout  time.Duration `yaml:"stopTimeout"`
}

// Stability is the readiness rule shared by the scheduler and the sender
type Stability struct {
	Timeout    time.Duration `yaml:"timeout"`
	Poll       time.Duration `yaml:"poll"`
	Window     time.Duration `yaml:"window"`
	RetryDelay time.Duration `yaml:"retryDelay"`
}

type Sender struct {
	WaitTimeout    time.Duration `yaml:"waitTimeout"`
	AttemptTimeout time.Duration `yaml:"attemptTimeout"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	RewaitCap      time.Duration `yaml:"rewaitCap"`
	RetryBase      time.Duration `yaml:"retryBase"`
	RetryStep      time.Duration `yaml:"retryStep"`
}

type Allocation struct {
	SeedTimeout  time.Duration `yaml:"seedTimeout"`
	PollAttempts int           `yaml:"pollAttempts"`
	PollDelay    time.Duration `yaml:"pollDelay"`
}

type Scheduler struct {
	OpenWorkers    int           `yaml:"openWorkers"`
	SubmitWorkers  int           `yaml:"submitWorkers"`
	OpenCapacity   int           `yaml:"openCapacity"`
	SubmitCapacity int           `yaml:"submitCapacity"`
	DrainInterval  time.Duration `yaml:"drainInterval"`
}

type Overflow struct {
	BackoffBase  time.Duration `yaml:"backoffBase"`
	BackoffMax   time.Duration `yaml:"backoffMax"`
	MaxExponent  int           `yaml:"maxExponent"`
	FailurePause time.Duration `yaml:"failurePause"`
	MaxAttempts  int           `yaml:"maxAttempts"`
}

type HTTP struct {
	Addr      string  `yaml:"addr"`
	RateLimit float64 `yaml:"rateLimit"` // requests per second, 0 disables limiting
	Burst     int     `yaml:"burst"`
}

type Tracing struct {
	OutputFile string `yaml:"outputFile"` // empty disables span export
}

type Metrics struct {
	Namespace string `yaml:"namespace"`
}

// Default returns a configuration populated with every default
func Default() *Config {
	watchdogConfig := watchdog.DefaultConfig()
	senderConfig := sender.DefaultConfig()
	allocatorConfig := allocator.DefaultConfig()
	schedulerConfig := processor.DefaultConfig()
	overflowConfig := fsqueue.DefaultConfig()
	return &Config{
		Service: Service{
			URL:           "http://localhost:8080",
			Manage:        true,
			WalletURL:     "/tmp/chainorch/wallet.json",
			WalletTimeout: 30 * time.Second,
			WalletPoll:    500 * time.Millisecond,
		},
		Store: Store{
			BaseURL:    "/tmp/chainorch",
			Records:    "match_mapping.json",
			Overflow:   "submit_requests.json",
			DeadLetter: "submit_requests.dlq.json",
			Players:    "players.json",
			Snapshots:  "snapshots.json",
		},
		Launcher: launcher.Config{
			LogFile:      "/tmp/chainorch/service.log",
			StartTimeout: 10 * time.Second,
		},
		Watchdog: Watchdog{
			PollInterval: watchdogConfig.PollInterval,
			SettleDelay:  watchdogConfig.SettleDelay,
			BackoffBase:  watchdogConfig.BackoffBase,
			BackoffMax:   watchdogConfig.BackoffMax,
			MaxExponent:  watchdogConfig.MaxExponent,
			StopTimeout:  watchdogConfig.StopTimeout,
		},
		Stability: Stability{
			Timeout:    schedulerConfig.StabilityTimeout,
			Poll:       senderConfig.StabilityPoll,
			Window:     senderConfig.StabilityWindow,
			RetryDelay: schedulerConfig.StabilityRetryDelay,
		},
		Sender: Sender{
			WaitTimeout:    senderConfig.WaitTimeout,
			AttemptTimeout: senderConfig.AttemptTimeout,
			MaxAttempts:    senderConfig.MaxAttempts,
			RewaitCap:      senderConfig.RewaitCap,
			RetryBase:      senderConfig.RetryBase,
			RetryStep:      senderConfig.RetryStep,
		},
		Allocation: Allocation{
			SeedTimeout:  allocatorConfig.SeedTimeout,
			PollAttempts: allocatorConfig.PollAttempts,
			PollDelay:    allocatorConfig.PollDelay,
		},
		Scheduler: Scheduler{
			OpenWorkers:    schedulerConfig.OpenWorkers,
			SubmitWorkers:  schedulerConfig.SubmitWorkers,
			OpenCapacity:   schedulerConfig.OpenCapacity,
			SubmitCapacity: schedulerConfig.SubmitCapacity,
			DrainInterval:  schedulerConfig.DrainInterval,
		},
		Overflow: Overflow{
			BackoffBase:  overflowConfig.BackoffBase,
			BackoffMax:   overflowConfig.BackoffMax,
			MaxExponent:  overflowConfig.MaxExponent,
			FailurePause: overflowConfig.FailurePause,
			MaxAttempts:  overflowConfig.MaxAttempts,
		},
		Sweep:   sweeper.DefaultConfig(),
		HTTP:    HTTP{Addr: ":8090", RateLimit: 50, Burst: 100},
		Log:     logging.DefaultConfig(),
		Metrics: Metrics{Namespace: "chainorch"},
	}
}

// Load reads the YAML document at URL over the defaults. ${env.NAME}
// expressions are expanded before decoding.
func Load(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	ret := Default()
	if err = yaml.Unmarshal([]byte(expandEnv(string(data))), ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %v: %w", URL, err)
	}
	return ret, ret.Validate()
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Service.URL != "", "service.url is required")
	check(c.Service.PublisherChain != "", "service.publisherChain is required")
	check(c.Service.FactoryApp != "", "service.factoryApp is required")
	check(!c.Service.Manage || c.Launcher.Command != "", "launcher.command is required when service.manage is set")
	check(c.Service.Manage || c.Service.PID > 0, "service.pid is required when service.manage is not set")
	check(c.Store.BaseURL != "", "store.baseURL is required")
	check(c.Scheduler.OpenWorkers > 0, "scheduler.openWorkers must be > 0")
	check(c.Scheduler.SubmitWorkers > 0, "scheduler.submitWorkers must be > 0")
	check(c.Scheduler.OpenCapacity > 0, "scheduler.openCapacity must be > 0")
	check(c.Scheduler.SubmitCapacity > 0, "scheduler.submitCapacity must be > 0")
	check(c.Stability.Window > 0, "stability.window must be > 0")
	check(c.Stability.Poll > 0, "stability.poll must be > 0")
	check(c.Sender.MaxAttempts > 0, "sender.maxAttempts must be > 0")
	check(c.Allocation.PollAttempts > 0, "allocation.pollAttempts must be > 0")
	check(c.Overflow.MaxAttempts >= 0, "overflow.maxAttempts must be >= 0")
	check(c.Watchdog.PollInterval > 0, "watchdog.pollInterval must be > 0")
	return errors.Join(errs...)
}

// URL returns the location of a store document
func (s Store) URL(name string) string {
	if name == "" {
		return ""
	}
	return url.Join(s.BaseURL, name)
}

// FactoryURL returns the endpoint of the application opening chains
func (c *Config) FactoryURL() string {
	return envelope.ApplicationURL(c.Service.URL, c.Service.PublisherChain, c.Service.FactoryApp)
}

// WatchdogConfig returns watchdog configuration
func (c *Config) WatchdogConfig() watchdog.Config {
	return watchdog.Config{
		PollInterval: c.Watchdog.PollInterval,
		SettleDelay:  c.Watchdog.SettleDelay,
		BackoffBase:  c.Watchdog.BackoffBase,
		BackoffMax:   c.Watchdog.BackoffMax,
		MaxExponent:  c.Watchdog.MaxExponent,
		StopTimeout:  c.Watchdog.StopTimeout,
	}
}

// SenderConfig returns request sender configuration
func (c *Config) SenderConfig() sender.Config {
	return sender.Config{
		WaitTimeout:     c.Sender.WaitTimeout,
		AttemptTimeout:  c.Sender.AttemptTimeout,
		MaxAttempts:     c.Sender.MaxAttempts,
		StabilityPoll:   c.Stability.Poll,
		StabilityWindow: c.Stability.Window,
		RewaitCap:       c.Sender.RewaitCap,
		RetryBase:       c.Sender.RetryBase,
		RetryStep:       c.Sender.RetryStep,
	}
}

// AllocatorConfig returns allocation protocol configuration
func (c *Config) AllocatorConfig() allocator.Config {
	ret := allocator.DefaultConfig()
	ret.FactoryURL = c.FactoryURL()
	ret.SeedTimeout = c.Allocation.SeedTimeout
	ret.PollAttempts = c.Allocation.PollAttempts
	ret.PollDelay = c.Allocation.PollDelay
	ret.SendWaitTimeout = c.Sender.WaitTimeout
	ret.SendAttemptTimeout = c.Sender.AttemptTimeout
	ret.SendMaxAttempts = c.Sender.MaxAttempts
	return ret
}

// SchedulerConfig returns scheduler configuration
func (c *Config) SchedulerConfig() processor.Config {
	return processor.Config{
		OpenWorkers:         c.Scheduler.OpenWorkers,
		SubmitWorkers:       c.Scheduler.SubmitWorkers,
		OpenCapacity:        c.Scheduler.OpenCapacity,
		SubmitCapacity:      c.Scheduler.SubmitCapacity,
		StabilityTimeout:    c.Stability.Timeout,
		StabilityPoll:       c.Stability.Poll,
		StabilityWindow:     c.Stability.Window,
		StabilityRetryDelay: c.Stability.RetryDelay,
		DrainInterval:       c.Scheduler.DrainInterval,
	}
}

// OverflowConfig returns durable overflow queue configuration
func (c *Config) OverflowConfig() fsqueue.Config {
	return fsqueue.Config{
		URL:           c.Store.URL(c.Store.Overflow),
		DeadLetterURL: c.Store.URL(c.Store.DeadLetter),
		BackoffBase:   c.Overflow.BackoffBase,
		BackoffMax:    c.Overflow.BackoffMax,
		MaxExponent:   c.Overflow.MaxExponent,
		FailurePause:  c.Overflow.FailurePause,
		MaxAttempts:   c.Overflow.MaxAttempts,
	}
}
