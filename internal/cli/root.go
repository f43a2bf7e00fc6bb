// Package cli implements the chainorch command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/viant/afs"
	"github.com/viant/chainorch"
	"github.com/viant/chainorch/config"
	"github.com/viant/chainorch/internal/logging"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigURL string
	Verbose   bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:   "chainorch",
		Short: "Chain allocation and submission orchestrator",
		Long: `chainorch supervises a local node service, allocates chains for pairs of
participants and records their results, queueing submissions while
allocations are in flight.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigURL, "config", "c", "chainorch.yaml", "configuration document URL")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRecordsCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewWalletCommand(opts))
	return cmd
}

// environment is what every command needs: configuration, a logger and the wired service
type environment struct {
	config  *config.Config
	logger  *logrus.Logger
	service *chainorch.Service
	closer  io.Closer
}

func (e *environment) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

func (o *RootOptions) environment(ctx context.Context) (*environment, error) {
	fs := afs.New()
	cfg, err := config.Load(ctx, fs, o.ConfigURL)
	if err != nil {
		return nil, err
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	srv, err := chainorch.New(ctx, cfg, chainorch.WithFs(fs), chainorch.WithLogger(logger))
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return &environment{config: cfg, logger: logger, service: srv, closer: closer}, nil
}

func printJSON(w io.Writer, value interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
