package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/chainorch/service/httpapi"
)

// ServeOptions holds flags for the serve command
type ServeOptions struct {
	*RootOptions
	Addr            string
	ShutdownTimeout time.Duration
}

// NewServeCommand creates the serve command
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Supervise the node service and serve the HTTP front door",
		Long: `Start the watchdog, the scheduler and the HTTP front door.

Example:
  chainorch serve --config /etc/chainorch.yaml
  chainorch serve -c chainorch.yaml --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address, overrides http.addr")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed to drain queued jobs on exit")
	return cmd
}

func serve(parent context.Context, opts *ServeOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := opts.environment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	runtime := env.service.Runtime()
	if err = runtime.Start(ctx); err != nil {
		return err
	}

	addr := env.config.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	server := httpapi.New(runtime,
		httpapi.WithGatherer(env.service.Metrics().Registry),
		httpapi.WithRateLimit(env.config.HTTP.RateLimit, env.config.HTTP.Burst),
		httpapi.WithLogger(env.logger),
	)
	serveErr := server.ListenAndServe(ctx, addr)
	stop()

	env.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, runtime.Shutdown(shutdownCtx))
}
