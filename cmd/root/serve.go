package root

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/hypervisual/banklink/pkg/config"
	"github.com/hypervisual/banklink/pkg/server"
	"github.com/hypervisual/banklink/pkg/store"
	"github.com/hypervisual/banklink/pkg/token"
)

type serveFlags struct {
	listenAddr string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the token administration HTTP server",
		Example: `  # Start on the default port
  banklink serve

  # Start on a specific address
  banklink serve --listen :9000`,
		Args: cobra.NoArgs,
		RunE: flags.runServe,
	}

	cmd.Flags().StringVarP(&flags.listenAddr, "listen", "l", ":8080", "Address to listen on")

	return cmd
}

func (f *serveFlags) runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	durable, pinger := openDurableTier(cfg)
	tokens := token.NewManager(cfg, token.NewStore(durable))
	srv := server.New(tokens, pinger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	return srv.Start(f.listenAddr)
}

// openDurableTier connects the Redis durable tier when configured. Failures
// degrade to memory-only operation rather than aborting startup.
func openDurableTier(cfg config.Config) (store.Durable, store.Pinger) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	r, err := store.NewRedis(cfg.RedisURL)
	if err != nil {
		slog.Warn("durable token tier disabled", "error", err)
		return nil, nil
	}
	slog.Info("durable token tier enabled")
	return r, r
}
