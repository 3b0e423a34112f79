package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"xdao.co/origin/api"
	"xdao.co/origin/registry/backends"
)

func serveCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve starts the watermark and registry HTTP API. Without a registry
backend and an account the registry endpoints answer 503 while the
watermark endpoints keep working.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, err := cfg.NewLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			svc, closeRegistry, err := cfg.OpenProof(backends.UsageServer, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeRegistry(); err != nil {
					logger.Warn("closing registry", zap.Error(err))
				}
			}()

			srv := api.New(api.Options{
				Proof:          svc,
				Codec:          cfg.NewCodec(logger),
				MaxUploadBytes: cfg.Server.MaxUploadBytes,
				RequestTimeout: cfg.Server.RequestTimeout,
				AllowOrigins:   cfg.Server.AllowOrigins,
				Logger:         logger,
			})
			logger.Info("starting",
				zap.String("registry", string(svc.State())),
				zap.String("interpreter", cfg.Codec.Interpreter),
				zap.String("scriptDir", cfg.Codec.ScriptDir),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
