package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/review-moderation/backend/internal/api"
	"github.com/review-moderation/backend/internal/metrics"
	"github.com/review-moderation/backend/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review form web server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		defer logger.Sync()

		metrics.Init()
		server := api.NewApp(a.ServerOptions(), a.Controller)

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Server starting", zap.String("address", a.Addr()))
			errCh <- server.Listen(a.Addr())
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err := <-errCh:
			exitCode = ExitRuntimeError
			return err
		case <-quit:
		}

		logger.Info("Server shutting down gracefully...")
		return server.Shutdown()
	},
}
