package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mastdeals10/sapj/internal/application/service"
	"github.com/mastdeals10/sapj/internal/infrastructure/metrics"
	"github.com/mastdeals10/sapj/internal/infrastructure/persistence/repository"
	httpapi "github.com/mastdeals10/sapj/internal/interfaces/http"
	"github.com/mastdeals10/sapj/pkg/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API until SIGINT or SIGTERM",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := a.cfg
		logger := a.logger
		kv := utils.NewKVLogger(logger)

		db := a.store()
		invoiceRepo := repository.NewInvoiceRepository(db, logger)
		itemRepo := repository.NewLineItemRepository(db, logger)
		stockLedger := repository.NewStockLedgerRepository(db, logger)

		var recorder *metrics.Recorder
		var metricsHandler http.Handler
		var serviceMetrics service.Metrics
		if cfg.Metrics.Enabled {
			recorder = metrics.NewRecorder()
			metricsHandler = recorder.Handler()
			serviceMetrics = recorder
		}

		invoiceService := service.NewInvoiceService(invoiceRepo, itemRepo, stockLedger, db, serviceMetrics, kv)
		exportService := service.NewExportService(invoiceService, kv)

		server := httpapi.NewServer(httpapi.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			Mode:            cfg.Server.Mode,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			MetricsPath:     cfg.Metrics.Path,
		}, invoiceService, exportService, metricsHandler, kv)

		logger.Info("Starting sapj",
			zap.String("version", version),
			zap.String("address", cfg.Server.Addr()),
			zap.Bool("metrics", cfg.Metrics.Enabled))

		if err := server.Start(ctx); err != nil {
			logger.Error("Server stopped with error", zap.Error(err))
			return err
		}

		logger.Info("Server exited gracefully")
		return nil
	},
}
