package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mhilgert/docdepot/internal/conf"
	"github.com/mhilgert/docdepot/internal/data"
	"github.com/mhilgert/docdepot/internal/depot/biz"
	depotdata "github.com/mhilgert/docdepot/internal/depot/data"
	"github.com/mhilgert/docdepot/internal/depot/service"
	"github.com/mhilgert/docdepot/internal/pkg/classifier"
	"github.com/mhilgert/docdepot/internal/pkg/compressor"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/mhilgert/docdepot/internal/pkg/notifier"
	"github.com/mhilgert/docdepot/internal/server"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("config loaded successfully")

	// Initialize data layer
	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	// Initialize repositories
	userRepo := depotdata.NewUserRepo(d.DB)
	documentRepo := depotdata.NewDocumentRepo(d.DB)
	tokenRepo := depotdata.NewTokenRepo(d.DB)
	eventRepo := depotdata.NewEventRepo(d.DB)
	attachmentRepo := depotdata.NewAttachmentRepo(d.DB)
	checksumRepo := depotdata.NewChecksumIndexRepo(d.DB)
	cascadeRepo := depotdata.NewCascadeRepo(d.DB)
	redirectRepo := depotdata.NewRedirectRepo(d.DB)

	// Initialize collaborators; each is optional and nil when not
	// configured.
	var classify classifier.Classifier
	if c := classifier.New(&config.Classifier, log); c != nil {
		classify = c
	}
	var compress compressor.Compressor
	if c := compressor.New(&config.Compressor, log); c != nil {
		compress = c
	}
	var sinks notifier.Multi
	if w := notifier.NewWebhook(&notifier.WebhookConfig{URL: config.Notifier.WebhookURL}, log); w != nil {
		sinks = append(sinks, w)
	}
	if m := notifier.NewMail(&config.Notifier.Mail, log); m != nil {
		sinks = append(sinks, m)
	}
	var notify notifier.Notifier
	if len(sinks) > 0 {
		notify = sinks
	}

	// Initialize use cases
	lifecycle := biz.NewLifecycleUseCase(
		userRepo, documentRepo, tokenRepo, eventRepo, attachmentRepo,
		checksumRepo, cascadeRepo, d.DocStore, d.AttStore, d.Locker, log,
	)
	access := biz.NewAccessUseCase(
		userRepo, documentRepo, tokenRepo, eventRepo, attachmentRepo,
		redirectRepo, d.DocStore, d.AttStore, log,
	)
	analytics := biz.NewAnalyticsUseCase(userRepo, documentRepo, tokenRepo, eventRepo)
	pipeline := biz.NewPipelineUseCase(
		access, attachmentRepo, checksumRepo, d.AttStore,
		classify, compress, notify, d.Locker,
		biz.PipelineConfig{
			MaxSize:      config.Attachment.MaxSize,
			DeadlineDays: config.Attachment.DeadlineDays,
		},
		log,
	)

	// Initialize services
	adminService := service.NewAdminService(
		lifecycle, access, analytics,
		userRepo, documentRepo, eventRepo, redirectRepo, log,
	)
	publicService := service.NewPublicService(access, pipeline, analytics, log)

	httpServer := server.NewHTTPServer(config, log, adminService, publicService)

	// Sweep once at startup, then on the ticker.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runSweeper(sweepCtx, lifecycle, config.Sweep.Interval, log)
	defer stopSweep()

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

func runSweeper(ctx context.Context, lifecycle *biz.LifecycleUseCase, interval time.Duration, log *logger.Logger) {
	sweep := func() {
		if err := lifecycle.DeleteExpiredItems(ctx); err != nil {
			log.Error("expiry sweep failed", zap.Error(err))
		}
		if _, err := lifecycle.SweepOrphans(ctx); err != nil {
			log.Error("orphan sweep failed", zap.Error(err))
		}
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
