package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mhilgert/docdepot/internal/conf"
	"github.com/mhilgert/docdepot/internal/data"
	"github.com/mhilgert/docdepot/internal/depot/biz"
	depotdata "github.com/mhilgert/docdepot/internal/depot/data"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"go.uber.org/zap"
)

// One-shot maintenance run: expire, reconcile orphans and optionally
// drop documents that were never accessed. Meant for cron.
var (
	configFile = flag.String("config", "config.yaml", "config file path")
	staleDays  = flag.Int("stale-days", 0, "also delete documents without events older than this many days (0 disables)")
)

func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	lifecycle := biz.NewLifecycleUseCase(
		depotdata.NewUserRepo(d.DB),
		depotdata.NewDocumentRepo(d.DB),
		depotdata.NewTokenRepo(d.DB),
		depotdata.NewEventRepo(d.DB),
		depotdata.NewAttachmentRepo(d.DB),
		depotdata.NewChecksumIndexRepo(d.DB),
		depotdata.NewCascadeRepo(d.DB),
		d.DocStore,
		d.AttStore,
		d.Locker,
		log,
	)

	ctx := context.Background()

	if err := lifecycle.DeleteExpiredItems(ctx); err != nil {
		log.Fatal("expiry sweep failed", zap.Error(err))
	}

	report, err := lifecycle.SweepOrphans(ctx)
	if err != nil {
		log.Fatal("orphan sweep failed", zap.Error(err))
	}

	if *staleDays > 0 {
		deleted, err := lifecycle.DeleteDocumentsWithoutEventsAfterDays(ctx, *staleDays)
		if err != nil {
			log.Fatal("stale document sweep failed", zap.Error(err))
		}
		log.Info("stale documents deleted", zap.Int("count", deleted))
	}

	fmt.Printf("sweep finished: %d document rows, %d document files, %d attachment rows, %d attachment files, %d checksums backfilled\n",
		report.DocumentRowsDeleted,
		report.DocumentFilesRemoved,
		report.AttachmentRowsDeleted,
		report.AttachmentFilesRemoved,
		report.ChecksumsBackfilled,
	)
}
