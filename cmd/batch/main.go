// Command batch runs every video listed in a spreadsheet or feed through the
// pipeline and writes a summary workbook.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"video-docs-go/internal/app"
	"video-docs-go/internal/config"
	"video-docs-go/internal/dataset"
	"video-docs-go/internal/export"
	"video-docs-go/internal/logger"
	"video-docs-go/internal/types"
)

func main() {
	source := flag.String("source", "", "xlsx file or RSS/Atom feed URL listing videos")
	report := flag.String("report", "report.xlsx", "path of the summary workbook")
	docsDir := flag.String("docs", "", "directory for per-job .docx documents (optional)")
	limit := flag.Int("limit", 0, "process at most this many videos (0 = all)")
	parallel := flag.Int("parallel", 1, "number of videos processed at the same time")
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config file")
	flag.Parse()

	log := logger.New()
	if *source == "" {
		log.Fatal("-source is required")
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	log.Logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := dataset.Load(ctx, *source)
	if err != nil {
		log.WithError(err).Fatal("failed to load sources")
	}
	if *limit > 0 && len(sources) > *limit {
		sources = sources[:*limit]
	}
	log.WithField("videos", len(sources)).Info("sources loaded")

	st, closeStore, err := app.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open job store")
	}
	defer closeStore()

	a, err := app.New(ctx, cfg, st, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}

	if *docsDir != "" {
		if err := os.MkdirAll(*docsDir, 0o755); err != nil {
			log.WithError(err).Fatal("create docs directory")
		}
	}

	refs := make([]string, len(sources))
	for i, src := range sources {
		refs[i] = src.URL
	}
	log.WithField("parallel", *parallel).Info("processing sources")

	jobs := a.Orchestrator.RunAll(ctx, refs, *parallel, func(job types.Job) {
		entry := log.WithFields(logrus.Fields{"job_id": job.ID, "state": job.State, "source_url": job.SourceRef})
		if job.Error != nil {
			entry.WithField("kind", job.Error.Kind).Warn(job.Error.Message)
			return
		}
		entry.Info("job completed")
		if *docsDir != "" && job.Content != nil {
			path := filepath.Join(*docsDir, job.ID+".docx")
			if err := export.WriteDOCX(path, job.Content.Document()); err != nil {
				entry.WithError(err).Warn("docx export failed")
			}
		}
	})

	f, err := os.Create(*report)
	if err != nil {
		log.WithError(err).Fatal("create report")
	}
	defer f.Close()
	if err := export.WriteReport(f, jobs); err != nil {
		log.WithError(err).Fatal("write report")
	}
	log.WithField("report", *report).WithField("jobs", len(jobs)).Info("batch finished")
}
