package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"review_collector/internal/adapters/appstore"
	"review_collector/internal/adapters/gplay"
	server "review_collector/internal/adapters/http_server"
	"review_collector/internal/adapters/observability"
	redisad "review_collector/internal/adapters/redis"
	"review_collector/internal/app"
	"review_collector/internal/domain"
	"review_collector/internal/shared"
	"review_collector/internal/storage/csvfile"
	mysqlstore "review_collector/internal/storage/mysql"
)

var (
	flagSource     string
	flagOut        string
	flagManifest   string
	flagLang       string
	flagCountry    string
	flagMax        int
	flagPageSize   int
	flagWorkers    int
	flagOverwrite  bool
	flagResume     bool
	flagStatusAddr string
	flagMySQLDSN   string
)

func init() {
	f := collectCmd.Flags()
	f.StringVar(&flagSource, "source", "google_play", "Marketplace for positional app ids: google_play or app_store.")
	f.StringVar(&flagOut, "out", "", "Output directory for CSV files (default $OUTPUT_DIR or data/raw).")
	f.StringVar(&flagManifest, "config", "", "YAML apps manifest for batch mode; overrides positional app ids.")
	f.StringVar(&flagLang, "lang", "en", "Review language.")
	f.StringVar(&flagCountry, "country", "us", "Marketplace country/storefront.")
	f.IntVar(&flagMax, "max", 0, "Max reviews per app; 0 collects until the source is exhausted.")
	f.IntVar(&flagPageSize, "page-size", 100, "Reviews per page fetch; clamped to the source maximum.")
	f.IntVar(&flagWorkers, "workers", 0, "Concurrent app collections (default $COLLECT_WORKERS or 4).")
	f.BoolVar(&flagOverwrite, "overwrite", false, "Overwrite existing output files instead of failing.")
	f.BoolVar(&flagResume, "resume", false, "Resume from a saved checkpoint (requires REDIS_ADDR).")
	f.StringVar(&flagStatusAddr, "status-addr", "", "Serve /healthz, /metrics and /v1/runs on this address while collecting.")
	f.StringVar(&flagMySQLDSN, "mysql-dsn", "", "Also write reviews and run outcomes to this MySQL database.")
	rootCmd.AddCommand(collectCmd)
}

var collectCmd = &cobra.Command{
	Use:          "collect [app-id...]",
	Short:        "Collect reviews for one or more apps and write them to tabular files.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := shared.Load()
		if flagStatusAddr != "" {
			cfg.StatusAddr = flagStatusAddr
		}
		if flagMySQLDSN != "" {
			cfg.MySQLDSN = flagMySQLDSN
		}
		if flagOut != "" {
			cfg.OutputDir = flagOut
		}
		if flagWorkers > 0 {
			cfg.Workers = flagWorkers
		}

		if cfg.LogFile != "" {
			log.Logger = observability.NewFileLogger(cfg.AppEnv, cfg.LogFile)
		} else {
			log.Logger = observability.NewLogger(cfg.AppEnv)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		jobs, err := buildJobs(args)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return errors.New("nothing to collect: pass app ids or --config")
		}

		sources := map[domain.Source]domain.ReviewSource{
			domain.GooglePlay: gplay.New(cfg.GPlayBase, cfg.SourceRPS),
			domain.AppStore:   appstore.New(cfg.AppStoreBase, cfg.SourceRPS),
		}

		var checkpoints domain.CheckpointStore
		if cfg.RedisAddr != "" {
			checkpoints = redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.CheckpointTTL)
		} else if flagResume {
			return errors.New("--resume needs REDIS_ADDR set")
		}

		var store *mysqlstore.Store
		if cfg.MySQLDSN != "" {
			db, err := sql.Open("mysql", cfg.MySQLDSN)
			if err != nil {
				return fmt.Errorf("sql.Open: %w", err)
			}
			if err := db.Ping(); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}
			defer db.Close()
			store = mysqlstore.New(db)
			log.Info().Msg("mysql sink enabled")
		}

		newSink := func(job domain.Job) (domain.Sink, error) {
			csvSink, err := csvfile.Open(cfg.OutputDir, job.Source, job.AppID, flagOverwrite)
			if err != nil {
				return nil, err
			}
			if store == nil {
				return csvSink, nil
			}
			return &teeSink{sinks: []domain.Sink{csvSink, store.NewSink(0)}}, nil
		}

		tracker := app.NewRunTracker()

		if cfg.StatusAddr != "" {
			hs := statusServer(cfg.StatusAddr, tracker)
			go func() {
				log.Info().Str("addr", cfg.StatusAddr).Msg("status server listening")
				if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("status server failed")
				}
			}()
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = hs.Shutdown(sctx)
			}()
		}

		opts := app.Options{
			MaxAttempts:    cfg.MaxAttempts,
			AttemptTimeout: cfg.AttemptTimeout,
			Checkpoints:    checkpoints,
		}
		runner := app.NewBatchRunner(sources, newSink, opts, cfg.Workers, tracker)

		log.Info().Int("jobs", len(jobs)).Int("workers", cfg.Workers).
			Str("out", cfg.OutputDir).Msg("collection starting")
		outs := runner.Run(ctx, jobs)

		failed := 0
		for _, o := range outs {
			fmt.Println(o.Summary())
			if store != nil {
				if err := store.RecordOutcome(ctx, uuid.NewString(), o); err != nil {
					log.Warn().Err(err).Str("app", o.AppID).Msg("record outcome failed")
				}
			}
			if o.Reason == domain.ReasonError {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d collections failed", failed, len(outs))
		}
		return nil
	},
}

func buildJobs(args []string) ([]domain.Job, error) {
	if flagManifest != "" {
		m, err := shared.LoadManifest(flagManifest)
		if err != nil {
			return nil, err
		}
		return m.Jobs(flagMax, flagPageSize, flagLang, flagCountry, flagResume), nil
	}

	src, err := domain.ParseSource(flagSource)
	if err != nil {
		return nil, err
	}
	jobs := make([]domain.Job, 0, len(args))
	for _, id := range args {
		jobs = append(jobs, domain.Job{
			AppID: id, Source: src,
			MaxReviews: flagMax, PageSize: flagPageSize,
			Lang: flagLang, Country: flagCountry, Resume: flagResume,
		})
	}
	return jobs, nil
}

func statusServer(addr string, tracker *app.RunTracker) *http.Server {
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Tracker: tracker})
	return &http.Server{Addr: addr, Handler: srv.Mux()}
}

// teeSink fans one job's records out to every configured back-end.
type teeSink struct{ sinks []domain.Sink }

func (t *teeSink) Append(ctx context.Context, r domain.Review) error {
	for _, s := range t.sinks {
		if err := s.Append(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (t *teeSink) Flush(ctx context.Context) error {
	for _, s := range t.sinks {
		if err := s.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (t *teeSink) Close() error {
	var first error
	for _, s := range t.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
