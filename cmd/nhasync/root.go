package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pnhp/nha-sync/internal/adapter/csvexport"
	"github.com/pnhp/nha-sync/internal/adapter/httpadapter"
	"github.com/pnhp/nha-sync/internal/adapter/kafka"
	"github.com/pnhp/nha-sync/internal/adapter/zotero"
	"github.com/pnhp/nha-sync/internal/config"
	"github.com/pnhp/nha-sync/internal/observability"
	"github.com/pnhp/nha-sync/internal/pipeline"
)

// Job names.
const (
	jobRefs       = "refs"
	jobReconcile  = "reconcile"
	jobCitations  = "citations"
	jobMapIDs     = "mapids"
	jobPrioritize = "prioritize"
)

// serveOrder is the order serve runs the jobs in. mapids renumbers every site
// and only runs as a one-shot command.
var serveOrder = []string{jobRefs, jobReconcile, jobCitations, jobPrioritize}

const (
	defaultServeInterval = 24 * time.Hour
	zoteroTimeout        = 30 * time.Second
	citationCacheTTL     = 24 * time.Hour
)

var retrySchedule = pipeline.Schedule{Attempts: 3, InitialBackoff: 5 * time.Second, MaxBackoff: time.Minute}

// app carries what every subcommand shares once the config is loaded.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
}

func newRootCommand() *cobra.Command {
	a := &app{clock: clockwork.NewRealClock()}

	root := &cobra.Command{
		Use:          "nhasync",
		Short:        "Natural Heritage Area survey reconciliation and site prioritization",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cfg)
			a.metrics = observability.NewMetrics()
			return nil
		},
	}

	root.AddCommand(
		a.serveCommand(),
		a.jobCommand(jobReconcile, "Move approved survey form submissions into the NHA tables"),
		a.jobCommand(jobPrioritize, "Score every site and export the priority table"),
		a.jobCommand(jobRefs, "Replace the reference mirror with the Zotero library"),
		a.jobCommand(jobCitations, "Fill missing full citations from Zotero"),
		a.jobCommand(jobMapIDs, "Renumber site map ids within each county"),
		a.migrateCommand(),
	)
	return root
}

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run every job on a schedule with health and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) jobCommand(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runOnce(cmd.Context(), name)
		},
	}
}

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the SQL schema",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if a.cfg.StoreDriver == config.DriverArcGIS {
				return errors.New("migrate requires STORE_DRIVER sqlite or postgres")
			}
			b, err := openBackend(a.cfg, a.clock, a.logger)
			if err != nil {
				return err
			}
			a.logger.Info("schema migrated", "driver", a.cfg.StoreDriver)
			return b.Close()
		},
	}
}

func (a *app) runOnce(ctx context.Context, name string) error {
	b, err := openBackend(a.cfg, a.clock, a.logger)
	if err != nil {
		return err
	}
	defer a.close("store", b)

	jobs, closers := a.buildJobs(b, name)
	defer a.closeAll(closers)

	return pipeline.New(jobs, retrySchedule, a.clock, a.logger, a.metrics).Run(ctx)
}

func (a *app) serve(ctx context.Context) error {
	b, err := openBackend(a.cfg, a.clock, a.logger)
	if err != nil {
		return err
	}
	defer a.close("store", b)

	jobs, closers := a.buildJobs(b, serveOrder...)
	defer a.closeAll(closers)

	schedule := retrySchedule
	schedule.Interval = a.cfg.RunInterval
	if schedule.Interval == 0 {
		schedule.Interval = defaultServeInterval
	}
	p := pipeline.New(jobs, schedule, a.clock, a.logger, a.metrics)

	checkers := []sharedobs.ReadinessChecker{p}
	if rc, ok := b.(sharedobs.ReadinessChecker); ok {
		checkers = append(checkers, rc)
	}
	srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.logger, p, checkers...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	a.logger.Info("shutdown complete")
	return err
}

// buildJobs creates the named jobs over the backend. The returned closers
// belong to the score sinks.
func (a *app) buildJobs(b backend, names ...string) ([]pipeline.Job, []io.Closer) {
	var (
		jobs    []pipeline.Job
		closers []io.Closer
	)
	for _, name := range names {
		switch name {
		case jobRefs:
			jobs = append(jobs, pipeline.NewMirrorSync(a.zoteroClient(), b.storeTables().Mirror, a.logger, a.metrics))
		case jobReconcile:
			jobs = append(jobs, &lazyReconciler{build: func(ctx context.Context) (*pipeline.Reconciler, error) {
				form, err := b.formTables(ctx)
				if err != nil {
					return nil, err
				}
				return pipeline.NewReconciler(form, b.storeTables(), a.cfg.PhotoStagingDir, a.logger, a.metrics), nil
			}})
		case jobCitations:
			formatter := zotero.NewCachedFormatter(a.zoteroClient(), citationCacheTTL)
			jobs = append(jobs, pipeline.NewCitationFiller(b.storeTables().References, formatter, a.logger, a.metrics))
		case jobMapIDs:
			jobs = append(jobs, pipeline.NewMapIDAssigner(b.storeTables().Sites, a.logger))
		case jobPrioritize:
			sinks := []pipeline.ScoreSink{csvexport.NewWriter(a.cfg.ScoreExportPath, a.logger)}
			if len(a.cfg.KafkaBrokers) > 0 {
				w := kafka.NewScoreWriter(a.cfg, a.clock, a.logger)
				sinks = append(sinks, w)
				closers = append(closers, w)
			}
			jobs = append(jobs, pipeline.NewPrioritizer(b.scoringTables(), b.spatial(), sinks, a.logger, a.metrics))
		}
	}
	return jobs, closers
}

func (a *app) zoteroClient() *zotero.Client {
	c := a.cfg
	return zotero.NewClient(c.ZoteroBaseURL, c.ZoteroLibraryType, c.ZoteroLibraryID, c.ZoteroAPIKey,
		zoteroTimeout, c.CitationDelay, a.clock, a.logger)
}

func (a *app) close(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		a.logger.Error("close error", "resource", name, "error", err)
	}
}

func (a *app) closeAll(closers []io.Closer) {
	for _, c := range closers {
		a.close("score sink", c)
	}
}

// lazyReconciler resolves the survey form on its first run.
type lazyReconciler struct {
	build func(ctx context.Context) (*pipeline.Reconciler, error)
	r     *pipeline.Reconciler
}

func (l *lazyReconciler) Name() string { return jobReconcile }

func (l *lazyReconciler) Run(ctx context.Context) error {
	if l.r == nil {
		r, err := l.build(ctx)
		if err != nil {
			return err
		}
		l.r = r
	}
	return l.r.Run(ctx)
}
