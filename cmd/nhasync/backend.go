package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/pnhp/nha-sync/internal/adapter/arcgis"
	"github.com/pnhp/nha-sync/internal/adapter/sqlstore"
	"github.com/pnhp/nha-sync/internal/config"
	"github.com/pnhp/nha-sync/internal/domain"
	"github.com/pnhp/nha-sync/internal/pipeline"
)

// backend binds the jobs to one storage flavour.
type backend interface {
	formTables(ctx context.Context) (pipeline.FormTables, error)
	storeTables() pipeline.StoreTables
	scoringTables() pipeline.ScoringTables
	spatial() pipeline.Spatial
	Close() error
}

func openBackend(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (backend, error) {
	var driver, dsn string
	switch cfg.StoreDriver {
	case config.DriverArcGIS:
		return newArcGISBackend(cfg, clock, logger), nil
	case config.DriverSQLite:
		driver, dsn = sqlstore.DriverSQLite, cfg.SQLitePath
	case config.DriverPostgres:
		driver, dsn = sqlstore.DriverPostgres, cfg.PostgresDSN
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	b, err := openSQLBackend(driver, dsn, clock, logger)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// arcgisBackend talks to the hosted feature services.
type arcgisBackend struct {
	client *arcgis.Client
	cfg    *config.Config
	logger *slog.Logger
}

func newArcGISBackend(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *arcgisBackend {
	client := arcgis.NewClient(cfg.PortalURL, cfg.PortalUsername, cfg.PortalPassword, cfg.GISTimeout, clock, logger)
	return &arcgisBackend{client: client, cfg: cfg, logger: logger}
}

func (b *arcgisBackend) layer(url string) *arcgis.FeatureLayer {
	return arcgis.NewFeatureLayer(b.client, url)
}

// formTables resolves the survey form item, so it needs the portal.
func (b *arcgisBackend) formTables(ctx context.Context) (pipeline.FormTables, error) {
	form, err := b.client.ResolveForm(ctx, b.cfg.FormItemID)
	if err != nil {
		return pipeline.FormTables{}, fmt.Errorf("resolve survey form: %w", err)
	}
	return pipeline.FormTables{
		Surveys:    form.Surveys,
		SiteRefs:   form.SiteRefs,
		ThreatRefs: form.ThreatRefs,
		Bullets:    form.Bullets,
	}, nil
}

func (b *arcgisBackend) storeTables() pipeline.StoreTables {
	l := b.cfg.Layers
	return pipeline.StoreTables{
		Sites:      b.layer(l.NHA),
		Accounts:   b.layer(l.SiteAccount),
		Bullets:    b.layer(l.TRBullets),
		References: b.layer(l.References),
		Mirror:     b.layer(l.RefMirror),
	}
}

func (b *arcgisBackend) scoringTables() pipeline.ScoringTables {
	l := b.cfg.Layers
	return pipeline.ScoringTables{
		Sites:      b.layer(l.NHA),
		Species:    b.layer(l.NHASpecies),
		EOs:        b.layer(l.EOPtReps),
		Visits:     b.layer(l.Visits),
		Features:   []domain.Table{b.layer(l.EOPoints), b.layer(l.EOLines), b.layer(l.EOPolys)},
		GRank:      b.layer(l.GRank),
		SRank:      b.layer(l.SRank),
		RankMatrix: b.layer(l.RankMatrix),
		EOWeights:  b.layer(l.EORankWeights),
	}
}

func (b *arcgisBackend) spatial() pipeline.Spatial {
	l := b.cfg.Layers
	features := []*arcgis.FeatureLayer{b.layer(l.EOPoints), b.layer(l.EOLines), b.layer(l.EOPolys)}
	return arcgis.NewSpatial(arcgis.NewGeometryService(b.client, l.Geometry), b.layer(l.NHA), features, b.layer(l.Protected), b.logger)
}

func (b *arcgisBackend) Close() error { return nil }

// sqlBackend keeps every table in one gorm database.
type sqlBackend struct {
	*sqlstore.Store
	tables map[string]*sqlstore.Table
}

func openSQLBackend(driver, dsn string, clock clockwork.Clock, logger *slog.Logger) (*sqlBackend, error) {
	store, err := sqlstore.Open(driver, dsn, clock, logger)
	if err != nil {
		return nil, err
	}
	b := &sqlBackend{Store: store, tables: make(map[string]*sqlstore.Table)}
	for _, name := range []string{
		sqlstore.TableSurveys, sqlstore.TableSiteRefs, sqlstore.TableThreatRefs, sqlstore.TableFormBullets,
		sqlstore.TableSites, sqlstore.TableSiteAccounts, sqlstore.TableBullets, sqlstore.TableReferences,
		sqlstore.TableMirror, sqlstore.TableSpecies, sqlstore.TableEOs, sqlstore.TableVisits,
		sqlstore.TableSourcePoints, sqlstore.TableSourceLines, sqlstore.TableSourcePolys,
		sqlstore.TableGRank, sqlstore.TableSRank, sqlstore.TableRankMatrix, sqlstore.TableEOWeights,
		sqlstore.TableIntersections, sqlstore.TableProtected,
	} {
		t, err := store.Table(name)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		b.tables[name] = t
	}
	return b, nil
}

func (b *sqlBackend) formTables(_ context.Context) (pipeline.FormTables, error) {
	return pipeline.FormTables{
		Surveys:    b.tables[sqlstore.TableSurveys],
		SiteRefs:   b.tables[sqlstore.TableSiteRefs],
		ThreatRefs: b.tables[sqlstore.TableThreatRefs],
		Bullets:    b.tables[sqlstore.TableFormBullets],
	}, nil
}

func (b *sqlBackend) storeTables() pipeline.StoreTables {
	return pipeline.StoreTables{
		Sites:      b.tables[sqlstore.TableSites],
		Accounts:   b.tables[sqlstore.TableSiteAccounts],
		Bullets:    b.tables[sqlstore.TableBullets],
		References: b.tables[sqlstore.TableReferences],
		Mirror:     b.tables[sqlstore.TableMirror],
	}
}

func (b *sqlBackend) scoringTables() pipeline.ScoringTables {
	return pipeline.ScoringTables{
		Sites:   b.tables[sqlstore.TableSites],
		Species: b.tables[sqlstore.TableSpecies],
		EOs:     b.tables[sqlstore.TableEOs],
		Visits:  b.tables[sqlstore.TableVisits],
		Features: []domain.Table{
			b.tables[sqlstore.TableSourcePoints],
			b.tables[sqlstore.TableSourceLines],
			b.tables[sqlstore.TableSourcePolys],
		},
		GRank:      b.tables[sqlstore.TableGRank],
		SRank:      b.tables[sqlstore.TableSRank],
		RankMatrix: b.tables[sqlstore.TableRankMatrix],
		EOWeights:  b.tables[sqlstore.TableEOWeights],
	}
}

// spatial reads precomputed overlays, since the database has no geometry engine.
func (b *sqlBackend) spatial() pipeline.Spatial {
	return pipeline.NewTableSpatial(b.tables[sqlstore.TableIntersections], b.tables[sqlstore.TableProtected])
}
