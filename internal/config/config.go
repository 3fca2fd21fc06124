package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Store drivers.
const (
	DriverArcGIS   = "arcgis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Layers holds the feature service endpoints. Values that are not absolute
// URLs are resolved against GISServerURL.
type Layers struct {
	NHA           string
	SiteAccount   string
	TRBullets     string
	References    string
	RefMirror     string
	EOPoints      string
	EOLines       string
	EOPolys       string
	EOPtReps      string
	Visits        string
	NHASpecies    string
	GRank         string
	SRank         string
	RankMatrix    string
	EORankWeights string
	Protected     string
	Geometry      string
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	StoreDriver string
	SQLitePath  string
	PostgresDSN string

	GISServerURL   string
	PortalURL      string
	PortalUsername string
	PortalPassword string
	FormItemID     string
	GISTimeout     time.Duration
	Layers         Layers

	ZoteroBaseURL     string
	ZoteroLibraryType string
	ZoteroLibraryID   string
	ZoteroAPIKey      string
	CitationDelay     time.Duration

	PhotoStagingDir string
	ScoreExportPath string

	KafkaBrokers       []string
	KafkaScoreTopic    string
	BatchSize          int
	BatchFlushInterval time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	RunInterval     time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	gisTimeout, err := parseDuration("GIS_TIMEOUT", "60s", false)
	if err != nil {
		return nil, err
	}
	citationDelay, err := parseDuration("CITATION_DELAY", "5s", true)
	if err != nil {
		return nil, err
	}
	runInterval, err := parseDuration("RUN_INTERVAL", "0s", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		StoreDriver: strings.ToLower(sharedcfg.EnvOrDefault("STORE_DRIVER", DriverSQLite)),
		SQLitePath:  sharedcfg.EnvOrDefault("SQLITE_PATH", "nha-sync.db"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		GISServerURL:   strings.TrimRight(sharedcfg.EnvOrDefault("GIS_SERVER_URL", "https://gis.waterlandlife.org/server/rest/services"), "/"),
		PortalURL:      strings.TrimRight(sharedcfg.EnvOrDefault("PORTAL_URL", "https://gis.waterlandlife.org/portal"), "/"),
		PortalUsername: os.Getenv("PORTAL_USERNAME"),
		PortalPassword: os.Getenv("PORTAL_PASSWORD"),
		FormItemID:     sharedcfg.EnvOrDefault("FORM_ITEM_ID", "3360207b68a94e03b125b14804fcf906"),
		GISTimeout:     gisTimeout,

		ZoteroBaseURL:     strings.TrimRight(sharedcfg.EnvOrDefault("ZOTERO_BASE_URL", "https://api.zotero.org"), "/"),
		ZoteroLibraryType: sharedcfg.EnvOrDefault("ZOTERO_LIBRARY_TYPE", "groups"),
		ZoteroLibraryID:   sharedcfg.EnvOrDefault("ZOTERO_LIBRARY_ID", "2166223"),
		ZoteroAPIKey:      os.Getenv("ZOTERO_API_KEY"),
		CitationDelay:     citationDelay,

		PhotoStagingDir: sharedcfg.EnvOrDefault("PHOTO_STAGING_DIR", os.TempDir()),
		ScoreExportPath: sharedcfg.EnvOrDefault("SCORE_EXPORT_PATH", "nha_prioritization.csv"),

		KafkaBrokers:       sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaScoreTopic:    sharedcfg.EnvOrDefault("KAFKA_SCORE_TOPIC", "nha-priority-scores"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		RunInterval:     runInterval,
	}
	cfg.Layers = loadLayers(cfg.GISServerURL)

	switch cfg.StoreDriver {
	case DriverArcGIS, DriverSQLite:
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("POSTGRES_DSN is required when STORE_DRIVER is postgres")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
	if (cfg.PortalUsername == "") != (cfg.PortalPassword == "") {
		return nil, errors.New("PORTAL_USERNAME and PORTAL_PASSWORD must be set together")
	}

	return cfg, nil
}

func loadLayers(base string) Layers {
	layer := func(key, def string) string {
		return resolveURL(base, sharedcfg.EnvOrDefault(key, def))
	}
	return Layers{
		NHA:           layer("NHA_LAYER", "PNHP/NHA_EDIT/FeatureServer/0"),
		SiteAccount:   layer("SITE_ACCOUNT_LAYER", "PNHP/NHA_EDIT/FeatureServer/5"),
		TRBullets:     layer("TR_BULLETS_LAYER", "PNHP/NHA_EDIT/FeatureServer/7"),
		References:    layer("REFERENCES_LAYER", "PNHP/NHA_EDIT/FeatureServer/4"),
		NHASpecies:    layer("NHA_SPECIES_LAYER", "PNHP/NHA_EDIT/FeatureServer/6"),
		RefMirror:     layer("REF_MIRROR_LAYER", "Hosted/NHA_Reference_Layers/FeatureServer/5"),
		EORankWeights: layer("EORANK_WEIGHTS_LAYER", "Hosted/NHA_Reference_Layers/FeatureServer/1"),
		RankMatrix:    layer("RANK_MATRIX_LAYER", "Hosted/NHA_Reference_Layers/FeatureServer/2"),
		GRank:         layer("GRANK_LAYER", "Hosted/NHA_Reference_Layers/FeatureServer/3"),
		SRank:         layer("SRANK_LAYER", "Hosted/NHA_Reference_Layers/FeatureServer/4"),
		EOPtReps:      layer("EO_PTREPS_LAYER", "PNHP/Biotics_READ_ONLY/FeatureServer/0"),
		EOPoints:      layer("EO_POINTS_LAYER", "PNHP/Biotics_READ_ONLY/FeatureServer/2"),
		EOLines:       layer("EO_LINES_LAYER", "PNHP/Biotics_READ_ONLY/FeatureServer/3"),
		EOPolys:       layer("EO_POLYS_LAYER", "PNHP/Biotics_READ_ONLY/FeatureServer/4"),
		Visits:        layer("VISITS_LAYER", "PNHP/Biotics_READ_ONLY/FeatureServer/7"),
		Protected:     layer("PROTECTED_LANDS_URL", "BaseLayers/We_Conserve_PA_Protected_Lands/FeatureServer/0"),
		Geometry:      layer("GEOMETRY_SERVICE_URL", "Utilities/Geometry/GeometryServer"),
	}
}

func resolveURL(base, v string) string {
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return v
	}
	return base + "/" + strings.TrimLeft(v, "/")
}

// parseDuration reads a duration variable. allowZero permits "0s" to mean
// disabled.
func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
