// Package config reads run settings from FRAUDDWH_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"frauddwh/internal/blob"
	"frauddwh/internal/staging"
	"frauddwh/internal/warehouse"
)

// Prefix is shared by every variable this package reads.
const Prefix = "FRAUDDWH_"

// Config holds the settings of one pipeline invocation.
type Config struct {
	Env               string
	LogLevel          string
	DataDir           string
	SQLitePath        string
	BatchDate         string // ddmmyyyy, detected from DataDir when empty
	SourceScript      string
	Parallel          bool
	Archive           blob.Config
	ReportPostgresDSN string
	MetricsTextfile   string
}

// Default returns the settings used when no variable is set.
func Default() Config {
	return Config{
		Env:          "production",
		LogLevel:     "info",
		DataDir:      ".",
		SQLitePath:   warehouse.DefaultPath,
		SourceScript: staging.DefaultSourceScript,
		Parallel:     true,
		Archive: blob.Config{
			Driver: blob.DriverFilesystem,
			FSRoot: "archive",
		},
	}
}

// Load overlays the environment on Default.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	str := func(name string, dst *string) {
		if v, ok := lookup(Prefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(Prefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", Prefix, name, err)
		}
		*dst = b
		return nil
	}

	str("ENV", &cfg.Env)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("DATA_DIR", &cfg.DataDir)
	str("SQLITE_PATH", &cfg.SQLitePath)
	str("BATCH_DATE", &cfg.BatchDate)
	str("SOURCE_SCRIPT", &cfg.SourceScript)
	str("REPORT_POSTGRES_DSN", &cfg.ReportPostgresDSN)
	str("METRICS_TEXTFILE", &cfg.MetricsTextfile)
	if err := boolean("PARALLEL", &cfg.Parallel); err != nil {
		return Config{}, err
	}

	var driver string
	str("ARCHIVE_DRIVER", &driver)
	if driver != "" {
		cfg.Archive.Driver = blob.Driver(strings.ToLower(driver))
	}
	str("ARCHIVE_FS_ROOT", &cfg.Archive.FSRoot)
	str("ARCHIVE_S3_BUCKET", &cfg.Archive.S3.Bucket)
	str("ARCHIVE_S3_REGION", &cfg.Archive.S3.Region)
	str("ARCHIVE_S3_ENDPOINT", &cfg.Archive.S3.Endpoint)
	str("ARCHIVE_S3_PREFIX", &cfg.Archive.S3.Prefix)
	if err := boolean("ARCHIVE_S3_PATH_STYLE", &cfg.Archive.S3.PathStyle); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	switch c.Archive.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Archive.S3.Bucket == "" {
			return fmt.Errorf("%sARCHIVE_S3_BUCKET required for the s3 archive driver", Prefix)
		}
	default:
		return fmt.Errorf("%sARCHIVE_DRIVER: unknown driver %q", Prefix, c.Archive.Driver)
	}
	if c.BatchDate != "" {
		if _, err := staging.NormalizeDateToken(c.BatchDate); err != nil {
			return fmt.Errorf("%sBATCH_DATE: %w", Prefix, err)
		}
	}
	return nil
}
