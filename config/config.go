package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime settings for a metro collection run.
type Config struct {
	// SearchBaseURL is the listings source host used for bulk ZIP searches.
	SearchBaseURL string
	// DetailBaseURL is the host serving per-listing detail payloads. Usually
	// the same as SearchBaseURL but split out so tests can point them at
	// separate mock servers.
	DetailBaseURL string

	ReferencePath string // geo reference table (ZIP, METRO_NAME, STATE_ID, LSAD)
	OutputDir     string
	CacheDir      string

	// MinDelay is the floor of the politeness pause before each outbound
	// request to the listings host. RandomDelay is added on top as jitter.
	MinDelay    time.Duration
	RandomDelay time.Duration

	SearchTimeout time.Duration
	DetailTimeout time.Duration

	// PropertyTypeTarget filters raw search rows before they enter the
	// pipeline, e.g. "Single Family Residential".
	PropertyTypeTarget string

	// MaxResultsPerZIP mirrors the source-side row cap per query.
	MaxResultsPerZIP int

	// UseCachedSearch skips the search phase and reloads the combined
	// raw-results file written by a previous run.
	UseCachedSearch bool

	OutputFormat string // csv, jsonl, or dual
	MetricsAddr  string
	Verbose      bool

	EIAAPIKey    string
	CensusAPIKey string
}

// DefaultConfig returns conservative defaults tuned for politeness toward the
// listings source.
func DefaultConfig() *Config {
	return &Config{
		SearchBaseURL:      "https://www.redfin.com",
		DetailBaseURL:      "https://www.redfin.com",
		ReferencePath:      "augmenting_data/master.csv",
		OutputDir:          "output",
		CacheDir:           "output/cache",
		MinDelay:           1500 * time.Millisecond,
		RandomDelay:        2500 * time.Millisecond,
		SearchTimeout:      35 * time.Second,
		DetailTimeout:      25 * time.Second,
		PropertyTypeTarget: "Single Family Residential",
		MaxResultsPerZIP:   350,
		OutputFormat:       "csv",
	}
}

// Validate ensures all configuration values are coherent. Invalid
// configuration is fatal at startup; the pipeline never starts with a bad
// config.
func (c *Config) Validate() error {
	if err := validateBaseURL("search base URL", c.SearchBaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("detail base URL", c.DetailBaseURL); err != nil {
		return err
	}

	if c.ReferencePath == "" {
		return fmt.Errorf("reference table path cannot be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.MinDelay < 500*time.Millisecond {
		return fmt.Errorf("politeness delay floor is 500ms, got %s", c.MinDelay)
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("search timeout must be positive")
	}
	if c.DetailTimeout <= 0 {
		return fmt.Errorf("detail timeout must be positive")
	}
	if c.PropertyTypeTarget == "" {
		return fmt.Errorf("property type target cannot be empty")
	}
	if c.MaxResultsPerZIP <= 0 {
		return fmt.Errorf("max results per ZIP must be positive")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "jsonl" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, jsonl, or dual")
	}
	return nil
}

func validateBaseURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

// LoadSecrets reads collaborator API keys from the environment, loading a
// .env file first if one exists. Missing keys are not an error here;
// collaborators that need them fail at construction.
func (c *Config) LoadSecrets() {
	_ = godotenv.Load()
	if v, ok := EnvString("EIA_API_KEY"); ok {
		c.EIAAPIKey = v
	}
	if v, ok := EnvString("CENSUS_API_KEY"); ok {
		c.CensusAPIKey = v
	}
}

// EnvString returns the named environment variable and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses the named environment variable as an int.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}
