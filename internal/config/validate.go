package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverInMemory = "in-memory"
)

// Classifier authority rules.
const (
	AuthorityFlair   = "flair"
	AuthorityAccount = "account"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.Storage.validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Engine.validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if !slices.Contains([]string{AuthorityFlair, AuthorityAccount}, c.Classifier.Authority) {
		return fmt.Errorf("classifier.authority must be %q or %q (got %q)", AuthorityFlair, AuthorityAccount, c.Classifier.Authority)
	}
	if c.Reddit.RequestsPerMinute <= 0 {
		return fmt.Errorf("reddit.requests_per_minute must be > 0 (got %d)", c.Reddit.RequestsPerMinute)
	}
	return nil
}

// RequireBot checks the credentials needed to run the bot itself. Read-only
// commands such as stats work without them.
func (c *Config) RequireBot() error {
	var errs []error
	required := map[string]string{
		"reddit.client_id":      c.Reddit.ClientID,
		"reddit.secret":         c.Reddit.Secret,
		"reddit.username":       c.Reddit.Username,
		"reddit.password":       c.Reddit.Password,
		"matrix.homeserver_url": c.Matrix.HomeserverURL,
		"matrix.user_id":        c.Matrix.UserID,
		"matrix.access_token":   c.Matrix.AccessToken,
	}
	keys := make([]string, 0, len(required))
	for k := range required {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if strings.TrimSpace(required[k]) == "" {
			errs = append(errs, fmt.Errorf("%s is required", k))
		}
	}
	if len(c.Matrix.Rooms) == 0 {
		errs = append(errs, errors.New("matrix.rooms must list at least one room"))
	}
	return errors.Join(errs...)
}

func (s *StorageConfig) validate() error {
	switch s.Driver {
	case DriverSQLite:
		s.SQLitePath = NormalizeSQLitePath(s.SQLitePath)
	case DriverPostgres:
		if s.DSN == "" {
			return errors.New("dsn (DATABASE_URL) must be set for postgres storage")
		}
	case DriverInMemory:
	default:
		return fmt.Errorf("driver must be one of sqlite, postgres, in-memory (got %q)", s.Driver)
	}
	return nil
}

// NormalizeSQLitePath replaces spaces and appends the .sqlite suffix.
func NormalizeSQLitePath(path string) string {
	path = strings.ReplaceAll(strings.TrimSpace(path), " ", "_")
	if path == "" {
		path = "redditrequest"
	}
	if !strings.HasSuffix(path, ".sqlite") {
		path += ".sqlite"
	}
	return path
}

func (e *EngineConfig) validate() error {
	if e.DiscoveryInterval <= 0 || e.ReconcileInterval <= 0 {
		return fmt.Errorf("intervals must be > 0 (got %s, %s)", e.DiscoveryInterval, e.ReconcileInterval)
	}
	if e.FirstBatch <= 0 || e.Batch <= 0 {
		return fmt.Errorf("batch sizes must be > 0 (got %d, %d)", e.FirstBatch, e.Batch)
	}
	if e.MinPostAgeHours < 0 {
		return fmt.Errorf("min_post_age must be >= 0 (got %d)", e.MinPostAgeHours)
	}
	if e.MinPostAge() >= e.MaxPostAge() {
		return fmt.Errorf("min_post_age (%s) must be less than max_post_age (%s)", e.MinPostAge(), e.MaxPostAge())
	}
	return nil
}
