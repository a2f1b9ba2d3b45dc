package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "github.com/WordPressBugBounty/plugins-simple-tags/internal/log"
)

// FeedConfig describes a single ICS subscription.
type FeedConfig struct {
	// ID is an internal identifier used for de-dup and logging.
	ID   string `yaml:"id" json:"id"`
	URL  string `yaml:"url" json:"url"`
	Name string `yaml:"name" json:"name"`
}

// TaxonomyConfig declares a taxonomy the term tools may work on.
type TaxonomyConfig struct {
	Name  string `yaml:"name" json:"name"`
	Label string `yaml:"label" json:"label"`
	// ObjectTypes lists the post types the taxonomy is attached to.
	ObjectTypes []string `yaml:"object_types" json:"object_types"`
}

// CleanupConfig schedules the automatic removal of rarely used terms.
// An empty Schedule disables the job.
type CleanupConfig struct {
	Schedule string `yaml:"schedule" json:"schedule"`
	Taxonomy string `yaml:"taxonomy" json:"taxonomy"`
	MinUses  int    `yaml:"min_uses" json:"min_uses"`
}

// KafkaConfig enables term events. No brokers means events are dropped.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers"`
	Topic   string   `yaml:"topic" json:"topic"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the admin and API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// DataDir holds the leveldb database.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Timezone is the IANA timezone used for display and floating times.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday"; it becomes the default
	// WKST of recurrence previews.
	WeekStart string `yaml:"week_start" json:"week_start"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// PostType is the object type the term tools act on, PostTypeName its
	// plural label used in notices.
	PostType     string `yaml:"post_type" json:"post_type"`
	PostTypeName string `yaml:"post_type_name" json:"post_type_name"`

	Taxonomies      []TaxonomyConfig `yaml:"taxonomies" json:"taxonomies"`
	DefaultTaxonomy string           `yaml:"default_taxonomy" json:"default_taxonomy"`

	// NonceSecret signs admin form nonces. Generated on first run.
	NonceSecret string `yaml:"nonce_secret" json:"-"`

	AutolinksPerPage int `yaml:"autolinks_per_page" json:"autolinks_per_page"`

	Cleanup CleanupConfig `yaml:"cleanup" json:"cleanup"`

	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for refreshing feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the number of future days /api/events covers by
	// default.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	Kafka KafkaConfig `yaml:"kafka" json:"kafka"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"-"`
}

func defaultTaxonomies() []TaxonomyConfig {
	return []TaxonomyConfig{
		{Name: "post_tag", Label: "Tags", ObjectTypes: []string{"post"}},
		{Name: "category", Label: "Categories", ObjectTypes: []string{"post"}},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           "127.0.0.1:8080",
		DataDir:          "./var/taxopress",
		Timezone:         "UTC",
		WeekStart:        "monday",
		LogLevel:         "info",
		PostType:         "post",
		PostTypeName:     "posts",
		Taxonomies:       defaultTaxonomies(),
		DefaultTaxonomy:  "post_tag",
		AutolinksPerPage: 20,
		Cleanup:          CleanupConfig{Taxonomy: "post_tag", MinUses: 1},
		Feeds:            []FeedConfig{},
		RefreshCron:      "*/15 * * * *",
		HorizonDays:      7,
		Kafka:            KafkaConfig{Topic: "taxopress.terms"},
	}
}

// Normalize fills in missing/zero values with defaults so partially filled
// configs still behave.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.PostType == "" {
		c.PostType = d.PostType
	}
	if c.PostTypeName == "" {
		c.PostTypeName = d.PostTypeName
	}
	if len(c.Taxonomies) == 0 {
		c.Taxonomies = d.Taxonomies
	}
	for i := range c.Taxonomies {
		if c.Taxonomies[i].Label == "" {
			c.Taxonomies[i].Label = c.Taxonomies[i].Name
		}
		if len(c.Taxonomies[i].ObjectTypes) == 0 {
			c.Taxonomies[i].ObjectTypes = []string{c.PostType}
		}
	}
	if c.DefaultTaxonomy == "" {
		c.DefaultTaxonomy = c.Taxonomies[0].Name
	}
	if c.AutolinksPerPage <= 0 {
		c.AutolinksPerPage = d.AutolinksPerPage
	}
	if c.Cleanup.Taxonomy == "" {
		c.Cleanup.Taxonomy = c.DefaultTaxonomy
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		if c.Feeds[i].ID == "" {
			c.Feeds[i].ID = fmt.Sprintf("feed-%d", i+1)
		}
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = d.Kafka.Topic
	}
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if !c.HasTaxonomy(c.DefaultTaxonomy) {
		errs = append(errs, fmt.Errorf("default_taxonomy %q is not declared", c.DefaultTaxonomy))
	}
	if c.Cleanup.Schedule != "" {
		if _, err := cron.ParseStandard(c.Cleanup.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("cleanup.schedule: %w", err))
		}
		if c.Cleanup.MinUses < 1 || c.Cleanup.MinUses > 100 {
			errs = append(errs, fmt.Errorf("cleanup.min_uses must be within 1..100, got %d", c.Cleanup.MinUses))
		}
		if !c.HasTaxonomy(c.Cleanup.Taxonomy) {
			errs = append(errs, fmt.Errorf("cleanup.taxonomy %q is not declared", c.Cleanup.Taxonomy))
		}
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh: %w", err))
	}
	seen := map[string]bool{}
	for _, f := range c.Feeds {
		if f.URL == "" {
			errs = append(errs, fmt.Errorf("feed %q has no url", f.ID))
		}
		if seen[f.ID] {
			errs = append(errs, fmt.Errorf("duplicate feed id %q", f.ID))
		}
		seen[f.ID] = true
	}
	return errors.Join(errs...)
}

// HasTaxonomy reports whether name is declared.
func (c *Config) HasTaxonomy(name string) bool {
	_, ok := c.Taxonomy(name)
	return ok
}

func (c *Config) Taxonomy(name string) (TaxonomyConfig, bool) {
	for _, t := range c.Taxonomies {
		if t.Name == name {
			return t, true
		}
	}
	return TaxonomyConfig{}, false
}

// TaxonomyLabels maps taxonomy names to labels.
func (c *Config) TaxonomyLabels() map[string]string {
	out := make(map[string]string, len(c.Taxonomies))
	for _, t := range c.Taxonomies {
		out[t.Name] = t.Label
	}
	return out
}

// Location returns the configured timezone, or UTC if it does not load.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config (with a fresh nonce secret)
// is written with 0600 permissions and returned. A config without a nonce
// secret gets one and is saved back.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg := DefaultConfig()
		if cfg.NonceSecret, err = newSecret(); err != nil {
			return nil, err
		}
		if err := Save(path, cfg); err != nil {
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, err
		}
		appLog.Info("default config written", "path", path)
		return cfg, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()
	if cfg.NonceSecret == "" {
		if cfg.NonceSecret, err = newSecret(); err != nil {
			return nil, err
		}
		if err := Save(path, &cfg); err != nil {
			return &cfg, err
		}
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".taxopress-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
