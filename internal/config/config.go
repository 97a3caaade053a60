// Package config loads and validates lead engine configuration via Viper.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"github.com/leadgrid/lead-engine/internal/fetch"
	"github.com/leadgrid/lead-engine/internal/score"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Targeting  TargetingConfig  `mapstructure:"targeting"`
	Scraping   ScrapingConfig   `mapstructure:"scraping"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Scoring    score.Weights    `mapstructure:"scoring"`
	DB         DBConfig         `mapstructure:"db"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FetchConfig configures the outbound fetch client.
type FetchConfig struct {
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	MaxRetries       int      `mapstructure:"max_retries"`
	BackoffInitialMs int      `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int      `mapstructure:"backoff_max_ms"`
	PerHostRPS       float64  `mapstructure:"per_host_rps"`
	PerHostBurst     int      `mapstructure:"per_host_burst"`
	UserAgents       []string `mapstructure:"user_agents"`
}

// TargetingConfig is the standing scrape matrix.
type TargetingConfig struct {
	Sources    []string `mapstructure:"sources"`
	Categories []string `mapstructure:"categories"`
	States     []string `mapstructure:"states"`
	Cities     []string `mapstructure:"cities"`
}

// ScrapingConfig governs run shape.
type ScrapingConfig struct {
	MaxPages int `mapstructure:"max_pages"`
	Workers  int `mapstructure:"workers"`
}

// EnrichmentConfig selects modules and bounds batches.
type EnrichmentConfig struct {
	Modules     []string `mapstructure:"modules"`
	Concurrency int      `mapstructure:"concurrency"`
	BatchSize   int      `mapstructure:"batch_size"`
	StaleDays   int      `mapstructure:"stale_days"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory
// store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_initial_ms", 500)
	v.SetDefault("fetch.backoff_max_ms", 10000)
	v.SetDefault("fetch.per_host_rps", 0.5)
	v.SetDefault("fetch.per_host_burst", 1)
	v.SetDefault("targeting.sources", []string{"yellowpages"})
	v.SetDefault("scraping.max_pages", 5)
	v.SetDefault("scraping.workers", 3)
	// website_discovery runs first: the website-dependent modules need it.
	v.SetDefault("enrichment.modules", []string{
		"website_discovery", "website_tech_stack", "social_media",
		"contact_enrichment", "reviews_ratings",
	})
	v.SetDefault("enrichment.concurrency", 5)
	v.SetDefault("enrichment.batch_size", 200)
	v.SetDefault("enrichment.stale_days", 30)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("logging.development", true)
	setScoringDefaults(v)
}

// setScoringDefaults seeds every scoring weight from the stock set so a
// config file can override individual weights without restating the rest.
func setScoringDefaults(v *viper.Viper) {
	w := score.DefaultWeights()

	q := map[string]int{
		"business_name":    w.Quality.BusinessName,
		"phone":            w.Quality.Phone,
		"email_generic":    w.Quality.EmailGeneric,
		"email_personal":   w.Quality.EmailPersonal,
		"full_address":     w.Quality.FullAddress,
		"owner_name":       w.Quality.OwnerName,
		"owner_email":      w.Quality.OwnerEmail,
		"owner_linkedin":   w.Quality.OwnerLinkedin,
		"owner_title":      w.Quality.OwnerTitle,
		"owner_phone":      w.Quality.OwnerPhone,
		"website":          w.Quality.Website,
		"category":         w.Quality.Category,
		"employee_count":   w.Quality.EmployeeCount,
		"year_established": w.Quality.YearEstablished,
		"google_rating":    w.Quality.GoogleRating,
		"yelp_rating":      w.Quality.YelpRating,
		"social_each":      w.Quality.SocialEach,
		"social_cap":       w.Quality.SocialCap,
	}
	for key, val := range q {
		v.SetDefault("scoring.quality."+key, val)
	}

	icp := map[string]int{
		"owner_name":              w.ICP.OwnerName,
		"owner_email":             w.ICP.OwnerEmail,
		"email_personal":          w.ICP.EmailPersonal,
		"email_any":               w.ICP.EmailAny,
		"owner_phone":             w.ICP.OwnerPhone,
		"phone":                   w.ICP.Phone,
		"owner_linkedin":          w.ICP.OwnerLinkedin,
		"rating_excellent":        w.ICP.RatingExcellent,
		"rating_great":            w.ICP.RatingGreat,
		"rating_good":             w.ICP.RatingGood,
		"rating_fair":             w.ICP.RatingFair,
		"reviews_many":            w.ICP.ReviewsMany,
		"reviews_some":            w.ICP.ReviewsSome,
		"reviews_few":             w.ICP.ReviewsFew,
		"reviews_handful":         w.ICP.ReviewsHandful,
		"age_veteran":             w.ICP.AgeVeteran,
		"age_established":         w.ICP.AgeEstablished,
		"age_young":               w.ICP.AgeYoung,
		"age_new":                 w.ICP.AgeNew,
		"bbb_accredited":          w.ICP.BBBAccredited,
		"full_address":            w.ICP.FullAddress,
		"website":                 w.ICP.Website,
		"ssl":                     w.ICP.SSL,
		"mobile_friendly":         w.ICP.MobileFriendly,
		"social_each":             w.ICP.SocialEach,
		"social_cap":              w.ICP.SocialCap,
		"google_business_profile": w.ICP.GoogleBusinessProfile,
		"ads_both":                w.ICP.AdsBoth,
		"ads_one":                 w.ICP.AdsOne,
		"no_website":              w.ICP.NoWebsite,
		"outdated_platform":       w.ICP.OutdatedPlatform,
		"low_rating":              w.ICP.LowRating,
		"no_socials":              w.ICP.NoSocials,
		"no_ads":                  w.ICP.NoAds,
	}
	for key, val := range icp {
		v.SetDefault("scoring.icp."+key, val)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return eris.New("config: server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return eris.New("config: fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.PerHostRPS <= 0 {
		return eris.New("config: fetch.per_host_rps must be > 0")
	}
	if c.Scraping.MaxPages <= 0 {
		return eris.New("config: scraping.max_pages must be > 0")
	}
	if c.Enrichment.Concurrency <= 0 {
		return eris.New("config: enrichment.concurrency must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return eris.New("config: auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchClientConfig converts the fetch section into the client's config.
func (c Config) FetchClientConfig() fetch.Config {
	return fetch.Config{
		MaxRetries:     c.Fetch.MaxRetries,
		BackoffInitial: time.Duration(c.Fetch.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(c.Fetch.BackoffMaxMs) * time.Millisecond,
		Timeout:        time.Duration(c.Fetch.TimeoutSeconds) * time.Second,
		PerHostRPS:     c.Fetch.PerHostRPS,
		PerHostBurst:   c.Fetch.PerHostBurst,
		UserAgents:     c.Fetch.UserAgents,
	}
}
