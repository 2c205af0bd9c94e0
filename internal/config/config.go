package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Debug    bool
	Server   ServerConfig
	Database DatabaseConfig
	Keycloak KeycloakConfig
	Mimir    MimirConfig
	NATS     NATSConfig
	Zoom     ZoomConfig
	Identity IdentityConfig
	Archive  ArchiveConfig
	Poller   PollerConfig
	Licenses LicensesConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

// DatabaseConfig enables the Postgres archive mirror when URL is set.
type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
	Audience     string
}

type MimirConfig struct {
	URL           string
	TenantHeader  string
	Tenant        string
	BatchSize     int
	FlushInterval time.Duration
	AuthToken     string
}

// NATSConfig enables the NATS archive mirror when URL is set.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type ZoomConfig struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	TokenTTL          time.Duration
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	PageSize          int
}

type IdentityConfig struct {
	BaseURL  string
	CacheTTL time.Duration
	Timeout  time.Duration
}

type ArchiveConfig struct {
	Dir           string
	MaxBackups    int
	MaxSizeMB     int
	RetentionDays int
}

type PollerConfig struct {
	Kind                string
	Mode                string
	Interval            time.Duration
	StartDate           string
	ClosedAfter         time.Duration
	Burst               int
	MeetingCooldown     time.Duration
	WebinarCooldown     time.Duration
	ParticipantCooldown time.Duration
	Backoff             time.Duration
}

type LicensesConfig struct {
	LowerGroup      string
	UpperGroup      string
	LowerCapacity   int
	UpperCapacity   int
	InactivityDays  int
	Months          int
	AccountSuffix   string
	UsePrimaryEmail bool
	Marker          string
}

var startDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("ZOOMDASH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Secrets are read from the plain environment names as well
	overrides := map[string]*string{
		"ZOOM_API_KEY":           &cfg.Zoom.APIKey,
		"ZOOM_API_SECRET":        &cfg.Zoom.APISecret,
		"KEYCLOAK_URL":           &cfg.Keycloak.URL,
		"KEYCLOAK_CLIENT_ID":     &cfg.Keycloak.ClientID,
		"KEYCLOAK_CLIENT_SECRET": &cfg.Keycloak.ClientSecret,
		"AUTHZSVC_ENDPOINT":      &cfg.Identity.BaseURL,
		"DATABASE_URL":           &cfg.Database.URL,
		"MIMIR_URL":              &cfg.Mimir.URL,
		"MIMIR_AUTH_TOKEN":       &cfg.Mimir.AuthToken,
		"NATS_URL":               &cfg.NATS.URL,
	}
	for name, field := range overrides {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.maxidleconns", 2)
	viper.SetDefault("keycloak.audience", "authorization-service-api")
	viper.SetDefault("mimir.tenantheader", "X-Scope-OrgID")
	viper.SetDefault("mimir.tenant", "zoom-dashboard")
	viper.SetDefault("mimir.batchsize", 1000)
	viper.SetDefault("mimir.flushinterval", "30s")
	viper.SetDefault("nats.subjectprefix", "zoom.archive")
	viper.SetDefault("zoom.baseurl", "https://api.zoom.us/v2")
	viper.SetDefault("zoom.tokenttl", "60s")
	viper.SetDefault("zoom.timeout", "30s")
	viper.SetDefault("zoom.requestspersecond", 0)
	viper.SetDefault("zoom.burst", 1)
	viper.SetDefault("zoom.pagesize", 300)
	viper.SetDefault("identity.cachettl", "30m")
	viper.SetDefault("identity.timeout", "30s")
	viper.SetDefault("archive.dir", "./logs")
	viper.SetDefault("archive.maxbackups", 20)
	viper.SetDefault("archive.maxsizemb", 1024)
	viper.SetDefault("archive.retentiondays", 2)
	viper.SetDefault("poller.kind", "meetings")
	viper.SetDefault("poller.mode", "live")
	viper.SetDefault("poller.interval", "0s")
	viper.SetDefault("poller.closedafter", "180m")
	viper.SetDefault("poller.burst", 9)
	viper.SetDefault("poller.meetingcooldown", "60s")
	viper.SetDefault("poller.webinarcooldown", "120s")
	viper.SetDefault("poller.participantcooldown", "60s")
	viper.SetDefault("poller.backoff", "60s")
	viper.SetDefault("licenses.lowercapacity", 500)
	viper.SetDefault("licenses.uppercapacity", 1000)
	viper.SetDefault("licenses.inactivitydays", 30)
	viper.SetDefault("licenses.months", 6)
	viper.SetDefault("licenses.accountsuffix", "cern.ch")
	viper.SetDefault("licenses.marker", "1000attendees")
}

// Validate rejects poller settings that would make every cycle fail.
func (p PollerConfig) Validate() error {
	switch p.Kind {
	case "meetings", "webinars":
	default:
		return fmt.Errorf("poller kind must be meetings or webinars, got %q", p.Kind)
	}
	switch p.Mode {
	case "live", "past":
	default:
		return fmt.Errorf("poller mode must be live or past, got %q", p.Mode)
	}
	if p.Interval < 0 {
		return fmt.Errorf("poller interval must not be negative")
	}
	if p.StartDate != "" {
		if !startDatePattern.MatchString(p.StartDate) {
			return fmt.Errorf("start date %q is not YYYY-MM-DD", p.StartDate)
		}
		if _, err := time.Parse(time.DateOnly, p.StartDate); err != nil {
			return fmt.Errorf("start date %q: %w", p.StartDate, err)
		}
	}
	return nil
}

// Validate checks the settings the reconciliation job cannot run without.
func (l LicensesConfig) Validate() error {
	if l.LowerGroup == "" || l.UpperGroup == "" {
		return fmt.Errorf("both license groups are required")
	}
	if l.LowerGroup == l.UpperGroup {
		return fmt.Errorf("license groups must differ")
	}
	if l.InactivityDays <= 0 || l.Months <= 0 {
		return fmt.Errorf("inactivity days and months must be positive")
	}
	if !l.UsePrimaryEmail && l.AccountSuffix == "" {
		return fmt.Errorf("account suffix is required unless primary emails are used")
	}
	return nil
}
