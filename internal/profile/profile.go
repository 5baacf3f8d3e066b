package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is configuration to start the reminder service.
type Profile struct {
	// Server
	Mode     string
	Addr     string
	Port     int
	Data     string
	Driver   string // sqlite, postgres or memory
	DSN      string
	Version  string
	LogLevel string

	// Geocoding and nearby search
	NominatimURL   string
	OverpassURL    string
	UserAgent      string
	GeocodeTimeout time.Duration
	GeocodeRPS     float64

	// Resolver caches
	CacheTTL       time.Duration
	CacheCapacity  int
	CacheSweepSpec string

	// Trigger registry
	TriggerCeiling   int
	CeilingPolicy    string // evict or deny
	RegisterAttempts int

	// Orchestrator
	Cooldown        time.Duration
	PositionTimeout time.Duration
	PositionMaxWait time.Duration
	SavedPlaceLimit int

	// Notification delivery
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   int64
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPFrom         string
	SMTPTo           []string
}

const (
	CeilingPolicyEvict = "evict"
	CeilingPolicyDeny  = "deny"
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvOrDefaultDuration accepts Go duration strings ("30m", "10s").
func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Invalid duration, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}

// FromEnv loads the engine configuration from environment variables.
// Server fields (mode, port, driver, DSN) are bound by the command line.
func (p *Profile) FromEnv() {
	p.LogLevel = getEnvOrDefault("GEOMINDER_LOG_LEVEL", p.LogLevel)

	p.NominatimURL = getEnvOrDefault("GEOMINDER_NOMINATIM_URL", "https://nominatim.openstreetmap.org")
	p.OverpassURL = getEnvOrDefault("GEOMINDER_OVERPASS_URL", "https://overpass-api.de/api/interpreter")
	p.UserAgent = getEnvOrDefault("GEOMINDER_USER_AGENT", "geominder/1.0")
	p.GeocodeTimeout = getEnvOrDefaultDuration("GEOMINDER_GEOCODE_TIMEOUT", 10*time.Second)
	p.GeocodeRPS = getEnvOrDefaultFloat("GEOMINDER_GEOCODE_RPS", 1)

	p.CacheTTL = getEnvOrDefaultDuration("GEOMINDER_CACHE_TTL", 30*time.Minute)
	p.CacheCapacity = getEnvOrDefaultInt("GEOMINDER_CACHE_CAPACITY", 512)
	p.CacheSweepSpec = getEnvOrDefault("GEOMINDER_CACHE_SWEEP", "@every 10m")

	p.TriggerCeiling = getEnvOrDefaultInt("GEOMINDER_TRIGGER_CEILING", 100)
	p.CeilingPolicy = strings.ToLower(getEnvOrDefault("GEOMINDER_CEILING_POLICY", CeilingPolicyEvict))
	p.RegisterAttempts = getEnvOrDefaultInt("GEOMINDER_REGISTER_ATTEMPTS", 3)

	p.Cooldown = getEnvOrDefaultDuration("GEOMINDER_COOLDOWN", 30*time.Minute)
	p.PositionTimeout = getEnvOrDefaultDuration("GEOMINDER_POSITION_TIMEOUT", 10*time.Second)
	p.PositionMaxWait = getEnvOrDefaultDuration("GEOMINDER_POSITION_MAX_WAIT", 5*time.Minute)
	p.SavedPlaceLimit = getEnvOrDefaultInt("GEOMINDER_SAVED_PLACE_LIMIT", 20)

	p.WebhookURL = getEnvOrDefault("GEOMINDER_WEBHOOK_URL", "")
	p.TelegramBotToken = getEnvOrDefault("GEOMINDER_TELEGRAM_BOT_TOKEN", "")
	p.TelegramChatID = getEnvOrDefaultInt64("GEOMINDER_TELEGRAM_CHAT_ID", 0)
	p.SMTPHost = getEnvOrDefault("GEOMINDER_SMTP_HOST", "")
	p.SMTPPort = getEnvOrDefaultInt("GEOMINDER_SMTP_PORT", 587)
	p.SMTPUsername = getEnvOrDefault("GEOMINDER_SMTP_USERNAME", "")
	p.SMTPPassword = getEnvOrDefault("GEOMINDER_SMTP_PASSWORD", "")
	p.SMTPFrom = getEnvOrDefault("GEOMINDER_SMTP_FROM", "")
	p.SMTPTo = splitList(getEnvOrDefault("GEOMINDER_SMTP_TO", ""))

	if p.CeilingPolicy != CeilingPolicyEvict && p.CeilingPolicy != CeilingPolicyDeny {
		slog.Warn("Unknown ceiling policy, using default: evict", "policy", p.CeilingPolicy)
		p.CeilingPolicy = CeilingPolicyEvict
	}
}

// splitList splits a comma separated value, dropping empty items.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes the profile and rejects values the engine cannot run with.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	switch p.Driver {
	case "sqlite", "postgres", "memory":
	case "":
		p.Driver = "sqlite"
	default:
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.TriggerCeiling <= 0 {
		return errors.Errorf("trigger ceiling must be positive, got %d", p.TriggerCeiling)
	}
	if p.RegisterAttempts <= 0 {
		return errors.Errorf("register attempts must be positive, got %d", p.RegisterAttempts)
	}
	if p.SavedPlaceLimit <= 0 {
		return errors.Errorf("saved place limit must be positive, got %d", p.SavedPlaceLimit)
	}
	if p.CacheTTL <= 0 || p.Cooldown <= 0 || p.GeocodeTimeout <= 0 {
		return errors.New("cache TTL, cooldown and geocode timeout must be positive")
	}

	if p.Driver == "memory" {
		return nil
	}
	if p.Driver == "postgres" {
		if p.DSN == "" {
			return errors.New("postgres driver requires a DSN")
		}
		return nil
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "geominder")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/geominder"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("geominder_%s.db", p.Mode))
	}
	return nil
}
