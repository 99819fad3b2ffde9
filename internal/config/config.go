// Package config charge la configuration statique du serveur:
// valeurs par défaut, puis fichier TOML, puis variables d'environnement SUBSEEK_*.
// Les réglages modifiables à chaud (identifiants, plafonds) vivent en base.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

const EnvPrefix = "SUBSEEK"

// Duration accepte "10m", "30s"... en TOML comme en variable d'environnement.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Server struct {
	Addr           string   `toml:"addr" envconfig:"ADDR"`
	DBPath         string   `toml:"db_path" envconfig:"DB_PATH"`
	RequestTimeout Duration `toml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// Log: Format vaut auto, json ou console.
type Log struct {
	Level      string `toml:"level" envconfig:"LEVEL"`
	Format     string `toml:"format" envconfig:"FORMAT"`
	File       string `toml:"file" envconfig:"FILE"`
	MaxSizeMB  int    `toml:"max_size_mb" envconfig:"MAX_SIZE_MB"`
	MaxBackups int    `toml:"max_backups" envconfig:"MAX_BACKUPS"`
	MaxAgeDays int    `toml:"max_age_days" envconfig:"MAX_AGE_DAYS"`
}

// Catalog: LoginCooldown ne sert qu'aux catalogues à login.
type Catalog struct {
	Enabled       bool     `toml:"enabled" envconfig:"ENABLED"`
	BaseURL       string   `toml:"base_url" envconfig:"BASE_URL"`
	Timeout       Duration `toml:"timeout" envconfig:"TIMEOUT"`
	Attempts      uint     `toml:"attempts" envconfig:"ATTEMPTS"`
	LoginCooldown Duration `toml:"login_cooldown" envconfig:"LOGIN_COOLDOWN"`
}

type Cache struct {
	ShowTTL       Duration `toml:"show_ttl" envconfig:"SHOW_TTL"`
	ShowJitter    Duration `toml:"show_jitter" envconfig:"SHOW_JITTER"`
	ListingTTL    Duration `toml:"listing_ttl" envconfig:"LISTING_TTL"`
	ListingJitter Duration `toml:"listing_jitter" envconfig:"LISTING_JITTER"`
}

type Config struct {
	Server   Server  `toml:"server" envconfig:"SERVER"`
	Log      Log     `toml:"log" envconfig:"LOG"`
	Addic7ed Catalog `toml:"addic7ed" envconfig:"ADDIC7ED"`
	Gestdown Catalog `toml:"gestdown" envconfig:"GESTDOWN"`
	Cache    Cache   `toml:"cache" envconfig:"CACHE"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:           "127.0.0.1:8080",
			DBPath:         "subseek.db",
			RequestTimeout: Duration(30 * time.Second),
		},
		Log: Log{
			Level:      "info",
			Format:     "auto",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Addic7ed: Catalog{
			Enabled:       true,
			BaseURL:       "https://www.addic7ed.com",
			Timeout:       Duration(30 * time.Second),
			Attempts:      3,
			LoginCooldown: Duration(time.Minute),
		},
		Gestdown: Catalog{
			Enabled:  true,
			BaseURL:  "https://api.gestdown.info",
			Timeout:  Duration(30 * time.Second),
			Attempts: 3,
		},
		Cache: Cache{
			ShowTTL:       Duration(7 * 24 * time.Hour),
			ShowJitter:    Duration(12 * time.Hour),
			ListingTTL:    Duration(10 * time.Minute),
			ListingJitter: Duration(120 * time.Second),
		},
	}
}

// Load applique path (optionnel, absent toléré) puis l'environnement sur Default().
// Renvoie aussi si le fichier existait.
func Load(path string) (Config, bool, error) {
	cfg := Default()
	exists := false

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, false, fmt.Errorf("config: read %s: %w", path, err)
		default:
			exists = true
			if err := toml.Unmarshal(b, &cfg); err != nil {
				return Config{}, true, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, exists, fmt.Errorf("config: environment: %w", err)
	}
	return cfg, exists, cfg.Validate()
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("config: server.addr is required")
	}
	if strings.TrimSpace(c.Server.DBPath) == "" {
		return errors.New("config: server.db_path is required")
	}
	if c.Cache.ShowTTL <= 0 || c.Cache.ListingTTL <= 0 {
		return errors.New("config: cache TTLs must be positive")
	}
	if c.Cache.ShowJitter < 0 || c.Cache.ListingJitter < 0 {
		return errors.New("config: cache jitters must not be negative")
	}
	switch c.Log.Format {
	case "", "auto", "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}
