// Package config loads the application configuration from defaults, an
// optional YAML file, an optional .env file, the environment and command-line
// flags, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/memoryrefresh/internal/duration"
	"github.com/conorfennell/memoryrefresh/internal/schedule"
	"github.com/conorfennell/memoryrefresh/internal/storage"
)

// EnvPrefix marks the environment variables read as configuration.
// Nesting is written with a double underscore: MEMORYREFRESH_DB__PATH.
const EnvPrefix = "MEMORYREFRESH_"

const delim = "."

// Config is the full application configuration.
type Config struct {
	DB struct {
		Path string `koanf:"path" validate:"required"`
	} `koanf:"db"`
	HTTP struct {
		Addr string `koanf:"addr" validate:"required,hostname_port"`
	} `koanf:"http"`
	Log struct {
		Mode string `koanf:"mode" validate:"oneof=development production dev prod"`
	} `koanf:"log"`
	Schedule struct {
		InitialDelay string  `koanf:"initial_delay" validate:"required,delay"`
		JitterSpread float64 `koanf:"jitter_spread" validate:"gte=0,lte=1"`
		// JitterSeed seeds the per-card jitter; 0 disables jitter.
		JitterSeed uint64 `koanf:"jitter_seed"`
	} `koanf:"schedule"`
	Tags struct {
		RefreshEvery int `koanf:"refresh_every" validate:"min=1"`
	} `koanf:"tags"`
	Jobs struct {
		TagRefreshInterval time.Duration `koanf:"tag_refresh_interval"`
		DueReportInterval  time.Duration `koanf:"due_report_interval"`
	} `koanf:"jobs"`
	Import struct {
		ReposDir string   `koanf:"repos_dir" validate:"required"`
		Sources  []string `koanf:"sources" validate:"dive,required"`
	} `koanf:"import"`
}

var defaults = map[string]any{
	"db.path":                   "memoryrefresh.db",
	"http.addr":                 "localhost:8080",
	"log.mode":                  "development",
	"schedule.initial_delay":    schedule.DefaultInitialDelay,
	"schedule.jitter_spread":    schedule.DefaultSpread,
	"schedule.jitter_seed":      0,
	"tags.refresh_every":        storage.DefaultRefreshEvery,
	"jobs.tag_refresh_interval": 30 * time.Minute,
	"jobs.due_report_interval":  time.Hour,
	"import.repos_dir":          "repos",
	"import.sources":            []string{},
}

// Flags returns the flag set holding every configuration key plus --config
// and --env-file.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("env-file", "", "Path to a .env file of "+EnvPrefix+" variables")
	fs.String("db.path", "memoryrefresh.db", "Path to the SQLite database file")
	fs.String("http.addr", "localhost:8080", "Address the HTTP server listens on")
	fs.String("log.mode", "development", "Log mode: development or production")
	fs.String("schedule.initial_delay", schedule.DefaultInitialDelay, "Delay given to new cards")
	fs.Float64("schedule.jitter_spread", schedule.DefaultSpread, "Fraction of an interval the due-time jitter may pull forward")
	fs.Uint64("schedule.jitter_seed", 0, "Seed of the per-card jitter; 0 disables jitter")
	fs.Int("tags.refresh_every", storage.DefaultRefreshEvery, "Tag mutations after which tag usage counts are reloaded")
	fs.Duration("jobs.tag_refresh_interval", 30*time.Minute, "How often tag usage counts are reloaded; 0 disables")
	fs.Duration("jobs.due_report_interval", time.Hour, "How often the number of due cards is logged; 0 disables")
	fs.String("import.repos_dir", "repos", "Directory for git checkouts of deck repositories")
	fs.StringSlice("import.sources", nil, "Deck directories or git URLs to import")
	return fs
}

// Load builds the configuration. fs must already be parsed; it may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(delim)
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return Config{}, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if path := configPath(fs); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if path := flagString(fs, "env-file"); path != "" {
		if err := loadDotenv(k, path); err != nil {
			return Config{}, err
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, delim, envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, delim, k), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func configPath(fs *pflag.FlagSet) string {
	if p := flagString(fs, "config"); p != "" {
		return p
	}
	return os.Getenv(EnvPrefix + "CONFIG")
}

func flagString(fs *pflag.FlagSet, name string) string {
	if fs == nil {
		return ""
	}
	v, err := fs.GetString(name)
	if err != nil {
		return ""
	}
	return v
}

// loadDotenv applies the prefixed variables of a .env file without touching
// the process environment.
func loadDotenv(k *koanf.Koanf, path string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	for name, value := range vars {
		if !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key, val := envKey(name, value)
		if key == "" {
			continue
		}
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("failed to set %s from env file: %w", key, err)
		}
	}
	return nil
}

// envKey maps MEMORYREFRESH_IMPORT__REPOS_DIR to import.repos_dir.
// List values are comma separated.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" || key == "env_file" {
		return "", nil
	}
	key = strings.ReplaceAll(key, "__", delim)
	if key == "import.sources" {
		var sources []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
		return key, sources
	}
	return key, value
}

// Validate checks cfg against its constraints.
func Validate(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("delay", func(fl validator.FieldLevel) bool {
		_, err := duration.Parse(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}

	err := v.Struct(cfg)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
