package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keeps runtime settings for the planner, its bot and its scheduler.
type Config struct {
	TelegramToken string
	DatabaseURL   string
	MongoDatabase string
	CachePath     string

	PhotoDir        string
	PhotoSearchDirs []string
	Location        *time.Location

	RemoteTimeout        time.Duration
	RemoteMaxRetries     int
	RemoteBaseDelay      time.Duration
	NetworkCheckInterval time.Duration

	GenerateSchedule string
	ReportInterval   time.Duration

	LogFile      string
	LogMaxSizeMB int

	// User is the planner user the CLI acts as.
	User string
}

// IsMongo reports whether the remote store is a MongoDB deployment.
func (c Config) IsMongo() bool {
	return strings.HasPrefix(c.DatabaseURL, "mongodb://") || strings.HasPrefix(c.DatabaseURL, "mongodb+srv://")
}

// RequireTelegram fails when the bot is started without a token.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	return nil
}

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"telegram_token": "TELEGRAM_TOKEN",
		"database_url":   "DATABASE_URL",
		"report_hours":   "REPORT_INTERVAL_HOURS",
	} {
		if err := v.BindEnv(key, "GARDEN_"+strings.ToUpper(key), env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	loc, err := loadLocation(v.GetString("timezone"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		TelegramToken:        strings.TrimSpace(v.GetString("telegram_token")),
		DatabaseURL:          strings.TrimSpace(v.GetString("database_url")),
		MongoDatabase:        v.GetString("mongo_database"),
		CachePath:            v.GetString("cache_path"),
		PhotoDir:             v.GetString("photo_dir"),
		PhotoSearchDirs:      v.GetStringSlice("photo_search_dirs"),
		Location:             loc,
		RemoteTimeout:        v.GetDuration("remote_timeout"),
		RemoteMaxRetries:     v.GetInt("remote_max_retries"),
		RemoteBaseDelay:      v.GetDuration("remote_base_delay"),
		NetworkCheckInterval: v.GetDuration("network_check_interval"),
		GenerateSchedule:     v.GetString("generate_schedule"),
		ReportInterval:       v.GetDuration("report_interval"),
		LogFile:              v.GetString("log_file"),
		LogMaxSizeMB:         v.GetInt("log_max_size_mb"),
		User:                 v.GetString("user"),
	}

	if hours := parseInterval(strings.TrimSpace(v.GetString("report_hours"))); hours > 0 {
		cfg.ReportInterval = hours
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "garden_planner.db"
	}
	if cfg.RemoteMaxRetries < 0 {
		return cfg, fmt.Errorf("remote_max_retries must not be negative")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "garden_planner.db")
	v.SetDefault("mongo_database", "garden")
	v.SetDefault("cache_path", "data/garden-cache.db")
	v.SetDefault("photo_dir", "data/photos")
	v.SetDefault("photo_search_dirs", []string{})
	v.SetDefault("timezone", "Local")
	v.SetDefault("remote_timeout", 10*time.Second)
	v.SetDefault("remote_max_retries", 2)
	v.SetDefault("remote_base_delay", 500*time.Millisecond)
	v.SetDefault("network_check_interval", 30*time.Second)
	v.SetDefault("generate_schedule", "0 0 6 * * *")
	v.SetDefault("report_interval", 5*time.Hour)
	v.SetDefault("log_max_size_mb", 10)
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
