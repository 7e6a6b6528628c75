// Package config loads the water-dashboard settings from file, environment and defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultDataPath is the relative location of the measurement CSV
var DefaultDataPath = filepath.Join("data", "china_water_pollution_data.csv")

// Config holds every setting shared by the bot, the dashboard and the reporter.
type Config struct {
	DataPath    string `mapstructure:"data_path" yaml:"data_path"`
	MaxStations int    `mapstructure:"max_stations" yaml:"max_stations"`

	// Dashboard
	ListenAddr  string `mapstructure:"listen_addr" yaml:"listen_addr"`
	ChartWidth  int    `mapstructure:"chart_width" yaml:"chart_width"`
	ChartHeight int    `mapstructure:"chart_height" yaml:"chart_height"`

	// Bot
	TelegramBotToken string `mapstructure:"telegram_bot_token" yaml:"telegram_bot_token"`
	OpenAIAPIKey     string `mapstructure:"openai_api_key" yaml:"openai_api_key"`

	// Exports
	ExportDir  string `mapstructure:"export_dir" yaml:"export_dir"`
	SnapshotDB string `mapstructure:"snapshot_db" yaml:"snapshot_db"`
	Schedule   string `mapstructure:"schedule" yaml:"schedule"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Load reads configuration.
// Precedence: env (WATERDASH_*) > config file > defaults. A .env file in the
// working directory is loaded into the environment first when present.
func Load(cfgFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("WATERDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_path", DefaultDataPath)
	v.SetDefault("max_stations", 6)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("chart_width", 1024)
	v.SetDefault("chart_height", 480)
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("export_dir", "exports")
	v.SetDefault("snapshot_db", filepath.Join("data", "snapshots.db"))
	v.SetDefault("schedule", "0 * * * *")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("waterdash")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// The bot keeps honoring the plain variable names it always used
	if c.TelegramBotToken == "" {
		c.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if c.OpenAIAPIKey == "" {
		c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.MaxStations <= 0 {
		c.MaxStations = 6
	}
	return &c, nil
}

// Save writes the configuration as YAML, creating the parent directory if needed.
func Save(c *Config, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
