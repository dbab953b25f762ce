package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"csv-generator/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	JWT           JWTConfig           `yaml:"jwt"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Report        ReportConfig        `yaml:"report"`
}

type ServerConfig struct {
	Listen      string `yaml:"listen" validate:"required"`
	LogDir      string `yaml:"log_dir"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	MetricsPath string `yaml:"metrics_path" validate:"omitempty,startswith=/"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"` // empty: bearer tokens are ignored
}

type ElasticsearchConfig struct {
	Addresses   []string `yaml:"addresses" validate:"required,min=1,dive,url"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	APIKey      string   `yaml:"api_key"`
	KibanaIndex string   `yaml:"kibana_index" validate:"required"` // saved searches & index patterns
	ReportIndex string   `yaml:"report_index" validate:"required"` // report jobs
}

type ReportConfig struct {
	MaxRows         int64         `yaml:"max_rows" validate:"gt=0"`
	PageSize        int           `yaml:"page_size" validate:"gt=0,lte=10000"`
	ScrollKeepAlive time.Duration `yaml:"scroll_keep_alive" validate:"required"`
	ScrollBatch     int64         `yaml:"scroll_batch" validate:"gt=0"`
	MaxConcurrent   int64         `yaml:"max_concurrent" validate:"gt=0"`
	HistorySize     int           `yaml:"history_size" validate:"gt=0"`
	RetentionHours  int           `yaml:"retention_hours" validate:"gte=0"` // 0 keeps jobs forever
	PurgeSchedule   string        `yaml:"purge_schedule"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:      ":8080",
			LogDir:      "./logs",
			LogLevel:    "info",
			MetricsPath: "/metrics",
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses:   []string{"http://localhost:9200"},
			KibanaIndex: ".kibana",
			ReportIndex: "csvgenerator",
		},
		Report: ReportConfig{
			MaxRows:         100000,
			PageSize:        1000,
			ScrollKeepAlive: time.Minute,
			ScrollBatch:     10000,
			MaxConcurrent:   4,
			HistorySize:     10,
			PurgeSchedule:   "@hourly",
		},
	}
}

var validate = validator.New()

// Load reads file (relative to the project root) over the defaults, then
// applies .env and CSVGEN_* environment overrides and validates the result.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(utils.ResolvePath(".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg := Default()
	data, err := os.ReadFile(utils.ResolvePath(file))
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RetentionEnabled reports whether old report jobs should be purged.
func (c *Config) RetentionEnabled() bool {
	return c.Report.RetentionHours > 0 && c.Report.PurgeSchedule != ""
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("CSVGEN_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("CSVGEN_LOG_DIR"); v != "" {
		cfg.Server.LogDir = v
	}
	if v := os.Getenv("CSVGEN_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("CSVGEN_JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("CSVGEN_ES_ADDRESSES"); v != "" {
		var addrs []string
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
		cfg.Elasticsearch.Addresses = addrs
	}
	if v := os.Getenv("CSVGEN_ES_USERNAME"); v != "" {
		cfg.Elasticsearch.Username = v
	}
	if v := os.Getenv("CSVGEN_ES_PASSWORD"); v != "" {
		cfg.Elasticsearch.Password = v
	}
	if v := os.Getenv("CSVGEN_ES_API_KEY"); v != "" {
		cfg.Elasticsearch.APIKey = v
	}
	if v := os.Getenv("CSVGEN_MAX_CONCURRENT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CSVGEN_MAX_CONCURRENT: %w", err)
		}
		cfg.Report.MaxConcurrent = n
	}
	return nil
}
