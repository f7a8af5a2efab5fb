package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"taskline/internal/domain"
)

// EnvPrefix is accepted in front of every environment variable and wins
// over the bare name.
const EnvPrefix = "TASKLINE"

// Config is the process configuration, read once at startup.
type Config struct {
	HTTPPort         uint16 `yaml:"http_port"`
	DefaultNamespace string `yaml:"namespace"`
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`
	JWTSecret        string `yaml:"jwt_secret"`
	JournalPath      string `yaml:"journal_path"`
}

// env maps config keys to their environment variable names.
var env = map[string]string{
	"http_port":    "HTTP_PORT",
	"namespace":    "NAMESPACE",
	"log_level":    "LOG_LEVEL",
	"log_format":   "LOG_FORMAT",
	"jwt_secret":   "JWT_SECRET",
	"journal_path": "JOURNAL_PATH",
}

// Default returns the built-in configuration: port 8080, namespace
// "default", info-level text logs, no auth and no journal.
func Default() *Config {
	return &Config{
		HTTPPort:         8080,
		DefaultNamespace: "default",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.HTTPPort)
}

// Validate ensures the config can start a server.
func (c *Config) Validate() error {
	if c.HTTPPort == 0 {
		return domain.Configf("Invalid HTTP_PORT")
	}
	if strings.TrimSpace(c.DefaultNamespace) == "" {
		return domain.Configf("NAMESPACE must not be empty")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return domain.Configf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return domain.Configf("invalid LOG_FORMAT %q; use text or json", c.LogFormat)
	}
	return nil
}

// FromYAML overlays raw YAML onto the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, domain.Configf("invalid config yaml: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.Configf("read config %s: %v", path, err)
	}
	return FromYAML(data)
}

// Load resolves the configuration: defaults, then the optional YAML file at
// path, then environment variables read through v. A nil v uses a fresh
// viper instance.
func Load(v *viper.Viper, path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := FromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if v == nil {
		v = viper.New()
	}
	for key, name := range env {
		_ = v.BindEnv(key, EnvPrefix+"_"+name, name)
	}

	if v.IsSet("http_port") {
		raw := strings.TrimSpace(v.GetString("http_port"))
		port, err := strconv.ParseUint(raw, 10, 16)
		if err != nil || port == 0 {
			return nil, domain.Configf("Invalid HTTP_PORT")
		}
		cfg.HTTPPort = uint16(port)
	}
	overlay(v, "namespace", &cfg.DefaultNamespace)
	overlay(v, "log_level", &cfg.LogLevel)
	overlay(v, "log_format", &cfg.LogFormat)
	overlay(v, "jwt_secret", &cfg.JWTSecret)
	overlay(v, "journal_path", &cfg.JournalPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlay(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}
