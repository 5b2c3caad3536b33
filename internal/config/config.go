package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes Go duration strings.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts "20s" style strings.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

type Config struct {
	Server struct {
		Host            string   `yaml:"host"`
		Port            int      `yaml:"port"`
		ShutdownTimeout Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`
	Control struct {
		Path           string  `yaml:"path"`
		MaxMessageSize int64   `yaml:"maxMessageSize"`
		SendBuffer     int     `yaml:"sendBuffer"`
		RateLimit      float64 `yaml:"rateLimit"`
		RateBurst      int     `yaml:"rateBurst"`
	} `yaml:"control"`
	Upstream struct {
		URL            string   `yaml:"url"`
		ReconnectDelay Duration `yaml:"reconnectDelay"`
		RequestTimeout Duration `yaml:"requestTimeout"`
		ConnectTimeout Duration `yaml:"connectTimeout"`
		WriteTimeout   Duration `yaml:"writeTimeout"`
		ShutdownGrace  Duration `yaml:"shutdownGrace"`
		SearchLimit    int      `yaml:"searchLimit"`
	} `yaml:"upstream"`
	MCP struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"mcp"`
	Maintenance struct {
		CleanupSchedule string `yaml:"cleanupSchedule"`
	} `yaml:"maintenance"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// LoadFromBytes loads configuration from YAML bytes with environment variable expansion
func LoadFromBytes(data []byte) (Config, error) {
	var c Config
	if err := c.Merge(data); err != nil {
		return c, err
	}
	return c, nil
}

// Merge overlays YAML bytes onto c. Keys absent from data keep their value.
func (c *Config) Merge(data []byte) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// MergeFile overlays the YAML file at path onto c.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return c.Merge(data)
}

// Validate checks the values the core cannot run without.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if !strings.HasPrefix(c.Control.Path, "/") {
		errs = append(errs, fmt.Errorf("control.path must start with /: %q", c.Control.Path))
	}
	if c.Control.SendBuffer <= 0 {
		errs = append(errs, errors.New("control.sendBuffer must be positive"))
	}

	if c.Upstream.URL == "" {
		errs = append(errs, errors.New("upstream.url is required"))
	} else if u, err := url.Parse(c.Upstream.URL); err != nil {
		errs = append(errs, fmt.Errorf("upstream.url: %w", err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("upstream.url must use ws or wss, got %q", u.Scheme))
	}

	for name, d := range map[string]Duration{
		"upstream.reconnectDelay": c.Upstream.ReconnectDelay,
		"upstream.requestTimeout": c.Upstream.RequestTimeout,
		"upstream.connectTimeout": c.Upstream.ConnectTimeout,
		"upstream.writeTimeout":   c.Upstream.WriteTimeout,
		"upstream.shutdownGrace":  c.Upstream.ShutdownGrace,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.MCP.Enabled && !strings.HasPrefix(c.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path must start with /: %q", c.MCP.Path))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// YAML renders the effective configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
