// Package config loads varserverd's configuration in the layered
// precedence SPEC_FULL.md §4.0 describes: compiled-in defaults, an
// optional YAML file, a .env file if present, process environment
// variables, then CLI flags — the same "defaults, then progressively
// more specific overrides" shape the teacher's cs104.Config.Valid
// applies to a single struct, generalized here across several sources
// via spf13/viper.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is varserverd's full runtime configuration.
type Config struct {
	LocalSocketPath  string `mapstructure:"local_socket_path"`
	LocalSocketGroup string `mapstructure:"local_socket_group"`

	TCPAddress string `mapstructure:"tcp_address"`
	TCPPort    int    `mapstructure:"tcp_port"`

	MaxACLEntries        int `mapstructure:"max_acl_entries"`
	MaxSupplementaryGIDs int `mapstructure:"max_supplementary_gids"`
	MaxTags              int `mapstructure:"max_tags"`
	MaxTagsPerVariable   int `mapstructure:"max_tags_per_variable"`
	MaxNameLength        int `mapstructure:"max_name_length"`

	DefaultWorkingBufferSize int `mapstructure:"default_working_buffer_size"`
	MaxWorkingBufferSize     int `mapstructure:"max_working_buffer_size"`
	MaxClients               int `mapstructure:"max_clients"`

	GCInterval           time.Duration `mapstructure:"gc_interval"`
	SlowRequestThreshold time.Duration `mapstructure:"slow_request_threshold"`

	AdminHTTPAddress string `mapstructure:"admin_http_address"`

	// TrustTCPCredentials decides whether OPEN's client-declared
	// uid/gid are honored on the TCP transport, which has no
	// SO_PEERCRED equivalent (SPEC_FULL.md REDESIGN FLAGS: off by
	// default).
	TrustTCPCredentials bool `mapstructure:"trust_tcp_credentials"`
}

// Default returns the compiled-in defaults, the lowest layer of the
// precedence chain.
func Default() Config {
	return Config{
		LocalSocketPath:          "/var/run/varserver/varserver.sock",
		MaxACLEntries:            6,
		MaxSupplementaryGIDs:     20,
		MaxTags:                  256,
		MaxTagsPerVariable:       8,
		MaxNameLength:            63,
		DefaultWorkingBufferSize: 4096,
		MaxWorkingBufferSize:     1 << 20,
		MaxClients:               256,
		GCInterval:               10 * time.Second,
		SlowRequestThreshold:     50 * time.Millisecond,
	}
}

// Load builds a Config from, in increasing precedence: Default(), an
// optional YAML file at yamlPath, an optional .env file in the
// working directory, the process environment, then flags already
// parsed onto fs. fs may be nil to skip the flag layer.
func Load(yamlPath string, fs *pflag.FlagSet) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		if err := loadYAML(yamlPath, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("config: loading .env: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("VARSERVER")
	v.AutomaticEnv()
	// The TCP endpoint's variables drop the "TCP_" the prefix rule would add.
	_ = v.BindEnv("tcp_address", "VARSERVER_ADDRESS")
	_ = v.BindEnv("tcp_port", "VARSERVER_PORT")
	bindDefaults(v, cfg)
	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return Config{}, fmt.Errorf("config: binding flags: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return yaml.Unmarshal(data, cfg)
}

// flagKeys maps each CLI flag's dashed name to the mapstructure key it
// overrides; pflag convention and viper/mapstructure's snake_case tags
// don't line up automatically the way AutomaticEnv's replacer does.
var flagKeys = map[string]string{
	"local-socket-path":    "local_socket_path",
	"local-socket-group":   "local_socket_group",
	"tcp-address":          "tcp_address",
	"tcp-port":             "tcp_port",
	"admin-http-address":   "admin_http_address",
	"trust-tcp-credentials": "trust_tcp_credentials",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for flagName, key := range flagKeys {
		f := fs.Lookup(flagName)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func bindDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("local_socket_path", cfg.LocalSocketPath)
	v.SetDefault("local_socket_group", cfg.LocalSocketGroup)
	v.SetDefault("tcp_address", cfg.TCPAddress)
	v.SetDefault("tcp_port", cfg.TCPPort)
	v.SetDefault("max_acl_entries", cfg.MaxACLEntries)
	v.SetDefault("max_supplementary_gids", cfg.MaxSupplementaryGIDs)
	v.SetDefault("max_tags", cfg.MaxTags)
	v.SetDefault("max_tags_per_variable", cfg.MaxTagsPerVariable)
	v.SetDefault("max_name_length", cfg.MaxNameLength)
	v.SetDefault("default_working_buffer_size", cfg.DefaultWorkingBufferSize)
	v.SetDefault("max_working_buffer_size", cfg.MaxWorkingBufferSize)
	v.SetDefault("max_clients", cfg.MaxClients)
	v.SetDefault("gc_interval", cfg.GCInterval)
	v.SetDefault("slow_request_threshold", cfg.SlowRequestThreshold)
	v.SetDefault("admin_http_address", cfg.AdminHTTPAddress)
	v.SetDefault("trust_tcp_credentials", cfg.TrustTCPCredentials)
}

// Validate applies defaults to zero-value fields and rejects
// out-of-range ones, the same shape as the teacher's
// cs104.Config.Valid: every field either gets a sane default or fails
// loudly, never silently runs with a nonsensical value.
func (c *Config) Validate() error {
	if c.LocalSocketPath == "" {
		c.LocalSocketPath = Default().LocalSocketPath
	}
	if (c.TCPAddress == "") != (c.TCPPort == 0) {
		return fmt.Errorf("config: tcp_address and tcp_port must both be set to enable the TCP transport")
	}
	if c.MaxACLEntries <= 0 {
		c.MaxACLEntries = Default().MaxACLEntries
	}
	if c.MaxSupplementaryGIDs <= 0 {
		c.MaxSupplementaryGIDs = Default().MaxSupplementaryGIDs
	}
	if c.MaxTags <= 0 {
		c.MaxTags = Default().MaxTags
	}
	if c.MaxTagsPerVariable <= 0 {
		c.MaxTagsPerVariable = Default().MaxTagsPerVariable
	}
	if c.MaxNameLength <= 0 {
		c.MaxNameLength = Default().MaxNameLength
	}
	if c.DefaultWorkingBufferSize <= 0 {
		c.DefaultWorkingBufferSize = Default().DefaultWorkingBufferSize
	}
	if c.MaxWorkingBufferSize <= 0 {
		c.MaxWorkingBufferSize = Default().MaxWorkingBufferSize
	}
	if c.MaxWorkingBufferSize < c.DefaultWorkingBufferSize {
		return fmt.Errorf("config: max_working_buffer_size must be >= default_working_buffer_size")
	}
	if c.MaxClients <= 0 {
		c.MaxClients = Default().MaxClients
	}
	if c.GCInterval <= 0 {
		c.GCInterval = Default().GCInterval
	}
	if c.SlowRequestThreshold <= 0 {
		c.SlowRequestThreshold = Default().SlowRequestThreshold
	}
	return nil
}
