package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/ota"
	"github.com/tanq16/chunkrelay/internal/store"
	"github.com/tanq16/chunkrelay/internal/utils"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath    = "chunkrelay.yaml"
	DefaultEnvFile = ".env"
	EnvPrefix      = "CHUNKRELAY_"
)

type Config struct {
	Device    ota.DeviceInfo  `yaml:"device"`
	Collector CollectorConfig `yaml:"collector"`
	Store     StoreConfig     `yaml:"store"`
	Uplink    UplinkConfig    `yaml:"uplink"`
	OTA       OTAConfig       `yaml:"ota"`
	S3        utils.S3Config  `yaml:"s3"`
	HTTP      HTTPConfig      `yaml:"http"`
	Serve     ServeConfig     `yaml:"serve"`
}

type CollectorConfig struct {
	BaseURL    string             `yaml:"base_url"`
	ProjectKey string             `yaml:"project_key"`
	OAuth      *utils.OAuthConfig `yaml:"oauth,omitempty"`
}

type StoreConfig struct {
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
}

type UplinkConfig struct {
	ChunkSize int    `yaml:"chunk_size"`
	Channel   string `yaml:"channel"` // http, s3 or export
}

type OTAConfig struct {
	BufferSize int    `yaml:"buffer_size"`
	Source     string `yaml:"source"` // collector, s3://bucket/key or file://path
	OutputDir  string `yaml:"output_dir"`
	ImageName  string `yaml:"image_name"`
	Discard    bool   `yaml:"discard"`
}

type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	KATimeout     time.Duration `yaml:"keepalive_timeout"`
	Proxy         string        `yaml:"proxy"`
	ProxyUsername string        `yaml:"proxy_username"`
	ProxyPassword string        `yaml:"proxy_password"`
	UserAgent     string        `yaml:"user_agent"`
	Headers       []string      `yaml:"headers"`
	NoDelay       bool          `yaml:"no_delay"`
}

// ServeConfig drives the local development collector.
type ServeConfig struct {
	Listen       string `yaml:"listen"`
	Image        string `yaml:"image"`
	ImageVersion string `yaml:"image_version"`
	ProjectKey   string `yaml:"project_key"`
	MaxDevices   int    `yaml:"max_devices"`
}

func Default() Config {
	return Config{
		Collector: CollectorConfig{BaseURL: "http://localhost:8745"},
		Store:     StoreConfig{Path: ".chunkrelay/queue"},
		Uplink:    UplinkConfig{ChunkSize: utils.DefaultChunkSize, Channel: "http"},
		OTA:       OTAConfig{BufferSize: utils.DefaultOTABufferSize, Source: "collector", OutputDir: "."},
		HTTP:      HTTPConfig{Timeout: utils.DefaultTimeout, KATimeout: utils.DefaultKATimeout},
		Serve:     ServeConfig{Listen: ":8745"},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// CHUNKRELAY_* variables from the environment and the dotenv file. The
// process environment wins over the dotenv file. A missing file is only an
// error when required is set.
func Load(path string, required bool, envFile string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("error parsing config %s: %v", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return cfg, fmt.Errorf("error reading config: %v", err)
		}
	}
	dotenv := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err == nil {
			dotenv = values
		} else if !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("error reading %s: %v", envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DEVICE_SERIAL":           &c.Device.Serial,
		"DEVICE_HARDWARE_VERSION": &c.Device.HardwareVersion,
		"DEVICE_SOFTWARE_TYPE":    &c.Device.SoftwareType,
		"DEVICE_SOFTWARE_VERSION": &c.Device.SoftwareVersion,
		"COLLECTOR_URL":           &c.Collector.BaseURL,
		"PROJECT_KEY":             &c.Collector.ProjectKey,
		"STORE_PATH":              &c.Store.Path,
		"UPLINK_CHANNEL":          &c.Uplink.Channel,
		"OTA_SOURCE":              &c.OTA.Source,
		"OTA_OUTPUT_DIR":          &c.OTA.OutputDir,
		"S3_BUCKET":               &c.S3.Bucket,
		"S3_PREFIX":               &c.S3.Prefix,
		"S3_PROFILE":              &c.S3.Profile,
		"S3_REGION":               &c.S3.Region,
		"S3_ENDPOINT":             &c.S3.Endpoint,
		"HTTP_PROXY":              &c.HTTP.Proxy,
		"HTTP_USER_AGENT":         &c.HTTP.UserAgent,
		"LISTEN":                  &c.Serve.Listen,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	ints := map[string]*int{
		"CHUNK_SIZE":      &c.Uplink.ChunkSize,
		"OTA_BUFFER_SIZE": &c.OTA.BufferSize,
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q", chunk.ErrInvalidArgument, EnvPrefix, name, v)
			}
			*dst = n
		}
	}
	if v, ok := lookup(EnvPrefix + "STORE_COMPRESS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sSTORE_COMPRESS=%q", chunk.ErrInvalidArgument, EnvPrefix, v)
		}
		c.Store.Compress = b
	}
	if v, ok := lookup(EnvPrefix + "HTTP_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sHTTP_TIMEOUT=%q", chunk.ErrInvalidArgument, EnvPrefix, v)
		}
		c.HTTP.Timeout = d
	}
	id, hasID := lookup(EnvPrefix + "OAUTH_CLIENT_ID")
	secret, hasSecret := lookup(EnvPrefix + "OAUTH_CLIENT_SECRET")
	tokenURL, hasURL := lookup(EnvPrefix + "OAUTH_TOKEN_URL")
	if hasID || hasSecret || hasURL {
		if c.Collector.OAuth == nil {
			c.Collector.OAuth = &utils.OAuthConfig{}
		}
		if hasID {
			c.Collector.OAuth.ClientID = id
		}
		if hasSecret {
			c.Collector.OAuth.ClientSecret = secret
		}
		if hasURL {
			c.Collector.OAuth.TokenURL = tokenURL
		}
	}
	return nil
}

func (c Config) Validate() error {
	if c.Uplink.ChunkSize < store.MinChunkSize {
		return fmt.Errorf("%w: uplink.chunk_size must be at least %d", chunk.ErrInvalidArgument, store.MinChunkSize)
	}
	if c.OTA.BufferSize <= 0 {
		return fmt.Errorf("%w: ota.buffer_size must be positive", chunk.ErrInvalidArgument)
	}
	switch c.Uplink.Channel {
	case "http", "s3", "export":
	default:
		return fmt.Errorf("%w: unknown uplink channel %q", chunk.ErrInvalidArgument, c.Uplink.Channel)
	}
	if c.Collector.OAuth != nil && c.Collector.OAuth.TokenURL != "" && c.Collector.OAuth.ClientID == "" {
		return fmt.Errorf("%w: oauth client_id is required with token_url", chunk.ErrInvalidArgument)
	}
	if bad := utils.BadHeaderArgs(c.HTTP.Headers); len(bad) > 0 {
		return fmt.Errorf("%w: headers must be \"Key: value\", got %q", chunk.ErrInvalidArgument, bad)
	}
	return nil
}

// HTTPClientConfig maps the http and collector sections onto the shared client.
func (c Config) HTTPClientConfig() utils.HTTPClientConfig {
	return utils.HTTPClientConfig{
		Timeout:       c.HTTP.Timeout,
		KATimeout:     c.HTTP.KATimeout,
		ProxyURL:      c.HTTP.Proxy,
		ProxyUsername: c.HTTP.ProxyUsername,
		ProxyPassword: c.HTTP.ProxyPassword,
		UserAgent:     c.HTTP.UserAgent,
		Headers:       utils.ParseHeaderArgs(c.HTTP.Headers),
		NoDelay:       c.HTTP.NoDelay,
		OAuth:         c.Collector.OAuth,
	}
}
