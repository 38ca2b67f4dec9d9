package utils

import "time"

const (
	ToolUserAgent = "chunkrelay/dev"

	// DefaultChunkSize is the transport-sized uplink buffer.
	DefaultChunkSize = 1024
	// DefaultOTABufferSize matches the working buffer of the reference device shell.
	DefaultOTABufferSize = 256
	DefaultTimeout       = 60 * time.Second
	DefaultKATimeout     = 90 * time.Second

	TempDirName = ".chunkrelay-temp"

	// ProjectKeyHeader authenticates a device fleet against the collector.
	ProjectKeyHeader = "X-Project-Key"
)

var GlobalDebugFlag = false

type HTTPClientConfig struct {
	Timeout       time.Duration
	KATimeout     time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	Headers       map[string]string
	NoDelay       bool // disable Nagle on dialed sockets, small chunk posts benefit
	OAuth         *OAuthConfig
}

// OAuthConfig enables the client-credentials flow against the collector.
type OAuthConfig struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}
