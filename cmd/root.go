package cmd

import (
	"fmt"
	"io"
	u "net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/chunkrelay/internal/config"
	"github.com/tanq16/chunkrelay/internal/metrics"
	"github.com/tanq16/chunkrelay/internal/output"
	"github.com/tanq16/chunkrelay/internal/utils"
)

var (
	configPath    string
	envFile       string
	debug         bool
	timeout       time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	metricsFile   string
	logFile       string

	cfg       config.Config
	logCloser io.Closer
)

var ChunkrelayVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "chunkrelay",
	Short:   "Chunkrelay moves device diagnostics up and firmware images down in fixed-size chunks",
	Version: ChunkrelayVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(debug)
		if logFile != "" {
			logCloser = utils.SetLogFile(logFile)
		}
		loaded, err := config.Load(configPath, cmd.Flags().Changed("config"), envFile)
		if err != nil {
			return err
		}
		cfg = loaded
		applyFlagOverrides(cmd)
		return cfg.Validate()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// flush runs after every command, failed or not, so failed sessions still
// reach the metrics textfile and the log file is closed.
func flush() {
	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			output.PrintWarning(fmt.Sprintf("Could not write metrics to %s: %v", metricsFile, err))
		}
	}
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

func run(args []string) error {
	if args != nil {
		rootCmd.SetArgs(args)
	}
	err := rootCmd.Execute()
	flush()
	return err
}

// applyFlagOverrides lets explicit flags win over file and environment.
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("timeout") {
		cfg.HTTP.Timeout = timeout
	}
	if flags.Changed("user-agent") {
		cfg.HTTP.UserAgent = userAgent
	}
	if flags.Changed("proxy") {
		cfg.HTTP.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		cfg.HTTP.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		cfg.HTTP.ProxyPassword = proxyPassword
	}
	cfg.HTTP.Headers = append(cfg.HTTP.Headers, headers...)
	// Check if proxy URL contains auth
	parsedProxy, err := u.Parse(cfg.HTTP.Proxy)
	if err == nil && parsedProxy.User != nil && cfg.HTTP.ProxyUsername == "" {
		cfg.HTTP.ProxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			cfg.HTTP.ProxyPassword = password
		}
		parsedProxy.User = nil
		cfg.HTTP.Proxy = parsedProxy.String()
	}
}

func Execute() {
	if err := run(nil); err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "Dotenv file with CHUNKRELAY_* overrides")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", utils.DefaultTimeout, "Connection timeout (eg. 5s, 10m)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write prometheus textfile metrics here after the command")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this rotated file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newPostCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newOTACmd())
	rootCmd.AddCommand(newCaptureCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newClearCmd())
	rootCmd.AddCommand(newDeviceInfoCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCleanCmd())
}
