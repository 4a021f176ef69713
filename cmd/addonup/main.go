// Command addonup checks add-on packages locally and submits them to the
// validator service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/addonvalidator/internal/config"
	"github.com/JonMunkholm/addonvalidator/internal/logging"
)

var (
	// Global flags
	configPath    string
	serverURL     string
	logLevel      string
	logFormat     string
	noContentRead bool

	// clientCfg is the merged configuration, set before any subcommand runs.
	clientCfg *config.ClientConfig
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "addonup",
	Short: "Check and submit add-on packages to the validator",
	Long: `addonup checks that a file looks like an add-on package (.xpi or .jar
with a ZIP signature) and uploads it to the validator service.

Settings are read from the config file, then ADDONUP_* environment
variables, then flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultClientConfigPath()
		}
		cfg, err := config.LoadClient(path)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("server") {
			cfg.Server = serverURL
		}
		if flags.Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if flags.Changed("log-format") {
			cfg.Log.Format = logFormat
		}
		if noContentRead {
			cfg.ContentAccess = false
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logging.SetupWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
		clientCfg = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: user config dir/addonup/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Validator base URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().BoolVar(&noContentRead, "no-content-access", false, "Check the extension only and upload as a plain form post")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// cmdContext is the command's context, or Background when run outside
// Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newClient returns an HTTP client that keeps the service's CSRF cookie.
func newClient(cfg *config.ClientConfig) *http.Client {
	jar, _ := cookiejar.New(nil) // only fails for a non-nil options value
	return &http.Client{Jar: jar, Timeout: cfg.Timeout}
}
