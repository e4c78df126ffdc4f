package main

import (
	"os"
	"time"

	"github.com/kbdesk/backend/internal/backend"
	"github.com/kbdesk/backend/internal/config"
	"github.com/kbdesk/backend/internal/logging"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	backendURL string
	timeout    time.Duration
	logLevel   string

	cfg *config.AppConfig
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "kbctl",
		Short:         "Build knowledge bases and chat with the RAG backend",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to kbdesk.yaml (optional)")
	flags.StringVar(&opts.backendURL, "backend", "", "backend base URL (overrides config and BACKEND_URL)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "backend request timeout (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newUploadCmd(opts),
		newChatCmd(opts),
		newSwitchCmd(opts),
		newHealthCmd(opts),
	)
	return cmd
}

// load resolves the configuration. Without --config the defaults apply, with
// environment overrides, and nothing is written to disk.
func (o *globalOptions) load() error {
	if o.configPath != "" {
		cfg, err := config.LoadConfig(o.configPath)
		if err != nil {
			return err
		}
		o.cfg = cfg
	} else {
		o.cfg = config.DefaultConfig()
		o.cfg.Advanced.LogLevel = "warn"
		if url := os.Getenv("BACKEND_URL"); url != "" {
			o.cfg.Backend.URL = url
		}
		if level := os.Getenv("LOG_LEVEL"); level != "" {
			o.cfg.Advanced.LogLevel = level
		}
	}

	if o.backendURL != "" {
		o.cfg.Backend.URL = o.backendURL
	}
	if o.timeout > 0 {
		o.cfg.Backend.TimeoutSeconds = int(o.timeout / time.Second)
	}
	if o.logLevel != "" {
		o.cfg.Advanced.LogLevel = o.logLevel
	}

	logging.Setup(o.cfg.Advanced.LogLevel, true)
	return nil
}

func (o *globalOptions) client() *backend.Client {
	return backend.NewClient(o.cfg.Backend.URL, o.cfg.BackendTimeout())
}
