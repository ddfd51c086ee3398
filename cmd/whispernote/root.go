package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dshills/whispernote/internal/api"
	"github.com/dshills/whispernote/internal/app"
	"github.com/dshills/whispernote/internal/config"
	"github.com/dshills/whispernote/internal/logging"
)

// backend is what the index, status, query and chat commands run against:
// a local app or a remote API server.
type backend interface {
	api.Backend
	Close() error
}

// cli holds flag values and state shared by the subcommands
type cli struct {
	configPath string
	envFile    string
	debug      bool
	remote     bool
	serverURL  string

	cfg    *config.Config
	logger *slog.Logger
	stdin  io.Reader

	// openApp builds the local application. Tests replace it.
	openApp func(cfg *config.Config, logger *slog.Logger) (*app.App, error)
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&cli{stdin: os.Stdin, openApp: app.New})
}

func newRootCmdWith(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "whispernote",
		Short: "Index and query your notes with AI",
		Long: `whispernote indexes a directory of text notes into a vector index and
answers natural language questions about them. Questions that mention a
time ("last week", "in March") only consult notes from that period.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (default ./whispernote.yaml or ~/.config/whispernote/config.yaml)")
	flags.StringVar(&c.envFile, "env-file", ".env", "dotenv file with provider credentials")
	flags.BoolVar(&c.debug, "debug", false, "debug logging and show the context used for answers")
	flags.BoolVar(&c.remote, "remote", false, "send commands to a running 'whispernote serve' instead of the local index")
	flags.StringVar(&c.serverURL, "server-url", "", "server URL used with --remote (default from config)")

	root.AddCommand(
		c.newIndexCmd(),
		c.newStatusCmd(),
		c.newQueryCmd(),
		c.newChatCmd(),
		c.newWatchCmd(),
		c.newServeCmd(),
		c.newMCPCmd(),
		c.newCheckCmd(),
		newVersionCmd(),
	)
	return root
}

// setup loads .env and the configuration and builds the logger
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", c.envFile, err)
		}
	}

	var err error
	if c.configPath != "" {
		c.cfg, err = config.Load(c.configPath)
	} else {
		c.cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}
	if c.debug {
		c.cfg.Log.Level = "debug"
	}
	if c.serverURL != "" {
		c.cfg.Server.URL = c.serverURL
	}

	c.logger, err = logging.New(c.cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(c.logger)
	return nil
}

// backend opens the local app, or a client when --remote is set
func (c *cli) backend() (backend, error) {
	if c.remote {
		return api.NewClient(c.cfg.Server.URL, 0), nil
	}
	return c.localApp()
}

// localApp opens the local app. Commands that host long-running services
// always use it.
func (c *cli) localApp() (*app.App, error) {
	if c.remote {
		return nil, errors.New("--remote is not supported by this command")
	}
	return c.openApp(c.cfg, c.logger)
}
