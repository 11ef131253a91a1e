package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/sourcerank/internal/health"
	"github.com/ppiankov/sourcerank/internal/logging"
	"github.com/ppiankov/sourcerank/internal/model"
	"github.com/ppiankov/sourcerank/internal/pipeline"
)

// version is set at build time with -ldflags "-X .../internal/cli.version=..."
var version = "v0.1.0-dev"

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sourcerank",
	Short: "Sourcerank - health scoring and ranking for streaming sources",
	Long: `Sourcerank scores, filters and ranks candidate streaming sources
(torrents, debrid-cached files, direct links) for one title.

For every source it derives a health score and risk level from swarm
counters, predicts download reliability from past transfers, detects
season packs, and orders the list so that instantly playable, healthy,
high-quality sources come first.

Sources are read as JSON or YAML descriptor lists.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of sourcerank.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sourcerank %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.sourcerank/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(dir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// SOURCERANK_CACHE_PERSISTENT_PATH overrides cache.persistent_path
	viper.SetEnvPrefix("SOURCERANK")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sourcerank"), nil
}

// loadConfig layers viper's view (flags, env, file) over the defaults.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	bindEnvKeys(cfg)
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// session is one command's engine instance and the resources behind it
type session struct {
	cfg     *model.Config
	manager *pipeline.Manager
	logger  zerolog.Logger
	logFile io.Closer
}

// openSession builds the manager from configuration, opening the download
// history when a path is configured and replaying it into the predictor.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, logFile, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{Logger: logger}
	if cfg.Health.HistoryPath != "" {
		store, err := health.OpenSQLiteHistory(ctx, cfg.Health.HistoryPath)
		if err != nil {
			_ = logFile.Close()
			return nil, err
		}
		opts.History = store
	}

	m := pipeline.NewManager(cfg, opts)
	if _, err := m.ReplayHistory(ctx); err != nil {
		logger.Warn().Err(err).Msg("Continuing without download history")
	}

	return &session{cfg: cfg, manager: m, logger: logger, logFile: logFile}, nil
}

func (s *session) Close() error {
	err := s.manager.Close()
	if cerr := s.logFile.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
