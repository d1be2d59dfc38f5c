package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/trackd/internal/client/config"
	"github.com/openmined/trackd/internal/client/workspace"
	"github.com/openmined/trackd/internal/utils"
	"github.com/openmined/trackd/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const envPrefix = "TRACKD"

var home, _ = os.UserHomeDir()

// cli carries the state shared by the subcommands of one invocation
type cli struct {
	cfg      *config.Config
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "trackd",
		Short:         "Offline-first time tracking sync client",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			closeLog, err := setupLogging(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.closeLog = closeLog
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.closeLog != nil {
				return c.closeLog()
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", config.DefaultConfigPath, "trackd config file")
	flags.StringP("datadir", "d", config.DefaultDataDir, "directory holding the local database and logs")
	flags.StringP("server", "s", config.DefaultServerURL, "url of the time tracking service")
	flags.String("log-level", config.DefaultLogLevel, "console log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newLoginCmd(c),
		newSyncCmd(c),
		newPushCmd(c),
		newStartCmd(c),
		newStopCmd(c),
		newStatusCmd(c),
		newLogoutCmd(c),
		newDaemonCmd(c),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", red.Render("ERROR"), err)
		os.Exit(1)
	}
}

// loadConfig merges, from lowest to highest precedence, defaults, the config
// file, a .env file in the working directory, TRACKD_* variables and flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if utils.FileExists(".env") {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetDefault("data_dir", config.DefaultDataDir)
	v.SetDefault("server_url", config.DefaultServerURL)
	v.SetDefault("background_sync_threshold", config.DefaultBackgroundSyncThreshold)
	v.SetDefault("log_level", config.DefaultLogLevel)

	configPath := resolveConfigPath(cmd)
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", configPath, err)
		}
	}

	for key, flag := range map[string]string{
		"data_dir":   "datadir",
		"server_url": "server",
		"log_level":  "log-level",
	} {
		if f := cmd.Flag(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	cfg := &config.Config{
		Path:                    configPath,
		DataDir:                 v.GetString("data_dir"),
		Email:                   v.GetString("email"),
		ServerURL:               v.GetString("server_url"),
		APIToken:                v.GetString("api_token"),
		BackgroundSyncThreshold: v.GetDuration("background_sync_threshold"),
		LogLevel:                v.GetString("log_level"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveConfigPath honors, in order, the --config flag, TRACKD_CONFIG_PATH,
// an existing ~/.config/trackd/config.json and the default path
func resolveConfigPath(cmd *cobra.Command) string {
	if f := cmd.Flag("config"); f != nil && f.Changed {
		return f.Value.String()
	}

	if envPath := os.Getenv(envPrefix + "_CONFIG_PATH"); envPath != "" {
		return envPath
	}

	xdgPath := filepath.Join(home, ".config", "trackd", "config.json")
	if !utils.FileExists(config.DefaultConfigPath) && utils.FileExists(xdgPath) {
		return xdgPath
	}

	return config.DefaultConfigPath
}

// setupLogging logs to console at the configured level, and at debug level to
// a rotating file in the workspace logs dir
func setupLogging(cfg *config.Config, console io.Writer) (func() error, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	ws, err := workspace.NewWorkspace(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(ws.LogsDir); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	noColor := true
	if f, ok := console.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    noColor,
	})

	rotator := &lumberjack.Logger{
		Filename:   ws.LogPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	interceptor := utils.NewLogInterceptor(rotator)
	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// the interceptor stamps each line
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(consoleHandler, fileHandler)))

	return func() error {
		return errors.Join(interceptor.Close(), rotator.Close())
	}, nil
}
