// Package cmd implements the gamedb command line interface.
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/macfreek/game-db-manager/internal/cmd/globals"
	"github.com/macfreek/game-db-manager/internal/cmd/output"
	"github.com/macfreek/game-db-manager/internal/gamedb"
	"github.com/macfreek/game-db-manager/internal/recon"
	"github.com/macfreek/game-db-manager/internal/sources/gog"
	"github.com/macfreek/game-db-manager/internal/sources/humble"
	"github.com/macfreek/game-db-manager/internal/sources/steam"
	"github.com/macfreek/game-db-manager/pkg/errors"
	"github.com/macfreek/game-db-manager/pkg/fetch"
	"github.com/macfreek/game-db-manager/pkg/logging"
)

var (
	configFile  string
	globalFlags *globals.Flags

	// Version information set by main.
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "gamedb",
	Short: "Game collection database manager",
	Long: `Gamedb reconciles a personal game-collection database against the
Steam catalog and Humble Bundle purchase APIs: it fills in missing
identifiers, verifies ownership consistency, and produces reports.

All options can be stored in a configuration file. The default path is
'config.ini'. Store options as key=value pairs, without the '--' in front
of the key.`,
	PersistentPreRunE: setupCommand,
	SilenceUsage:      true,
}

// Execute runs the root command. Configuration errors exit with status 1.
func Execute(version string) {
	Version = version
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"Path to the configuration file (default is config.ini)")
	globalFlags = globals.AddFlags(rootCmd)

	rootCmd.PersistentFlags().String("cachefolder", "/var/tmp",
		"Path to the download cache directory")
	rootCmd.PersistentFlags().Float64("delay", 1.6,
		"Base delay between outbound requests, in seconds")
	cobra.CheckErr(viper.BindPFlag("cachefolder", rootCmd.PersistentFlags().Lookup("cachefolder")))
	cobra.CheckErr(viper.BindPFlag("delay", rootCmd.PersistentFlags().Lookup("delay")))
}

// initConfig reads the config file and environment variables.
func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		viper.SetConfigType("ini")
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("ini")
		viper.SetConfigName("config")
	}

	// .env files load before viper's env binding.
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	viper.SetDefault("loglevel", "error")
	viper.SetDefault("database_file", "Games.db")

	if err := viper.ReadInConfig(); err == nil && globalFlags != nil && globalFlags.Verbose > 0 {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	configureLogging()
}

func setupCommand(_ *cobra.Command, _ []string) error {
	if globalFlags.NoColor {
		color.NoColor = true
	}
	if globalFlags.Output == "" {
		globalFlags.Output = string(output.DetectFormat(""))
	}
	if _, err := output.ParseFormat(globalFlags.Output); err != nil {
		return &errors.ConfigError{Setting: "output", Message: err.Error()}
	}
	return nil
}

func configureLogging() {
	cfg := &logging.Config{
		Level:     viper.GetString("loglevel"),
		Verbosity: 0,
	}
	if globalFlags != nil {
		cfg.Verbosity = globalFlags.Verbose
		if globalFlags.Quiet {
			cfg.Level = "error"
			cfg.Verbosity = 0
		}
	}
	logging.Configure(cfg)
}

// openFetcher creates the shared cache fetcher.
func openFetcher() (*fetch.Fetcher, error) {
	delay := viper.GetFloat64("delay")
	if delay <= 0 {
		delay = 1.6
	}
	return fetch.New(viper.GetString("cachefolder"),
		fetch.WithDelay(time.Duration(delay*float64(time.Second))))
}

// openDB opens the database and installs the backup hook: the first write of
// a run copies the database file into the cache folder.
func openDB(fetcher *fetch.Fetcher) (*gamedb.DB, error) {
	path := viper.GetString("database_file")
	if path == "" {
		return nil, &errors.ConfigError{Setting: "database", Message: "database_file is not set"}
	}
	db, err := gamedb.Open(path)
	if err != nil {
		return nil, err
	}
	db.SetPrewriteHook(func() error { return fetcher.Backup(path) })
	return db, nil
}

func steamClient(fetcher *fetch.Fetcher) (*steam.Client, error) {
	apiKey := viper.GetString("steam_api_key")
	userID := viper.GetInt64("steam_user_id")
	username := viper.GetString("steam_user_name")
	if apiKey == "" || userID == 0 || username == "" {
		return nil, &errors.ConfigError{Setting: "steam",
			Message: "steam_api_key, steam_user_id and steam_user_name are required"}
	}
	return steam.New(apiKey, userID, username, fetcher), nil
}

func humbleClient(fetcher *fetch.Fetcher) (*humble.Client, error) {
	cookie := viper.GetString("humblebundle_sessioncookie")
	if cookie == "" {
		return nil, &errors.ConfigError{Setting: "humblebundle",
			Message: "humblebundle_sessioncookie is required. " + humble.CookieHelp}
	}
	return humble.New(cookie, fetcher), nil
}

// reconciler assembles the collaborators for a pass. Clients are only
// constructed when the pass needs them.
func reconciler(needSteam, needHumble bool) (*recon.Reconciler, error) {
	fetcher, err := openFetcher()
	if err != nil {
		return nil, err
	}
	db, err := openDB(fetcher)
	if err != nil {
		return nil, err
	}
	r := &recon.Reconciler{
		DB:      db,
		Gog:     gog.New(fetcher),
		Fetcher: fetcher,
		DryRun:  globalFlags.DryRun,
	}
	if needSteam {
		if r.Steam, err = steamClient(fetcher); err != nil {
			return nil, err
		}
	}
	if needHumble {
		if r.Humble, err = humbleClient(fetcher); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func formatter() output.Formatter {
	return output.New(output.Format(globalFlags.Output))
}
