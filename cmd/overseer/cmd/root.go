package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/overseerd/overseer/pkg/logging"
	"github.com/overseerd/overseer/pkg/store"
)

var (
	cfgFile      string
	dbPath       string
	dbBackend    string
	outputFormat string
	logLevel     string
	logDir       string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "overseer",
	Short: "Session orchestrator for long-running automated work",
	Long: `overseer drives resumable work sessions against a project backlog:
it executes tasks in order, checkpoints progress, retries transient
failures, and pauses for human intervention when it cannot proceed.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.overseer/config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path or DSN (default overseer.db)")
	rootCmd.PersistentFlags().StringVar(&dbBackend, "db-backend", "", "storage backend: sqlite or postgres (default inferred from DSN)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "also write logs to <dir>/<command>.log")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".overseer")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("OVERSEER")
	viper.AutomaticEnv()

	viper.BindEnv("database", "DATABASE_URL")
	viper.BindEnv("runner_url", "OVERSEER_RUNNER_URL")

	if err := viper.ReadInConfig(); err == nil {
		if dbPath == "" && viper.GetString("database") != "" {
			dbPath = viper.GetString("database")
		}
	}

	if dbPath == "" && viper.GetString("database") != "" {
		dbPath = viper.GetString("database")
	}
	if dbPath == "" {
		dbPath = "overseer.db"
	}
}

func newLogger() *logging.Logger {
	return logging.NewLogger(logging.ParseLevel(logLevel), viper.GetBool("log_json"))
}

// newComponentLogger tees log output to <log-dir>/<component>.log when
// --log-dir is set; callers own Close
func newComponentLogger(component string) (*logging.Logger, error) {
	if logDir == "" {
		return newLogger(), nil
	}
	return logging.NewFileLogger(logDir, component, logging.ParseLevel(logLevel), viper.GetBool("log_json"))
}

func openStore() (store.Store, error) {
	return store.Open(store.Config{Backend: dbBackend, DSN: dbPath})
}

// printStructured renders v as JSON or YAML when requested and reports
// whether it did; table rendering stays with the caller
func printStructured(v interface{}) (bool, error) {
	switch outputFormat {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, err
		}
		fmt.Println(string(data))
		return true, nil
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return true, err
		}
		fmt.Print(string(data))
		return true, nil
	}
	return false, nil
}
