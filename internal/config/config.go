package config

import (
	"os"
	"path"
	"strings"

	"github.com/setavenger/utxo-audit/internal/logging"
	"github.com/spf13/viper"
)

func LoadConfigs(pathToConfig string) {
	// Set the file name of the configurations file
	viper.SetConfigFile(pathToConfig)

	// Handle errors reading the config file
	if err := viper.ReadInConfig(); err != nil {
		logging.L.Warn().Err(err).Msg("No config file detected")
	}

	/* set defaults */
	viper.SetDefault("chain", "main")
	viper.SetDefault("max_workers", MaxWorkers)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_path", "")
	viper.SetDefault("log_to_console", true)
	viper.SetDefault("csv_fields", strings.Join(CSVFields, ","))
	viper.SetDefault("archive_path", "")
	viper.SetDefault("export_path", "")

	// Bind viper keys to environment variables (optional, for backup)
	viper.AutomaticEnv()
	viper.BindEnv("chain", "CHAIN")
	viper.BindEnv("max_workers", "MAX_WORKERS")
	viper.BindEnv("log_level", "LOG_LEVEL")
	viper.BindEnv("log_path", "LOG_PATH")
	viper.BindEnv("csv_fields", "CSV_FIELDS")
	viper.BindEnv("archive_path", "ARCHIVE_PATH")
	viper.BindEnv("export_path", "EXPORT_PATH")

	/* read and set config variables */
	LogLevel = viper.GetString("log_level")
	LogToConsole = viper.GetBool("log_to_console")

	// SetDirectories already derived a default; only a configured
	// value may replace it.
	if p := viper.GetString("log_path"); p != "" {
		LogsPath = p
	}

	MaxWorkers = viper.GetInt("max_workers")
	if MaxWorkers < 1 {
		MaxWorkers = 1
	}

	fields := viper.GetString("csv_fields")
	if fields != "" {
		CSVFields = nil
		for _, field := range strings.Split(fields, ",") {
			CSVFields = append(CSVFields, strings.TrimSpace(field))
		}
	}

	if p := viper.GetString("archive_path"); p != "" {
		ArchivePath = p
	}
	if p := viper.GetString("export_path"); p != "" {
		ExportPath = p
	}

	chainInput := viper.GetString("chain")

	switch chainInput {
	case "main":
		Chain = Mainnet
	case "signet":
		Chain = Signet
	case "regtest":
		Chain = Regtest
	case "testnet":
		Chain = Testnet3
	default:
		logging.L.Fatal().Msg("chain undefined")
		return
	}
}

// SetDirectories expands the base directory and derives the default
// locations for the archive db and exports.
func SetDirectories() {
	if strings.HasPrefix(BaseDirectory, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			logging.L.Fatal().Err(err).Msg("could not resolve home directory")
		}
		BaseDirectory = path.Join(home, strings.TrimPrefix(BaseDirectory, "~"))
	}

	if ArchivePath == "" {
		ArchivePath = path.Join(BaseDirectory, "archive")
	}
	if ExportPath == "" {
		ExportPath = path.Join(BaseDirectory, "export")
	}
	if LogsPath == "" {
		LogsPath = path.Join(BaseDirectory, "logs", "utxo-audit.log")
	}
}
