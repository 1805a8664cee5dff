// Package config binds command line flags, environment variables and
// dotenv files into the settings used by the server and the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/todmy/isoforest/internal/anomaly"
)

// EnvPrefix is prepended to every environment variable, e.g. ISOFOREST_TREES.
const EnvPrefix = "ISOFOREST"

// RegisterPersistentFlags adds the flags shared by every command.
func RegisterPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("debug", false, "debug logging")
	cmd.PersistentFlags().String("dotenv", ".env", "dotenv file to load before reading the environment")
}

// RegisterAnomalyFlags adds the detector settings to cmd.
func RegisterAnomalyFlags(cmd *cobra.Command) {
	defaults := anomaly.DefaultConfig()
	flags := cmd.Flags()
	flags.String("detector", string(defaults.Detector), "detector: isolation, distance or ensemble")
	flags.Int("k", defaults.K, "neighbours used by the distance detector")
	flags.Int("trees", defaults.NumTrees, "number of isolation trees")
	flags.Int("max-trees", defaults.MaxTrees, "largest tree count a request may ask for")
	flags.Int("sample-size", defaults.SampleSize, "rows drawn per tree, 0 means every row")
	flags.Float64("threshold", defaults.Threshold, "score at or above which a row is an anomaly")
	flags.Int("workers", 0, "worker goroutines, 0 means GOMAXPROCS")
	flags.Bool("standardize", false, "scale columns to zero mean and unit variance")
	flags.Uint64("seed", 0, "random seed, 0 means a random seed")
}

// Load reads the dotenv file named by the dotenv flag, binds cmd's flags and
// the environment into viper and configures the standard logger.
func Load(cmd *cobra.Command) error {
	if dotenvFile, _ := cmd.Flags().GetString("dotenv"); dotenvFile != "" {
		if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load dotenv file %s: %w", dotenvFile, err)
		}
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

// Anomaly builds the detector configuration from the bound settings.
func Anomaly() (anomaly.Config, error) {
	detector, err := anomaly.ParseDetectorType(viper.GetString("detector"))
	if err != nil {
		return anomaly.Config{}, err
	}

	config := anomaly.Config{
		Detector:    detector,
		K:           viper.GetInt("k"),
		NumTrees:    viper.GetInt("trees"),
		MaxTrees:    viper.GetInt("max-trees"),
		SampleSize:  viper.GetInt("sample-size"),
		Threshold:   viper.GetFloat64("threshold"),
		Workers:     viper.GetInt("workers"),
		Standardize: viper.GetBool("standardize"),
	}
	if seed := viper.GetUint64("seed"); seed != 0 {
		config.Seed = &seed
	}
	return config, nil
}
