package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/todmy/isoforest/internal/anomaly"
	"github.com/todmy/isoforest/internal/config"
	"github.com/todmy/isoforest/internal/dataset"
	"github.com/todmy/isoforest/internal/telemetry"
	"github.com/todmy/isoforest/pkg/iforest"
	"github.com/todmy/isoforest/pkg/models"
)

var rootCmd = &cobra.Command{
	Use:          "iforest",
	Short:        "train and apply isolation forest anomaly detectors on CSV files",
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Load(cmd)
	},
}

func init() {
	config.RegisterPersistentFlags(rootCmd)
	rootCmd.PersistentFlags().Bool("header", false, "the first CSV record holds column names")
	rootCmd.PersistentFlags().IntSlice("columns", nil, "column indices to read, default all")
	rootCmd.PersistentFlags().String("comma", ",", "CSV field delimiter")
	rootCmd.PersistentFlags().StringP("output", "o", "-", "output file, - for stdout")

	rootCmd.AddCommand(fitCmd, scoreCmd, detectCmd)
}

func csvOptions() (dataset.CSVOptions, error) {
	comma := viper.GetString("comma")
	r, size := utf8.DecodeRuneInString(comma)
	if size == 0 || size != len(comma) {
		return dataset.CSVOptions{}, fmt.Errorf("comma must be a single character, got %q", comma)
	}
	return dataset.CSVOptions{
		Header:  viper.GetBool("header"),
		Columns: viper.GetIntSlice("columns"),
		Comma:   r,
	}, nil
}

func loadTable(path string) (*dataset.Table, error) {
	opts, err := csvOptions()
	if err != nil {
		return nil, err
	}
	return dataset.LoadCSVFile(path, opts)
}

func observer() iforest.Observer {
	return telemetry.NewLogObserver(log.WithField("command", "iforest"))
}

// withOutput runs fn against the file named by the output flag.
func withOutput(fn func(w io.Writer) error) error {
	path := viper.GetString("output")
	if path == "" || path == "-" {
		return fn(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(v interface{}) error {
	return withOutput(func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func scoreResponse(results []anomaly.Result, onlyAnomalies bool) models.ScoreResponse {
	resp := models.ScoreResponse{Results: []models.RowScore{}}
	for _, r := range results {
		if r.IsAnomaly {
			resp.Anomalies++
		} else if onlyAnomalies {
			continue
		}
		score := r.Score
		resp.Results = append(resp.Results, models.RowScore{Index: r.Index, Score: &score, IsAnomaly: r.IsAnomaly})
	}
	return resp
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("cannot execute command")
	}
}
