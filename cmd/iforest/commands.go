package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/todmy/isoforest/internal/anomaly"
	"github.com/todmy/isoforest/internal/config"
	"github.com/todmy/isoforest/pkg/iforest"
)

// iforest fit --trees 100 --sample-size 256 -o model.json train.csv
var fitCmd = &cobra.Command{
	Use:   "fit <train.csv>",
	Short: "fit a detector and write it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadTable(args[0])
		if err != nil {
			return err
		}

		anomalyConfig, err := config.Anomaly()
		if err != nil {
			return err
		}

		detector, err := anomaly.NewService(anomalyConfig, observer()).Train(table.Matrix)
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"rows":        table.Matrix.Rows(),
			"columns":     table.Columns,
			"sample_size": detector.Forest().SampleSize(),
			"trees":       detector.Forest().NTrees(),
		}).Info("detector fitted")

		return withOutput(detector.Encode)
	},
}

// iforest score --model model.json data.csv
var scoreCmd = &cobra.Command{
	Use:   "score <data.csv>",
	Short: "score rows with a fitted detector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(viper.GetString("model"))
		if err != nil {
			return err
		}
		detector, err := anomaly.Decode(f, iforest.WithObserver(observer()))
		f.Close()
		if err != nil {
			return err
		}

		table, err := loadTable(args[0])
		if err != nil {
			return err
		}

		results, err := detector.Detect(table.Matrix)
		if err != nil {
			return err
		}
		return writeJSON(scoreResponse(results, viper.GetBool("only-anomalies")))
	},
}

// iforest detect --detector ensemble data.csv
var detectCmd = &cobra.Command{
	Use:   "detect <data.csv>",
	Short: "fit on a file and score the same rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadTable(args[0])
		if err != nil {
			return err
		}

		anomalyConfig, err := config.Anomaly()
		if err != nil {
			return err
		}

		results, err := anomaly.NewService(anomalyConfig, observer()).DetectAnomalies(table.Matrix, table.Matrix)
		if err != nil {
			return err
		}
		return writeJSON(scoreResponse(results, viper.GetBool("only-anomalies")))
	},
}

func init() {
	config.RegisterAnomalyFlags(fitCmd)

	scoreCmd.Flags().String("model", "model.json", "detector written by fit")
	scoreCmd.Flags().Bool("only-anomalies", false, "print only rows flagged as anomalies")

	config.RegisterAnomalyFlags(detectCmd)
	detectCmd.Flags().Bool("only-anomalies", false, "print only rows flagged as anomalies")
}
