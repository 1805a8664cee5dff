// Package telemetry adapts forest diagnostics to logs and metrics.
package telemetry

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/todmy/isoforest/pkg/iforest"
)

// LogObserver writes forest diagnostics to a logrus entry.
type LogObserver struct {
	log *logrus.Entry
}

// NewLogObserver creates an observer logging through entry. A nil entry
// uses the standard logger.
func NewLogObserver(entry *logrus.Entry) *LogObserver {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogObserver{log: entry.WithField("component", "iforest")}
}

func fitFields(info iforest.FitInfo) logrus.Fields {
	return logrus.Fields{
		"rows":         info.Rows,
		"cols":         info.Cols,
		"sample_size":  info.SampleSize,
		"trees":        info.Trees,
		"height_limit": info.HeightLimit,
	}
}

func (o *LogObserver) FitStarted(info iforest.FitInfo) {
	o.log.WithFields(fitFields(info)).Debug("fit started")
}

func (o *LogObserver) FitFinished(info iforest.FitInfo, elapsed time.Duration, err error) {
	entry := o.log.WithFields(fitFields(info)).WithField("elapsed", elapsed)
	if err != nil {
		entry.WithError(err).Error("fit failed")
		return
	}
	entry.Info("fit finished")
}

func (o *LogObserver) Scored(rows int, elapsed time.Duration) {
	o.log.WithFields(logrus.Fields{"rows": rows, "elapsed": elapsed}).Debug("rows scored")
}

func (o *LogObserver) RowRejected(row int, err error) {
	o.log.WithField("row", row).WithError(err).Warn("row rejected")
}

// Multi fans diagnostics out to several observers in order.
type Multi []iforest.Observer

func (m Multi) FitStarted(info iforest.FitInfo) {
	for _, o := range m {
		o.FitStarted(info)
	}
}

func (m Multi) FitFinished(info iforest.FitInfo, elapsed time.Duration, err error) {
	for _, o := range m {
		o.FitFinished(info, elapsed, err)
	}
}

func (m Multi) Scored(rows int, elapsed time.Duration) {
	for _, o := range m {
		o.Scored(rows, elapsed)
	}
}

func (m Multi) RowRejected(row int, err error) {
	for _, o := range m {
		o.RowRejected(row, err)
	}
}

// Default returns the observer used by the binaries: logs plus metrics.
func Default(entry *logrus.Entry) iforest.Observer {
	return Multi{NewLogObserver(entry), MetricsObserver{}}
}
