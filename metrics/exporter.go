package metrics

import (
	"time"

	"github.com/ticket721/actionset/logger"
	"go.opencensus.io/stats/view"
	"go.uber.org/zap"
)

// LogExporter writes every reported view row to the process logger.
type LogExporter struct{}

var _ view.Exporter = new(LogExporter)

func (e *LogExporter) ExportView(vd *view.Data) {
	for _, row := range vd.Rows {
		fields := []zap.Field{zap.String("view", vd.View.Name)}
		for _, t := range row.Tags {
			fields = append(fields, zap.String(t.Key.Name(), t.Value))
		}
		switch data := row.Data.(type) {
		case *view.CountData:
			fields = append(fields, zap.Int64("count", data.Value))
		case *view.SumData:
			fields = append(fields, zap.Float64("sum", data.Value))
		case *view.DistributionData:
			fields = append(fields, zap.Int64("count", data.Count), zap.Float64("mean", data.Mean), zap.Float64("max", data.Max))
		}
		logger.Info("metrics", fields...)
	}
}

// StartExporter registers the log exporter and returns a func that
// unregisters it.
func StartExporter(period time.Duration) func() {
	exporter := &LogExporter{}
	view.RegisterExporter(exporter)
	if period > 0 {
		view.SetReportingPeriod(period)
	}
	return func() {
		view.UnregisterExporter(exporter)
	}
}
