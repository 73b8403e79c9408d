package metrics

import (
	"context"
	"time"

	"github.com/ticket721/actionset/logger"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"go.uber.org/zap"
)

const OUTCOME_SUCCESS = "success"
const OUTCOME_FAILURE = "failure"
const OUTCOME_SKIPPED = "skipped"

var (
	KeyQueue   = tag.MustNewKey("queue")
	KeyOutcome = tag.MustNewKey("outcome")

	jobs         = stats.Int64("actionset/jobs", "Number of processed jobs", stats.UnitDimensionless)
	jobLatency   = stats.Float64("actionset/job_latency", "Job processing time", stats.UnitMilliseconds)
	redispatched = stats.Int64("actionset/redispatched", "Number of event ActionSets re-dispatched by the scheduler", stats.UnitDimensionless)
)

var JobCountView = &view.View{
	Name:        "actionset/jobs",
	Measure:     jobs,
	Description: "Processed jobs by queue and outcome",
	TagKeys:     []tag.Key{KeyQueue, KeyOutcome},
	Aggregation: view.Count(),
}

var JobLatencyView = &view.View{
	Name:        "actionset/job_latency",
	Measure:     jobLatency,
	Description: "Job processing time distribution by queue",
	TagKeys:     []tag.Key{KeyQueue},
	Aggregation: view.Distribution(1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000),
}

var RedispatchedView = &view.View{
	Name:        "actionset/redispatched",
	Measure:     redispatched,
	Description: "Event ActionSets re-dispatched by the scheduler",
	Aggregation: view.Sum(),
}

var DefaultViews = []*view.View{JobCountView, JobLatencyView, RedispatchedView}

func Register() error {
	return view.Register(DefaultViews...)
}

func RecordJob(ctx context.Context, queue string, outcome string, took time.Duration) {
	err := stats.RecordWithTags(ctx,
		[]tag.Mutator{tag.Upsert(KeyQueue, queue), tag.Upsert(KeyOutcome, outcome)},
		jobs.M(1), jobLatency.M(float64(took)/float64(time.Millisecond)),
	)
	if err != nil {
		logger.Warn("error recording job metrics", zap.String("queue", queue), zap.Error(err))
	}
}

func RecordRedispatched(ctx context.Context, count int) {
	stats.Record(ctx, redispatched.M(int64(count)))
}
