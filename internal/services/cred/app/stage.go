package app

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/credrank/internal/platform/otel"
	"github.com/louisbranch/credrank/internal/platform/telemetry/metrics"
)

// Pipeline stage names, used for spans, logs and metrics.
const (
	StageLoad         = "load"
	StageMerge        = "merge"
	StageParticipants = "participants"
	StageBuild        = "build"
	StageCompute      = "compute"
	StageWrite        = "write"
	StageLedger       = "ledger"
	StageDistribute   = "distribute"
	StageRecord       = "record"
)

// runStage wraps fn in a span, a duration observation and a log line.
func runStage(ctx context.Context, recorder *metrics.Recorder, stage string, fn func(context.Context, trace.Span) error) error {
	ctx, span := otel.Tracer().Start(ctx, "credrank."+stage,
		trace.WithAttributes(attribute.String("credrank.stage", stage)),
	)
	defer span.End()

	started := time.Now()
	err := fn(ctx, span)
	elapsed := time.Since(started)
	recorder.ObserveStage(stage, elapsed, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage+" failed")
		log.Printf("stage %s failed after %s: %v", stage, elapsed.Round(time.Millisecond), err)
		return err
	}
	log.Printf("stage %s finished in %s", stage, elapsed.Round(time.Millisecond))
	return nil
}
