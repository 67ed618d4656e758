// Package obslog is the inline pipeline's logging context (C10): every
// event logged through it carries the same structured fields, never
// string-interpolated, so operators can filter and correlate by job. The
// estimate worker logs its stages through this package; the webhook
// dispatcher and the media-group aggregator log through zerolog directly,
// without these fields.
package obslog

import (
	"context"

	"github.com/rs/zerolog"

	"caloriebot/internal/inline"
	"caloriebot/internal/observability"
)

// Fields carries the structured context attached to every inline-pipeline
// log line.
type Fields struct {
	CorrelationID string // job_id once allocated, else update_id
	Trigger       inline.TriggerType
	Stage         inline.InlineStage
	ChatType      inline.ChatType
	UserHash      string
}

// Logger returns a zerolog.Logger pre-populated with f's fields, enriched
// with trace context from ctx when present.
func Logger(ctx context.Context, f Fields) zerolog.Logger {
	base := observability.LoggerWithTrace(ctx)
	ctxLogger := base.With().
		Str("correlation_id", f.CorrelationID).
		Str("inline_trigger", string(f.Trigger)).
		Str("inline_stage", string(f.Stage)).
		Str("chat_type", string(f.ChatType)).
		Str("source_user_hash", f.UserHash).
		Logger()
	return ctxLogger
}

// Stage logs a single structured event at the given stage, using msg as the
// static log message (never interpolated with field values).
func Stage(ctx context.Context, f Fields, msg string) {
	Logger(ctx, f).Info().Msg(msg)
}

// Failure logs a failed stage with the classified reason attached.
func Failure(ctx context.Context, f Fields, reason inline.FailureReason, err error) {
	f.Stage = inline.StageFailed
	Logger(ctx, f).Error().Str("failure_reason", string(reason)).Err(err).Msg("inline pipeline stage failed")
}
