// Package worker implements the estimate worker (C8): a long-lived,
// horizontally-scalable dequeue loop that resolves photo URLs, invokes the
// estimator, persists and delivers the result, and records telemetry.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"caloriebot/internal/analytics"
	"caloriebot/internal/chatapi"
	"caloriebot/internal/estimator"
	"caloriebot/internal/inline"
	"caloriebot/internal/obslog"
	"caloriebot/internal/objectstore"
	"caloriebot/internal/queue"
	"caloriebot/internal/telemetry"
)

// Estimator is the narrow estimation contract the worker depends on,
// satisfied by *estimator.Estimator in production and a fake in tests.
type Estimator interface {
	EstimateFromPhotos(ctx context.Context, urls []string, description string) (inline.EstimateResult, error)
}

// ChatSender is the narrow delivery contract the worker depends on,
// satisfied by *chatapi.Client in production and a fake in tests.
type ChatSender interface {
	SendMessage(ctx context.Context, chatID int64, threadID, replyToMessageID *int64, text string) error
}

const (
	dequeueTimeout   = 10 * time.Second
	backoffFloor     = 100 * time.Millisecond
	backoffCeiling   = 10 * time.Second
)

// MealStore is the narrow persistence contract the worker needs from A4.
type MealStore interface {
	Save(ctx context.Context, jobID, chatIDHash string, result inline.EstimateResult) error
}

// Dependencies wires the worker's collaborators.
type Dependencies struct {
	Queue     *queue.Queue
	Uploader  objectstore.PresignedUploader
	Estimator Estimator
	Meals     MealStore
	Chat      ChatSender
	Telemetry *telemetry.Registry
	Analytics *analytics.Aggregator
}

const genericFailureMessage = "Sorry, I couldn't estimate calories for that photo. Please try again."
const redactedGroupFailureMessage = "I had trouble analyzing that photo and couldn't post a result in the group."

// Worker is one instance of C8's stateless dequeue loop. Multiple Workers
// run concurrently against the same queue.
type Worker struct {
	deps    Dependencies
	backoff time.Duration
}

// New builds a Worker.
func New(deps Dependencies) *Worker {
	return &Worker{deps: deps, backoff: backoffFloor}
}

// Run blocks, dequeuing and processing jobs until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.deps.Queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("queue dequeue failed; backing off")
			w.sleepBackoff(ctx)
			continue
		}
		w.backoff = backoffFloor
		if job == nil {
			continue
		}

		w.process(ctx, *job)
	}
}

func (w *Worker) sleepBackoff(ctx context.Context) {
	select {
	case <-time.After(w.backoff):
	case <-ctx.Done():
	}
	w.backoff *= 2
	if w.backoff > backoffCeiling {
		w.backoff = backoffCeiling
	}
}

func (w *Worker) process(ctx context.Context, job inline.EstimateJob) {
	fields := obslog.Fields{
		CorrelationID: job.JobID,
		Trigger:       job.TriggerType,
		ChatType:      job.ChatType,
		UserHash:      job.SourceUserHash,
	}
	fields.Stage = inline.StageDequeued
	obslog.Stage(ctx, fields, "job dequeued")

	urls, err := w.resolveURLs(ctx, job.PhotoFileIDs)
	if err != nil {
		w.fail(ctx, job, fields, inline.ReasonProcessingError, err)
		return
	}

	fields.Stage = inline.StageAnalysisStarted
	obslog.Stage(ctx, fields, "analysis started")

	result, err := w.deps.Estimator.EstimateFromPhotos(ctx, urls, job.Caption)
	resultLatency := time.Since(job.EnqueuedAt)
	if err != nil {
		w.fail(ctx, job, fields, classifyFailure(err), err)
		return
	}

	fields.Stage = inline.StageAnalysisCompleted
	obslog.Stage(ctx, fields, "analysis completed")

	if err := w.deps.Meals.Save(ctx, job.JobID, job.ChatIDHash, result); err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("meal persistence failed")
	}

	if err := w.deliver(ctx, job, result); err != nil {
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("result delivery failed")
	} else {
		fields.Stage = inline.StageDeliveryCompleted
		obslog.Stage(ctx, fields, "delivery completed")
	}

	w.deps.Telemetry.RecordResultLatency(job.TriggerType, float64(resultLatency.Milliseconds()))
	w.deps.Analytics.RecordRequest(today(), job.ChatType, job.TriggerType, true, "", float64(resultLatency.Milliseconds()))
}

func (w *Worker) resolveURLs(ctx context.Context, fileIDs []string) ([]string, error) {
	urls := make([]string, 0, len(fileIDs))
	for _, id := range fileIDs {
		url, err := w.deps.Uploader.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve photo %q: %w", id, err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func (w *Worker) deliver(ctx context.Context, job inline.EstimateJob, result inline.EstimateResult) error {
	text := formatResult(result)
	switch job.TriggerType {
	case inline.TriggerPrivatePhoto, inline.TriggerInlineQuery:
		return w.deps.Chat.SendMessage(ctx, job.RawChatID, nil, nil, text)
	case inline.TriggerReplyMention, inline.TriggerDirectMention:
		return w.deps.Chat.SendMessage(ctx, job.RawChatID, job.ThreadID, job.ReplyToMessageID, text)
	default:
		return fmt.Errorf("worker: unknown trigger type %q", job.TriggerType)
	}
}

func (w *Worker) fail(ctx context.Context, job inline.EstimateJob, fields obslog.Fields, reason inline.FailureReason, cause error) {
	w.deps.Telemetry.RecordFailure(job.TriggerType, reason)
	w.deps.Analytics.RecordRequest(today(), job.ChatType, job.TriggerType, false, reason, 0)
	obslog.Failure(ctx, fields, reason, cause)

	if job.Metadata.FailureDMRequired && job.ConsentScope == inline.ConsentInlineGroup {
		if err := w.deps.Chat.SendMessage(ctx, job.SourceUserID, nil, nil, redactedGroupFailureMessage); err != nil {
			var permErr *chatapi.PermissionError
			if errors.As(err, &permErr) {
				w.deps.Telemetry.RecordPermissionBlock(job.TriggerType, job.ChatType)
				w.deps.Analytics.RecordPermissionBlock(today(), job.ChatType)
			}
		}
		return
	}

	if err := w.deps.Chat.SendMessage(ctx, job.RawChatID, job.ThreadID, job.ReplyToMessageID, genericFailureMessage); err != nil {
		var permErr *chatapi.PermissionError
		if errors.As(err, &permErr) {
			w.deps.Telemetry.RecordPermissionBlock(job.TriggerType, job.ChatType)
			w.deps.Analytics.RecordPermissionBlock(today(), job.ChatType)
		}
	}
}

// today returns the current UTC date in the "YYYY-MM-DD" key analytics
// buckets are indexed by.
func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func classifyFailure(err error) inline.FailureReason {
	var fe *estimator.FailureError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return inline.ReasonProcessingError
}

func formatResult(r inline.EstimateResult) string {
	msg := fmt.Sprintf("Estimated calories: %.0f kcal (range %.0f-%.0f)\nProtein %.0fg · Carbs %.0fg · Fats %.0fg",
		r.CaloriesMean, r.CaloriesMin, r.CaloriesMax,
		r.Macronutrients.ProteinG, r.Macronutrients.CarbsG, r.Macronutrients.FatsG)
	if r.LowConfidence {
		msg += "\n(low confidence — consider adding a short description next time)"
	}
	return msg
}
