// Package webhook implements the webhook dispatcher (C6): the HTTP entry
// point that classifies an incoming platform update, validates it, marks
// permission notices, enqueues an estimation job, and fires the
// side-effect sends described in spec §4.6.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"caloriebot/internal/analytics"
	"caloriebot/internal/chatapi"
	"caloriebot/internal/inline"
	"caloriebot/internal/mediagroup"
	"caloriebot/internal/notice"
	"caloriebot/internal/queue"
	"caloriebot/internal/telemetry"
	"caloriebot/internal/trigger"
)

const (
	privacyNoticeText = "Privacy notice: photos you submit are analyzed by a vision model and not retained beyond estimation. View the inline usage guide for details."
	groupPlaceholderText = "Got it — estimating calories for this photo. I'll reply here shortly."
)

// Response is C6's wire response per spec §6.
type Response struct {
	Status      string             `json:"status"`
	JobID       string             `json:"job_id,omitempty"`
	TriggerType inline.TriggerType `json:"trigger_type,omitempty"`
	Message     string             `json:"message,omitempty"`
}

// Dependencies wires the collaborators the dispatcher delegates to.
type Dependencies struct {
	Classifier *trigger.Classifier
	Queue      *queue.Queue
	Notices    *notice.Store
	Telemetry  *telemetry.Registry
	Analytics  *analytics.Aggregator
	Chat       *chatapi.Client
	HashSalt   string
}

// Dispatcher is C6.
type Dispatcher struct {
	deps       Dependencies
	aggregator *mediagroup.Aggregator

	mu       sync.Mutex
	groupCtx map[string]trigger.Update
}

// New builds a Dispatcher.
func New(deps Dependencies) *Dispatcher {
	d := &Dispatcher{
		deps:     deps,
		groupCtx: make(map[string]trigger.Update),
	}
	d.aggregator = mediagroup.New(d.onGroupFinal, d.onGroupOverflow)
	return d
}

// Handle processes one raw webhook body and returns the JSON response plus
// the HTTP status to send. Parse failures and unclassifiable updates are
// "ignored" with HTTP 200, per spec §4.6 step 1 — the platform must not
// retry a shape it will never understand.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) (Response, int) {
	start := time.Now()

	du, err := decodeUpdate(body)
	if err != nil || !du.Usable {
		return Response{Status: "ignored"}, 200
	}

	if du.IsMediaGroup {
		d.mu.Lock()
		d.groupCtx[du.MediaGroupID] = du.GroupContext
		d.mu.Unlock()
		d.aggregator.Add(du.MediaGroupID, du.PhotoUpdate, 0)
		return Response{Status: "buffered"}, 200
	}

	decision, ok := d.deps.Classifier.Classify(du.Update)
	if !ok {
		return Response{Status: "ignored"}, 200
	}

	resp, status := d.process(ctx, decision)
	d.deps.Telemetry.RecordAckLatency(decision.TriggerType, float64(time.Since(start).Milliseconds()))
	return resp, status
}

// onGroupFinal is invoked by the aggregator (on its own goroutine) once a
// media group resolves. It resumes the dispatcher pipeline from
// classification onward, per spec §4.6 step 2's "the aggregator schedules
// downstream processing".
func (d *Dispatcher) onGroupFinal(group mediagroup.FinalizedGroup) {
	d.mu.Lock()
	ctxUpdate, ok := d.groupCtx[group.MediaGroupID]
	delete(d.groupCtx, group.MediaGroupID)
	d.mu.Unlock()
	if !ok {
		return
	}

	photos := make([]trigger.Photo, 0, len(group.Photos))
	for _, p := range group.Photos {
		photos = append(photos, trigger.Photo{FileID: p.FileID})
	}
	ctxUpdate.Photos = photos
	if ctxUpdate.ReplyTo != nil {
		ctxUpdate.ReplyTo.Photos = photos
	}
	if group.Caption != "" {
		ctxUpdate.Caption = group.Caption
	}

	decision, ok := d.deps.Classifier.Classify(ctxUpdate)
	if !ok {
		return
	}

	background := context.Background()
	if _, status := d.process(background, decision); status >= 300 {
		log.Warn().Str("media_group_id", group.MediaGroupID).Int("status", status).Msg("media group processing failed validation")
	}
}

func (d *Dispatcher) onGroupOverflow(mediaGroupID, fileID string) {
	log.Warn().Str("media_group_id", mediaGroupID).Str("file_id", fileID).Msg("media group exceeded 5-photo retention cap; photo dropped")
}

func (d *Dispatcher) process(ctx context.Context, decision inline.TriggerDecision) (Response, int) {
	if err := mediagroup.ValidatePhotoCount(len(decision.PhotoFileIDs)); err != nil {
		var valErr *mediagroup.ValidationError
		message := err.Error()
		if errors.As(err, &valErr) {
			message = valErr.Message
		}
		if sendErr := d.deps.Chat.SendMessage(ctx, decision.ChatID, decision.ThreadID, decision.ReplyToMessageID, message); sendErr != nil {
			log.Warn().Err(sendErr).Msg("photo-limit notice delivery failed")
		}
		d.deps.Analytics.RecordRequest(today(), decision.ChatType, decision.TriggerType, false, inline.ReasonInvalidInput, 0)
		return Response{Status: "ignored", Message: message}, 400
	}

	displayOrder := make([]int, len(decision.PhotoFileIDs))
	for i := range decision.PhotoFileIDs {
		if err := mediagroup.ValidateDisplayOrder(i); err != nil {
			log.Warn().Err(err).Msg("photo display order out of range")
		}
		displayOrder[i] = i
	}

	chatHash := inline.HashID(d.deps.HashSalt, decision.ChatID)
	userHash := inline.HashID(d.deps.HashSalt, decision.SourceUserID)

	isGroupTrigger := decision.TriggerType == inline.TriggerReplyMention || decision.TriggerType == inline.TriggerDirectMention
	if isGroupTrigger && d.deps.Notices.Due(ctx, chatHash, userHash) {
		if err := d.deps.Chat.SendPlaceholder(ctx, decision.ChatID, decision.ThreadID, decision.ReplyToMessageID, groupPlaceholderText); err != nil {
			log.Warn().Err(err).Msg("permission notice placeholder delivery failed")
		}
		if _, err := d.deps.Notices.Mark(ctx, chatHash, userHash); err != nil {
			log.Warn().Err(err).Msg("permission notice mark failed")
		}
	}

	job := inline.EstimateJob{
		TriggerType:      decision.TriggerType,
		ChatType:         decision.ChatType,
		RawChatID:        decision.ChatID,
		ThreadID:         decision.ThreadID,
		ReplyToMessageID: decision.ReplyToMessageID,
		PhotoFileIDs:     decision.PhotoFileIDs,
		DisplayOrder:     displayOrder,
		Caption:          decision.Caption,
		SourceUserID:     decision.SourceUserID,
		SourceUserHash:   userHash,
		ChatIDHash:       chatHash,
		ConsentScope:     decision.ConsentScope,
		Metadata: inline.JobMetadata{
			PrivacyNotice:     boolMeta(decision.Metadata, "privacy_notice"),
			FailureDMRequired: boolMeta(decision.Metadata, "failure_dm_required"),
		},
	}

	var jobID string
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		id, err := d.deps.Queue.Enqueue(gctx, job)
		if err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}
		jobID = id
		return nil
	})
	group.Go(func() error {
		d.sideEffects(gctx, decision)
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("webhook dispatch failed")
		return Response{Status: "ignored"}, 500
	}

	return Response{Status: "ok", JobID: jobID, TriggerType: decision.TriggerType}, 200
}

// sideEffects fires the platform-facing sends named in spec §4.6 step 8.
// Delivery errors are logged, not propagated — a failed placeholder send
// must not block enqueueing or the ack response.
func (d *Dispatcher) sideEffects(ctx context.Context, decision inline.TriggerDecision) {
	switch decision.TriggerType {
	case inline.TriggerReplyMention, inline.TriggerDirectMention:
		if err := d.deps.Chat.SendPlaceholder(ctx, decision.ChatID, decision.ThreadID, decision.ReplyToMessageID, groupPlaceholderText); err != nil {
			log.Warn().Err(err).Msg("group placeholder send failed")
		}
	case inline.TriggerInlineQuery:
		text := fmt.Sprintf("%s\nView the inline usage guide for help getting the best estimate.", privacyNoticeText)
		if err := d.deps.Chat.AnswerInlineQuery(ctx, decision.InlineQueryID, text); err != nil {
			log.Warn().Err(err).Msg("inline query acknowledgement failed")
		}
	}
}

// today returns the current UTC date in the "YYYY-MM-DD" key analytics
// buckets are indexed by.
func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func boolMeta(meta map[string]any, key string) bool {
	v, ok := meta[key].(bool)
	return ok && v
}

// MarshalResponse is a small helper so handlers can write Response values
// without importing encoding/json directly.
func MarshalResponse(r Response) ([]byte, error) {
	return json.Marshal(r)
}
