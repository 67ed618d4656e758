// Package inline holds the data model shared across the inline-analysis
// pipeline: the webhook dispatcher (C6), trigger classifier (C5), job queue
// (C3), estimate worker (C8), and inline analytics aggregator (C9) all
// exchange these types rather than redefining their own.
package inline

import "time"

// TriggerType is the shape of user intent that set an estimation job in motion.
type TriggerType string

const (
	TriggerInlineQuery    TriggerType = "inline_query"
	TriggerReplyMention   TriggerType = "reply_mention"
	TriggerDirectMention  TriggerType = "direct_mention"
	TriggerPrivatePhoto   TriggerType = "private_photo"
)

// ChatType mirrors the messaging platform's chat classification.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
)

// ConsentScope governs whether the job was authorized under private or
// in-group consent rules.
type ConsentScope string

const (
	ConsentInlinePrivate ConsentScope = "inline_private"
	ConsentInlineGroup   ConsentScope = "inline_group"
)

// FailureReason is the closed taxonomy every worker/estimator failure maps
// to exactly one of. The same literal values flow through telemetry, logs,
// and analytics without being re-stringified at each boundary.
type FailureReason string

const (
	ReasonInvalidInput     FailureReason = "invalid_input"
	ReasonPermissionDenied FailureReason = "permission_denied"
	ReasonTimeout          FailureReason = "timeout"
	ReasonModelError       FailureReason = "model_error"
	ReasonProcessingError  FailureReason = "processing_error"
	ReasonQuotaExhausted   FailureReason = "quota_exhausted"
)

// InlineStage tags where in the pipeline a structured log line was emitted.
type InlineStage string

const (
	StageDequeued           InlineStage = "dequeued"
	StageAnalysisStarted    InlineStage = "analysis_started"
	StageAnalysisCompleted  InlineStage = "analysis_completed"
	StageDeliveryCompleted  InlineStage = "delivery_completed"
	StageFailed             InlineStage = "failed"
)

// TriggerDecision is C5's output: what kind of job (if any) an update implies.
type TriggerDecision struct {
	TriggerType      TriggerType
	ChatType         ChatType
	ConsentScope     ConsentScope
	ChatID           int64
	ThreadID         *int64
	ReplyToMessageID *int64
	PhotoFileIDs     []string
	Caption          string
	SourceUserID     int64
	InlineQueryID    string
	Metadata         map[string]any
}

// EstimateJob is the durable record enqueued to the job queue (C3) and
// dequeued by the estimate worker (C8).
type EstimateJob struct {
	JobID            string       `json:"job_id"`
	TriggerType      TriggerType  `json:"trigger_type"`
	ChatType         ChatType     `json:"chat_type"`
	RawChatID        int64        `json:"raw_chat_id"`
	ThreadID         *int64       `json:"thread_id,omitempty"`
	ReplyToMessageID *int64       `json:"reply_to_message_id,omitempty"`
	PhotoFileIDs     []string     `json:"photo_file_ids"`
	DisplayOrder     []int        `json:"display_order,omitempty"`
	Caption          string       `json:"caption,omitempty"`
	SourceUserID     int64        `json:"source_user_id"`
	SourceUserHash   string       `json:"source_user_hash"`
	ChatIDHash       string       `json:"chat_id_hash"`
	ConsentScope     ConsentScope `json:"consent_scope"`
	Metadata         JobMetadata  `json:"metadata"`
	EnqueuedAt       time.Time    `json:"enqueued_at"`
}

// JobMetadata is the free-form bag of side-channel flags §3 names.
type JobMetadata struct {
	PrivacyNotice      bool   `json:"privacy_notice,omitempty"`
	FailureDMRequired  bool   `json:"failure_dm_required,omitempty"`
	PlaceholderMessageID *int64 `json:"placeholder_message_id,omitempty"`
}

// MacroNutrients breaks down an estimate's protein/carbs/fats in grams.
type MacroNutrients struct {
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatsG    float64 `json:"fats_g"`
}

// EstimateItem is a single food item identified within a photo estimate.
type EstimateItem struct {
	Label   string  `json:"label"`
	Portion string  `json:"portion"`
	Kcal    float64 `json:"kcal"`
}

// EstimateResult is produced by the estimator adapter (C7).
type EstimateResult struct {
	CaloriesMean    float64        `json:"calories_mean"`
	CaloriesMin     float64        `json:"calories_min"`
	CaloriesMax     float64        `json:"calories_max"`
	Macronutrients  MacroNutrients `json:"macronutrients"`
	Items           []EstimateItem `json:"items"`
	Confidence      float64        `json:"confidence"`
	ModelLatencyMS  int64          `json:"model_latency_ms"`
	LowConfidence   bool           `json:"low_confidence,omitempty"`
}

// Valid reports whether the result satisfies the ordering invariant from §3:
// calories_min <= calories_mean <= calories_max.
func (r EstimateResult) Valid() bool {
	return r.CaloriesMin <= r.CaloriesMean && r.CaloriesMean <= r.CaloriesMax
}

// PermissionNotice is the one-shot, TTL-bounded "we already told this user"
// marker the permission-notice store (C2) persists.
type PermissionNotice struct {
	ChatIDHash     string    `json:"chat_id_hash"`
	SourceUserHash string    `json:"source_user_hash"`
	LastNotifiedAt time.Time `json:"last_notified_at"`
}

// FailureReasonCount pairs a failure reason with how many times it occurred,
// used inside InlineAnalyticsDaily.
type FailureReasonCount struct {
	Reason FailureReason `json:"reason"`
	Count  int           `json:"count"`
}

// InlineAnalyticsDaily is a per-day, per-chat-type rollup of C1's
// telemetry events, queried by the analytics endpoint.
type InlineAnalyticsDaily struct {
	Date                      string               `json:"date"`
	ChatType                  ChatType             `json:"chat_type"`
	TriggerCounts             map[TriggerType]int  `json:"trigger_counts"`
	RequestCount              int                  `json:"request_count"`
	SuccessCount              int                  `json:"success_count"`
	FailureCount              int                  `json:"failure_count"`
	PermissionBlockCount      int                  `json:"permission_block_count"`
	AvgAckLatencyMS           float64              `json:"avg_ack_latency_ms"`
	P95ResultLatencyMS        float64              `json:"p95_result_latency_ms"`
	AccuracyWithinTolerancePct float64             `json:"accuracy_within_tolerance_pct"`
	FailureReasons            []FailureReasonCount `json:"failure_reasons"`
	LastUpdatedAt             time.Time            `json:"last_updated_at"`
}

// InlineMetricsSnapshot is a read-only, copy-on-read projection of C1's
// windowed counters at a point in time.
type InlineMetricsSnapshot struct {
	SampleSize           int                    `json:"sample_size"`
	AckP95MS             float64                `json:"ack_p95_ms"`
	ResultP95MS          float64                `json:"result_p95_ms"`
	PermissionBlocks     int                    `json:"permission_blocks"`
	PermissionBlocksByChat map[ChatType]int     `json:"permission_blocks_by_chat"`
	FailureReasons       map[FailureReason]int  `json:"failure_reasons"`
	AvgAccuracyDeltaPct  float64                `json:"avg_accuracy_delta_pct"`
}
