// Package trigger implements the trigger classifier (C5): it maps a
// decoded platform update onto one of the four inline-analysis triggers, or
// declines to classify it at all.
package trigger

import (
	"encoding/json"
	"strings"

	"caloriebot/internal/inline"
)

// MentionEntity describes a single @mention span within a message's text,
// as decoded from the platform's entities array.
type MentionEntity struct {
	Offset int
	Length int
	Text   string // the mention text itself, e.g. "@CalorieTrackAI_bot"
}

// Photo is the subset of a platform photo object the classifier and
// downstream pipeline need.
type Photo struct {
	FileID string
}

// ReplyTarget is the message a group reply points at.
type ReplyTarget struct {
	MessageID int64
	Photos    []Photo
}

// Update is the classifier's input: the decoded subset of an UpdateKind
// variant relevant to trigger classification. Exactly one of InlineQuery or
// Message should be populated.
type Update struct {
	ChatID   int64
	ChatType inline.ChatType
	ThreadID *int64
	SourceUserID int64

	// Message-shaped updates.
	MessageID int64
	Text      string
	Caption   string
	Entities  []MentionEntity
	Photos    []Photo
	ReplyTo   *ReplyTarget

	// Inline-query-shaped updates.
	InlineQueryID string
	InlineQuery   string
}

// BotMention is the exact mention text the classifier matches against,
// e.g. "@CalorieTrackAI_bot".
type BotMention string

// Classifier maps updates to trigger decisions.
type Classifier struct {
	mention BotMention
}

// New builds a Classifier that recognizes mentions of botMention.
func New(botMention BotMention) *Classifier {
	return &Classifier{mention: botMention}
}

// Classify returns the trigger implied by u, or (zero, false) if the update
// matches none of the recognized shapes.
func (c *Classifier) Classify(u Update) (inline.TriggerDecision, bool) {
	if u.InlineQueryID != "" {
		return c.classifyInlineQuery(u)
	}
	if len(u.Photos) > 0 || (u.ReplyTo != nil && len(u.ReplyTo.Photos) > 0) {
		return c.classifyMessage(u)
	}
	return inline.TriggerDecision{}, false
}

func (c *Classifier) classifyInlineQuery(u Update) (inline.TriggerDecision, bool) {
	if u.InlineQuery == "" || u.ChatType != inline.ChatPrivate {
		return inline.TriggerDecision{}, false
	}
	// A query of the form {"file_id": "..."} names the photo to analyse.
	var q struct {
		FileID string `json:"file_id"`
	}
	var photoIDs []string
	if err := json.Unmarshal([]byte(u.InlineQuery), &q); err == nil && q.FileID != "" {
		photoIDs = []string{q.FileID}
	}
	return inline.TriggerDecision{
		TriggerType:   inline.TriggerInlineQuery,
		ChatType:      inline.ChatPrivate,
		ConsentScope:  inline.ConsentInlinePrivate,
		ChatID:        u.ChatID,
		PhotoFileIDs:  photoIDs,
		SourceUserID:  u.SourceUserID,
		InlineQueryID: u.InlineQueryID,
		Metadata:      map[string]any{"privacy_notice": true},
	}, true
}

func (c *Classifier) classifyMessage(u Update) (inline.TriggerDecision, bool) {
	if u.ChatType == inline.ChatPrivate {
		if len(u.Photos) == 0 {
			return inline.TriggerDecision{}, false
		}
		return inline.TriggerDecision{
			TriggerType:  inline.TriggerPrivatePhoto,
			ChatType:     inline.ChatPrivate,
			ConsentScope: inline.ConsentInlinePrivate,
			ChatID:       u.ChatID,
			SourceUserID: u.SourceUserID,
			PhotoFileIDs: fileIDs(u.Photos),
			Caption:      u.Caption,
		}, true
	}

	// Group/supergroup: require a mention of the bot.
	if !c.mentioned(u) {
		return inline.TriggerDecision{}, false
	}

	if u.ReplyTo != nil && len(u.ReplyTo.Photos) > 0 {
		replyID := u.ReplyTo.MessageID
		return inline.TriggerDecision{
			TriggerType:      inline.TriggerReplyMention,
			ChatType:         u.ChatType,
			ConsentScope:     inline.ConsentInlineGroup,
			ChatID:           u.ChatID,
			ThreadID:         u.ThreadID,
			ReplyToMessageID: &replyID,
			PhotoFileIDs:     fileIDs(u.ReplyTo.Photos),
			SourceUserID:     u.SourceUserID,
			Metadata:         map[string]any{"failure_dm_required": true},
		}, true
	}

	if len(u.Photos) > 0 {
		replyID := u.MessageID
		return inline.TriggerDecision{
			TriggerType:      inline.TriggerDirectMention,
			ChatType:         u.ChatType,
			ConsentScope:     inline.ConsentInlineGroup,
			ChatID:           u.ChatID,
			ThreadID:         u.ThreadID,
			ReplyToMessageID: &replyID,
			PhotoFileIDs:     fileIDs(u.Photos),
			Caption:          u.Caption,
			SourceUserID:     u.SourceUserID,
		}, true
	}

	return inline.TriggerDecision{}, false
}

// mentioned reports whether a mention entity names the bot: its text equals
// the bot mention, or the message text at the entity's offset begins with it.
func (c *Classifier) mentioned(u Update) bool {
	runes := []rune(u.Text)
	for _, e := range u.Entities {
		if e.Text == string(c.mention) {
			return true
		}
		if c.mention != "" && e.Offset >= 0 && e.Offset < len(runes) &&
			strings.HasPrefix(string(runes[e.Offset:]), string(c.mention)) {
			return true
		}
	}
	return false
}

func fileIDs(photos []Photo) []string {
	ids := make([]string, len(photos))
	for i, p := range photos {
		ids[i] = p.FileID
	}
	return ids
}
