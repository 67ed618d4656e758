package webhook

import (
	"encoding/json"
	"time"

	"caloriebot/internal/inline"
	"caloriebot/internal/mediagroup"
	"caloriebot/internal/trigger"
)

// rawUpdate is the deeply-optional, weakly-typed platform payload per spec
// §9's design note. Unknown fields are ignored by encoding/json by default;
// unknown shapes (neither message nor inline_query) decode to a zero value
// that Dispatcher.Handle ignores before classification, not treated as an
// error.
type rawUpdate struct {
	UpdateID    int64            `json:"update_id"`
	Message     *rawMessage      `json:"message"`
	InlineQuery *rawInlineQuery  `json:"inline_query"`
}

type rawChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type rawUser struct {
	ID int64 `json:"id"`
}

type rawPhotoSize struct {
	FileID string `json:"file_id"`
}

type rawEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

type rawMessage struct {
	MessageID       int64          `json:"message_id"`
	MessageThreadID *int64         `json:"message_thread_id"`
	MediaGroupID    string         `json:"media_group_id"`
	Caption         string         `json:"caption"`
	Text            string         `json:"text"`
	Chat            rawChat        `json:"chat"`
	From            *rawUser       `json:"from"`
	Entities        []rawEntity    `json:"entities"`
	Photo           []rawPhotoSize `json:"photo"`
	ReplyToMessage  *rawMessage    `json:"reply_to_message"`
}

type rawInlineQuery struct {
	ID       string  `json:"id"`
	Query    string  `json:"query"`
	ChatType string  `json:"chat_type"`
	From     rawUser `json:"from"`
}

// decoded is the intermediate shape between JSON decoding and
// classification: either a direct trigger.Update, or a pending media-group
// photo awaiting aggregation.
type decoded struct {
	IsMediaGroup bool
	MediaGroupID string
	PhotoUpdate  mediagroup.PhotoUpdate
	GroupContext trigger.Update // context to classify against once the group finalizes

	Update trigger.Update // populated when !IsMediaGroup
	Usable bool           // false for unknown/unhandled shapes
}

func decodeUpdate(body []byte) (decoded, error) {
	var raw rawUpdate
	if err := json.Unmarshal(body, &raw); err != nil {
		return decoded{}, err
	}

	if raw.InlineQuery != nil {
		return decoded{
			Usable: true,
			Update: trigger.Update{
				ChatType:      chatTypeOf(raw.InlineQuery.ChatType),
				SourceUserID:  raw.InlineQuery.From.ID,
				InlineQueryID: raw.InlineQuery.ID,
				InlineQuery:   raw.InlineQuery.Query,
			},
		}, nil
	}

	if raw.Message == nil {
		return decoded{}, nil
	}
	m := raw.Message

	var userID int64
	if m.From != nil {
		userID = m.From.ID
	}

	base := trigger.Update{
		ChatID:       m.Chat.ID,
		ChatType:     chatTypeOf(m.Chat.Type),
		ThreadID:     m.MessageThreadID,
		SourceUserID: userID,
		MessageID:    m.MessageID,
		Text:         m.Text,
		Caption:      m.Caption,
		Entities:     entitiesOf(m.Text, m.Entities),
		Photos:       photosOf(m.Photo),
	}
	if m.ReplyToMessage != nil {
		base.ReplyTo = &trigger.ReplyTarget{
			MessageID: m.ReplyToMessage.MessageID,
			Photos:    photosOf(m.ReplyToMessage.Photo),
		}
	}

	if m.MediaGroupID != "" {
		var fileID string
		if len(m.Photo) > 0 {
			fileID = m.Photo[len(m.Photo)-1].FileID
		}
		return decoded{
			Usable:       true,
			IsMediaGroup: true,
			MediaGroupID: m.MediaGroupID,
			GroupContext: base,
			PhotoUpdate: mediagroup.PhotoUpdate{
				MessageID: m.MessageID,
				FileID:    fileID,
				Caption:   m.Caption,
				Arrived:   time.Now().UTC(),
			},
		}, nil
	}

	return decoded{Usable: true, Update: base}, nil
}

func chatTypeOf(s string) inline.ChatType {
	switch s {
	case "private":
		return inline.ChatPrivate
	case "group":
		return inline.ChatGroup
	case "supergroup":
		return inline.ChatSupergroup
	default:
		return inline.ChatType(s)
	}
}

func entitiesOf(text string, raw []rawEntity) []trigger.MentionEntity {
	out := make([]trigger.MentionEntity, 0, len(raw))
	runes := []rune(text)
	for _, e := range raw {
		if e.Type != "mention" {
			continue
		}
		end := e.Offset + e.Length
		if e.Offset < 0 || end > len(runes) {
			continue
		}
		out = append(out, trigger.MentionEntity{
			Offset: e.Offset,
			Length: e.Length,
			Text:   string(runes[e.Offset:end]),
		})
	}
	return out
}

func photosOf(raw []rawPhotoSize) []trigger.Photo {
	if len(raw) == 0 {
		return nil
	}
	// The platform sends one photo per message as several resolutions; the
	// largest (last) entry is the one file_id the rest of the pipeline uses.
	return []trigger.Photo{{FileID: raw[len(raw)-1].FileID}}
}
