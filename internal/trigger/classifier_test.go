package trigger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"caloriebot/internal/inline"
)

func TestClassify_GroupReplyMention(t *testing.T) {
	t.Parallel()
	c := New("@CalorieTrackAI_bot")
	thread := int64(55)

	u := Update{
		ChatID:   -100500600,
		ChatType: inline.ChatSupergroup,
		ThreadID: &thread,
		MessageID: 124,
		Text:     "@CalorieTrackAI_bot fail this please",
		Entities: []MentionEntity{{Offset: 0, Length: 18, Text: "@CalorieTrackAI_bot"}},
		ReplyTo: &ReplyTarget{
			MessageID: 123,
			Photos:    []Photo{{FileID: "file-failure-1"}},
		},
	}

	d, ok := c.Classify(u)
	require.True(t, ok)
	require.Equal(t, inline.TriggerReplyMention, d.TriggerType)
	require.Equal(t, inline.ConsentInlineGroup, d.ConsentScope)
	require.NotNil(t, d.ReplyToMessageID)
	require.Equal(t, int64(123), *d.ReplyToMessageID)
	require.NotNil(t, d.ThreadID)
	require.Equal(t, int64(55), *d.ThreadID)
	require.Equal(t, true, d.Metadata["failure_dm_required"])
}

func TestClassify_PrivateInlineQuery(t *testing.T) {
	t.Parallel()
	c := New("@CalorieTrackAI_bot")

	u := Update{
		ChatType:      inline.ChatPrivate,
		InlineQueryID: "INLINE-PVT-1",
		InlineQuery:   `{"file_id":"pvt-file-1"}`,
	}

	d, ok := c.Classify(u)
	require.True(t, ok)
	require.Equal(t, inline.TriggerInlineQuery, d.TriggerType)
	require.Equal(t, inline.ConsentInlinePrivate, d.ConsentScope)
	require.Equal(t, true, d.Metadata["privacy_notice"])
}

func TestClassify_PrivatePhoto(t *testing.T) {
	t.Parallel()
	c := New("@CalorieTrackAI_bot")

	u := Update{
		ChatType: inline.ChatPrivate,
		Photos:   []Photo{{FileID: "p1"}},
		Caption:  "lunch",
	}

	d, ok := c.Classify(u)
	require.True(t, ok)
	require.Equal(t, inline.TriggerPrivatePhoto, d.TriggerType)
	require.Equal(t, []string{"p1"}, d.PhotoFileIDs)
}

func TestClassify_GroupPhotoWithoutMention_NoDecision(t *testing.T) {
	t.Parallel()
	c := New("@CalorieTrackAI_bot")

	u := Update{
		ChatType: inline.ChatGroup,
		Photos:   []Photo{{FileID: "p1"}},
	}

	_, ok := c.Classify(u)
	require.False(t, ok)
}

func TestClassify_UnknownShape_NoDecision(t *testing.T) {
	t.Parallel()
	c := New("@CalorieTrackAI_bot")

	_, ok := c.Classify(Update{ChatType: inline.ChatPrivate})
	require.False(t, ok)
}
