package zentrobot

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDraft_CreatesPlaceholder(t *testing.T) {
	session := newMockDiscordSession()
	bot := newTestBot(t, session)
	ctx := context.Background()
	user := newTestUser(t)

	draft, err := bot.embeds.GetDraft(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, defaultEmbedDraftTitle, draft.Title)
	assert.Equal(t, defaultEmbedDraftDescription, draft.Description)
	assert.Equal(t, 0x5865F2, draft.Color)
	assert.True(t, draft.ShowTimestamp)

	// repeat calls return the same row
	again, err := bot.embeds.GetDraft(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.CreatedAt, again.CreatedAt)

	var count int64
	require.NoError(t, bot.db.Model(&EmbedDraft{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSetText(t *testing.T) {
	session := newMockDiscordSession()
	bot := newTestBot(t, session)
	ctx := context.Background()
	user := newTestUser(t)

	draft, err := bot.embeds.SetText(ctx, user.ID, "Announcement", "Big news!")
	require.NoError(t, err)
	assert.Equal(t, "Announcement", draft.Title)
	assert.Equal(t, "Big news!", draft.Description)

	reloaded, err := bot.embeds.GetDraft(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Announcement", reloaded.Title)
}

func TestSetStyle(t *testing.T) {
	session := newMockDiscordSession()
	bot := newTestBot(t, session)
	ctx := context.Background()
	user := newTestUser(t)

	draft, err := bot.embeds.SetStyle(ctx, user.ID, "#FFA500")
	require.NoError(t, err)
	assert.Equal(t, 0xFFA500, draft.Color)

	_, err = bot.embeds.SetStyle(ctx, user.ID, "not-a-color")
	require.Error(t, err)

	// failed style edits leave the draft untouched
	reloaded, err := bot.embeds.GetDraft(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0xFFA500, reloaded.Color)
}

func TestSendEmbed_KeepsDraft(t *testing.T) {
	session := newMockDiscordSession()
	bot := newTestBot(t, session)
	ctx := context.Background()
	user := newTestUser(t)

	_, err := bot.embeds.SetText(ctx, user.ID, "Title", "Body")
	require.NoError(t, err)
	require.NoError(t, bot.embeds.Send(ctx, user.ID, "channel_general"))

	msgs := session.messagesTo("channel_general")
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Embeds, 1)
	embed := msgs[0].Embeds[0]
	assert.Equal(t, "Title", embed.Title)
	assert.Equal(t, "Body", embed.Description)
	assert.Equal(t, brandFooterText, embed.Footer.Text)
	assert.NotEmpty(t, embed.Timestamp)

	// the draft survives sending, so the next /embed resumes it
	draft, err := bot.embeds.GetDraft(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Title", draft.Title)
}

func TestEmbedBuilderResponse(t *testing.T) {
	draft := &EmbedDraft{
		UserID:      "user_1",
		Title:       "Preview",
		Description: "Preview body",
		Color:       0xFFA500,
	}
	resp := embedBuilderResponse(draft)
	require.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, "Preview", resp.Data.Embeds[0].Title)

	require.Len(t, resp.Data.Components, 1)
	row, ok := resp.Data.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 3)
	customIDs := make([]string, 0, 3)
	for _, component := range row.Components {
		button, buttonOK := component.(discordgo.Button)
		require.True(t, buttonOK)
		customIDs = append(customIDs, button.CustomID)
	}
	assert.Equal(
		t,
		[]string{customIDEmbedEditText, customIDEmbedEditStyle, customIDEmbedSend},
		customIDs,
	)
}

func TestEmbedStyleModal_PrefillsColor(t *testing.T) {
	draft := &EmbedDraft{UserID: "user_1", Color: 0x00FF7F}
	resp := embedStyleModal(draft)
	require.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	require.Len(t, resp.Data.Components, 1)
	row, ok := resp.Data.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	input, ok := row.Components[0].(discordgo.TextInput)
	require.True(t, ok)
	assert.Equal(t, "#00FF7F", input.Value)
	assert.Equal(t, embedColorInputMaxLength, input.MaxLength)
}
