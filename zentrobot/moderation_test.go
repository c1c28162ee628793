package zentrobot

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsLink(t *testing.T) {
	testCases := []struct {
		input    string
		expected bool
	}{
		{"check out https://example.com", true},
		{"HTTP://EXAMPLE.COM", true},
		{"visit www.example.com today", true},
		{"join discord.gg/zentro", true},
		{"http://sub.domain.example/path?q=1", true},
		{"no links here", false},
		{"", false},
		{"the price is 5.99", false},
		{"wwwhat is this", false},
	}
	for _, tc := range testCases {
		t.Run(
			tc.input, func(t *testing.T) {
				assert.Equal(t, tc.expected, containsLink(tc.input))
			},
		)
	}
}

func linkMessage(channelID, userID, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        fmt.Sprintf("msg_%s_%s", channelID, userID),
			ChannelID: channelID,
			GuildID:   testGuildID,
			Content:   content,
			Author:    &discordgo.User{ID: userID, Username: userID},
		},
	}
}

func TestHandleMessage_DeletesLink(t *testing.T) {
	session := newMockDiscordSession()
	bot := newTestBot(t, session)
	ctx := context.Background()

	msg := linkMessage("channel_general", "user_1", "spam https://example.com")
	removed := bot.moderator.HandleMessage(ctx, msg)
	assert.True(t, removed)

	// the offending message is deleted, and the warning (posted, then
	// deleted inline by the test timer) follows it
	require.Len(t, session.deletedMessages, 2)
	assert.Equal(t, msg.ID, session.deletedMessages[0].MessageID)
	require.Len(t, session.plainMessages, 1)
	assert.Contains(t, session.plainMessages[0].Message.Content, "<@user_1>")
}

func TestHandleMessage_Skips(t *testing.T) {
	session := newMockDiscordSession()
	bot := newTestBot(t, session)
	ctx := context.Background()

	// no link
	assert.False(
		t,
		bot.moderator.HandleMessage(ctx, linkMessage("channel_general", "user_1", "hello")),
	)

	// bot author
	botMsg := linkMessage("channel_general", "user_bot", "https://example.com")
	botMsg.Author.Bot = true
	assert.False(t, bot.moderator.HandleMessage(ctx, botMsg))

	// moderation disabled
	bot.moderator.config.Enabled = false
	assert.False(
		t,
		bot.moderator.HandleMessage(
			ctx, linkMessage("channel_general", "user_1", "https://example.com"),
		),
	)
	bot.moderator.config.Enabled = true

	assert.Empty(t, session.deletedMessages)
}

func TestHandleMessage_ExemptChannels(t *testing.T) {
	session := newMockDiscordSession()
	bot := newTestBot(t, session)
	bot.config.Discord.PromotionChannelID = "channel_promo"
	bot.moderator.config.AllowedChannelIDs = []string{"channel_allowed"}
	configureTicketFamilies(t, bot, FamilySupport)

	ctx := context.Background()
	handle, err := bot.tickets.Open(
		ctx, testGuildID, newTestUser(t), FamilySupport, "",
	)
	require.NoError(t, err)

	for _, channelID := range []string{
		"channel_promo",
		"channel_allowed",
		handle.ChannelID,
	} {
		removed := bot.moderator.HandleMessage(
			ctx, linkMessage(channelID, "user_1", "https://example.com"),
		)
		assert.False(t, removed, "channel %s should be exempt", channelID)
	}
	assert.Empty(t, session.deletedMessages)
}

func TestHandleMessage_WarningRateLimited(t *testing.T) {
	session := newMockDiscordSession()
	bot := newTestBot(t, session)
	ctx := context.Background()

	// far more links than the warning burst allows
	for i := 0; i < DefaultModerationBurst*3; i++ {
		msg := linkMessage("channel_general", fmt.Sprintf("user_%d", i), "https://example.com")
		assert.True(t, bot.moderator.HandleMessage(ctx, msg))
	}

	// every message was deleted, but warnings are capped by the limiter
	session.mu.Lock()
	warnings := len(session.plainMessages)
	session.mu.Unlock()
	assert.LessOrEqual(t, warnings, DefaultModerationBurst+1)
	assert.Greater(t, warnings, 0)
}

func TestWelcomeGreeter(t *testing.T) {
	session := newMockDiscordSession()
	bot := newTestBot(t, session)
	bot.config.Discord.WelcomeChannelID = "channel_welcome"
	bot.config.Discord.MemberRoleID = "role_member"
	ctx := context.Background()

	user := newTestUser(t)
	bot.greeter.HandleMemberAdd(
		ctx,
		&discordgo.GuildMemberAdd{Member: &discordgo.Member{User: user}},
	)

	msgs := session.messagesTo("channel_welcome")
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Embeds, 1)
	assert.Equal(t, "👋 Welcome!", msgs[0].Embeds[0].Title)
	assert.Contains(t, msgs[0].Embeds[0].Description, fmt.Sprintf("<@%s>", user.ID))
	assert.Contains(t, msgs[0].Embeds[0].Description, "<@&role_member>")

	bot.greeter.HandleMemberRemove(
		ctx,
		&discordgo.GuildMemberRemove{Member: &discordgo.Member{User: user}},
	)
	msgs = session.messagesTo("channel_welcome")
	require.Len(t, msgs, 2)
	assert.Equal(t, "Goodbye", msgs[1].Embeds[0].Title)
	assert.Contains(t, msgs[1].Embeds[0].Description, user.Username)
}

func TestWelcomeGreeter_Disabled(t *testing.T) {
	session := newMockDiscordSession()
	bot := newTestBot(t, session)
	ctx := context.Background()

	// no welcome channel configured
	bot.greeter.HandleMemberAdd(
		ctx,
		&discordgo.GuildMemberAdd{Member: &discordgo.Member{User: newTestUser(t)}},
	)
	assert.Empty(t, session.messagesSent)
}

func TestLinkThreadMessage(t *testing.T) {
	msg := linkThreadMessage("https://discord.com/channels/1/2/3", "", "", 0)
	require.Len(t, msg.Components, 1)
	row, ok := msg.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	button, ok := row.Components[0].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, discordgo.LinkButton, button.Style)
	assert.Equal(t, "🔗 Open Thread", button.Label)
	assert.Equal(t, "https://discord.com/channels/1/2/3", button.URL)
	assert.Empty(t, msg.Embeds)

	withText := linkThreadMessage(
		"https://discord.com/channels/1/2/3", "Read me", "Weekly update thread", 0,
	)
	require.Len(t, withText.Embeds, 1)
	assert.Equal(t, "Weekly update thread", withText.Embeds[0].Description)
	assert.Equal(t, defaultEmbedAccentColor, withText.Embeds[0].Color)
	row = withText.Components[0].(discordgo.ActionsRow)
	assert.Equal(t, "Read me", row.Components[0].(discordgo.Button).Label)
}
