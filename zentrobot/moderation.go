package zentrobot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

var urlPattern = regexp.MustCompile(
	`(?i)(https?://\S+|www\.\S+|discord\.gg/\S+)`,
)

// containsLink reports whether the message content contains something
// that looks like a URL or invite link.
func containsLink(content string) bool {
	return urlPattern.MatchString(content)
}

// LinkModerator deletes messages containing links outside the channels
// where they're allowed, and posts a short-lived warning in their place.
// Warnings are rate limited so a paste flood doesn't turn into a warning
// flood.
type LinkModerator struct {
	config     *ModerationConfig
	discordCfg *DiscordConfig
	tickets    *TicketRegistry
	session    DiscordSessionHandler
	logger     *slog.Logger
	limiter    *rate.Limiter

	afterFunc func(d time.Duration, f func()) *time.Timer
}

func newLinkModerator(
	config *ModerationConfig,
	discordCfg *DiscordConfig,
	tickets *TicketRegistry,
	session DiscordSessionHandler,
	logger *slog.Logger,
) *LinkModerator {
	if logger == nil {
		logger = slog.Default()
	}
	burst := DefaultModerationBurst
	if config != nil && config.WarningBurst > 0 {
		burst = config.WarningBurst
	}
	return &LinkModerator{
		config:     config,
		discordCfg: discordCfg,
		tickets:    tickets,
		session:    session,
		logger:     logger.With(loggerNameKey, "moderation"),
		limiter:    rate.NewLimiter(rate.Every(time.Second), burst),
		afterFunc:  time.AfterFunc,
	}
}

// channelExempt reports whether link moderation skips the channel:
// the promotion channel, any explicitly allowed channel, and every open
// ticket channel.
func (l *LinkModerator) channelExempt(ctx context.Context, channelID string) bool {
	if l.discordCfg != nil && channelID == l.discordCfg.PromotionChannelID &&
		l.discordCfg.PromotionChannelID != "" {
		return true
	}
	if l.config != nil {
		for _, id := range l.config.AllowedChannelIDs {
			if id == channelID {
				return true
			}
		}
	}
	return l.tickets != nil && l.tickets.IsTicketChannel(ctx, channelID)
}

// HandleMessage applies link moderation to an incoming guild message.
// Returns true if the message was removed.
func (l *LinkModerator) HandleMessage(
	ctx context.Context,
	m *discordgo.MessageCreate,
) bool {
	if l.config == nil || !l.config.Enabled {
		return false
	}
	if m.Author == nil || m.Author.Bot {
		return false
	}
	if !containsLink(m.Content) {
		return false
	}
	if l.channelExempt(ctx, m.ChannelID) {
		return false
	}

	if err := l.session.ChannelMessageDelete(m.ChannelID, m.ID); err != nil {
		l.logger.ErrorContext(
			ctx,
			"error deleting link message",
			tint.Err(err),
			"channel_id", m.ChannelID,
			"message_id", m.ID,
		)
		return false
	}

	l.logger.InfoContext(
		ctx,
		"removed link message",
		"channel_id", m.ChannelID,
		"user_id", m.Author.ID,
	)

	if l.limiter.Allow() {
		l.postWarning(ctx, m.ChannelID, m.Author.ID)
	}
	return true
}

// postWarning posts a warning that deletes itself after the configured
// TTL.
func (l *LinkModerator) postWarning(ctx context.Context, channelID, userID string) {
	warning, err := l.session.ChannelMessageSend(
		channelID,
		fmt.Sprintf("<@%s> links aren't allowed here!", userID),
	)
	if err != nil {
		l.logger.ErrorContext(ctx, "error posting link warning", tint.Err(err))
		return
	}

	ttl := DefaultModerationWarningTTL
	if l.config.WarningTTL > 0 {
		ttl = l.config.WarningTTL
	}
	l.afterFunc(
		ttl, func() {
			if delErr := l.session.ChannelMessageDelete(channelID, warning.ID); delErr != nil {
				l.logger.Error("error deleting link warning", tint.Err(delErr))
			}
		},
	)
}

// WelcomeGreeter posts join and leave notices in the configured welcome
// channel. Disabled entirely when no welcome channel is set.
type WelcomeGreeter struct {
	config  *DiscordConfig
	session DiscordSessionHandler
	logger  *slog.Logger
}

func newWelcomeGreeter(
	config *DiscordConfig,
	session DiscordSessionHandler,
	logger *slog.Logger,
) *WelcomeGreeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &WelcomeGreeter{
		config:  config,
		session: session,
		logger:  logger.With(loggerNameKey, "welcome"),
	}
}

// HandleMemberAdd posts the welcome notice for a new member.
func (w *WelcomeGreeter) HandleMemberAdd(
	ctx context.Context,
	event *discordgo.GuildMemberAdd,
) {
	if w.config.WelcomeChannelID == "" || event.User == nil {
		return
	}
	description := fmt.Sprintf("Welcome to the server, <@%s>!", event.User.ID)
	if w.config.MemberRoleID != "" {
		description += fmt.Sprintf(
			" Grab the <@&%s> role to unlock the rest of the server.",
			w.config.MemberRoleID,
		)
	}
	embed := brandEmbed("👋 Welcome!", description)
	if _, err := w.session.ChannelMessageSendComplex(
		w.config.WelcomeChannelID,
		&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}},
	); err != nil {
		w.logger.ErrorContext(
			ctx,
			"error sending welcome message",
			tint.Err(err),
			"user_id", event.User.ID,
		)
		return
	}
	w.logger.InfoContext(ctx, "welcomed member", "user_id", event.User.ID)
}

// HandleMemberRemove posts the goodbye notice.
func (w *WelcomeGreeter) HandleMemberRemove(
	ctx context.Context,
	event *discordgo.GuildMemberRemove,
) {
	if w.config.WelcomeChannelID == "" || event.User == nil {
		return
	}
	embed := brandEmbed(
		"Goodbye",
		fmt.Sprintf("**%s** has left the server.", event.User.Username),
	)
	if _, err := w.session.ChannelMessageSendComplex(
		w.config.WelcomeChannelID,
		&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}},
	); err != nil {
		w.logger.ErrorContext(
			ctx,
			"error sending goodbye message",
			tint.Err(err),
			"user_id", event.User.ID,
		)
	}
}

// linkThreadMessage builds the message posted by /link-thread: an embed
// with a link button pointing at the thread.
func linkThreadMessage(
	url string,
	label string,
	text string,
	color int,
) *discordgo.MessageSend {
	if label == "" {
		label = "🔗 Open Thread"
	}
	msg := &discordgo.MessageSend{
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label: label,
						Style: discordgo.LinkButton,
						URL:   url,
					},
				},
			},
		},
	}
	if text != "" {
		if color == 0 {
			color = defaultEmbedAccentColor
		}
		msg.Embeds = []*discordgo.MessageEmbed{
			{
				Description: text,
				Color:       color,
				Footer:      &discordgo.MessageEmbedFooter{Text: brandFooterText},
			},
		}
	}
	return msg
}
