package zentrobot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

var customEmojiPattern = regexp.MustCompile(`^<(a?):([A-Za-z0-9_~]+):(\d+)>$`)

// EmojiKey identifies an emoji for mapping purposes: either a unicode
// character sequence or a custom emoji ID. The two kinds never collide.
type EmojiKey struct {
	Unicode bool
	Key     string

	// Name is the custom emoji's name, carried along for the reaction
	// API's "name:id" format. Empty for unicode emoji.
	Name string
}

// parseEmojiInput parses user-supplied emoji input: either a custom emoji
// mention like <:name:123> or a raw unicode emoji.
func parseEmojiInput(s string) (EmojiKey, error) {
	if s == "" {
		return EmojiKey{}, fmt.Errorf("empty emoji")
	}
	if m := customEmojiPattern.FindStringSubmatch(s); m != nil {
		return EmojiKey{Key: m[3], Name: m[2]}, nil
	}
	return EmojiKey{Unicode: true, Key: s}, nil
}

// emojiKeyFromReaction derives the mapping key from a gateway reaction
// event's emoji.
func emojiKeyFromReaction(emoji discordgo.Emoji) EmojiKey {
	if emoji.ID != "" {
		return EmojiKey{Key: emoji.ID, Name: emoji.Name}
	}
	return EmojiKey{Unicode: true, Key: emoji.Name}
}

// APIName returns the emoji identifier the reaction endpoints expect:
// "name:id" for custom emoji, the raw character for unicode.
func (e EmojiKey) APIName() string {
	if e.Unicode {
		return e.Key
	}
	return fmt.Sprintf("%s:%s", e.Name, e.Key)
}

func (e EmojiKey) String() string {
	if e.Unicode {
		return e.Key
	}
	return fmt.Sprintf("<:%s:%s>", e.Name, e.Key)
}

// ReactionRoleRegistry maps (message, emoji) pairs to roles and applies
// them as members react. Grants and revocations are idempotent: reacting
// while already holding the role, or un-reacting without it, is a no-op.
type ReactionRoleRegistry struct {
	db      DBI
	session DiscordSessionHandler
	logger  *slog.Logger
}

func newReactionRoleRegistry(
	db DBI,
	session DiscordSessionHandler,
	logger *slog.Logger,
) *ReactionRoleRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReactionRoleRegistry{
		db:      db,
		session: session,
		logger:  logger.With(loggerNameKey, "reaction_roles"),
	}
}

// Setup posts a reaction role message: an embed with the given text and
// color, the bot's own seed reaction, and a stored mapping from the emoji
// to the role.
func (r *ReactionRoleRegistry) Setup(
	ctx context.Context,
	guildID string,
	channelID string,
	roleID string,
	text string,
	color int,
	emoji EmojiKey,
) (*ReactionRole, error) {
	msg, err := r.session.ChannelMessageSendComplex(
		channelID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{
				{
					Description: text,
					Color:       color,
					Footer:      &discordgo.MessageEmbedFooter{Text: brandFooterText},
				},
			},
		},
	)
	if err != nil {
		return nil, externalErr("send reaction role message", err)
	}

	if err = r.session.MessageReactionAdd(channelID, msg.ID, emoji.APIName()); err != nil {
		return nil, externalErr("seed reaction", err)
	}

	mapping, err := r.SetMapping(ctx, guildID, channelID, msg.ID, roleID, emoji)
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(
		ctx,
		"reaction role message posted",
		"guild_id", guildID,
		"channel_id", channelID,
		"message_id", msg.ID,
		"role_id", roleID,
		"emoji", emoji.String(),
	)
	return mapping, nil
}

// SetMapping stores a (message, emoji) → role mapping. Check-then-branch:
// an existing row for the pair is updated in place, otherwise a new row is
// inserted. There is no unique index backing this, so two concurrent
// calls for the same pair can both insert; lookups take the first match.
func (r *ReactionRoleRegistry) SetMapping(
	ctx context.Context,
	guildID string,
	channelID string,
	messageID string,
	roleID string,
	emoji EmojiKey,
) (*ReactionRole, error) {
	existing, err := r.FindMapping(ctx, messageID, emoji)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		existing.ChannelID = channelID
		existing.RoleID = roleID
		if _, err = r.db.Save(ctx, existing); err != nil {
			return nil, storeErr("update reaction role", err)
		}
		return existing, nil
	}

	mapping := &ReactionRole{
		GuildID:   guildID,
		ChannelID: channelID,
		MessageID: messageID,
		RoleID:    roleID,
		IsUnicode: emoji.Unicode,
	}
	if emoji.Unicode {
		mapping.EmojiName = emoji.Key
	} else {
		mapping.EmojiID = emoji.Key
		mapping.EmojiName = emoji.Name
	}
	if _, err = r.db.Create(ctx, mapping); err != nil {
		return nil, storeErr("create reaction role", err)
	}
	return mapping, nil
}

// FindMapping returns the first mapping for the (message, emoji) pair, or
// ErrNotFound.
func (r *ReactionRoleRegistry) FindMapping(
	ctx context.Context,
	messageID string,
	emoji EmojiKey,
) (*ReactionRole, error) {
	var mapping ReactionRole
	q := r.db.DB().WithContext(ctx).Where("message_id = ?", messageID)
	if emoji.Unicode {
		q = q.Where("is_unicode = ? AND emoji_name = ?", true, emoji.Key)
	} else {
		q = q.Where("is_unicode = ? AND emoji_id = ?", false, emoji.Key)
	}
	err := q.Order("id").First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no mapping for %s", ErrNotFound, emoji)
	}
	if err != nil {
		return nil, storeErr("find reaction role", err)
	}
	return &mapping, nil
}

// RemoveMapping deletes every mapping row for the (message, emoji) pair.
// Removing a mapping that doesn't exist returns ErrNotFound.
func (r *ReactionRoleRegistry) RemoveMapping(
	ctx context.Context,
	messageID string,
	emoji EmojiKey,
) error {
	query := "message_id = ? AND is_unicode = ? AND emoji_name = ?"
	key := emoji.Key
	if !emoji.Unicode {
		query = "message_id = ? AND is_unicode = ? AND emoji_id = ?"
	}
	rows, err := r.db.Delete(&ReactionRole{}, query, messageID, emoji.Unicode, key)
	if err != nil {
		return storeErr("delete reaction role", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: no mapping for %s", ErrNotFound, emoji)
	}
	r.logger.InfoContext(
		ctx,
		"reaction role mapping removed",
		"message_id", messageID,
		"emoji", emoji.String(),
		"rows", rows,
	)
	return nil
}

// UpdateMapping changes the role a mapping grants. Message text and color
// changes are the caller's job: the registry only owns the stored role.
func (r *ReactionRoleRegistry) UpdateMapping(
	ctx context.Context,
	messageID string,
	emoji EmojiKey,
	newRoleID string,
) (*ReactionRole, error) {
	mapping, err := r.FindMapping(ctx, messageID, emoji)
	if err != nil {
		return nil, err
	}
	if newRoleID != "" && newRoleID != mapping.RoleID {
		mapping.RoleID = newRoleID
		if _, err = r.db.Save(ctx, mapping); err != nil {
			return nil, storeErr("update reaction role", err)
		}
	}
	return mapping, nil
}

// ListMappings returns every mapping in the guild.
func (r *ReactionRoleRegistry) ListMappings(
	ctx context.Context,
	guildID string,
) ([]ReactionRole, error) {
	var mappings []ReactionRole
	err := r.db.DB().WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("id").
		Find(&mappings).Error
	if err != nil {
		return nil, storeErr("list reaction roles", err)
	}
	return mappings, nil
}

// HandleReactionAdd grants the mapped role if the member doesn't already
// hold it. Unmapped reactions and already-held roles are no-ops.
func (r *ReactionRoleRegistry) HandleReactionAdd(
	ctx context.Context,
	event *discordgo.MessageReactionAdd,
) {
	mapping, err := r.FindMapping(ctx, event.MessageID, emojiKeyFromReaction(event.Emoji))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.ErrorContext(ctx, "error looking up reaction role", tint.Err(err))
		}
		return
	}

	member, err := r.session.GuildMember(event.GuildID, event.UserID)
	if err != nil {
		r.logger.ErrorContext(ctx, "error fetching member", tint.Err(err))
		return
	}
	if member.User != nil && member.User.Bot {
		return
	}
	if memberHasRole(member, mapping.RoleID) {
		return
	}

	if err = r.session.GuildMemberRoleAdd(
		event.GuildID, event.UserID, mapping.RoleID,
	); err != nil {
		r.logger.ErrorContext(
			ctx,
			"error granting reaction role",
			tint.Err(err),
			"user_id", event.UserID,
			"role_id", mapping.RoleID,
		)
		return
	}
	r.logger.InfoContext(
		ctx,
		"granted reaction role",
		"user_id", event.UserID,
		"role_id", mapping.RoleID,
	)
}

// HandleReactionRemove revokes the mapped role if the member holds it.
func (r *ReactionRoleRegistry) HandleReactionRemove(
	ctx context.Context,
	event *discordgo.MessageReactionRemove,
) {
	mapping, err := r.FindMapping(ctx, event.MessageID, emojiKeyFromReaction(event.Emoji))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.ErrorContext(ctx, "error looking up reaction role", tint.Err(err))
		}
		return
	}

	member, err := r.session.GuildMember(event.GuildID, event.UserID)
	if err != nil {
		r.logger.ErrorContext(ctx, "error fetching member", tint.Err(err))
		return
	}
	if !memberHasRole(member, mapping.RoleID) {
		return
	}

	if err = r.session.GuildMemberRoleRemove(
		event.GuildID, event.UserID, mapping.RoleID,
	); err != nil {
		r.logger.ErrorContext(
			ctx,
			"error revoking reaction role",
			tint.Err(err),
			"user_id", event.UserID,
			"role_id", mapping.RoleID,
		)
		return
	}
	r.logger.InfoContext(
		ctx,
		"revoked reaction role",
		"user_id", event.UserID,
		"role_id", mapping.RoleID,
	)
}

func memberHasRole(member *discordgo.Member, roleID string) bool {
	if member == nil {
		return false
	}
	for _, id := range member.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}
