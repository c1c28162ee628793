package zentrobot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm"
)

const (
	defaultEmbedDraftTitle       = "Your Title"
	defaultEmbedDraftDescription = "Your description goes here."
)

// EmbedBuilder drives the /embed wizard: one persistent draft per user,
// edited through modals and previewed ephemerally until sent. The draft
// survives sending, so the next /embed picks up where the user left off.
type EmbedBuilder struct {
	db      DBI
	session DiscordSessionHandler
	logger  *slog.Logger
}

func newEmbedBuilder(
	db DBI,
	session DiscordSessionHandler,
	logger *slog.Logger,
) *EmbedBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbedBuilder{
		db:      db,
		session: session,
		logger:  logger.With(loggerNameKey, "embeds"),
	}
}

// GetDraft returns the user's draft, creating a placeholder draft on
// first use.
func (e *EmbedBuilder) GetDraft(ctx context.Context, userID string) (*EmbedDraft, error) {
	var draft EmbedDraft
	err := e.db.DB().WithContext(ctx).First(&draft, "user_id = ?", userID).Error
	if err == nil {
		return &draft, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeErr("load embed draft", err)
	}

	color, _ := parseHexColor(defaultEmbedBuilderColor)
	draft = EmbedDraft{
		UserID:        userID,
		Title:         defaultEmbedDraftTitle,
		Description:   defaultEmbedDraftDescription,
		Color:         color,
		ShowTimestamp: true,
	}
	if _, err = e.db.Create(ctx, &draft); err != nil {
		return nil, storeErr("create embed draft", err)
	}
	return &draft, nil
}

// SetText updates the draft's title and description.
func (e *EmbedBuilder) SetText(
	ctx context.Context,
	userID string,
	title string,
	description string,
) (*EmbedDraft, error) {
	draft, err := e.GetDraft(ctx, userID)
	if err != nil {
		return nil, err
	}
	draft.Title = title
	draft.Description = description
	if _, err = e.db.Save(ctx, draft); err != nil {
		return nil, storeErr("save embed draft", err)
	}
	return draft, nil
}

// SetStyle updates the draft's color from a hex string.
func (e *EmbedBuilder) SetStyle(
	ctx context.Context,
	userID string,
	colorInput string,
) (*EmbedDraft, error) {
	color, err := parseHexColor(colorInput)
	if err != nil {
		return nil, err
	}
	draft, err := e.GetDraft(ctx, userID)
	if err != nil {
		return nil, err
	}
	draft.Color = color
	if _, err = e.db.Save(ctx, draft); err != nil {
		return nil, storeErr("save embed draft", err)
	}
	return draft, nil
}

// Send posts the draft as a finished embed into the given channel. The
// draft is kept afterwards.
func (e *EmbedBuilder) Send(
	ctx context.Context,
	userID string,
	channelID string,
) error {
	draft, err := e.GetDraft(ctx, userID)
	if err != nil {
		return err
	}
	if _, err = e.session.ChannelMessageSendComplex(
		channelID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{draftEmbed(draft)},
		},
	); err != nil {
		return externalErr("send embed", err)
	}
	e.logger.InfoContext(
		ctx,
		"embed sent",
		"user_id", userID,
		"channel_id", channelID,
	)
	return nil
}

// draftEmbed renders a draft into a discord embed.
func draftEmbed(draft *EmbedDraft) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       draft.Title,
		Description: draft.Description,
		Color:       draft.Color,
		Footer:      &discordgo.MessageEmbedFooter{Text: brandFooterText},
	}
	if draft.ShowTimestamp {
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if draft.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: draft.ThumbnailURL}
	}
	return embed
}

// embedBuilderResponse is the ephemeral wizard view: the live preview plus
// the edit/send buttons.
func embedBuilderResponse(draft *EmbedDraft) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "Here's a preview of your embed. Use the buttons to edit it, then send it to this channel.",
			Embeds:  []*discordgo.MessageEmbed{draftEmbed(draft)},
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    "📝 Edit Text",
							Style:    discordgo.PrimaryButton,
							CustomID: customIDEmbedEditText,
						},
						discordgo.Button{
							Label:    "🎨 Customize Style",
							Style:    discordgo.SecondaryButton,
							CustomID: customIDEmbedEditStyle,
						},
						discordgo.Button{
							Label:    "📤 Send",
							Style:    discordgo.SuccessButton,
							CustomID: customIDEmbedSend,
						},
					},
				},
			},
		},
	}
}

// embedTextModal is the title/description edit modal, pre-filled from the
// draft.
func embedTextModal(draft *EmbedDraft) *discordgo.InteractionResponse {
	return discordModalResponse(
		modalCustomIDEmbedText,
		"Edit Embed Text",
		discordgo.TextInput{
			CustomID:  modalFieldEmbedTitle,
			Label:     "Title",
			Style:     discordgo.TextInputShort,
			Value:     draft.Title,
			Required:  true,
			MaxLength: 256,
		},
		discordgo.TextInput{
			CustomID:  modalFieldEmbedDescription,
			Label:     "Description",
			Style:     discordgo.TextInputParagraph,
			Value:     draft.Description,
			Required:  true,
			MaxLength: modalDescriptionMaxLength,
		},
	)
}

// embedStyleModal is the color edit modal.
func embedStyleModal(draft *EmbedDraft) *discordgo.InteractionResponse {
	return discordModalResponse(
		modalCustomIDEmbedStyle,
		"Customize Embed Style",
		discordgo.TextInput{
			CustomID:    modalFieldEmbedColor,
			Label:       "Hex Color",
			Style:       discordgo.TextInputShort,
			Value:       fmt.Sprintf("#%06X", draft.Color),
			Placeholder: "#FFA500",
			Required:    true,
			MaxLength:   embedColorInputMaxLength,
		},
	)
}
