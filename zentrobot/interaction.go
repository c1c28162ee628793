package zentrobot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// newInteractionLog builds the audit row recorded for an inbound
// interaction before dispatch.
func newInteractionLog(
	i *discordgo.InteractionCreate,
	u *discordgo.User,
) *InteractionLog {
	rec := &InteractionLog{
		InteractionID: i.ID,
		Type:          i.Type.String(),
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
	}
	if u != nil {
		rec.UserID = u.ID
		rec.Username = u.Username
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		rec.CommandName = i.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		rec.CustomID = i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		rec.CustomID = i.ModalSubmitData().CustomID
	}
	if payload, err := json.Marshal(i); err == nil {
		rec.Payload = string(payload)
	}
	return rec
}

func interactionLogAttrs(i discordgo.InteractionCreate) []any {
	return []any{
		"id", i.ID,
		"type", i.Type.String(),
		"guild_id", i.GuildID,
		"channel_id", i.ChannelID,
	}
}

// handleRecover handles the recovery from a panic in an interaction
// handler, so one bad payload can't take the gateway loop down.
func (*Bot) handleRecover(ctx context.Context, rc any) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = slog.Default()
	}
	stackTrace := string(debug.Stack())
	switch v := rc.(type) {
	case error:
		logger.ErrorContext(ctx, "recovered from panic", tint.Err(v), "stack_trace", stackTrace)
	case string:
		logger.ErrorContext(
			ctx,
			"recovered from panic",
			tint.Err(errors.New(v)),
			"stack_trace", stackTrace,
		)
	default:
		logger.ErrorContext(
			ctx,
			"recovered from panic",
			tint.Err(fmt.Errorf("%v", rc)),
			"stack_trace", stackTrace,
		)
	}
}

// memberIsAdmin reports whether the interaction's member may use admin
// commands: either the Administrator permission or the configured admin
// marker role.
func (b *Bot) memberIsAdmin(i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	if i.Member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	adminRole := b.config.Discord.AdminRoleID
	if adminRole == "" {
		return false
	}
	for _, id := range i.Member.Roles {
		if id == adminRole {
			return true
		}
	}
	return false
}

// memberCanModerateTickets reports whether the member may close tickets
// they don't own: admins, plus anyone holding a configured staff role.
func (b *Bot) memberCanModerateTickets(i *discordgo.InteractionCreate) bool {
	if b.memberIsAdmin(i) {
		return true
	}
	if i.Member == nil {
		return false
	}
	for _, family := range []TicketFamily{FamilySetup, FamilySupport, FamilyZentro} {
		cfg, err := b.tickets.GetConfig(family)
		if err != nil {
			continue
		}
		for _, id := range i.Member.Roles {
			if id == cfg.StaffRoleID {
				return true
			}
		}
	}
	return false
}

var adminOnlyCommands = map[string]bool{
	DiscordSlashCommandSetupTicket:        true,
	DiscordSlashCommandSupportTicketSetup: true,
	DiscordSlashCommandSetupZentroTicket:  true,
	DiscordSlashCommandCleanupTickets:     true,
	DiscordSlashCommandSetupRR:            true,
	DiscordSlashCommandRemoveRR:           true,
	DiscordSlashCommandEditRR:             true,
	DiscordSlashCommandSendRole:           true,
	DiscordSlashCommandLinkThread:         true,
}

// handleInteraction is the single dispatch point for every inbound
// interaction. It guarantees exactly one user-visible response: handlers
// return a response or an error, and errors are converted into their
// user-facing message.
func (b *Bot) handleInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	defer func() {
		if rc := recover(); rc != nil {
			b.handleRecover(ctx, rc)
			// best-effort apology so the user never sees a silent failure
			if respondErr := b.discord.session.InteractionRespond(
				i.Interaction, ephemeralResponse("Sorry, something went wrong!"),
			); respondErr != nil {
				b.logger.ErrorContext(
					ctx,
					"error responding to interaction",
					tint.Err(respondErr),
				)
			}
		}
	}()

	discordUser := getDiscordUser(i)
	if discordUser == nil {
		b.logger.ErrorContext(ctx, "no user found in interaction")
		return
	}

	logger := b.logger.With(slog.Group("interaction", interactionLogAttrs(*i)...))
	ctx = WithLogger(ctx, logger)
	logger.InfoContext(
		ctx,
		"received new interaction",
		"user_id", discordUser.ID,
		"username", discordUser.Username,
	)

	if _, err := b.writeDB.Create(ctx, newInteractionLog(i, discordUser)); err != nil {
		logger.ErrorContext(ctx, "error logging interaction", tint.Err(err))
	}

	if discordUser.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring")
		return
	}

	var response *discordgo.InteractionResponse
	var err error

	switch {
	case i.Type == discordgo.InteractionPing:
		response = &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}
	case i.GuildID != b.config.Discord.GuildID:
		logger.WarnContext(ctx, "interaction from foreign guild, rejecting")
		response = ephemeralResponse("This bot isn't available here.")
	case i.Type == discordgo.InteractionApplicationCommand:
		response, err = b.handleApplicationCommand(ctx, i, discordUser)
	case i.Type == discordgo.InteractionMessageComponent:
		response, err = b.handleMessageComponent(ctx, i, discordUser)
	case i.Type == discordgo.InteractionModalSubmit:
		response, err = b.handleModalSubmit(ctx, i, discordUser)
	default:
		logger.WarnContext(ctx, "unhandled interaction type")
		return
	}

	if err != nil {
		logger.ErrorContext(ctx, "interaction handler failed", tint.Err(err))
		if response == nil {
			response = ephemeralResponse(userMessage(err))
		}
	}
	if response == nil {
		return
	}
	if respondErr := b.discord.session.InteractionRespond(
		i.Interaction, response,
	); respondErr != nil {
		logger.ErrorContext(ctx, "error responding to interaction", tint.Err(respondErr))
	}
}

func (b *Bot) handleApplicationCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	user *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	data := i.ApplicationCommandData()

	if adminOnlyCommands[data.Name] && !b.memberIsAdmin(i) {
		return nil, fmt.Errorf("%w: %s requires admin", ErrPermissionDenied, data.Name)
	}

	switch data.Name {
	case DiscordSlashCommandEmbed:
		draft, err := b.embeds.GetDraft(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return embedBuilderResponse(draft), nil
	case DiscordSlashCommandSetupTicket:
		return b.handleSetupTicket(ctx, i, FamilySetup)
	case DiscordSlashCommandSupportTicketSetup:
		return b.handleSetupTicket(ctx, i, FamilySupport)
	case DiscordSlashCommandSetupZentroTicket:
		return b.handleSetupTicket(ctx, i, FamilyZentro)
	case DiscordSlashCommandTicketClose:
		return b.handleTicketClose(ctx, i, user)
	case DiscordSlashCommandCleanupTickets:
		return b.handleCleanupTickets(ctx)
	case DiscordSlashCommandSetupRR:
		return b.handleSetupRR(ctx, i)
	case DiscordSlashCommandRemoveRR:
		return b.handleRemoveRR(ctx, i)
	case DiscordSlashCommandEditRR:
		return b.handleEditRR(ctx, i)
	case DiscordSlashCommandSendRole:
		return b.handleSendRole(ctx, i)
	case DiscordSlashCommandLinkThread:
		return b.handleLinkThread(ctx, i)
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrNotFound, data.Name)
	}
}

// handleSetupTicket stores the family's panel configuration and posts the
// panel message with its open-ticket buttons.
func (b *Bot) handleSetupTicket(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	family TicketFamily,
) (*discordgo.InteractionResponse, error) {
	opts := commandOptions(i.ApplicationCommandData())
	channelOpt, ok := opts["channel"]
	if !ok {
		return nil, fmt.Errorf("%w: missing channel option", ErrNotFound)
	}
	roleOpt, ok := opts["role"]
	if !ok {
		return nil, fmt.Errorf("%w: missing role option", ErrNotFound)
	}
	channelID := channelOpt.ChannelValue(nil).ID
	roleID := roleOpt.RoleValue(nil, "").ID

	if err := b.tickets.SetConfig(
		ctx, i.GuildID, family, channelID, roleID,
	); err != nil {
		return nil, err
	}

	if _, err := b.discord.session.ChannelMessageSendComplex(
		channelID, ticketPanelMessage(family),
	); err != nil {
		return nil, externalErr("post ticket panel", err)
	}

	return ephemeralResponse(
		fmt.Sprintf("Ticket panel posted in <#%s>.", channelID),
	), nil
}

// ticketPanelMessage builds the panel posted by the setup commands.
func ticketPanelMessage(family TicketFamily) *discordgo.MessageSend {
	switch family {
	case FamilySupport:
		return &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{
				brandEmbed(
					"🎫 Support Tickets",
					"Need help? Click the button below to open a support ticket.",
				),
			},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    "🎫 Open a Support Ticket",
							Style:    discordgo.PrimaryButton,
							CustomID: customIDSupportTicket,
						},
					},
				},
			},
		}
	case FamilyZentro:
		return &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{
				brandEmbed(
					"🎟️ Zentro Tickets",
					"Pick a category below to open a ticket with our team.",
				),
			},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label: "🎮 Rust",
							Style: discordgo.PrimaryButton,
							CustomID: fmt.Sprintf(
								customIDFormat, customIDZentroTicketPrefix, ZentroTicketTypeRust,
							),
						},
						discordgo.Button{
							Label: "💳 Billing",
							Style: discordgo.SecondaryButton,
							CustomID: fmt.Sprintf(
								customIDFormat, customIDZentroTicketPrefix, ZentroTicketTypeBilling,
							),
						},
						discordgo.Button{
							Label: "❓ General",
							Style: discordgo.SecondaryButton,
							CustomID: fmt.Sprintf(
								customIDFormat, customIDZentroTicketPrefix, ZentroTicketTypeGeneral,
							),
						},
					},
				},
			},
		}
	default:
		return &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{
				brandEmbed(
					"🛒 Purchase & Setup",
					"Click a button below to open a ticket with our team.",
				),
			},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    "🛒 Purchase",
							Style:    discordgo.SuccessButton,
							CustomID: customIDZentroPurchase,
						},
						discordgo.Button{
							Label:    "🛠️ Setup",
							Style:    discordgo.PrimaryButton,
							CustomID: customIDZentroSetup,
						},
					},
				},
			},
		}
	}
}

func (b *Bot) handleTicketClose(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	user *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	closed, err := b.tickets.Close(
		ctx, i.ChannelID, user.ID, b.memberCanModerateTickets(i),
	)
	if err != nil {
		return nil, err
	}
	return ephemeralResponse(
		fmt.Sprintf("Ticket #%d closed. 🏁", closed.TicketNumber),
	), nil
}

func (b *Bot) handleCleanupTickets(
	ctx context.Context,
) (*discordgo.InteractionResponse, error) {
	reports, err := b.tickets.CleanupOrphans(ctx)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return ephemeralResponse("No orphaned tickets found."), nil
	}
	lines := make([]string, 0, len(reports)+1)
	lines = append(lines, fmt.Sprintf("Removed %d orphaned ticket(s):", len(reports)))
	for _, report := range reports {
		lines = append(
			lines,
			fmt.Sprintf(
				"• Ticket #%d (%s) for <@%s>",
				report.TicketNumber, report.Family, report.UserID,
			),
		)
	}
	return ephemeralResponse(strings.Join(lines, "\n")), nil
}

func (b *Bot) handleSetupRR(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	opts := commandOptions(i.ApplicationCommandData())

	color, err := parseHexColor(opts["color"].StringValue())
	if err != nil {
		return ephemeralResponse("Please provide a valid hex color like #FFA500."), nil
	}
	emoji, err := parseEmojiInput(opts["emoji"].StringValue())
	if err != nil {
		return ephemeralResponse("Please provide a valid emoji."), nil
	}
	channelID := opts["channel"].ChannelValue(nil).ID
	roleID := opts["role"].RoleValue(nil, "").ID

	mapping, err := b.reactionRoles.Setup(
		ctx,
		i.GuildID,
		channelID,
		roleID,
		opts["text"].StringValue(),
		color,
		emoji,
	)
	if err != nil {
		return nil, err
	}
	return ephemeralResponse(
		fmt.Sprintf(
			"Reaction role set up in <#%s>: %s grants <@&%s>.",
			channelID, emoji, mapping.RoleID,
		),
	), nil
}

func (b *Bot) handleRemoveRR(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	opts := commandOptions(i.ApplicationCommandData())
	emoji, err := parseEmojiInput(opts["emoji"].StringValue())
	if err != nil {
		return ephemeralResponse("Please provide a valid emoji."), nil
	}
	if err = b.reactionRoles.RemoveMapping(
		ctx, opts["message_id"].StringValue(), emoji,
	); err != nil {
		return nil, err
	}
	return ephemeralResponse("Reaction role mapping removed."), nil
}

func (b *Bot) handleEditRR(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	opts := commandOptions(i.ApplicationCommandData())
	emoji, err := parseEmojiInput(opts["emoji"].StringValue())
	if err != nil {
		return ephemeralResponse("Please provide a valid emoji."), nil
	}

	var newRoleID string
	if roleOpt, ok := opts["role"]; ok {
		newRoleID = roleOpt.RoleValue(nil, "").ID
	}

	messageID := opts["message_id"].StringValue()
	mapping, err := b.reactionRoles.UpdateMapping(ctx, messageID, emoji, newRoleID)
	if err != nil {
		return nil, err
	}

	// text/color changes apply to the live message, not the mapping
	textOpt, hasText := opts["text"]
	colorOpt, hasColor := opts["color"]
	if hasText || hasColor {
		embed := &discordgo.MessageEmbed{
			Color:  defaultEmbedAccentColor,
			Footer: &discordgo.MessageEmbedFooter{Text: brandFooterText},
		}
		if hasText {
			embed.Description = textOpt.StringValue()
		}
		if hasColor {
			color, colorErr := parseHexColor(colorOpt.StringValue())
			if colorErr != nil {
				return ephemeralResponse("Please provide a valid hex color like #FFA500."), nil
			}
			embed.Color = color
		}
		if _, err = b.discord.session.ChannelMessageEditComplex(
			&discordgo.MessageEdit{
				ID:      messageID,
				Channel: mapping.ChannelID,
				Embeds:  &[]*discordgo.MessageEmbed{embed},
			},
		); err != nil {
			return nil, externalErr("edit reaction role message", err)
		}
	}

	return ephemeralResponse("Reaction role mapping updated."), nil
}

func (b *Bot) handleSendRole(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	memberRole := b.config.Discord.MemberRoleID
	if memberRole == "" {
		return nil, fmt.Errorf("%w: no member role configured", ErrConfigurationMissing)
	}
	emoji := EmojiKey{Unicode: true, Key: "✅"}
	if _, err := b.reactionRoles.Setup(
		ctx,
		i.GuildID,
		i.ChannelID,
		memberRole,
		fmt.Sprintf("React with ✅ to get the <@&%s> role!", memberRole),
		defaultEmbedAccentColor,
		emoji,
	); err != nil {
		return nil, err
	}
	return ephemeralResponse("Role message posted."), nil
}

func (b *Bot) handleLinkThread(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (*discordgo.InteractionResponse, error) {
	opts := commandOptions(i.ApplicationCommandData())
	threadURL := opts["thread_url"].StringValue()
	if !strings.HasPrefix(threadURL, "https://") && !strings.HasPrefix(threadURL, "http://") {
		return ephemeralResponse("Please provide a valid thread URL."), nil
	}
	channelID := opts["channel"].ChannelValue(nil).ID

	var label, text string
	color := 0
	if opt, ok := opts["label"]; ok {
		label = opt.StringValue()
	}
	if opt, ok := opts["text"]; ok {
		text = opt.StringValue()
	}
	if opt, ok := opts["color"]; ok {
		parsed, err := parseHexColor(opt.StringValue())
		if err != nil {
			return ephemeralResponse("Please provide a valid hex color like #FFA500."), nil
		}
		color = parsed
	}

	if _, err := b.discord.session.ChannelMessageSendComplex(
		channelID, linkThreadMessage(threadURL, label, text, color),
	); err != nil {
		return nil, externalErr("post thread link", err)
	}
	return ephemeralResponse(fmt.Sprintf("Thread link posted in <#%s>.", channelID)), nil
}

func (b *Bot) handleMessageComponent(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	user *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	customID := i.MessageComponentData().CustomID
	prefix, suffix, _ := strings.Cut(customID, ":")

	switch prefix {
	case customIDZentroPurchase, customIDZentroSetup:
		return b.openTicketResponse(ctx, i, user, FamilySetup, "")
	case customIDSupportTicket:
		return b.openTicketResponse(ctx, i, user, FamilySupport, "")
	case customIDZentroTicketPrefix:
		if suffix == "" {
			suffix = ZentroTicketTypeGeneral
		}
		return b.openTicketResponse(ctx, i, user, FamilyZentro, suffix)
	case customIDZentroSubmitInfo:
		return zentroInfoModal(suffix), nil
	case customIDSupportSubmitDescription:
		return supportDescriptionModal(), nil
	case customIDEmbedEditText:
		draft, err := b.embeds.GetDraft(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return embedTextModal(draft), nil
	case customIDEmbedEditStyle:
		draft, err := b.embeds.GetDraft(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return embedStyleModal(draft), nil
	case customIDEmbedSend:
		if err := b.embeds.Send(ctx, user.ID, i.ChannelID); err != nil {
			return nil, err
		}
		return ephemeralResponse("Embed sent! 📤"), nil
	default:
		return nil, fmt.Errorf("%w: unknown component %q", ErrNotFound, customID)
	}
}

// openTicketResponse opens a ticket and reports the result ephemerally.
func (b *Bot) openTicketResponse(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	user *discordgo.User,
	family TicketFamily,
	ticketType string,
) (*discordgo.InteractionResponse, error) {
	handle, err := b.tickets.Open(ctx, i.GuildID, user, family, ticketType)
	if err != nil {
		return nil, err
	}
	return ephemeralResponse(
		fmt.Sprintf(
			"You have successfully opened a ticket here: <#%s>\n🟢 ticket number:%d",
			handle.ChannelID, handle.TicketNumber,
		),
	), nil
}

// zentroInfoModal returns the info modal for a specialized ticket type.
func zentroInfoModal(ticketType string) *discordgo.InteractionResponse {
	inviteInput := discordgo.TextInput{
		CustomID:    modalFieldZentroInvite,
		Label:       "Discord server invite",
		Style:       discordgo.TextInputShort,
		Placeholder: "https://discord.gg/...",
		Required:    true,
		MaxLength:   100,
	}
	switch ticketType {
	case ZentroTicketTypeRust:
		return discordModalResponse(
			modalCustomIDZentroInfo,
			"Rust Ticket Info",
			inviteInput,
			discordgo.TextInput{
				CustomID:  modalFieldZentroIGN,
				Label:     "Your in-game name",
				Style:     discordgo.TextInputShort,
				Required:  true,
				MaxLength: 64,
			},
		)
	case ZentroTicketTypeGeneral:
		return discordModalResponse(
			modalCustomIDZentroInfo,
			"Ticket Info",
			discordgo.TextInput{
				CustomID:  modalFieldZentroDescription,
				Label:     "How can we help?",
				Style:     discordgo.TextInputParagraph,
				Required:  true,
				MaxLength: modalDescriptionMaxLength,
			},
		)
	default:
		return discordModalResponse(
			modalCustomIDZentroInfo,
			"Billing Info",
			inviteInput,
			discordgo.TextInput{
				CustomID:    modalFieldZentroEmail,
				Label:       "Payment email",
				Style:       discordgo.TextInputShort,
				Placeholder: "you@example.com",
				Required:    true,
				MaxLength:   100,
			},
		)
	}
}

func supportDescriptionModal() *discordgo.InteractionResponse {
	return discordModalResponse(
		modalCustomIDSupportDescription,
		"Describe Your Issue",
		discordgo.TextInput{
			CustomID:  modalFieldSupportDescription,
			Label:     "What's going on?",
			Style:     discordgo.TextInputParagraph,
			Required:  true,
			MaxLength: modalDescriptionMaxLength,
		},
	)
}

func (b *Bot) handleModalSubmit(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	user *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	data := i.ModalSubmitData()
	switch data.CustomID {
	case modalCustomIDZentroInfo:
		return b.handleZentroInfoSubmit(ctx, i, user, data)
	case modalCustomIDSupportDescription:
		description := modalTextValue(data, modalFieldSupportDescription)
		embed := brandEmbed("📝 Issue Description", description)
		embed.Author = &discordgo.MessageEmbedAuthor{Name: user.Username}
		return &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{embed},
			},
		}, nil
	case modalCustomIDEmbedText:
		draft, err := b.embeds.SetText(
			ctx,
			user.ID,
			modalTextValue(data, modalFieldEmbedTitle),
			modalTextValue(data, modalFieldEmbedDescription),
		)
		if err != nil {
			return nil, err
		}
		return embedBuilderResponse(draft), nil
	case modalCustomIDEmbedStyle:
		draft, err := b.embeds.SetStyle(
			ctx, user.ID, modalTextValue(data, modalFieldEmbedColor),
		)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.As(err, new(*StoreError)) {
				return nil, err
			}
			return ephemeralResponse("Please provide a valid hex color like #FFA500."), nil
		}
		return embedBuilderResponse(draft), nil
	default:
		return nil, fmt.Errorf("%w: unknown modal %q", ErrNotFound, data.CustomID)
	}
}

// handleZentroInfoSubmit posts the submitted form as an embed in the
// ticket channel, and persists it on the user's specialized ticket when
// one is open.
func (b *Bot) handleZentroInfoSubmit(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	user *discordgo.User,
	data discordgo.ModalSubmitInteractionData,
) (*discordgo.InteractionResponse, error) {
	payload := ZentroTicketData{
		ServerInvite: modalTextValue(data, modalFieldZentroInvite),
		PaymentEmail: modalTextValue(data, modalFieldZentroEmail),
		RustIGN:      modalTextValue(data, modalFieldZentroIGN),
		Description:  modalTextValue(data, modalFieldZentroDescription),
	}

	if err := b.tickets.SetZentroData(ctx, user.ID, payload); err != nil &&
		!errors.Is(err, ErrNotFound) {
		return nil, err
	}

	embed := brandEmbed("📋 Ticket Information", "")
	embed.Author = &discordgo.MessageEmbedAuthor{Name: user.Username}
	if payload.ServerInvite != "" {
		embed.Fields = append(
			embed.Fields,
			&discordgo.MessageEmbedField{Name: "Server Invite", Value: payload.ServerInvite},
		)
	}
	if payload.PaymentEmail != "" {
		embed.Fields = append(
			embed.Fields,
			&discordgo.MessageEmbedField{Name: "Payment Email", Value: payload.PaymentEmail},
		)
	}
	if payload.RustIGN != "" {
		embed.Fields = append(
			embed.Fields,
			&discordgo.MessageEmbedField{Name: "In-Game Name", Value: payload.RustIGN},
		)
	}
	if payload.Description != "" {
		embed.Fields = append(
			embed.Fields,
			&discordgo.MessageEmbedField{
				Name:  "Description",
				Value: truncate(payload.Description, 1024),
			},
		)
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	}, nil
}
