package zentrobot

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Slash command names, registered via bulk overwrite at startup.
const (
	DiscordSlashCommandEmbed              = "embed"
	DiscordSlashCommandSetupTicket        = "setup-ticket"
	DiscordSlashCommandSupportTicketSetup = "support-ticket-setup"
	DiscordSlashCommandSetupZentroTicket  = "setup-zentro-ticket"
	DiscordSlashCommandTicketClose        = "ticket-close"
	DiscordSlashCommandCleanupTickets     = "cleanup-tickets"
	DiscordSlashCommandSetupRR            = "setup-rr"
	DiscordSlashCommandRemoveRR           = "remove-rr"
	DiscordSlashCommandEditRR             = "edit-rr"
	DiscordSlashCommandSendRole           = "send-role"
	DiscordSlashCommandLinkThread         = "link-thread"
)

// Component and modal custom IDs.
const (
	customIDZentroPurchase           = "zentro_purchase"
	customIDZentroSetup              = "zentro_setup"
	customIDSupportTicket            = "support_ticket"
	customIDZentroSubmitInfo         = "zentro_submit_info"
	customIDSupportSubmitDescription = "support_submit_description"
	customIDEmbedEditText            = "edit_text"
	customIDEmbedEditStyle           = "edit_style"
	customIDEmbedSend                = "send_embed"

	// customIDZentroTicketPrefix prefixes the per-type buttons on the
	// specialized ticket panel, like "zentro_ticket:rust".
	customIDZentroTicketPrefix = "zentro_ticket"

	modalCustomIDZentroInfo         = "zentro_info_modal"
	modalCustomIDSupportDescription = "support_description_modal"
	modalCustomIDEmbedText          = "embed_text_modal"
	modalCustomIDEmbedStyle         = "embed_style_modal"

	modalFieldZentroInvite       = "zentro_invite"
	modalFieldZentroEmail        = "zentro_email"
	modalFieldZentroIGN          = "zentro_ign"
	modalFieldZentroDescription  = "zentro_description"
	modalFieldSupportDescription = "support_description"
	modalFieldEmbedTitle         = "embed_title"
	modalFieldEmbedDescription   = "embed_description"
	modalFieldEmbedColor         = "embed_color"
)

// Specialized ticket types offered by the zentro panel.
const (
	ZentroTicketTypeRust    = "rust"
	ZentroTicketTypeBilling = "billing"
	ZentroTicketTypeGeneral = "general"
)

var adminCommandPermission = int64(discordgo.PermissionAdministrator)

// Discord manages the gateway session: it registers commands, installs the
// event handlers, and exposes the session to the rest of the bot through
// the mockable DiscordSessionHandler interface.
type Discord struct {
	session                     DiscordSessionHandler
	config                      *DiscordConfig
	logger                      *slog.Logger
	metricConnects              atomic.Int64
	metricDisconnects           atomic.Int64
	connected                   atomic.Bool
	discordgoRemoveHandlerFuncs []func()
	bot                         *Bot
}

// newDiscord initializes a new Discord instance with the provided configuration
func newDiscord(config *DiscordConfig) (*Discord, error) {
	if config == nil {
		return nil, fmt.Errorf("nil discord config")
	}
	return &Discord{
		config:                      config,
		discordgoRemoveHandlerFuncs: []func(){},
	}, nil
}

// newSession initializes a new Discord session for the Discord struct.
// It sets up the session with the appropriate logger, token, and configuration.
func (d *Discord) newSession() (DiscordSessionHandler, error) {
	session := DiscordSession{logger: d.logger.With(loggerNameKey, "discord_session_handler")}
	disc, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return session, fmt.Errorf("error creating discord session: %w", err)
	}
	disc.SyncEvents = true
	disc.StateEnabled = false
	disc.Identify.Intents = d.config.GatewayIntents
	session.session = disc
	if d.config.httpClient != nil {
		disc.Client = d.config.httpClient
	}

	err = session.SetLogLevel(d.config.DiscordGoLogLevel.Level())
	if err != nil {
		return session, err
	}

	return session, nil
}

func (d *Discord) handlerReady() func(
	s *discordgo.Session,
	r *discordgo.Ready,
) {
	return func(s *discordgo.Session, _ *discordgo.Ready) {
		d.logger.Info(
			"Ready",
			"session_id", s.State.SessionID,
			"user_id", s.State.User.ID,
			"username", s.State.User.Username,
		)
	}
}

func (d *Discord) handlerConnect() func(
	s *discordgo.Session,
	r *discordgo.Connect,
) {
	return func(s *discordgo.Session, _ *discordgo.Connect) {
		d.metricConnects.Add(1)
		d.connected.Store(true)
		var sessionID string
		var userID string
		var username string

		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
			if s.State.User != nil {
				userID = s.State.User.ID
				username = s.State.User.Username
			}
		}
		d.logger.Info(
			"Connected",
			"session_id", sessionID,
			slog.Group("user", "id", userID, "username", username),
		)
	}
}

func (d *Discord) handlerDisconnect() func(
	s *discordgo.Session,
	r *discordgo.Disconnect,
) {
	return func(s *discordgo.Session, _ *discordgo.Disconnect) {
		d.connected.Store(false)
		d.metricDisconnects.Add(1)

		var sessionID string
		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
		}
		d.logger.Info("disconnected", "session_id", sessionID)
	}
}

func (d *Discord) updateCustomStatus(status string) error {
	return d.session.UpdateCustomStatus(status)
}

// appCommands returns the full set of application commands, in the order
// they're registered.
func (d *Discord) appCommands() []*discordgo.ApplicationCommand {
	channelOption := func(name, description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionChannel,
			Name:        name,
			Description: description,
			Required:    true,
			ChannelTypes: []discordgo.ChannelType{
				discordgo.ChannelTypeGuildText,
			},
		}
	}
	roleOption := func(name, description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionRole,
			Name:        name,
			Description: description,
			Required:    true,
		}
	}
	stringOption := func(name, description string, required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        name,
			Description: description,
			Required:    required,
		}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        DiscordSlashCommandEmbed,
			Description: "Build and send a custom embed",
		},
		{
			Name:                     DiscordSlashCommandSetupTicket,
			Description:              "Post the purchase/setup ticket panel",
			DefaultMemberPermissions: &adminCommandPermission,
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("channel", "Channel to post the ticket panel in"),
				roleOption("role", "Staff role granted access to opened tickets"),
			},
		},
		{
			Name:                     DiscordSlashCommandSupportTicketSetup,
			Description:              "Post the support ticket panel",
			DefaultMemberPermissions: &adminCommandPermission,
			Options: []*discordgo.ApplicationCommandOption{
				channelOption("channel", "Channel to post the support panel in"),
				roleOption("role", "Staff role granted access to opened tickets"),
			},
		},
		{
			Name:                     DiscordSlashCommandSetupZentroTicket,
			Description:              "Post the specialized ticket panel",
			DefaultMemberPermissions: &adminCommandPermission,
			Options: []*discordgo.ApplicationCommandOption{
				roleOption("role", "Staff role granted access to opened tickets"),
				channelOption("channel", "Channel to post the panel in"),
			},
		},
		{
			Name:        DiscordSlashCommandTicketClose,
			Description: "Close the current ticket",
		},
		{
			Name:                     DiscordSlashCommandCleanupTickets,
			Description:              "Delete ticket records whose channels no longer exist",
			DefaultMemberPermissions: &adminCommandPermission,
		},
		{
			Name:                     DiscordSlashCommandSetupRR,
			Description:              "Post a reaction role message",
			DefaultMemberPermissions: &adminCommandPermission,
			Options: []*discordgo.ApplicationCommandOption{
				roleOption("role", "Role granted by reacting"),
				channelOption("channel", "Channel to post the message in"),
				stringOption("text", "Message text", true),
				stringOption("color", "Embed color, like #FFA500", true),
				stringOption("emoji", "Emoji to react with", true),
			},
		},
		{
			Name:                     DiscordSlashCommandRemoveRR,
			Description:              "Remove a reaction role mapping",
			DefaultMemberPermissions: &adminCommandPermission,
			Options: []*discordgo.ApplicationCommandOption{
				stringOption("message_id", "Message the mapping is attached to", true),
				stringOption("emoji", "Mapped emoji", true),
			},
		},
		{
			Name:                     DiscordSlashCommandEditRR,
			Description:              "Edit a reaction role mapping",
			DefaultMemberPermissions: &adminCommandPermission,
			Options: []*discordgo.ApplicationCommandOption{
				stringOption("message_id", "Message the mapping is attached to", true),
				stringOption("emoji", "Mapped emoji", true),
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "role",
					Description: "New role to grant",
					Required:    false,
				},
				stringOption("text", "New message text", false),
				stringOption("color", "New embed color, like #FFA500", false),
			},
		},
		{
			Name:                     DiscordSlashCommandSendRole,
			Description:              "Post the self-serve member role message",
			DefaultMemberPermissions: &adminCommandPermission,
		},
		{
			Name:                     DiscordSlashCommandLinkThread,
			Description:              "Post a link button pointing at a thread",
			DefaultMemberPermissions: &adminCommandPermission,
			Options: []*discordgo.ApplicationCommandOption{
				stringOption("thread_url", "URL the button opens", true),
				channelOption("channel", "Channel to post the button in"),
				stringOption("label", "Button label", false),
				stringOption("text", "Message text above the button", false),
				stringOption("color", "Embed color, like #FFA500", false),
			},
		},
	}
}

// registerCommands sends the bot's commands to the discord bulk overwrite
// endpoint
func (d *Discord) registerCommands(
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	created, err := d.session.ApplicationCommandBulkOverwrite(
		d.config.ApplicationID,
		d.config.GuildID,
		d.appCommands(),
		options...,
	)
	if err != nil {
		d.logger.Error("error overwriting discord commands", tint.Err(err))
		return created, err
	}
	for _, c := range created {
		d.logger.Info("Created command", "command_name", c.Name, "command_id", c.ID)
	}
	return created, nil
}

// DiscordSessionHandler defines the interface for handling Discord sessions.
// This basically defines methods from `discordgo.Session` which are
// used in this application, to enable testing/mocking.
type DiscordSessionHandler interface {
	// Open creates a websocket connection to Discord
	Open() error

	// Close closes the websocket connection to Discord
	Close() error

	// AddHandler adds a discord gateway event handler
	AddHandler(handler any) func()

	// ApplicationCommandBulkOverwrite overwrites Discord application
	// commands in bulk.
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)

	// InteractionRespond sends an interaction response to Discord
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error

	// ChannelMessageSend sends a plain text message to the given channel
	ChannelMessageSend(
		channelID string,
		message string,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageSendComplex sends a message with embeds and/or
	// components to the given channel
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageDelete deletes a message
	ChannelMessageDelete(
		channelID string,
		messageID string,
		options ...discordgo.RequestOption,
	) error

	// ChannelMessageEditComplex edits an existing message
	ChannelMessageEditComplex(
		m *discordgo.MessageEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// GuildChannelCreateComplex creates a channel (or category) in a guild
	GuildChannelCreateComplex(
		guildID string,
		data discordgo.GuildChannelCreateData,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)

	// ChannelEditComplex edits an existing channel
	ChannelEditComplex(
		channelID string,
		data *discordgo.ChannelEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)

	// ChannelDelete deletes a channel
	ChannelDelete(
		channelID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)

	// Channel fetches a channel by ID
	Channel(
		channelID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)

	// GuildChannels fetches all channels in a guild
	GuildChannels(
		guildID string,
		options ...discordgo.RequestOption,
	) ([]*discordgo.Channel, error)

	// GuildMember fetches a guild member
	GuildMember(
		guildID string,
		userID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Member, error)

	// GuildMemberRoleAdd grants a role to a guild member
	GuildMemberRoleAdd(
		guildID string,
		userID string,
		roleID string,
		options ...discordgo.RequestOption,
	) error

	// GuildMemberRoleRemove revokes a role from a guild member
	GuildMemberRoleRemove(
		guildID string,
		userID string,
		roleID string,
		options ...discordgo.RequestOption,
	) error

	// MessageReactionAdd adds the bot's own reaction to a message
	MessageReactionAdd(
		channelID string,
		messageID string,
		emojiID string,
		options ...discordgo.RequestOption,
	) error

	// UserChannelCreate opens (or reuses) a DM channel with a user
	UserChannelCreate(
		recipientID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)

	// GuildLeave leaves a guild
	GuildLeave(guildID string, options ...discordgo.RequestOption) error

	// UpdateCustomStatus sets the bot's user status to the given string.
	UpdateCustomStatus(status string) error

	// SetHTTPClient sets the HTTP client for the session
	SetHTTPClient(client *http.Client)

	// SetLogLevel modifies the session's log level
	SetLogLevel(lvl slog.Level) error
}

// DiscordSession implements DiscordSessionHandler, wrapping a
// [discordgo.Session](https://pkg.go.dev/github.com/bwmarrin/discordgo#Session)
type DiscordSession struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func (d DiscordSession) Open() error {
	return d.session.Open()
}

func (d DiscordSession) Close() error {
	return d.session.Close()
}

func (d DiscordSession) AddHandler(handler any) func() {
	return d.session.AddHandler(handler)
}

func (d DiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	created, err := d.session.ApplicationCommandBulkOverwrite(
		appID,
		guildID,
		commands,
		options...,
	)
	if err != nil {
		d.logger.Error("error overwriting discord commands", tint.Err(err))
	}
	return created, err
}

func (d DiscordSession) InteractionRespond(
	interaction *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	options ...discordgo.RequestOption,
) error {
	return d.session.InteractionRespond(interaction, resp, options...)
}

func (d DiscordSession) ChannelMessageSend(
	channelID string,
	message string,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSend(channelID, message, opts...)
}

func (d DiscordSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSendComplex(channelID, data, options...)
}

func (d DiscordSession) ChannelMessageDelete(
	channelID string,
	messageID string,
	options ...discordgo.RequestOption,
) error {
	return d.session.ChannelMessageDelete(channelID, messageID, options...)
}

func (d DiscordSession) ChannelMessageEditComplex(
	m *discordgo.MessageEdit,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageEditComplex(m, options...)
}

func (d DiscordSession) GuildChannelCreateComplex(
	guildID string,
	data discordgo.GuildChannelCreateData,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	ch, err := d.session.GuildChannelCreateComplex(guildID, data, options...)
	if err != nil {
		d.logger.Error(
			"error creating guild channel",
			tint.Err(err),
			"guild_id", guildID,
			"name", data.Name,
		)
	}
	return ch, err
}

func (d DiscordSession) ChannelEditComplex(
	channelID string,
	data *discordgo.ChannelEdit,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	return d.session.ChannelEditComplex(channelID, data, options...)
}

func (d DiscordSession) ChannelDelete(
	channelID string,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	return d.session.ChannelDelete(channelID, options...)
}

func (d DiscordSession) Channel(
	channelID string,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	return d.session.Channel(channelID, options...)
}

func (d DiscordSession) GuildChannels(
	guildID string,
	options ...discordgo.RequestOption,
) ([]*discordgo.Channel, error) {
	return d.session.GuildChannels(guildID, options...)
}

func (d DiscordSession) GuildMember(
	guildID string,
	userID string,
	options ...discordgo.RequestOption,
) (*discordgo.Member, error) {
	return d.session.GuildMember(guildID, userID, options...)
}

func (d DiscordSession) GuildMemberRoleAdd(
	guildID string,
	userID string,
	roleID string,
	options ...discordgo.RequestOption,
) error {
	return d.session.GuildMemberRoleAdd(guildID, userID, roleID, options...)
}

func (d DiscordSession) GuildMemberRoleRemove(
	guildID string,
	userID string,
	roleID string,
	options ...discordgo.RequestOption,
) error {
	return d.session.GuildMemberRoleRemove(guildID, userID, roleID, options...)
}

func (d DiscordSession) MessageReactionAdd(
	channelID string,
	messageID string,
	emojiID string,
	options ...discordgo.RequestOption,
) error {
	return d.session.MessageReactionAdd(channelID, messageID, emojiID, options...)
}

func (d DiscordSession) UserChannelCreate(
	recipientID string,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	return d.session.UserChannelCreate(recipientID, options...)
}

func (d DiscordSession) GuildLeave(
	guildID string,
	options ...discordgo.RequestOption,
) error {
	return d.session.GuildLeave(guildID, options...)
}

func (d DiscordSession) UpdateCustomStatus(
	status string,
) error {
	return d.session.UpdateCustomStatus(status)
}

func (d DiscordSession) SetHTTPClient(client *http.Client) {
	d.session.Client = client
}

func (d DiscordSession) SetLogLevel(lvl slog.Level) error {
	switch lvl.Level() {
	case slog.LevelInfo:
		d.session.LogLevel = discordgo.LogInformational
	case slog.LevelWarn:
		d.session.LogLevel = discordgo.LogWarning
	case slog.LevelDebug:
		d.session.LogLevel = discordgo.LogDebug
	case slog.LevelError:
		d.session.LogLevel = discordgo.LogError
	default:
		return fmt.Errorf("invalid log level: %s", lvl)
	}
	return nil
}

// getDiscordUser returns the [discordgo.User] associated with the interaction.
// Users don't always appear in the same place in the interaction object, so
// this checks known areas.
func getDiscordUser(i *discordgo.InteractionCreate) *discordgo.User {
	u := i.User
	if u == nil && i.Member != nil {
		u = i.Member.User
	}
	return u
}
