package zentrobot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testGuildID = "guild_123456789012345678"

// gormDB creates a temporary SQLite database for testing purposes.
func gormDB(t testing.TB) *gorm.DB {
	t.Helper()
	tmpdir := t.TempDir()
	dbfile := filepath.Join(
		tmpdir,
		fmt.Sprintf("%s.sqlite3", strings.ReplaceAll(t.Name(), "/", "_")),
	)

	db, err := CreateDB(context.Background(), dbTypeSQLite, dbfile)
	if err != nil {
		t.Fatalf("error creating db: %v", err)
	}
	return db
}

func testWriteDB(t testing.TB) DBI {
	t.Helper()
	return NewDatabase(gormDB(t), testLogger(t), false)
}

func testLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(newLogHandler("test", slog.LevelWarn)).With("test", t.Name())
}

// runImmediately replaces time.AfterFunc in tests, running the callback
// inline.
func runImmediately(_ time.Duration, f func()) *time.Timer {
	f()
	return time.NewTimer(time.Nanosecond)
}

type sentMessage struct {
	ChannelID string
	Message   *discordgo.MessageSend
}

type deletedMessage struct {
	ChannelID string
	MessageID string
}

type roleChange struct {
	GuildID string
	UserID  string
	RoleID  string
}

type seededReaction struct {
	ChannelID string
	MessageID string
	EmojiID   string
}

// mockDiscordSession implements DiscordSessionHandler, recording every
// mutation so tests can assert on the calls the bot made. Channels created
// through the mock are registered so Channel lookups succeed until the
// channel is deleted.
type mockDiscordSession struct {
	mu sync.Mutex

	nextID int

	channelsCreated []discordgo.GuildChannelCreateData
	channels        map[string]*discordgo.Channel
	guildChannels   []*discordgo.Channel
	channelEdits    map[string]*discordgo.ChannelEdit
	deletedChannels []string

	messagesSent    []sentMessage
	plainMessages   []sentMessage
	deletedMessages []deletedMessage
	editedMessages  []*discordgo.MessageEdit

	interactionResponses []*discordgo.InteractionResponse

	members     map[string]*discordgo.Member
	roleAdds    []roleChange
	roleRemoves []roleChange
	reactions   []seededReaction

	leftGuilds []string

	channelCreateErr error
	messageSendErr   error
	messageDeleteErr error
	dmErr            error
}

func newMockDiscordSession() *mockDiscordSession {
	return &mockDiscordSession{
		channels:     map[string]*discordgo.Channel{},
		channelEdits: map[string]*discordgo.ChannelEdit{},
		members:      map[string]*discordgo.Member{},
	}
}

func (m *mockDiscordSession) newChannelID() string {
	m.nextID++
	return fmt.Sprintf("channel_%d", m.nextID)
}

func (*mockDiscordSession) Open() error { return nil }

func (*mockDiscordSession) Close() error { return nil }

func (*mockDiscordSession) AddHandler(any) func() { return func() {} }

func (*mockDiscordSession) ApplicationCommandBulkOverwrite(
	_ string,
	_ string,
	commands []*discordgo.ApplicationCommand,
	_ ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	return commands, nil
}

func (m *mockDiscordSession) InteractionRespond(
	_ *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactionResponses = append(m.interactionResponses, resp)
	return nil
}

func (m *mockDiscordSession) ChannelMessageSend(
	channelID string,
	message string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.messageSendErr != nil {
		return nil, m.messageSendErr
	}
	m.nextID++
	m.plainMessages = append(
		m.plainMessages,
		sentMessage{
			ChannelID: channelID,
			Message:   &discordgo.MessageSend{Content: message},
		},
	)
	return &discordgo.Message{
		ID:        fmt.Sprintf("message_%d", m.nextID),
		ChannelID: channelID,
		Content:   message,
	}, nil
}

func (m *mockDiscordSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.messageSendErr != nil {
		return nil, m.messageSendErr
	}
	m.nextID++
	m.messagesSent = append(m.messagesSent, sentMessage{ChannelID: channelID, Message: data})
	return &discordgo.Message{
		ID:        fmt.Sprintf("message_%d", m.nextID),
		ChannelID: channelID,
	}, nil
}

func (m *mockDiscordSession) ChannelMessageDelete(
	channelID string,
	messageID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.messageDeleteErr != nil {
		return m.messageDeleteErr
	}
	m.deletedMessages = append(
		m.deletedMessages,
		deletedMessage{ChannelID: channelID, MessageID: messageID},
	)
	return nil
}

func (m *mockDiscordSession) ChannelMessageEditComplex(
	edit *discordgo.MessageEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.editedMessages = append(m.editedMessages, edit)
	return &discordgo.Message{ID: edit.ID, ChannelID: edit.Channel}, nil
}

func (m *mockDiscordSession) GuildChannelCreateComplex(
	guildID string,
	data discordgo.GuildChannelCreateData,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.channelCreateErr != nil {
		return nil, m.channelCreateErr
	}
	m.channelsCreated = append(m.channelsCreated, data)
	ch := &discordgo.Channel{
		ID:       m.newChannelID(),
		GuildID:  guildID,
		Name:     data.Name,
		Type:     data.Type,
		ParentID: data.ParentID,
	}
	m.channels[ch.ID] = ch
	return ch, nil
}

func (m *mockDiscordSession) ChannelEditComplex(
	channelID string,
	data *discordgo.ChannelEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelEdits[channelID] = data
	ch, ok := m.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("unknown channel: %s", channelID)
	}
	if data.Name != "" {
		ch.Name = data.Name
	}
	return ch, nil
}

func (m *mockDiscordSession) ChannelDelete(
	channelID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := m.channels[channelID]
	delete(m.channels, channelID)
	m.deletedChannels = append(m.deletedChannels, channelID)
	return ch, nil
}

func (m *mockDiscordSession) Channel(
	channelID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("unknown channel: %s", channelID)
	}
	return ch, nil
}

func (m *mockDiscordSession) GuildChannels(
	string,
	...discordgo.RequestOption,
) ([]*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.guildChannels, nil
}

func (m *mockDiscordSession) GuildMember(
	_ string,
	userID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[userID]
	if !ok {
		return nil, fmt.Errorf("unknown member: %s", userID)
	}
	return member, nil
}

func (m *mockDiscordSession) GuildMemberRoleAdd(
	guildID string,
	userID string,
	roleID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleAdds = append(m.roleAdds, roleChange{GuildID: guildID, UserID: userID, RoleID: roleID})
	if member, ok := m.members[userID]; ok {
		member.Roles = append(member.Roles, roleID)
	}
	return nil
}

func (m *mockDiscordSession) GuildMemberRoleRemove(
	guildID string,
	userID string,
	roleID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleRemoves = append(
		m.roleRemoves,
		roleChange{GuildID: guildID, UserID: userID, RoleID: roleID},
	)
	if member, ok := m.members[userID]; ok {
		kept := member.Roles[:0]
		for _, id := range member.Roles {
			if id != roleID {
				kept = append(kept, id)
			}
		}
		member.Roles = kept
	}
	return nil
}

func (m *mockDiscordSession) MessageReactionAdd(
	channelID string,
	messageID string,
	emojiID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(
		m.reactions,
		seededReaction{ChannelID: channelID, MessageID: messageID, EmojiID: emojiID},
	)
	return nil
}

func (m *mockDiscordSession) UserChannelCreate(
	recipientID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dmErr != nil {
		return nil, m.dmErr
	}
	id := fmt.Sprintf("dm_%s", recipientID)
	ch, ok := m.channels[id]
	if !ok {
		ch = &discordgo.Channel{ID: id, Type: discordgo.ChannelTypeDM}
		m.channels[id] = ch
	}
	return ch, nil
}

func (m *mockDiscordSession) GuildLeave(
	guildID string,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leftGuilds = append(m.leftGuilds, guildID)
	return nil
}

func (*mockDiscordSession) UpdateCustomStatus(string) error { return nil }

func (*mockDiscordSession) SetHTTPClient(*http.Client) {}

func (*mockDiscordSession) SetLogLevel(slog.Level) error { return nil }

// messagesTo returns every complex message sent to the given channel.
func (m *mockDiscordSession) messagesTo(channelID string) []*discordgo.MessageSend {
	m.mu.Lock()
	defer m.mu.Unlock()
	var msgs []*discordgo.MessageSend
	for _, sent := range m.messagesSent {
		if sent.ChannelID == channelID {
			msgs = append(msgs, sent.Message)
		}
	}
	return msgs
}

func (m *mockDiscordSession) lastResponse(t testing.TB) *discordgo.InteractionResponse {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.interactionResponses)
	return m.interactionResponses[len(m.interactionResponses)-1]
}

// newTestBot returns a Bot wired to a temporary SQLite store and the given
// mock session, with deferred callbacks running inline.
func newTestBot(t testing.TB, session *mockDiscordSession) *Bot {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Database = filepath.Join(
		t.TempDir(),
		fmt.Sprintf("%s.sqlite3", strings.ReplaceAll(t.Name(), "/", "_")),
	)
	cfg.LogLevel.Set(slog.LevelWarn)
	cfg.Discord.Token = fmt.Sprintf("token_%s", t.Name())
	cfg.Discord.ApplicationID = fmt.Sprintf("app_%s", t.Name())
	cfg.Discord.GuildID = testGuildID
	cfg.API.Enabled = true
	cfg.API.Token = fmt.Sprintf("api_token_%s", t.Name())

	bot, err := New(cfg)
	require.NoError(t, err)
	bot.logger = bot.logger.With("test", t.Name())

	db, err := CreateDB(context.Background(), dbTypeSQLite, cfg.Database)
	require.NoError(t, err)
	bot.db = db
	bot.writeDB = NewDatabase(db, bot.logger, false)
	bot.discord.session = session
	bot.initComponents()
	bot.tickets.afterFunc = runImmediately
	bot.moderator.afterFunc = runImmediately
	bot.eventCtx = context.Background()
	bot.startedAt = time.Now()
	return bot
}

func newTestUser(t testing.TB) *discordgo.User {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	return &discordgo.User{
		ID:       fmt.Sprintf("userid_%s", name),
		Username: fmt.Sprintf("user_%s", name),
	}
}

func newCommandInteraction(
	user *discordgo.User,
	admin bool,
	data discordgo.ApplicationCommandInteractionData,
) *discordgo.InteractionCreate {
	member := &discordgo.Member{User: user}
	if admin {
		member.Permissions = discordgo.PermissionAdministrator
	}
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        fmt.Sprintf("i_%s", user.ID),
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   testGuildID,
			ChannelID: "channel_command",
			Member:    member,
			Data:      data,
		},
	}
}

func newComponentInteraction(
	user *discordgo.User,
	channelID string,
	customID string,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        fmt.Sprintf("i_%s", user.ID),
			Type:      discordgo.InteractionMessageComponent,
			GuildID:   testGuildID,
			ChannelID: channelID,
			Member:    &discordgo.Member{User: user},
			Data:      discordgo.MessageComponentInteractionData{CustomID: customID},
		},
	}
}

func newModalInteraction(
	user *discordgo.User,
	channelID string,
	customID string,
	fields map[string]string,
) *discordgo.InteractionCreate {
	components := make([]discordgo.MessageComponent, 0, len(fields))
	for fieldID, value := range fields {
		components = append(
			components,
			&discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: fieldID, Value: value},
				},
			},
		)
	}
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        fmt.Sprintf("i_%s", user.ID),
			Type:      discordgo.InteractionModalSubmit,
			GuildID:   testGuildID,
			ChannelID: channelID,
			Member:    &discordgo.Member{User: user},
			Data: discordgo.ModalSubmitInteractionData{
				CustomID:   customID,
				Components: components,
			},
		},
	}
}

func stringCommandOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func channelCommandOption(name, channelID string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionChannel,
		Value: channelID,
	}
}

func roleCommandOption(name, roleID string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionRole,
		Value: roleID,
	}
}

func TestTruncate(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		limit    int
		expected string
	}{
		{
			name:     "shorter than limit",
			input:    "short",
			limit:    10,
			expected: "short",
		},
		{
			name:     "equal to limit",
			input:    "exactly10!",
			limit:    10,
			expected: "exactly10!",
		},
		{
			name:     "longer than limit",
			input:    "this is too long",
			limit:    7,
			expected: "this is",
		},
		{
			name:     "multibyte runes",
			input:    "🟢🟢🟢🟢",
			limit:    2,
			expected: "🟢🟢",
		},
	}
	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				assert.Equal(t, tc.expected, truncate(tc.input, tc.limit))
			},
		)
	}
}

func TestParseHexColor(t *testing.T) {
	testCases := []struct {
		input    string
		expected int
		wantErr  bool
	}{
		{input: "#FFA500", expected: 0xFFA500},
		{input: "FFA500", expected: 0xFFA500},
		{input: "#ffa500", expected: 0xFFA500},
		{input: "#5865F2", expected: 0x5865F2},
		{input: "#000000", expected: 0},
		{input: "#FFF", wantErr: true},
		{input: "FFA50000", wantErr: true},
		{input: "#GGGGGG", wantErr: true},
		{input: "", wantErr: true},
		{input: "orange", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(
			tc.input, func(t *testing.T) {
				color, err := parseHexColor(tc.input)
				if tc.wantErr {
					require.Error(t, err)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tc.expected, color)
			},
		)
	}
}

func TestTicketRandomSuffix(t *testing.T) {
	for i := 0; i < 1000; i++ {
		suffix := ticketRandomSuffix()
		assert.GreaterOrEqual(t, suffix, 0)
		assert.Less(t, suffix, ticketSuffixMax)
	}
}

func TestModalTextValue(t *testing.T) {
	data := discordgo.ModalSubmitInteractionData{
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					&discordgo.TextInput{
						CustomID: modalFieldZentroInvite,
						Value:    "https://discord.gg/zentro",
					},
				},
			},
			&discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					&discordgo.TextInput{
						CustomID: modalFieldZentroEmail,
						Value:    "someone@example.com",
					},
				},
			},
		},
	}

	assert.Equal(
		t,
		"https://discord.gg/zentro",
		modalTextValue(data, modalFieldZentroInvite),
	)
	assert.Equal(
		t,
		"someone@example.com",
		modalTextValue(data, modalFieldZentroEmail),
	)
	assert.Empty(t, modalTextValue(data, modalFieldZentroIGN))
}

func TestDiscordModalResponse(t *testing.T) {
	resp := discordModalResponse(
		modalCustomIDZentroInfo,
		"Ticket Info",
		discordgo.TextInput{CustomID: modalFieldZentroInvite},
		discordgo.TextInput{CustomID: modalFieldZentroEmail},
	)
	require.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	assert.Equal(t, modalCustomIDZentroInfo, resp.Data.CustomID)
	assert.Equal(t, "Ticket Info", resp.Data.Title)
	require.Len(t, resp.Data.Components, 2)
	for _, row := range resp.Data.Components {
		actionsRow, ok := row.(discordgo.ActionsRow)
		require.True(t, ok)
		assert.Len(t, actionsRow.Components, 1)
	}
}

func TestEphemeralResponse(t *testing.T) {
	resp := ephemeralResponse(strings.Repeat("a", discordMaxMessageLength+100))
	require.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
	assert.Len(t, resp.Data.Content, discordMaxMessageLength)
}

func TestGetDiscordUser(t *testing.T) {
	user := &discordgo.User{ID: "u1"}

	fromUser := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{User: user},
	}
	assert.Equal(t, user, getDiscordUser(fromUser))

	fromMember := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{Member: &discordgo.Member{User: user}},
	}
	assert.Equal(t, user, getDiscordUser(fromMember))

	neither := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}
	assert.Nil(t, getDiscordUser(neither))
}
