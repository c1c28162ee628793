//nolint:lll // struct tags can't be split
package zentrobot

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
)

const (
	EnvvarSetEnvPrefix = "ZENTRO_ENV_PREFIX"
	DefaultEnvPrefix   = "ZB"

	DefaultDatabaseType          = "sqlite"
	DefaultDatabase              = "zentrobot.sqlite3"
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo

	DefaultLogLevel          = slog.LevelInfo
	DefaultDiscordLogLevel   = slog.LevelWarn
	DefaultDiscordgoLogLevel = slog.LevelWarn
	DefaultAPILogLevel       = slog.LevelInfo

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultDiscordGatewayIntent = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent
	DefaultDiscordCustomStatus = "Watching over the server"

	// DefaultTicketCloseDelay is how long a closed ticket channel sticks
	// around so participants can read the closing notice before the channel
	// is deleted.
	DefaultTicketCloseDelay = time.Minute

	DefaultModerationWarningTTL = 10 * time.Second
	DefaultModerationBurst      = 3

	DefaultAPIListen          = "127.0.0.1:5000"
	DefaultReadTimeout        = 5 * time.Second
	DefaultReadHeaderTimeout  = 5 * time.Second
	DefaultWriteTimeout       = 10 * time.Second
	DefaultIdleTimeout        = 30 * time.Second
	DefaultAPICORSMaxAge      = 12 * time.Hour
	discordMaxMessageLength   = 2000
	defaultEmbedAccentColor   = 0xFFA500
	defaultEmbedBuilderColor  = "#5865F2"
	defaultListenNetwork      = "tcp"
	embedColorInputMaxLength  = 7
	modalDescriptionMaxLength = 4000
)

var DefaultCORSAllowMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodOptions,
	http.MethodHead,
}

// Config is the top-level bot configuration, loaded by the cmd layer via
// viper and validated at startup.
type Config struct {
	// Database connection string, or SQLite file path
	Database string `yaml:"database" mapstructure:"database" json:"database" validate:"required"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" validate:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout limits how long the bot has to finish its ordered
	// startup load before aborting.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time allowed for a graceful shutdown. After
	// this elapses the bot force-closes all connections and exits.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// Discord configures the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord" validate:"required"`

	// Moderation configures link moderation
	Moderation *ModerationConfig `yaml:"moderation" mapstructure:"moderation" json:"moderation"`

	// API configures the operational HTTP API
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`
}

// DiscordConfig configures the gateway connection, the guild allow-list
// and the fixed guild-level channel/role wiring.
type DiscordConfig struct {
	// Token is the bot token
	Token string `yaml:"token" mapstructure:"token" json:"-" validate:"required"`

	// ApplicationID is the bot's application ID, used to register slash commands
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" validate:"required"`

	// GuildID is the single guild this bot serves. Events from any other
	// guild are rejected, and the bot leaves guilds it's added to.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id" validate:"required"`

	// AdminRoleID marks members allowed to use admin commands. Members
	// with the Administrator permission always qualify.
	AdminRoleID string `yaml:"admin_role_id" mapstructure:"admin_role_id" json:"admin_role_id"`

	// MemberRoleID is the role handed out by the self-serve role
	// assignment message (/send-role).
	MemberRoleID string `yaml:"member_role_id" mapstructure:"member_role_id" json:"member_role_id"`

	// WelcomeChannelID is where member join/leave notices are posted. If
	// empty, welcome messages are disabled.
	WelcomeChannelID string `yaml:"welcome_channel_id" mapstructure:"welcome_channel_id" json:"welcome_channel_id"`

	// PromotionChannelID is exempt from link moderation
	PromotionChannelID string `yaml:"promotion_channel_id" mapstructure:"promotion_channel_id" json:"promotion_channel_id"`

	// GatewayIntents sets the discord gateway intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// CustomStatus is the bot's custom status text
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	// TicketCloseDelay is how long to wait after closing a ticket before
	// deleting its channel
	TicketCloseDelay time.Duration `yaml:"ticket_close_delay" mapstructure:"ticket_close_delay" json:"ticket_close_delay"`

	// LogLevel sets the log level for the bot's own discord component
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// DiscordGoLogLevel sets the log level for the discordgo library
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	httpClient *http.Client
}

// ModerationConfig configures link moderation on non-ticket channels.
type ModerationConfig struct {
	// Enabled turns link moderation on or off
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// AllowedChannelIDs are additional channels exempt from link moderation
	// (the promotion channel and ticket channels are always exempt)
	AllowedChannelIDs []string `yaml:"allowed_channel_ids" mapstructure:"allowed_channel_ids" json:"allowed_channel_ids"`

	// WarningTTL is how long a link warning stays visible before the bot
	// deletes its own warning message
	WarningTTL time.Duration `yaml:"warning_ttl" mapstructure:"warning_ttl" json:"warning_ttl"`

	// WarningBurst caps how many warnings can be posted back-to-back
	// before the limiter kicks in
	WarningBurst int `yaml:"warning_burst" mapstructure:"warning_burst" json:"warning_burst"`
}

// APIConfig configures the operational HTTP API.
type APIConfig struct {
	// Enabled turns the HTTP API on or off
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// Listen address, like "127.0.0.1:5000"
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" validate:"required_if=Enabled true"`

	// Token is the static bearer token required on every request. If
	// empty, the API refuses to start.
	Token string `yaml:"token" mapstructure:"token" json:"-" validate:"required_if=Enabled true"`

	// AllowOrigins configures CORS allowed origins
	AllowOrigins []string `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`

	// LogLevel sets the log level for API requests
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// DefaultConfig returns a Config populated with every default value. The
// cmd layer overlays file/env configuration on top of this.
func DefaultConfig() *Config {
	logLevel := &slog.LevelVar{}
	logLevel.Set(DefaultLogLevel)

	dbLogLevel := &slog.LevelVar{}
	dbLogLevel.Set(DefaultDatabaseLogLevel)

	discordLogLevel := &slog.LevelVar{}
	discordLogLevel.Set(DefaultDiscordLogLevel)

	discordgoLogLevel := &slog.LevelVar{}
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)

	apiLogLevel := &slog.LevelVar{}
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		Database:              DefaultDatabase,
		DatabaseType:          DefaultDatabaseType,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              logLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			CustomStatus:      DefaultDiscordCustomStatus,
			TicketCloseDelay:  DefaultTicketCloseDelay,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
		},
		Moderation: &ModerationConfig{
			Enabled:      true,
			WarningTTL:   DefaultModerationWarningTTL,
			WarningBurst: DefaultModerationBurst,
		},
		API: &APIConfig{
			Enabled:           false,
			Listen:            DefaultAPIListen,
			LogLevel:          apiLogLevel,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
	}
}

// Validate checks the configuration with the struct-level validation tags.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(c)
}
