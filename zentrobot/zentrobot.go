// Package zentrobot implements a single-guild Discord community bot:
// ticket workflows, reaction roles, an embed-builder wizard, welcome
// messaging and link moderation, backed by a relational store.
package zentrobot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Set at build time via:
// -ldflags "-X github.com/nzcve71300/Zentro-Assistant/zentrobot.Version=$$(date +'%Y%m%d')"
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// Bot wires the registries, the gateway session, the store and the
// operational API together, and owns the process lifecycle.
type Bot struct {
	config  *Config
	logger  *slog.Logger
	db      *gorm.DB
	writeDB DBI

	discord       *Discord
	tickets       *TicketRegistry
	categories    *CategoryProvisioner
	reactionRoles *ReactionRoleRegistry
	embeds        *EmbedBuilder
	moderator     *LinkModerator
	greeter       *WelcomeGreeter
	giveaways     *GiveawayStore
	api           *API

	// eventCtx is the runtime context gateway handlers run under. Set
	// once in Run before the session opens.
	eventCtx context.Context

	runMu     sync.Mutex
	startedAt time.Time
}

// New creates a Bot from the given configuration. The database and the
// gateway session are established in Run.
func New(config *Config) (*Bot, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(newLogHandler("zentrobot", config.LogLevel))

	disc, err := newDiscord(config.Discord)
	if err != nil {
		return nil, err
	}
	disc.logger = slog.New(newLogHandler("discord", config.Discord.LogLevel))

	bot := &Bot{
		config:  config,
		logger:  logger,
		discord: disc,
	}
	disc.bot = bot
	return bot, nil
}

// initDB opens the store, runs migrations, and constructs every
// store-backed component.
func (b *Bot) initDB(ctx context.Context) error {
	db, err := CreateDB(ctx, b.config.DatabaseType, b.config.Database)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	db.Logger = newGORMLogger(
		newLogHandler("gorm", b.config.DatabaseLogLevel),
		b.config.DatabaseSlowThreshold,
	)
	b.db = db

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("error getting database connection: %w", err)
	}
	if b.config.DatabaseType == dbTypeSQLite {
		sqlDB.SetMaxOpenConns(sqliteMaxOpenConns)
		sqlDB.SetMaxIdleConns(sqliteMaxIdleConns)
		sqlDB.SetConnMaxLifetime(sqliteMaxConnLifetime)
		pragmaErrors := make([]error, 0, len(sqliteExecPragma))
		for _, p := range sqliteExecPragma {
			pragmaErrors = append(pragmaErrors, db.WithContext(ctx).Exec(p).Error)
		}
		if pragmaErr := errors.Join(pragmaErrors...); pragmaErr != nil {
			return fmt.Errorf("error setting sqlite pragmas: %w", pragmaErr)
		}
	}

	b.writeDB = NewDatabase(db, b.logger, b.config.DatabaseType == dbTypePostgres)
	return nil
}

// initComponents builds the registries on top of the store and session.
// Requires initDB and a session to have been created first.
func (b *Bot) initComponents() {
	session := b.discord.session
	b.categories = newCategoryProvisioner(b.writeDB, session, b.logger)
	b.tickets = newTicketRegistry(
		b.writeDB, session, b.categories, b.config.Discord, b.logger,
	)
	b.reactionRoles = newReactionRoleRegistry(b.writeDB, session, b.logger)
	b.embeds = newEmbedBuilder(b.writeDB, session, b.logger)
	b.moderator = newLinkModerator(
		b.config.Moderation, b.config.Discord, b.tickets, session, b.logger,
	)
	b.greeter = newWelcomeGreeter(b.config.Discord, session, b.logger)
	b.giveaways = newGiveawayStore(b.writeDB, b.logger)
	b.api = newAPI(b, b.config.API)
}

// loadState performs the ordered startup load: ticket configs, category
// reconciliation, then a consistency pass over the remaining tables.
func (b *Bot) loadState(ctx context.Context) error {
	if err := b.tickets.loadConfigs(ctx); err != nil {
		return err
	}

	if err := b.categories.Reconcile(ctx, b.config.Discord.GuildID); err != nil {
		// reconciliation failure is survivable: categories are
		// re-provisioned on first use
		b.logger.WarnContext(ctx, "category reconciliation failed", tint.Err(err))
	}

	var openCount, zentroCount, draftCount int64
	if err := b.db.WithContext(ctx).Model(&OpenTicket{}).Count(&openCount).Error; err != nil {
		return storeErr("count open tickets", err)
	}
	if err := b.db.WithContext(ctx).Model(&ZentroTicket{}).Count(&zentroCount).Error; err != nil {
		return storeErr("count zentro tickets", err)
	}
	if err := b.db.WithContext(ctx).Model(&EmbedDraft{}).Count(&draftCount).Error; err != nil {
		return storeErr("count embed drafts", err)
	}

	var counters []TicketCounter
	if err := b.db.WithContext(ctx).Find(&counters).Error; err != nil {
		return storeErr("load ticket counters", err)
	}
	counterValues := make(map[string]int, len(counters))
	for _, c := range counters {
		counterValues[c.ID] = c.Value
	}

	b.logger.InfoContext(
		ctx,
		"state loaded",
		"open_tickets", openCount,
		"zentro_tickets", zentroCount,
		"embed_drafts", draftCount,
		"counters", counterValues,
	)
	return nil
}

// registerHandlers installs the gateway event handlers. Every handler
// runs under the bot's runtime context.
func (b *Bot) registerHandlers() {
	session := b.discord.session
	remove := func(f func()) {
		b.discord.discordgoRemoveHandlerFuncs = append(
			b.discord.discordgoRemoveHandlerFuncs, f,
		)
	}

	remove(session.AddHandler(b.discord.handlerReady()))
	remove(session.AddHandler(b.discord.handlerConnect()))
	remove(session.AddHandler(b.discord.handlerDisconnect()))

	remove(
		session.AddHandler(
			func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
				b.handleInteraction(b.eventCtx, i)
			},
		),
	)
	remove(
		session.AddHandler(
			func(_ *discordgo.Session, m *discordgo.MessageCreate) {
				b.handleMessageCreate(b.eventCtx, m)
			},
		),
	)
	remove(
		session.AddHandler(
			func(_ *discordgo.Session, g *discordgo.GuildCreate) {
				b.handleGuildCreate(b.eventCtx, g)
			},
		),
	)
	remove(
		session.AddHandler(
			func(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
				b.greeter.HandleMemberAdd(b.eventCtx, e)
			},
		),
	)
	remove(
		session.AddHandler(
			func(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
				b.greeter.HandleMemberRemove(b.eventCtx, e)
			},
		),
	)
	remove(
		session.AddHandler(
			func(_ *discordgo.Session, e *discordgo.MessageReactionAdd) {
				if e.GuildID != b.config.Discord.GuildID {
					return
				}
				b.reactionRoles.HandleReactionAdd(b.eventCtx, e)
			},
		),
	)
	remove(
		session.AddHandler(
			func(_ *discordgo.Session, e *discordgo.MessageReactionRemove) {
				if e.GuildID != b.config.Discord.GuildID {
					return
				}
				b.reactionRoles.HandleReactionRemove(b.eventCtx, e)
			},
		),
	)
}

// handleMessageCreate applies the guild allow-list and link moderation to
// incoming messages.
func (b *Bot) handleMessageCreate(ctx context.Context, m *discordgo.MessageCreate) {
	if m.GuildID == "" || m.GuildID != b.config.Discord.GuildID {
		return
	}
	b.moderator.HandleMessage(ctx, m)
}

// handleGuildCreate enforces the single-guild allow-list: the bot leaves
// any guild that isn't the configured one.
func (b *Bot) handleGuildCreate(ctx context.Context, g *discordgo.GuildCreate) {
	if g.ID == b.config.Discord.GuildID {
		return
	}
	b.logger.WarnContext(
		ctx,
		"added to foreign guild, leaving",
		"guild_id", g.ID,
		"guild_name", g.Name,
	)
	if err := b.discord.session.GuildLeave(g.ID); err != nil {
		b.logger.ErrorContext(ctx, "error leaving foreign guild", tint.Err(err))
	}
}

// Run starts the bot and blocks until the context is canceled or a fatal
// error occurs. Startup order: store, components, state load, gateway,
// command registration, API.
func (b *Bot) Run(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.startedAt = time.Now()
	logger := b.logger
	ctx, cancel := context.WithCancel(WithLogger(ctx, logger))
	defer cancel()
	b.eventCtx = ctx

	startCtx, startCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer startCancel()

	if err := b.initDB(startCtx); err != nil {
		return err
	}

	discordgo.Logger = discordgoLoggerFunc(
		ctx,
		newLogHandler("discordgo", b.config.Discord.DiscordGoLogLevel),
	)

	session, err := b.discord.newSession()
	if err != nil {
		return err
	}
	b.discord.session = session
	b.initComponents()

	if err = b.loadState(startCtx); err != nil {
		return err
	}

	b.registerHandlers()

	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}

	if _, err = b.discord.registerCommands(); err != nil {
		b.closeSession()
		return fmt.Errorf("error registering commands: %w", err)
	}

	if b.config.Discord.CustomStatus != "" {
		if statusErr := b.discord.updateCustomStatus(
			b.config.Discord.CustomStatus,
		); statusErr != nil {
			logger.WarnContext(ctx, "error setting custom status", tint.Err(statusErr))
		}
	}

	logger.InfoContext(ctx, "bot is running", "guild_id", b.config.Discord.GuildID)

	group, groupCtx := errgroup.WithContext(ctx)
	if b.config.API != nil && b.config.API.Enabled {
		group.Go(
			func() error {
				serveErr := b.api.Serve(groupCtx)
				if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
					return serveErr
				}
				return nil
			},
		)
	}
	group.Go(
		func() error {
			<-groupCtx.Done()
			return nil
		},
	)

	err = group.Wait()
	b.shutdown(logger)
	return err
}

func (b *Bot) closeSession() {
	for _, removeHandler := range b.discord.discordgoRemoveHandlerFuncs {
		removeHandler()
	}
	b.discord.discordgoRemoveHandlerFuncs = nil
	if closeErr := b.discord.session.Close(); closeErr != nil {
		b.logger.Error("error closing discord session", tint.Err(closeErr))
	}
}

// shutdown closes the gateway session and the store.
func (b *Bot) shutdown(logger *slog.Logger) {
	logger.Info("shutting down")
	b.closeSession()

	if b.db != nil {
		if sqlDB, err := b.db.DB(); err == nil {
			if closeErr := sqlDB.Close(); closeErr != nil {
				logger.Error("error closing database", tint.Err(closeErr))
			}
		}
	}
	logger.Info("shutdown complete", "uptime", time.Since(b.startedAt).String())
}
