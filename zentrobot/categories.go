package zentrobot

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

var ticketCategoryNames = map[TicketFamily]string{
	FamilySetup:   "Setup Tickets",
	FamilySupport: "Support Tickets",
	FamilyZentro:  "Zentro Tickets",
}

// CategoryProvisioner lazily creates and caches the channel category each
// ticket family's channels are created under. Creation happens at most
// once per family per process; two processes racing the first ticket can
// still each create a category, and the second Save wins.
type CategoryProvisioner struct {
	db      DBI
	session DiscordSessionHandler
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]*TicketCategory
}

func newCategoryProvisioner(
	db DBI,
	session DiscordSessionHandler,
	logger *slog.Logger,
) *CategoryProvisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &CategoryProvisioner{
		db:      db,
		session: session,
		logger:  logger.With(loggerNameKey, "categories"),
		cache:   map[string]*TicketCategory{},
	}
}

// EnsureCategory returns the category ID for the given family, creating
// the category channel and persisting its ID on first use.
func (c *CategoryProvisioner) EnsureCategory(
	ctx context.Context,
	guildID string,
	family TicketFamily,
) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.record(ctx, guildID)
	if err != nil {
		return "", err
	}

	if id := rec.categoryID(family); id != "" {
		return id, nil
	}

	name := ticketCategoryNames[family]
	ch, err := c.session.GuildChannelCreateComplex(
		guildID, discordgo.GuildChannelCreateData{
			Name: name,
			Type: discordgo.ChannelTypeGuildCategory,
			PermissionOverwrites: []*discordgo.PermissionOverwrite{
				{
					ID:   guildID,
					Type: discordgo.PermissionOverwriteTypeRole,
					Deny: discordgo.PermissionViewChannel,
				},
			},
		},
	)
	if err != nil {
		return "", externalErr("create category", err)
	}

	rec.setCategoryID(family, ch.ID)
	if _, err = c.db.Save(ctx, rec); err != nil {
		return "", storeErr("save ticket category", err)
	}
	c.cache[guildID] = rec

	c.logger.InfoContext(
		ctx,
		"provisioned ticket category",
		"guild_id", guildID,
		"family", family,
		"category_id", ch.ID,
	)
	return ch.ID, nil
}

// Reconcile adopts existing category channels matching the family naming
// convention, filling any empty slots in the stored record. Called once
// at startup so a wiped database can re-attach to a live guild.
func (c *CategoryProvisioner) Reconcile(ctx context.Context, guildID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.record(ctx, guildID)
	if err != nil {
		return err
	}

	channels, err := c.session.GuildChannels(guildID)
	if err != nil {
		return externalErr("list guild channels", err)
	}

	adopted := false
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildCategory {
			continue
		}
		for family, name := range ticketCategoryNames {
			if ch.Name != name || rec.categoryID(family) != "" {
				continue
			}
			rec.setCategoryID(family, ch.ID)
			adopted = true
			c.logger.InfoContext(
				ctx,
				"adopted existing ticket category",
				"guild_id", guildID,
				"family", family,
				"category_id", ch.ID,
			)
		}
	}

	if adopted {
		if _, err = c.db.Save(ctx, rec); err != nil {
			return storeErr("save ticket category", err)
		}
	}
	c.cache[guildID] = rec
	return nil
}

// record returns the cached category record for the guild, loading or
// initializing it as needed. Callers must hold c.mu.
func (c *CategoryProvisioner) record(
	ctx context.Context,
	guildID string,
) (*TicketCategory, error) {
	if rec, ok := c.cache[guildID]; ok {
		return rec, nil
	}
	rec := &TicketCategory{GuildID: guildID}
	err := c.db.DB().WithContext(ctx).First(rec, "guild_id = ?", guildID).Error
	switch {
	case err == nil:
		// loaded
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = &TicketCategory{GuildID: guildID}
	default:
		c.logger.ErrorContext(ctx, "error loading ticket category", tint.Err(err))
		return nil, storeErr("load ticket category", err)
	}
	c.cache[guildID] = rec
	return rec, nil
}
