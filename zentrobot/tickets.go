package zentrobot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

const (
	ticketChannelOpenFormat   = "🟢| %s%d"
	ticketChannelClosedFormat = "🏁| %s%d"

	brandFooterText = "Powered by Zentro"
)

// TicketHandle identifies a freshly opened ticket.
type TicketHandle struct {
	ChannelID    string
	TicketNumber int
	Family       TicketFamily
}

// ClosedTicket describes a ticket that was just closed.
type ClosedTicket struct {
	UserID       string
	ChannelID    string
	TicketNumber int
	Family       TicketFamily
}

// OrphanReport is the per-record result of a cleanup sweep.
type OrphanReport struct {
	UserID       string
	ChannelID    string
	TicketNumber int
	Family       TicketFamily
}

// TicketRegistry owns the ticket lifecycle: panel configuration, opening
// and closing ticket channels, counters and the orphan sweep. Open and
// close are serialized behind a per-process mutex; the store itself makes
// no atomicity promises beyond the per-statement ones.
type TicketRegistry struct {
	db         DBI
	session    DiscordSessionHandler
	categories *CategoryProvisioner
	config     *DiscordConfig
	logger     *slog.Logger

	mu sync.Mutex

	configMu sync.RWMutex
	configs  map[TicketFamily]*TicketConfig

	closeDelay time.Duration

	// afterFunc schedules the deferred channel delete. Swapped out in
	// tests so they don't sleep.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

func newTicketRegistry(
	db DBI,
	session DiscordSessionHandler,
	categories *CategoryProvisioner,
	config *DiscordConfig,
	logger *slog.Logger,
) *TicketRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	closeDelay := DefaultTicketCloseDelay
	if config != nil && config.TicketCloseDelay > 0 {
		closeDelay = config.TicketCloseDelay
	}
	return &TicketRegistry{
		db:         db,
		session:    session,
		categories: categories,
		config:     config,
		logger:     logger.With(loggerNameKey, "tickets"),
		configs:    map[TicketFamily]*TicketConfig{},
		closeDelay: closeDelay,
		afterFunc:  time.AfterFunc,
	}
}

// loadConfigs populates the in-memory config cache from the store. Called
// once during the ordered startup load.
func (t *TicketRegistry) loadConfigs(ctx context.Context) error {
	var configs []TicketConfig
	err := t.db.DB().WithContext(ctx).Find(&configs).Error
	if err != nil {
		return storeErr("load ticket configs", err)
	}
	t.configMu.Lock()
	defer t.configMu.Unlock()
	for i := range configs {
		cfg := configs[i]
		t.configs[cfg.Family] = &cfg
	}
	t.logger.InfoContext(ctx, "loaded ticket configs", "count", len(configs))
	return nil
}

// GetConfig returns the panel configuration for a family, or
// ErrConfigurationMissing if the family hasn't been set up.
func (t *TicketRegistry) GetConfig(family TicketFamily) (*TicketConfig, error) {
	t.configMu.RLock()
	defer t.configMu.RUnlock()
	cfg, ok := t.configs[family]
	if !ok || cfg == nil {
		return nil, fmt.Errorf("%w (family: %s)", ErrConfigurationMissing, family)
	}
	return cfg, nil
}

// SetConfig records (or overwrites) the panel configuration for a family.
// Idempotent: re-running setup with the same values is a no-op apart from
// the updated timestamp.
func (t *TicketRegistry) SetConfig(
	ctx context.Context,
	guildID string,
	family TicketFamily,
	channelID string,
	staffRoleID string,
) error {
	cfg := &TicketConfig{
		GuildID:     guildID,
		Family:      family,
		ChannelID:   channelID,
		StaffRoleID: staffRoleID,
	}
	if _, err := t.db.Save(ctx, cfg); err != nil {
		return storeErr("save ticket config", err)
	}
	t.configMu.Lock()
	t.configs[family] = cfg
	t.configMu.Unlock()
	t.logger.InfoContext(
		ctx,
		"ticket config updated",
		"family", family,
		"channel_id", channelID,
		"staff_role_id", staffRoleID,
	)
	return nil
}

// nextTicketNumber reads the family's counter and increments it, seeding
// the row on first use. The returned number is the pre-increment value,
// so the first ticket in a family is number 1. Numbers can have gaps if a
// later step of the open fails, but they never repeat.
func (t *TicketRegistry) nextTicketNumber(
	ctx context.Context,
	family TicketFamily,
) (int, error) {
	counter := TicketCounter{ID: family.CounterID()}
	err := t.db.DB().WithContext(ctx).First(&counter, "id = ?", counter.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		counter.Value = counterSeed
		if _, err = t.db.Create(ctx, &counter); err != nil {
			return 0, storeErr("seed ticket counter", err)
		}
	} else if err != nil {
		return 0, storeErr("read ticket counter", err)
	}

	number := counter.Value
	counter.Value++
	if _, err = t.db.Save(ctx, &counter); err != nil {
		return 0, storeErr("increment ticket counter", err)
	}
	return number, nil
}

// Open opens a ticket for the user in the given family. ticketType is
// only meaningful for the zentro family. Returns AlreadyOpenError if the
// user already holds an open ticket in the same registry.
func (t *TicketRegistry) Open(
	ctx context.Context,
	guildID string,
	user *discordgo.User,
	family TicketFamily,
	ticketType string,
) (*TicketHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkAlreadyOpen(ctx, user.ID, family); err != nil {
		return nil, err
	}

	cfg, err := t.GetConfig(family)
	if err != nil {
		return nil, err
	}

	number, err := t.nextTicketNumber(ctx, family)
	if err != nil {
		return nil, err
	}
	suffix := ticketRandomSuffix()

	categoryID, err := t.categories.EnsureCategory(ctx, guildID, family)
	if err != nil {
		return nil, err
	}

	channel, err := t.session.GuildChannelCreateComplex(
		guildID, discordgo.GuildChannelCreateData{
			Name:     fmt.Sprintf(ticketChannelOpenFormat, user.ID, suffix),
			Type:     discordgo.ChannelTypeGuildText,
			ParentID: categoryID,
			PermissionOverwrites: ticketPermissionOverwrites(
				guildID,
				user.ID,
				cfg.StaffRoleID,
			),
		},
	)
	if err != nil {
		return nil, externalErr("create ticket channel", err)
	}

	if err = t.persistTicket(
		ctx, guildID, user.ID, channel.ID, number, suffix, family, ticketType,
	); err != nil {
		return nil, err
	}

	t.sendTicketIntro(ctx, channel.ID, user, cfg.StaffRoleID, family, ticketType, number)

	t.logger.InfoContext(
		ctx,
		"opened ticket",
		"user_id", user.ID,
		"channel_id", channel.ID,
		"family", family,
		"ticket_number", number,
	)
	return &TicketHandle{
		ChannelID:    channel.ID,
		TicketNumber: number,
		Family:       family,
	}, nil
}

// checkAlreadyOpen enforces one open ticket per user per registry. The
// setup and support families share a registry; zentro has its own.
func (t *TicketRegistry) checkAlreadyOpen(
	ctx context.Context,
	userID string,
	family TicketFamily,
) error {
	if family == FamilyZentro {
		var existing ZentroTicket
		err := t.db.DB().WithContext(ctx).First(&existing, "user_id = ?", userID).Error
		if err == nil {
			return &AlreadyOpenError{
				ChannelID:    existing.ChannelID,
				TicketNumber: existing.TicketNumber,
			}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return storeErr("check open zentro ticket", err)
		}
		return nil
	}

	var existing OpenTicket
	err := t.db.DB().WithContext(ctx).First(&existing, "user_id = ?", userID).Error
	if err == nil {
		return &AlreadyOpenError{
			ChannelID:    existing.ChannelID,
			TicketNumber: existing.TicketNumber,
		}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return storeErr("check open ticket", err)
	}
	return nil
}

func (t *TicketRegistry) persistTicket(
	ctx context.Context,
	guildID string,
	userID string,
	channelID string,
	number int,
	suffix int,
	family TicketFamily,
	ticketType string,
) error {
	if family == FamilyZentro {
		ticket := &ZentroTicket{
			UserID:       userID,
			GuildID:      guildID,
			ChannelID:    channelID,
			TicketNumber: number,
			RandomNumber: suffix,
			TicketType:   ticketType,
		}
		if _, err := t.db.Create(ctx, ticket); err != nil {
			return storeErr("create zentro ticket", err)
		}
		return nil
	}
	ticket := &OpenTicket{
		UserID:       userID,
		GuildID:      guildID,
		ChannelID:    channelID,
		TicketNumber: number,
		RandomNumber: suffix,
		Family:       family,
	}
	if _, err := t.db.Create(ctx, ticket); err != nil {
		return storeErr("create open ticket", err)
	}
	return nil
}

// ticketPermissionOverwrites hides the channel from @everyone and grants
// the opener and the staff role view/send/history access.
func ticketPermissionOverwrites(
	guildID string,
	userID string,
	staffRoleID string,
) []*discordgo.PermissionOverwrite {
	memberAccess := int64(
		discordgo.PermissionViewChannel |
			discordgo.PermissionSendMessages |
			discordgo.PermissionReadMessageHistory,
	)
	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:    userID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberAccess,
		},
	}
	if staffRoleID != "" {
		overwrites = append(
			overwrites, &discordgo.PermissionOverwrite{
				ID:    staffRoleID,
				Type:  discordgo.PermissionOverwriteTypeRole,
				Allow: memberAccess,
			},
		)
	}
	return overwrites
}

// sendTicketIntro posts the welcome embed (and submit button, where the
// family collects form data) into a freshly created ticket channel.
// Failure is logged but doesn't fail the open: the ticket exists either
// way.
func (t *TicketRegistry) sendTicketIntro(
	ctx context.Context,
	channelID string,
	user *discordgo.User,
	staffRoleID string,
	family TicketFamily,
	ticketType string,
	number int,
) {
	embed := brandEmbed(
		fmt.Sprintf("Ticket #%d", number),
		fmt.Sprintf(
			"Welcome <@%s>! A member of <@&%s> will be with you shortly.",
			user.ID, staffRoleID,
		),
	)

	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	switch family {
	case FamilySupport:
		msg.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "📝 Describe your issue",
						Style:    discordgo.PrimaryButton,
						CustomID: customIDSupportSubmitDescription,
					},
				},
			},
		}
	case FamilyZentro:
		msg.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "📝 Submit your info",
						Style:    discordgo.PrimaryButton,
						CustomID: fmt.Sprintf(customIDFormat, customIDZentroSubmitInfo, ticketType),
					},
				},
			},
		}
	case FamilySetup:
		msg.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "📝 Submit your info",
						Style:    discordgo.PrimaryButton,
						CustomID: fmt.Sprintf(
							customIDFormat,
							customIDZentroSubmitInfo,
							ZentroTicketTypeBilling,
						),
					},
				},
			},
		}
	}

	if _, err := t.session.ChannelMessageSendComplex(channelID, msg); err != nil {
		t.logger.ErrorContext(
			ctx,
			"error sending ticket intro",
			tint.Err(err),
			"channel_id", channelID,
		)
	}
}

// Close closes the ticket bound to the given channel: renames the channel,
// posts a closing notice, deletes the record, schedules the deferred
// channel delete and sends a best-effort DM to the opener.
//
// canModerate permits closing a ticket the actor doesn't own.
func (t *TicketRegistry) Close(
	ctx context.Context,
	channelID string,
	actorID string,
	canModerate bool,
) (*ClosedTicket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	closed, deleteRecord, err := t.resolveByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	if closed.UserID != actorID && !canModerate {
		return nil, fmt.Errorf("%w: not ticket owner", ErrPermissionDenied)
	}

	suffix := 0
	if closed.Family == FamilyZentro {
		var rec ZentroTicket
		if t.db.DB().WithContext(ctx).First(&rec, "user_id = ?", closed.UserID).Error == nil {
			suffix = rec.RandomNumber
		}
	} else {
		var rec OpenTicket
		if t.db.DB().WithContext(ctx).First(&rec, "user_id = ?", closed.UserID).Error == nil {
			suffix = rec.RandomNumber
		}
	}

	newName := fmt.Sprintf(ticketChannelClosedFormat, closed.UserID, suffix)
	if _, err = t.session.ChannelEditComplex(
		channelID, &discordgo.ChannelEdit{Name: newName},
	); err != nil {
		return nil, externalErr("rename ticket channel", err)
	}

	notice := brandEmbed(
		"Ticket Closed",
		fmt.Sprintf(
			"Ticket #%d was closed by <@%s>. This channel will be deleted shortly.",
			closed.TicketNumber, actorID,
		),
	)
	if _, err = t.session.ChannelMessageSendComplex(
		channelID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{notice},
		},
	); err != nil {
		t.logger.ErrorContext(
			ctx,
			"error sending closing notice",
			tint.Err(err),
			"channel_id", channelID,
		)
	}

	if err = deleteRecord(); err != nil {
		return nil, err
	}

	t.scheduleChannelDelete(channelID)
	t.sendCloseDM(ctx, closed)

	t.logger.InfoContext(
		ctx,
		"closed ticket",
		"user_id", closed.UserID,
		"channel_id", channelID,
		"family", closed.Family,
		"ticket_number", closed.TicketNumber,
	)
	return closed, nil
}

// resolveByChannel finds the open ticket bound to a channel, in either
// registry, along with a closure that deletes its record.
func (t *TicketRegistry) resolveByChannel(
	ctx context.Context,
	channelID string,
) (*ClosedTicket, func() error, error) {
	var open OpenTicket
	err := t.db.DB().WithContext(ctx).First(&open, "channel_id = ?", channelID).Error
	if err == nil {
		closed := &ClosedTicket{
			UserID:       open.UserID,
			ChannelID:    open.ChannelID,
			TicketNumber: open.TicketNumber,
			Family:       open.Family,
		}
		return closed, func() error {
			if _, delErr := t.db.Delete(&OpenTicket{}, "user_id = ?", open.UserID); delErr != nil {
				return storeErr("delete open ticket", delErr)
			}
			return nil
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, storeErr("find ticket by channel", err)
	}

	var zentro ZentroTicket
	err = t.db.DB().WithContext(ctx).First(&zentro, "channel_id = ?", channelID).Error
	if err == nil {
		closed := &ClosedTicket{
			UserID:       zentro.UserID,
			ChannelID:    zentro.ChannelID,
			TicketNumber: zentro.TicketNumber,
			Family:       FamilyZentro,
		}
		return closed, func() error {
			if _, delErr := t.db.Delete(
				&ZentroTicket{}, "user_id = ?", zentro.UserID,
			); delErr != nil {
				return storeErr("delete zentro ticket", delErr)
			}
			return nil
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, storeErr("find zentro ticket by channel", err)
	}
	return nil, nil, ErrNotATicket
}

// scheduleChannelDelete arranges for the channel to be deleted after the
// close delay. Fire-and-forget: a restart before the timer fires leaves
// the renamed channel behind, and the record is already gone.
func (t *TicketRegistry) scheduleChannelDelete(channelID string) {
	t.afterFunc(
		t.closeDelay, func() {
			if _, err := t.session.ChannelDelete(channelID); err != nil {
				t.logger.Error(
					"error deleting closed ticket channel",
					tint.Err(err),
					"channel_id", channelID,
				)
			}
		},
	)
}

// sendCloseDM notifies the opener their ticket was closed. DM failure
// never fails the close.
func (t *TicketRegistry) sendCloseDM(ctx context.Context, closed *ClosedTicket) {
	dm, err := t.session.UserChannelCreate(closed.UserID)
	if err != nil {
		t.logger.WarnContext(
			ctx,
			"error creating close DM channel",
			tint.Err(err),
			"user_id", closed.UserID,
		)
		return
	}
	embed := brandEmbed(
		"Ticket Closed",
		fmt.Sprintf("Your ticket #%d has been closed. Thanks for reaching out!",
			closed.TicketNumber,
		),
	)
	if _, err = t.session.ChannelMessageSendComplex(
		dm.ID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}},
	); err != nil {
		t.logger.WarnContext(
			ctx,
			"error sending close DM",
			tint.Err(err),
			"user_id", closed.UserID,
		)
	}
}

// GetOpenTicketByUser returns the user's open setup/support ticket.
func (t *TicketRegistry) GetOpenTicketByUser(
	ctx context.Context,
	userID string,
) (*OpenTicket, error) {
	var ticket OpenTicket
	err := t.db.DB().WithContext(ctx).First(&ticket, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("find open ticket", err)
	}
	return &ticket, nil
}

// GetZentroTicketByUser returns the user's open specialized ticket.
func (t *TicketRegistry) GetZentroTicketByUser(
	ctx context.Context,
	userID string,
) (*ZentroTicket, error) {
	var ticket ZentroTicket
	err := t.db.DB().WithContext(ctx).First(&ticket, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("find zentro ticket", err)
	}
	return &ticket, nil
}

// IsTicketChannel reports whether the channel belongs to an open ticket.
func (t *TicketRegistry) IsTicketChannel(ctx context.Context, channelID string) bool {
	_, _, err := t.resolveByChannel(ctx, channelID)
	return err == nil
}

// SetZentroData attaches the modal-collected form payload to the user's
// open specialized ticket.
func (t *TicketRegistry) SetZentroData(
	ctx context.Context,
	userID string,
	data ZentroTicketData,
) error {
	ticket, err := t.GetZentroTicketByUser(ctx, userID)
	if err != nil {
		return err
	}
	if err = ticket.SetData(data); err != nil {
		return fmt.Errorf("error encoding ticket data: %w", err)
	}
	if _, err = t.db.Save(ctx, ticket); err != nil {
		return storeErr("save zentro ticket data", err)
	}
	return nil
}

// CleanupOrphans deletes ticket records whose channels no longer exist,
// returning one report entry per removed record.
func (t *TicketRegistry) CleanupOrphans(ctx context.Context) ([]OrphanReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var reports []OrphanReport

	var open []OpenTicket
	if err := t.db.DB().WithContext(ctx).Find(&open).Error; err != nil {
		return nil, storeErr("list open tickets", err)
	}
	for _, ticket := range open {
		if t.channelExists(ticket.ChannelID) {
			continue
		}
		if _, err := t.db.Delete(&OpenTicket{}, "user_id = ?", ticket.UserID); err != nil {
			return reports, storeErr("delete orphaned ticket", err)
		}
		reports = append(
			reports, OrphanReport{
				UserID:       ticket.UserID,
				ChannelID:    ticket.ChannelID,
				TicketNumber: ticket.TicketNumber,
				Family:       ticket.Family,
			},
		)
	}

	var zentro []ZentroTicket
	if err := t.db.DB().WithContext(ctx).Find(&zentro).Error; err != nil {
		return reports, storeErr("list zentro tickets", err)
	}
	for _, ticket := range zentro {
		if t.channelExists(ticket.ChannelID) {
			continue
		}
		if _, err := t.db.Delete(&ZentroTicket{}, "user_id = ?", ticket.UserID); err != nil {
			return reports, storeErr("delete orphaned zentro ticket", err)
		}
		reports = append(
			reports, OrphanReport{
				UserID:       ticket.UserID,
				ChannelID:    ticket.ChannelID,
				TicketNumber: ticket.TicketNumber,
				Family:       FamilyZentro,
			},
		)
	}

	t.logger.InfoContext(ctx, "cleanup sweep finished", "removed", len(reports))
	return reports, nil
}

func (t *TicketRegistry) channelExists(channelID string) bool {
	_, err := t.session.Channel(channelID)
	return err == nil
}

// brandEmbed returns an embed in the bot's house style.
func brandEmbed(title string, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       defaultEmbedAccentColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: brandFooterText},
	}
}
