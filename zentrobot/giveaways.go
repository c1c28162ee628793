package zentrobot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// GiveawayStore persists giveaways and their entries. No gateway handler
// drives these yet; the schema and store exist so the operational API can
// inspect them and a future scheduler can consume them.
type GiveawayStore struct {
	db     DBI
	logger *slog.Logger
}

func newGiveawayStore(db DBI, logger *slog.Logger) *GiveawayStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GiveawayStore{
		db:     db,
		logger: logger.With(loggerNameKey, "giveaways"),
	}
}

// Create records a new active giveaway.
func (g *GiveawayStore) Create(
	ctx context.Context,
	giveaway *Giveaway,
) error {
	if giveaway.WinnerCount < 1 {
		giveaway.WinnerCount = 1
	}
	giveaway.Status = GiveawayStatusActive
	if _, err := g.db.Create(ctx, giveaway); err != nil {
		return storeErr("create giveaway", err)
	}
	return nil
}

// Enter records a user's entry. Entering a giveaway twice is an
// idempotent no-op, enforced by the unique index on (giveaway, user).
func (g *GiveawayStore) Enter(
	ctx context.Context,
	giveawayID uint,
	userID string,
) error {
	var giveaway Giveaway
	err := g.db.DB().WithContext(ctx).First(&giveaway, "id = ?", giveawayID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: giveaway %d", ErrNotFound, giveawayID)
	}
	if err != nil {
		return storeErr("find giveaway", err)
	}
	if giveaway.Status != GiveawayStatusActive {
		return fmt.Errorf("%w: giveaway %d is %s", ErrNotFound, giveawayID, giveaway.Status)
	}

	var existing GiveawayEntry
	err = g.db.DB().WithContext(ctx).First(
		&existing, "giveaway_id = ? AND user_id = ?", giveawayID, userID,
	).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return storeErr("find giveaway entry", err)
	}

	entry := &GiveawayEntry{GiveawayID: giveawayID, UserID: userID}
	if _, err = g.db.Create(ctx, entry); err != nil {
		return storeErr("create giveaway entry", err)
	}
	return nil
}

// ListActive returns every active giveaway in the guild.
func (g *GiveawayStore) ListActive(
	ctx context.Context,
	guildID string,
) ([]Giveaway, error) {
	var giveaways []Giveaway
	err := g.db.DB().WithContext(ctx).
		Where("guild_id = ? AND status = ?", guildID, GiveawayStatusActive).
		Order("id").
		Find(&giveaways).Error
	if err != nil {
		return nil, storeErr("list giveaways", err)
	}
	return giveaways, nil
}

// EntryCount returns how many entries a giveaway has.
func (g *GiveawayStore) EntryCount(ctx context.Context, giveawayID uint) (int64, error) {
	var count int64
	err := g.db.DB().WithContext(ctx).
		Model(&GiveawayEntry{}).
		Where("giveaway_id = ?", giveawayID).
		Count(&count).Error
	if err != nil {
		return 0, storeErr("count giveaway entries", err)
	}
	return count, nil
}

// SetStatus transitions a giveaway to ended or cancelled. Only active
// giveaways can transition.
func (g *GiveawayStore) SetStatus(
	ctx context.Context,
	giveawayID uint,
	status string,
) error {
	if status != GiveawayStatusEnded && status != GiveawayStatusCancelled {
		return fmt.Errorf("invalid giveaway status: %q", status)
	}
	var giveaway Giveaway
	err := g.db.DB().WithContext(ctx).First(&giveaway, "id = ?", giveawayID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: giveaway %d", ErrNotFound, giveawayID)
	}
	if err != nil {
		return storeErr("find giveaway", err)
	}
	if giveaway.Status != GiveawayStatusActive {
		return fmt.Errorf(
			"%w: giveaway %d is already %s", ErrNotFound, giveawayID, giveaway.Status,
		)
	}
	if _, err = g.db.Updates(
		ctx,
		&Giveaway{ModelUintID: ModelUintID{ID: giveawayID}},
		map[string]any{"status": status},
	); err != nil {
		return storeErr("update giveaway status", err)
	}
	g.logger.InfoContext(
		ctx,
		"giveaway status changed",
		"giveaway_id", giveawayID,
		"status", status,
	)
	return nil
}
