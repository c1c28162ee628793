//nolint:lll // struct tags can't be split
package zentrobot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	customIDFormat = "%s:%s"
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"

	counterIDMain   = "main"
	counterIDZentro = "zentro"
	counterSeed     = 1
)

var (
	sqliteMaxOpenConns    = 1
	sqliteMaxIdleConns    = 1
	sqliteMaxConnLifetime = 5 * time.Minute
	sqliteExecPragma      = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
	dbOperationTimeout = 30 * time.Second
)

// TicketFamily identifies one of the three ticket workflows. The setup and
// support families share one open-ticket table and one counter; the zentro
// family keeps its own table and counter, so a user can hold one ticket of
// each kind at the same time.
type TicketFamily string

const (
	FamilySetup   TicketFamily = "setup"
	FamilySupport TicketFamily = "support"
	FamilyZentro  TicketFamily = "zentro"
)

// CounterID returns the ticket counter row this family draws numbers from.
func (f TicketFamily) CounterID() string {
	if f == FamilyZentro {
		return counterIDZentro
	}
	return counterIDMain
}

func (f TicketFamily) String() string {
	return string(f)
}

// ModelUnixTime is an embeddable model with Unix millisecond timestamps for
// creation and update.
type ModelUnixTime struct {
	CreatedAt int64 `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64 `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// TicketConfig binds a ticket family to the channel its panel was posted in
// and the staff role granted access to every ticket of that family.
// Re-running the setup command overwrites the existing row.
type TicketConfig struct {
	ModelUnixTime
	GuildID     string       `gorm:"primaryKey" json:"guild_id"`
	Family      TicketFamily `gorm:"primaryKey;type:string" json:"family"`
	ChannelID   string       `gorm:"not null" json:"channel_id"`
	StaffRoleID string       `gorm:"not null" json:"staff_role_id"`
}

// OpenTicket is an open ticket in the setup/support registry. The user ID
// primary key is what enforces one open ticket per user across both
// families.
type OpenTicket struct {
	ModelUnixTime
	UserID       string       `gorm:"primaryKey" json:"user_id"`
	GuildID      string       `gorm:"not null" json:"guild_id"`
	ChannelID    string       `gorm:"not null" json:"channel_id"`
	TicketNumber int          `json:"ticket_number"`
	RandomNumber int          `json:"random_number"`
	Family       TicketFamily `gorm:"type:string" json:"family"`
}

// ZentroTicket is an open ticket in the specialized registry. Separate
// table from OpenTicket, so holding one of each is allowed.
type ZentroTicket struct {
	ModelUnixTime
	UserID       string `gorm:"primaryKey" json:"user_id"`
	GuildID      string `gorm:"not null" json:"guild_id"`
	ChannelID    string `gorm:"not null" json:"channel_id"`
	TicketNumber int    `json:"ticket_number"`
	RandomNumber int    `json:"random_number"`
	TicketType   string `json:"ticket_type"`
	TicketData   string `gorm:"type:string" json:"ticket_data"`
}

// Data decodes the JSON form payload collected by the ticket modal.
func (z ZentroTicket) Data() (ZentroTicketData, error) {
	var data ZentroTicketData
	if z.TicketData == "" {
		return data, nil
	}
	err := json.Unmarshal([]byte(z.TicketData), &data)
	return data, err
}

// SetData encodes the form payload into the ticket record.
func (z *ZentroTicket) SetData(data ZentroTicketData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	z.TicketData = string(payload)
	return nil
}

// ZentroTicketData is the form payload attached to a specialized ticket.
// Fields are populated per ticket type; unused fields stay empty.
type ZentroTicketData struct {
	ServerInvite string `json:"server_invite,omitempty"`
	PaymentEmail string `json:"payment_email,omitempty"`
	RustIGN      string `json:"rust_ign,omitempty"`
	Description  string `json:"description,omitempty"`
}

// TicketCounter is a monotonically increasing ticket number source. Rows
// are seeded with counterSeed on first use and read-then-incremented, so
// numbers can have gaps after failed opens but never repeat.
type TicketCounter struct {
	ID    string `gorm:"primaryKey" json:"id"`
	Value int    `gorm:"not null" json:"value"`
}

// TicketCategory records the channel category IDs provisioned for each
// ticket family in a guild.
type TicketCategory struct {
	ModelUnixTime
	GuildID           string `gorm:"primaryKey" json:"guild_id"`
	SetupCategoryID   string `json:"setup_category_id"`
	SupportCategoryID string `json:"support_category_id"`
	ZentroCategoryID  string `json:"zentro_category_id"`
}

// categoryID returns the stored category for the family, which may be
// empty if the family hasn't been provisioned yet.
func (t TicketCategory) categoryID(family TicketFamily) string {
	switch family {
	case FamilySupport:
		return t.SupportCategoryID
	case FamilyZentro:
		return t.ZentroCategoryID
	default:
		return t.SetupCategoryID
	}
}

func (t *TicketCategory) setCategoryID(family TicketFamily, id string) {
	switch family {
	case FamilySupport:
		t.SupportCategoryID = id
	case FamilyZentro:
		t.ZentroCategoryID = id
	default:
		t.SetupCategoryID = id
	}
}

// ReactionRole maps one emoji on one message to a role. There is
// deliberately no unique index on (message, emoji): writes go through a
// check-then-branch upsert, and concurrent setup calls can leave
// duplicate rows behind. Lookups take the first match.
type ReactionRole struct {
	ModelUintID
	ModelUnixTime
	GuildID   string `gorm:"not null;index" json:"guild_id"`
	ChannelID string `gorm:"not null" json:"channel_id"`
	MessageID string `gorm:"not null;index" json:"message_id"`
	RoleID    string `gorm:"not null" json:"role_id"`
	EmojiID   string `json:"emoji_id"`
	EmojiName string `json:"emoji_name"`
	IsUnicode bool   `json:"is_unicode"`
}

// Emoji returns the mapping's emoji key.
func (r ReactionRole) Emoji() EmojiKey {
	if r.IsUnicode {
		return EmojiKey{Unicode: true, Key: r.EmojiName}
	}
	return EmojiKey{Key: r.EmojiID}
}

// EmbedDraft is a user's embed-builder working copy. One draft per user,
// edited in place by the wizard and kept after sending.
type EmbedDraft struct {
	ModelUnixTime
	UserID        string `gorm:"primaryKey" json:"user_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Color         int    `json:"color"`
	ShowTimestamp bool   `json:"show_timestamp"`
	ThumbnailURL  string `json:"thumbnail_url"`
}

// Giveaway statuses.
const (
	GiveawayStatusActive    = "active"
	GiveawayStatusEnded     = "ended"
	GiveawayStatusCancelled = "cancelled"
)

// Giveaway is a scheduled prize drawing. The schema is provisioned and
// migrated with everything else; no handler writes to it yet.
type Giveaway struct {
	ModelUintID
	ModelUnixTime
	GuildID     string `gorm:"not null;index" json:"guild_id"`
	ChannelID   string `gorm:"not null" json:"channel_id"`
	MessageID   string `json:"message_id"`
	HostID      string `gorm:"not null" json:"host_id"`
	Prize       string `gorm:"not null" json:"prize"`
	WinnerCount int    `gorm:"not null;default:1" json:"winner_count"`
	Status      string `gorm:"not null;default:active" json:"status"`
	EndsAt      int64  `gorm:"not null" json:"ends_at"`
}

// GiveawayEntry is one user's entry into a giveaway. The unique index
// keeps entry a per-user idempotent operation.
type GiveawayEntry struct {
	ModelUintID
	ModelUnixTime
	GiveawayID uint   `gorm:"not null;uniqueIndex:idx_giveaway_entry" json:"giveaway_id"`
	UserID     string `gorm:"not null;uniqueIndex:idx_giveaway_entry" json:"user_id"`
}

// InteractionLog is an audit row recorded for every inbound interaction,
// before dispatch.
type InteractionLog struct {
	ModelUintID
	InteractionID string `gorm:"not null" json:"interaction_id"`
	Type          string `gorm:"type:string" json:"type"`
	UserID        string `gorm:"not null" json:"user_id"`
	Username      string `gorm:"type:string" json:"username"`
	GuildID       string `gorm:"type:string" json:"guild_id"`
	ChannelID     string `gorm:"type:string" json:"channel_id"`
	CommandName   string `gorm:"type:string" json:"command_name"`
	CustomID      string `gorm:"type:string" json:"custom_id"`
	Payload       string `gorm:"type:string" json:"payload"`
	CreatedAt     int64  `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
}

// database wraps the GORM connection and serializes writes behind a mutex
// when concurrent writes are disabled (always, for SQLite). It implements
// the DBI interface.
type database struct {
	db                     *gorm.DB
	mu                     sync.Mutex
	logger                 *slog.Logger
	enableConcurrentWrites bool
}

// NewDatabase initializes a new database instance wrapping the given GORM
// connection.
func NewDatabase(
	db *gorm.DB,
	log *slog.Logger,
	enableConcurrentWrites bool,
) DBI {
	if log == nil {
		log = slog.Default()
	}
	return &database{
		db:                     db,
		logger:                 log.With(loggerNameKey, "writedb"),
		enableConcurrentWrites: enableConcurrentWrites,
	}
}

func (d *database) DB() *gorm.DB {
	return d.db
}

func (d *database) Lock() {
	if d.enableConcurrentWrites {
		return
	}
	d.mu.Lock()
}

func (d *database) Unlock() {
	if d.enableConcurrentWrites {
		return
	}
	d.mu.Unlock()
}

func (d *database) Create(ctx context.Context, value any, omit ...string) (
	rowsAffected int64,
	err error,
) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}
	db := d.db.WithContext(ctx)

	if len(omit) > 0 {
		rv := db.Omit(omit...).Create(value)
		return rv.RowsAffected, rv.Error
	}
	rv := db.Create(value)
	return rv.RowsAffected, rv.Error
}

func (d *database) Save(ctx context.Context, value any, omit ...string) (
	rowsAffected int64,
	err error,
) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}

	if len(omit) > 0 {
		rv := d.db.WithContext(ctx).Omit(omit...).Save(value)
		return rv.RowsAffected, rv.Error
	}
	rv := d.db.WithContext(ctx).Save(value)
	return rv.RowsAffected, rv.Error
}

func (d *database) Updates(ctx context.Context, model, values any) (
	rowsAffected int64,
	err error,
) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}
	rv := d.db.WithContext(ctx).Model(model).Updates(values)
	return rv.RowsAffected, rv.Error
}

func (d *database) Update(
	ctx context.Context,
	model any,
	column string,
	value any,
) (rowsAffected int64, err error) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}

	rv := d.db.WithContext(ctx).Model(model).Update(column, value)
	return rv.RowsAffected, rv.Error
}

func (d *database) Delete(
	value any,
	conds ...any,
) (rowsAffected int64, err error) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	rv := d.db.Delete(value, conds...)
	return rv.RowsAffected, rv.Error
}

func (d *database) Transaction(
	ctx context.Context,
	fc func(tx *gorm.DB) error,
	opts ...*sql.TxOptions,
) (err error) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}
	return d.db.WithContext(ctx).Transaction(fc, opts...)
}

// DBI defines the interface for database write operations. This is here
// primarily to enable mocking of the database operations for testing.
// [database] implements this interface for 'real' DB operations.
type DBI interface {
	Lock()
	Unlock()

	DB() *gorm.DB
	Create(ctx context.Context, value any, omit ...string) (rowsAffected int64, err error)
	Save(ctx context.Context, value any, omit ...string) (rowsAffected int64, err error)
	Updates(ctx context.Context, model any, values any) (rowsAffected int64, err error)
	Update(ctx context.Context, model any, column string, value any) (
		rowsAffected int64,
		err error,
	)
	Delete(value any, conds ...any) (rowsAffected int64, err error)
	Transaction(
		ctx context.Context,
		fc func(tx *gorm.DB) error,
		opts ...*sql.TxOptions,
	) (err error)
}

// CreateDB initializes and returns a GORM database connection based on the
// specified database type, and auto-migrates every model inside a
// transaction before anything else touches the store.
func CreateDB(ctx context.Context, databaseType string, database string) (*gorm.DB, error) {
	handler := tint.NewHandler(
		os.Stdout,
		&tint.Options{
			Level:     slog.LevelWarn,
			AddSource: true,
		},
	)

	gormLogger := newGORMLogger(handler, 500*time.Millisecond)
	dbLogger := slog.New(handler)

	dbLogger.InfoContext(
		ctx,
		"initializing database",
		"database_type", databaseType,
		"database", database,
	)
	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return db, err
	}

	txn := db.WithContext(ctx).Begin()

	mg := txn.Migrator()
	err = mg.AutoMigrate(
		&TicketConfig{},
		&OpenTicket{},
		&ZentroTicket{},
		&TicketCounter{},
		&TicketCategory{},
		&ReactionRole{},
		&EmbedDraft{},
		&Giveaway{},
		&GiveawayEntry{},
		&InteractionLog{},
	)
	if err != nil {
		return db, err
	}

	commitErr := txn.Commit().Error
	if commitErr != nil {
		return db, commitErr
	}

	return db, nil
}

// getDB opens the underlying GORM connection for the given database type.
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		return gorm.Open(
			sqlite.Open(database),
			&gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	case dbTypePostgres:
		return gorm.Open(
			postgres.Open(database), &gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}
