package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/types"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrPersistence wraps every failed read or write against the database.
var ErrPersistence = errors.New("persistence failure")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Options struct {
	Driver string
	DSN    string
	Debug  bool // log SQL
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(opts Options, log *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverPostgres:
		dialector = postgres.Open(opts.DSN)
	case DriverSQLite, "":
		if err := ensureDir(opts.DSN); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if opts.Debug {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrPersistence, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if opts.Driver == DriverPostgres {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	} else {
		// One connection: sqlite serializes writers anyway and every
		// ":memory:" connection would otherwise be its own database.
		sqlDB.SetMaxOpenConns(1)
	}

	return New(db, log)
}

func New(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&GameRecord{}, &AnimationRecord{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %w", ErrPersistence, err)
	}
	return &Store{db: db, log: log}, nil
}

func ensureDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// WithTransaction runs fn against a store bound to one transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(*Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, log: s.log})
	})
}

func (s *Store) CreateMatch(ctx context.Context, m *engine.Match) error {
	rec := newGameRecord(m)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("%w: create match %s: %w", ErrPersistence, m.ID, err)
	}
	return nil
}

// SaveMatch writes the current snapshot of a match, inserting the record when
// an earlier create never reached the store.
func (s *Store) SaveMatch(ctx context.Context, m *engine.Match) error {
	rec := newGameRecord(m)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "status", "chat_id",
			"player1_id", "player1_name", "player2_id", "player2_name",
			"state", "updated_at",
		}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("%w: save match %s: %w", ErrPersistence, m.ID, err)
	}
	return nil
}

// GetMatch returns nil, nil when the match does not exist.
func (s *Store) GetMatch(ctx context.Context, id string) (*engine.Match, error) {
	var rec GameRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get match %s: %w", ErrPersistence, id, err)
	}
	return rec.State.Match(), nil
}

func (s *Store) ListActiveMatches(ctx context.Context) ([]*engine.Match, error) {
	var recs []GameRecord
	err := s.db.WithContext(ctx).
		Where("status <> ?", string(engine.StatusFinished)).
		Order("created_at").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list active matches: %w", ErrPersistence, err)
	}

	matches := make([]*engine.Match, 0, len(recs))
	for i := range recs {
		matches = append(matches, recs[i].State.Match())
	}
	return matches, nil
}

func (s *Store) SaveMedia(ctx context.Context, m types.Media) error {
	if m.AddedAt.IsZero() {
		m.AddedAt = time.Now()
	}
	rec := newAnimationRecord(m)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("%w: save media %q: %w", ErrPersistence, m.Label, err)
	}
	return nil
}

// GetMedia returns nil, nil when no media is stored under label.
func (s *Store) GetMedia(ctx context.Context, label string) (*types.Media, error) {
	var rec AnimationRecord
	err := s.db.WithContext(ctx).First(&rec, "label = ?", label).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get media %q: %w", ErrPersistence, label, err)
	}
	m := rec.media()
	return &m, nil
}

func (s *Store) ListMedia(ctx context.Context) ([]types.Media, error) {
	var recs []AnimationRecord
	if err := s.db.WithContext(ctx).Order("label").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("%w: list media: %w", ErrPersistence, err)
	}
	out := make([]types.Media, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.media())
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrPersistence, err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
