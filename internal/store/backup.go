package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidBackup is returned by Restore when the payload cannot be decoded
// or fails validation. Nothing is written in that case.
var ErrInvalidBackup = errors.New("invalid backup")

const backupVersion = 1

type Snapshot struct {
	Version    int               `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	Games      []GameRecord      `json:"games"`
	Animations []AnimationRecord `json:"animations"`
}

// Backup writes every game and media record to w as gzipped JSON.
func (s *Store) Backup(ctx context.Context, w io.Writer) (err error) {
	snap := Snapshot{Version: backupVersion, CreatedAt: time.Now().UTC()}
	db := s.db.WithContext(ctx)
	if err := db.Order("created_at").Find(&snap.Games).Error; err != nil {
		return fmt.Errorf("%w: backup games: %w", ErrPersistence, err)
	}
	if err := db.Order("label").Find(&snap.Animations).Error; err != nil {
		return fmt.Errorf("%w: backup animations: %w", ErrPersistence, err)
	}

	zw := gzip.NewWriter(w)
	defer func() { err = multierr.Append(err, zw.Close()) }()
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		return fmt.Errorf("encoding backup: %w", err)
	}

	s.log.Info("backup written",
		zap.Int("games", len(snap.Games)),
		zap.Int("animations", len(snap.Animations)))
	return nil
}

// Restore replaces all stored records with the contents of a backup. Plain
// JSON is accepted as well as gzip. The replacement runs in one transaction.
func (s *Store) Restore(ctx context.Context, r io.Reader) (*Snapshot, error) {
	snap, err := decodeSnapshot(r)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&GameRecord{}).Error; err != nil {
			return err
		}
		if err := all.Delete(&AnimationRecord{}).Error; err != nil {
			return err
		}
		if len(snap.Games) > 0 {
			if err := tx.CreateInBatches(snap.Games, 100).Error; err != nil {
				return err
			}
		}
		if len(snap.Animations) > 0 {
			if err := tx.CreateInBatches(snap.Animations, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: restore: %w", ErrPersistence, err)
	}

	s.log.Info("backup restored",
		zap.Int("games", len(snap.Games)),
		zap.Int("animations", len(snap.Animations)),
		zap.Time("backup_created_at", snap.CreatedAt))
	return snap, nil
}

// maxBackupSize bounds how much of an upload is read.
const maxBackupSize = 64 << 20

func decodeSnapshot(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBackupSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}

	var src io.Reader = bytes.NewReader(data)
	switch mt := mimetype.Detect(data); {
	case mt.Is("application/gzip"):
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
		}
		defer zr.Close()
		src = zr
	case mt.Is("application/json"), mt.Is("text/plain"):
	default:
		return nil, fmt.Errorf("%w: unsupported file type %s", ErrInvalidBackup, mt.String())
	}

	var snap Snapshot
	if err := json.NewDecoder(src).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}
	if err := snap.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}
	return &snap, nil
}

func (s *Snapshot) validate() error {
	if s.Version != backupVersion {
		return fmt.Errorf("unsupported version %d", s.Version)
	}
	seen := make(map[string]bool, len(s.Games))
	for i, g := range s.Games {
		if g.ID == "" {
			return fmt.Errorf("game %d has no id", i)
		}
		if seen[g.ID] {
			return fmt.Errorf("duplicate game id %s", g.ID)
		}
		seen[g.ID] = true
		if g.State.ID != g.ID {
			return fmt.Errorf("game %s state belongs to %q", g.ID, g.State.ID)
		}
	}
	labels := make(map[string]bool, len(s.Animations))
	for i, a := range s.Animations {
		if a.Label == "" || a.FileID == "" {
			return fmt.Errorf("animation %d is missing label or file id", i)
		}
		if labels[a.Label] {
			return fmt.Errorf("duplicate animation label %s", a.Label)
		}
		labels[a.Label] = true
	}
	return nil
}
