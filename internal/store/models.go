package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/types"
)

// StateBlob stores a whole match as one JSON column.
type StateBlob engine.Match

func (s StateBlob) Value() (driver.Value, error) {
	b, err := json.Marshal(engine.Match(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StateBlob) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("StateBlob: expected []byte or string, got %T", src)
	}
	var m engine.Match
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*s = StateBlob(m)
	return nil
}

func (s *StateBlob) Match() *engine.Match {
	m := engine.Match(*s)
	return &m
}

// GameRecord is one match row: the serialized state plus summary columns for
// querying from outside the bot.
type GameRecord struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	Type        string    `json:"type" gorm:"size:16;index:idx_games_status_type,priority:2"`
	Status      string    `json:"status" gorm:"size:32;index:idx_games_status_type,priority:1"`
	ChatID      string    `json:"chat_id" gorm:"size:64;index"`
	Player1ID   string    `json:"player1_id" gorm:"size:64"`
	Player1Name string    `json:"player1_name"`
	Player2ID   string    `json:"player2_id" gorm:"size:64"`
	Player2Name string    `json:"player2_name"`
	State       StateBlob `json:"state" gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (GameRecord) TableName() string { return "games" }

func newGameRecord(m *engine.Match) GameRecord {
	r := GameRecord{
		ID:        m.ID,
		Type:      string(m.Type),
		Status:    string(m.Status),
		ChatID:    m.ChatID,
		State:     StateBlob(*m),
		CreatedAt: m.CreatedAt,
	}
	if len(m.Players) > 0 {
		r.Player1ID, r.Player1Name = m.Players[0].ID, m.Players[0].Name
	}
	if len(m.Players) > 1 {
		r.Player2ID, r.Player2Name = m.Players[1].ID, m.Players[1].Name
	}
	return r
}

type AnimationRecord struct {
	Label        string    `json:"label" gorm:"primaryKey;size:64"`
	FileID       string    `json:"file_id" gorm:"not null"`
	FileType     string    `json:"file_type" gorm:"size:16"`
	FileUniqueID string    `json:"file_unique_id"`
	AddedBy      string    `json:"added_by" gorm:"size:64"`
	AddedAt      time.Time `json:"added_at"`
}

func (AnimationRecord) TableName() string { return "animations" }

func (r AnimationRecord) media() types.Media {
	return types.Media{
		Label:        r.Label,
		FileID:       r.FileID,
		Kind:         types.MediaKind(r.FileType),
		FileUniqueID: r.FileUniqueID,
		AddedBy:      r.AddedBy,
		AddedAt:      r.AddedAt,
	}
}

func newAnimationRecord(m types.Media) AnimationRecord {
	return AnimationRecord{
		Label:        m.Label,
		FileID:       m.FileID,
		FileType:     string(m.Kind),
		FileUniqueID: m.FileUniqueID,
		AddedBy:      m.AddedBy,
		AddedAt:      m.AddedAt,
	}
}
