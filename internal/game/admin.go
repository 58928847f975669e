package game

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RoomMatch returns the first active match of a room.
func (g *Game) RoomMatch(chatID string) (*engine.Match, error) {
	if m := g.reg.ByChat(chatID, nil); m != nil {
		return m, nil
	}
	return nil, ErrNoMatch
}

// PlayerMatch returns the first active match the user plays in.
func (g *Game) PlayerMatch(userID string) (*engine.Match, error) {
	if m := g.reg.ByPlayer(userID, nil); m != nil {
		return m, nil
	}
	return nil, ErrNoMatch
}

// Members is the players list and scorecard of a match.
func Members(m *engine.Match) string {
	return fmt.Sprintf("%s\n\n%s", engine.PlayersScoreList(m), engine.ScorecardText(m))
}

func (g *Game) AddMedia(ctx context.Context, m types.Media) error {
	if err := g.st.SaveMedia(ctx, m); err != nil {
		return err
	}
	g.log.Info("media stored", zap.String("label", m.Label), zap.String("kind", string(m.Kind)), zap.String("added_by", m.AddedBy))
	return nil
}

func (g *Game) MediaList(ctx context.Context) ([]types.Media, error) {
	return g.st.ListMedia(ctx)
}

// Backup dumps the store into a document ready to send.
func (g *Game) Backup(ctx context.Context, at time.Time) (*types.Document, error) {
	var buf bytes.Buffer
	if err := g.st.Backup(ctx, &buf); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("backup-%s.json.gz", at.UTC().Format("2006-01-02T15-04-05Z"))
	return &types.Document{Name: name, Data: buf.Bytes()}, nil
}

// Restore downloads a backup and replaces the store with it. Pending lobbies
// and the registry are dropped first and rebuilt from the store afterwards,
// whether or not the restore went through.
func (g *Game) Restore(ctx context.Context, fileID string) (int, error) {
	data, err := g.tr.Download(ctx, fileID)
	if err != nil {
		return 0, err
	}

	g.reg.Reset()
	clear(g.revealing)

	_, restoreErr := g.st.Restore(ctx, bytes.NewReader(data))
	if restoreErr != nil {
		g.log.Error("restore failed", zap.Error(restoreErr))
	}
	n, reloadErr := g.Reload(ctx)
	return n, multierr.Append(restoreErr, reloadErr)
}
