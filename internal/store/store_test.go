package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{Driver: DriverSQLite, DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func startedMatch(t *testing.T) *engine.Match {
	t.Helper()
	_, m := engine.NewMatch("chat-1", engine.Player{ID: "u1", Name: "Alice"}, 1)
	require.NoError(t, engine.AddPlayer(m, engine.Player{ID: "u2", Name: "Bob"}))
	require.NoError(t, engine.StartMatch(m))
	return m
}

func TestStore_CreateGetSaveMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, m := engine.NewMatch("chat-1", engine.Player{ID: "u1", Name: "Alice"}, 2)
	require.NoError(t, s.CreateMatch(ctx, m))

	got, err := s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, engine.StatusWaiting, got.Status)
	assert.Equal(t, 2, got.Overs)
	assert.Len(t, got.Players, 1)

	require.NoError(t, engine.AddPlayer(m, engine.Player{ID: "u2", Name: "Bob"}))
	require.NoError(t, engine.StartMatch(m))
	require.NoError(t, engine.SubmitBowlerNumber(m, "u2", 3))
	_, err = engine.SubmitBatterNumber(m, "u1", 4)
	require.NoError(t, err)
	require.NoError(t, s.SaveMatch(ctx, m))

	got, err = s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusInProgress, got.Status)
	assert.Equal(t, 4, got.Innings[1].Score)
	require.Len(t, got.Innings[1].History, 1)
	assert.Equal(t, "4", got.Innings[1].History[0].Outcome)
	assert.Equal(t, 4, got.PlayersStats["u1"].Runs)

	var rec GameRecord
	require.NoError(t, s.db.First(&rec, "id = ?", m.ID).Error)
	assert.Equal(t, "Bob", rec.Player2Name)
	assert.Equal(t, string(engine.StatusInProgress), rec.Status)
}

func TestStore_GetMatchMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetMatch(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_SaveInsertsMissingRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No CreateMatch: the first save has to insert.
	m := startedMatch(t)
	require.NoError(t, s.SaveMatch(ctx, m))

	got, err := s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, engine.StatusInProgress, got.Status)

	active, err := s.ListActiveMatches(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	var rec GameRecord
	require.NoError(t, s.db.First(&rec, "id = ?", m.ID).Error)
	assert.WithinDuration(t, m.CreatedAt, rec.CreatedAt, time.Second)

	// Later saves update the same row.
	m.Status = engine.StatusFinished
	require.NoError(t, s.SaveMatch(ctx, m))
	active, err = s.ListActiveMatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	var n int64
	require.NoError(t, s.db.Model(&GameRecord{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestStore_ListActiveMatchesSkipsFinished(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := startedMatch(t)
	done := startedMatch(t)
	done.Status = engine.StatusFinished
	require.NoError(t, s.CreateMatch(ctx, active))
	require.NoError(t, s.CreateMatch(ctx, done))

	got, err := s.ListActiveMatches(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)
}

func TestStore_MediaUpsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMedia(ctx, types.Media{Label: "W", FileID: "f1", Kind: types.MediaAnimation}))
	require.NoError(t, s.SaveMedia(ctx, types.Media{Label: "4", FileID: "f2", Kind: types.MediaPhoto}))
	require.NoError(t, s.SaveMedia(ctx, types.Media{Label: "W", FileID: "f3", Kind: types.MediaVideo}))

	w, err := s.GetMedia(ctx, "W")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "f3", w.FileID)
	assert.Equal(t, types.MediaVideo, w.Kind)
	assert.False(t, w.AddedAt.IsZero())

	missing, err := s.GetMedia(ctx, "6")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.ListMedia(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "4", all[0].Label)
	assert.Equal(t, "W", all[1].Label)
}

func TestStore_BackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	m := startedMatch(t)
	require.NoError(t, src.CreateMatch(ctx, m))
	require.NoError(t, src.SaveMedia(ctx, types.Media{Label: "bowling", FileID: "f1", Kind: types.MediaAnimation}))

	var buf bytes.Buffer
	require.NoError(t, src.Backup(ctx, &buf))

	dst := newTestStore(t)
	// Existing rows are replaced, not merged.
	require.NoError(t, dst.SaveMedia(ctx, types.Media{Label: "stale", FileID: "x", Kind: types.MediaPhoto}))

	snap, err := dst.Restore(ctx, &buf)
	require.NoError(t, err)
	assert.Len(t, snap.Games, 1)

	got, err := dst.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, engine.StatusInProgress, got.Status)

	media, err := dst.ListMedia(ctx)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "bowling", media[0].Label)
}

func TestStore_RestoreAcceptsPlainJSON(t *testing.T) {
	s := newTestStore(t)
	payload := `{"version":1,"games":[],"animations":[{"label":"6","file_id":"f6","file_type":"photo"}]}`

	_, err := s.Restore(context.Background(), strings.NewReader(payload))
	require.NoError(t, err)

	got, err := s.GetMedia(context.Background(), "6")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "f6", got.FileID)
}

func TestStore_RestoreRejectsInvalidPayload(t *testing.T) {
	ctx := context.Background()

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, _ = zw.Write([]byte(`{"version":1,"games":[{"id":"a","state":{"id":"b"}}]}`))
	require.NoError(t, zw.Close())

	cases := []struct {
		name    string
		payload []byte
	}{
		{"garbage", []byte("not a backup")},
		{"empty", nil},
		{"wrong version", []byte(`{"version":9}`)},
		{"duplicate labels", []byte(`{"version":1,"animations":[{"label":"W","file_id":"a"},{"label":"W","file_id":"b"}]}`)},
		{"state id mismatch", gz.Bytes()},
		{"sqlite file", append([]byte("SQLite format 3\x00"), make([]byte, 84)...)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t)
			require.NoError(t, s.SaveMedia(ctx, types.Media{Label: "keep", FileID: "k", Kind: types.MediaPhoto}))

			_, err := s.Restore(ctx, bytes.NewReader(tc.payload))
			assert.ErrorIs(t, err, ErrInvalidBackup)

			kept, err := s.GetMedia(ctx, "keep")
			require.NoError(t, err)
			assert.NotNil(t, kept)
		})
	}
}
