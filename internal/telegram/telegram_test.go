package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/types"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBot struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
	fileURL  string
	updates  chan tgbotapi.Update
	stopped  bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if b.sendErr != nil {
		return tgbotapi.Message{}, b.sendErr
	}
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetFileDirectURL(string) (string, error) { return b.fileURL, nil }

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return b.updates }

func (b *fakeBot) StopReceivingUpdates() { b.stopped = true }

func TestSend_TextWithKeypad(t *testing.T) {
	bot := &fakeBot{}
	tr := newTransport(bot, zap.NewNop())

	require.NoError(t, tr.SendPrivate(context.Background(), "42", types.Outgoing{Text: "Send your number (1-6).", Keypad: true}))

	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "Send your number (1-6).", msg.Text)
	kb, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, kb.OneTimeKeyboard)
	require.Len(t, kb.Keyboard, 2)
	assert.Equal(t, "6", kb.Keyboard[1][2].Text)
}

func TestSend_MediaCaptionAndButtons(t *testing.T) {
	bot := &fakeBot{}
	tr := newTransport(bot, zap.NewNop())

	err := tr.SendRoom(context.Background(), "-100", types.Outgoing{
		Text:    "Game created!",
		Media:   &types.Media{FileID: "anim-1", Kind: types.MediaAnimation},
		Buttons: []types.Button{{Text: "Join Game", Data: "join:m1"}, {Text: "Support", URL: "https://t.me/x"}},
	})
	require.NoError(t, err)

	anim, ok := bot.sent[0].(tgbotapi.AnimationConfig)
	require.True(t, ok)
	assert.Equal(t, "Game created!", anim.Caption)
	markup, ok := anim.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 2)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "join:m1", *markup.InlineKeyboard[0][0].CallbackData)
	require.NotNil(t, markup.InlineKeyboard[1][0].URL)
	assert.Equal(t, "https://t.me/x", *markup.InlineKeyboard[1][0].URL)
}

func TestSend_DocumentAndPhotoURL(t *testing.T) {
	bot := &fakeBot{}
	tr := newTransport(bot, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, tr.SendPrivate(ctx, "7", types.Outgoing{Text: "Database backup", Document: &types.Document{Name: "b.json.gz", Data: []byte{1}}}))
	require.NoError(t, tr.SendRoom(ctx, "-1", types.Outgoing{Text: "Choose mode", PhotoURL: "https://img/x.png"}))

	doc, ok := bot.sent[0].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, "Database backup", doc.Caption)
	photo, ok := bot.sent[1].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "Choose mode", photo.Caption)
}

func TestSend_FailuresAreDeliveryErrors(t *testing.T) {
	bot := &fakeBot{sendErr: errors.New("Forbidden: bot can't initiate conversation")}
	tr := newTransport(bot, zap.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, tr.SendPrivate(ctx, "42", types.Text("hi")), types.ErrDelivery)
	assert.ErrorIs(t, tr.SendPrivate(ctx, "not-a-number", types.Text("hi")), types.ErrDelivery)
	assert.ErrorIs(t, tr.SendRoom(ctx, "1", types.Outgoing{Media: &types.Media{FileID: "f", Kind: "sticker"}}), types.ErrDelivery)
}

func TestSend_StuckRequestTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Bot","username":"test_bot"}}`))
			return
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	tr, err := connect("TOKEN", srv.URL+"/bot%s/%s", 200*time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	start := time.Now()
	err = tr.SendRoom(context.Background(), "-100", types.Text("Match starting!"))
	assert.ErrorIs(t, err, types.ErrDelivery)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAnswerCallback(t *testing.T) {
	bot := &fakeBot{}
	tr := newTransport(bot, zap.NewNop())

	require.NoError(t, tr.AnswerCallback(context.Background(), "cb-1", "Team mode is under maintenance", true))

	require.Len(t, bot.requests, 1)
	cb, ok := bot.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cb-1", cb.CallbackQueryID)
	assert.True(t, cb.ShowAlert)
}

func TestDownload(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	tr := newTransport(&fakeBot{fileURL: srv.URL}, zap.NewNop())
	data, err := tr.Download(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, int32(2), hits.Load())
}

func TestDownload_ClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tr := newTransport(&fakeBot{fileURL: srv.URL}, zap.NewNop())
	_, err := tr.Download(context.Background(), "file-1")
	assert.ErrorIs(t, err, types.ErrDelivery)
	assert.Equal(t, int32(1), hits.Load())
}

func TestConvert(t *testing.T) {
	group := &tgbotapi.Chat{ID: -100, Type: "supergroup"}
	private := &tgbotapi.Chat{ID: 5, Type: "private"}
	alice := &tgbotapi.User{ID: 5, FirstName: "Alice", LastName: "Smith"}

	t.Run("command with args", func(t *testing.T) {
		in, ok := Convert(tgbotapi.Update{Message: &tgbotapi.Message{
			Chat:     private,
			From:     alice,
			Text:     "/addanim W",
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 8}},
		}})
		require.True(t, ok)
		assert.Equal(t, types.ChatPrivate, in.ChatKind)
		assert.Equal(t, "addanim", in.Command)
		assert.Equal(t, "W", in.Args)
		assert.Equal(t, "Alice Smith", in.From.Name)
		assert.Equal(t, "5", in.From.ID)
	})

	t.Run("group number", func(t *testing.T) {
		in, ok := Convert(tgbotapi.Update{Message: &tgbotapi.Message{
			Chat: group,
			From: &tgbotapi.User{ID: 9, UserName: "bob"},
			Text: "4",
		}})
		require.True(t, ok)
		assert.Equal(t, "-100", in.ChatID)
		assert.Equal(t, types.ChatGroup, in.ChatKind)
		assert.Empty(t, in.Command)
		assert.Equal(t, "bob", in.From.Name)
	})

	t.Run("name falls back to id", func(t *testing.T) {
		in, ok := Convert(tgbotapi.Update{Message: &tgbotapi.Message{Chat: group, From: &tgbotapi.User{ID: 77}, Text: "hi"}})
		require.True(t, ok)
		assert.Equal(t, "77", in.From.Name)
	})

	t.Run("largest photo", func(t *testing.T) {
		in, ok := Convert(tgbotapi.Update{Message: &tgbotapi.Message{
			Chat:  private,
			From:  alice,
			Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large", FileUniqueID: "u"}},
		}})
		require.True(t, ok)
		require.NotNil(t, in.Attachment)
		assert.Equal(t, "large", in.Attachment.FileID)
		assert.Equal(t, types.MediaPhoto, in.Attachment.Kind)
	})

	t.Run("animation wins over its document", func(t *testing.T) {
		in, ok := Convert(tgbotapi.Update{Message: &tgbotapi.Message{
			Chat:      private,
			From:      alice,
			Animation: &tgbotapi.Animation{FileID: "gif"},
			Document:  &tgbotapi.Document{FileID: "gif"},
		}})
		require.True(t, ok)
		assert.Equal(t, types.MediaAnimation, in.Attachment.Kind)
	})

	t.Run("document", func(t *testing.T) {
		in, ok := Convert(tgbotapi.Update{Message: &tgbotapi.Message{
			Chat:     private,
			From:     alice,
			Document: &tgbotapi.Document{FileID: "d1", FileName: "backup.json.gz", MimeType: "application/gzip"},
		}})
		require.True(t, ok)
		assert.Equal(t, types.MediaDocument, in.Attachment.Kind)
		assert.Equal(t, "backup.json.gz", in.Attachment.FileName)
	})

	t.Run("callback", func(t *testing.T) {
		in, ok := Convert(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb",
			From:    alice,
			Message: &tgbotapi.Message{Chat: group},
			Data:    "join:m1",
		}})
		require.True(t, ok)
		assert.Equal(t, "cb", in.CallbackID)
		assert.Equal(t, "join:m1", in.CallbackData)
		assert.Equal(t, "-100", in.ChatID)
	})

	t.Run("ignored updates", func(t *testing.T) {
		_, ok := Convert(tgbotapi.Update{})
		assert.False(t, ok)
		_, ok = Convert(tgbotapi.Update{Message: &tgbotapi.Message{Chat: group, From: alice}})
		assert.False(t, ok)
		_, ok = Convert(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "x", From: alice}})
		assert.False(t, ok)
	})
}

func TestPoll(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update, 2)}
	tr := newTransport(bot, zap.NewNop())

	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1, Type: "group"}, From: &tgbotapi.User{ID: 2, FirstName: "A"}, Text: "3"}}
	bot.updates <- tgbotapi.Update{}
	close(bot.updates)

	var got []types.Input
	require.NoError(t, tr.Poll(context.Background(), func(in types.Input) { got = append(got, in) }))

	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].Text)
	assert.True(t, bot.stopped)
}
