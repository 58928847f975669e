package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/types"
	"github.com/cenkalti/backoff/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// botAPI is the part of *tgbotapi.BotAPI the transport uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

const (
	downloadTries   = 4
	downloadTimeout = 30 * time.Second
	pollTimeout     = 30 // seconds, long polling

	// apiTimeout bounds every Bot API call, long polls included. Sends run on
	// the game loop.
	apiTimeout = pollTimeout*time.Second + 10*time.Second
)

// Transport delivers game output through the Telegram Bot API and turns
// updates into types.Input.
type Transport struct {
	bot    botAPI
	client *http.Client
	log    *zap.Logger
}

func New(token string, log *zap.Logger) (*Transport, error) {
	return connect(token, tgbotapi.APIEndpoint, apiTimeout, log)
}

func connect(token, endpoint string, timeout time.Duration, log *zap.Logger) (*Transport, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: connecting bot: %w", err)
	}
	log.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	return newTransport(bot, log), nil
}

func newTransport(bot botAPI, log *zap.Logger) *Transport {
	return &Transport{
		bot:    bot,
		client: &http.Client{Timeout: downloadTimeout},
		log:    log,
	}
}

func (t *Transport) SendPrivate(ctx context.Context, userID string, msg types.Outgoing) error {
	return t.send(ctx, userID, msg)
}

func (t *Transport) SendRoom(ctx context.Context, chatID string, msg types.Outgoing) error {
	return t.send(ctx, chatID, msg)
}

func (t *Transport) send(ctx context.Context, to string, msg types.Outgoing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad chat id %q", types.ErrDelivery, to)
	}
	c, err := buildMessage(chatID, msg)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrDelivery, err)
	}
	if _, err := t.bot.Send(c); err != nil {
		return fmt.Errorf("%w: chat %d: %w", types.ErrDelivery, chatID, err)
	}
	return nil
}

func buildMessage(chatID int64, msg types.Outgoing) (tgbotapi.Chattable, error) {
	markup := replyMarkup(msg)

	switch {
	case msg.Document != nil:
		c := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: msg.Document.Name, Bytes: msg.Document.Data})
		c.Caption = msg.Text
		c.ReplyMarkup = markup
		return c, nil

	case msg.Media != nil:
		file := tgbotapi.FileID(msg.Media.FileID)
		switch msg.Media.Kind {
		case types.MediaPhoto:
			c := tgbotapi.NewPhoto(chatID, file)
			c.Caption = msg.Text
			c.ReplyMarkup = markup
			return c, nil
		case types.MediaAnimation:
			c := tgbotapi.NewAnimation(chatID, file)
			c.Caption = msg.Text
			c.ReplyMarkup = markup
			return c, nil
		case types.MediaVideo:
			c := tgbotapi.NewVideo(chatID, file)
			c.Caption = msg.Text
			c.ReplyMarkup = markup
			return c, nil
		case types.MediaDocument:
			c := tgbotapi.NewDocument(chatID, file)
			c.Caption = msg.Text
			c.ReplyMarkup = markup
			return c, nil
		default:
			return nil, fmt.Errorf("unknown media kind %q", msg.Media.Kind)
		}

	case msg.PhotoURL != "":
		c := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(msg.PhotoURL))
		c.Caption = msg.Text
		c.ReplyMarkup = markup
		return c, nil
	}

	c := tgbotapi.NewMessage(chatID, msg.Text)
	c.ReplyMarkup = markup
	return c, nil
}

func replyMarkup(msg types.Outgoing) any {
	if len(msg.Buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			btn := tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data)
			if b.URL != "" {
				btn = tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL)
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if msg.Keypad {
		kb := tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton("1"),
				tgbotapi.NewKeyboardButton("2"),
				tgbotapi.NewKeyboardButton("3"),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton("4"),
				tgbotapi.NewKeyboardButton("5"),
				tgbotapi.NewKeyboardButton("6"),
			),
		)
		kb.OneTimeKeyboard = true
		kb.ResizeKeyboard = true
		return kb
	}
	return nil
}

func (t *Transport) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	if _, err := t.bot.Request(cb); err != nil {
		return fmt.Errorf("%w: answering callback: %w", types.ErrDelivery, err)
	}
	return nil
}

// Download fetches an uploaded file. Transient failures are retried with
// exponential backoff; client errors are not.
func (t *Transport) Download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving file %s: %w", types.ErrDelivery, fileID, err)
	}

	data, err := backoff.Retry(ctx, func() ([]byte, error) {
		return t.fetch(ctx, url)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(downloadTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			t.log.Warn("file download failed, retrying",
				zap.String("file_id", fileID),
				zap.Duration("in", d),
				zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: downloading file %s: %w", types.ErrDelivery, fileID, err)
	}
	return data, nil
}

func (t *Transport) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
	return io.ReadAll(resp.Body)
}

// Poll long-polls for updates and hands each convertible one to handle until
// ctx is done.
func (t *Transport) Poll(ctx context.Context, handle func(types.Input)) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := t.bot.GetUpdatesChan(cfg)
	defer t.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			in, ok := Convert(u)
			if !ok {
				continue
			}
			handle(in)
		}
	}
}

// Convert maps an update onto types.Input. Updates the game does not react to
// report false.
func Convert(u tgbotapi.Update) (types.Input, bool) {
	if cq := u.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil || cq.From == nil {
			return types.Input{}, false
		}
		return types.Input{
			ChatID:       strconv.FormatInt(cq.Message.Chat.ID, 10),
			ChatKind:     chatKind(cq.Message.Chat),
			From:         player(cq.From),
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
		}, true
	}

	msg := u.Message
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return types.Input{}, false
	}
	in := types.Input{
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		ChatKind:   chatKind(msg.Chat),
		From:       player(msg.From),
		Text:       msg.Text,
		Attachment: attachment(msg),
	}
	if msg.IsCommand() {
		in.Command = msg.Command()
		in.Args = msg.CommandArguments()
	}
	if in.Text == "" && in.Attachment == nil {
		return types.Input{}, false
	}
	return in, true
}

func chatKind(c *tgbotapi.Chat) types.ChatKind {
	if c.IsPrivate() {
		return types.ChatPrivate
	}
	return types.ChatGroup
}

func player(u *tgbotapi.User) engine.Player {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	id := strconv.FormatInt(u.ID, 10)
	if name == "" {
		name = id
	}
	return engine.Player{ID: id, Name: name}
}

func attachment(msg *tgbotapi.Message) *types.Attachment {
	switch {
	case len(msg.Photo) > 0:
		// Sizes are ascending; keep the largest.
		p := msg.Photo[len(msg.Photo)-1]
		return &types.Attachment{FileID: p.FileID, FileUniqueID: p.FileUniqueID, Kind: types.MediaPhoto}
	case msg.Animation != nil:
		a := msg.Animation
		return &types.Attachment{FileID: a.FileID, FileUniqueID: a.FileUniqueID, Kind: types.MediaAnimation, FileName: a.FileName, MimeType: a.MimeType}
	case msg.Video != nil:
		v := msg.Video
		return &types.Attachment{FileID: v.FileID, FileUniqueID: v.FileUniqueID, Kind: types.MediaVideo, FileName: v.FileName, MimeType: v.MimeType}
	case msg.Document != nil:
		d := msg.Document
		return &types.Attachment{FileID: d.FileID, FileUniqueID: d.FileUniqueID, Kind: types.MediaDocument, FileName: d.FileName, MimeType: d.MimeType}
	}
	return nil
}
