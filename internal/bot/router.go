package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/game"
	"github.com/DoyleJ11/hand-cricket/internal/types"
	"go.uber.org/zap"
)

type Transport interface {
	SendRoom(ctx context.Context, chatID string, msg types.Outgoing) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

type Options struct {
	Admins       map[string]bool
	Owner        string // @handle
	SupportURL   string
	ModeImageURL string
}

// Router maps chat input onto game operations. It runs on the hub loop like
// the game itself, so the pending upload maps need no lock.
type Router struct {
	g    *game.Game
	tr   Transport
	log  *zap.Logger
	opts Options
	now  func() time.Time

	pendingMedia   map[string]string // user id -> label
	pendingRestore map[string]bool
}

func NewRouter(g *game.Game, tr Transport, log *zap.Logger, opts Options) *Router {
	if opts.Admins == nil {
		opts.Admins = map[string]bool{}
	}
	return &Router{
		g:              g,
		tr:             tr,
		log:            log,
		opts:           opts,
		now:            time.Now,
		pendingMedia:   make(map[string]string),
		pendingRestore: make(map[string]bool),
	}
}

func (r *Router) Handle(ctx context.Context, in types.Input) {
	switch {
	case in.CallbackData != "":
		r.callback(ctx, in)
	case in.Command != "":
		r.command(ctx, in)
	case in.Private() && in.Attachment != nil:
		r.upload(ctx, in)
	case in.Private() && r.pendingMedia[in.From.ID] != "":
		r.say(ctx, in, "Please send a supported media type: photo, animation (gif), video, or document.")
	case in.Text != "":
		r.number(ctx, in)
	}
}

func (r *Router) reply(ctx context.Context, in types.Input, msg types.Outgoing) {
	if err := r.tr.SendRoom(ctx, in.ChatID, msg); err != nil {
		r.log.Warn("reply not delivered",
			zap.String("chat_id", in.ChatID),
			zap.String("user_id", in.From.ID),
			zap.Error(err))
	}
}

func (r *Router) say(ctx context.Context, in types.Input, text string) {
	r.reply(ctx, in, types.Text(text))
}

func (r *Router) isAdmin(userID string) bool { return r.opts.Admins[userID] }

// number routes a bare number: private chats carry bowler numbers, rooms carry
// batter numbers. Other text is ignored.
func (r *Router) number(ctx context.Context, in types.Input) {
	n, err := strconv.Atoi(strings.TrimSpace(in.Text))
	if err != nil {
		return
	}

	if in.Private() {
		if err := r.g.BowlerInput(ctx, in.From.ID, n); err != nil {
			r.say(ctx, in, errText(err))
		}
		return
	}

	if err := r.g.BatterInput(ctx, in.ChatID, in.From.ID, n); err != nil && !isSilent(err) {
		r.say(ctx, in, errText(err))
	}
}

func (r *Router) callback(ctx context.Context, in types.Input) {
	data := in.CallbackData
	answer := func(text string, alert bool) {
		if err := r.tr.AnswerCallback(ctx, in.CallbackID, text, alert); err != nil {
			r.log.Debug("answering callback", zap.String("data", data), zap.Error(err))
		}
	}

	switch {
	case data == chooseSolo:
		if in.Private() {
			answer("Use /newgame in a group chat.", false)
			return
		}
		r.g.CreateLobby(ctx, in.ChatID, in.From)
		answer("Solo lobby created", false)

	case data == chooseTeam:
		answer("Team mode is under maintenance", true)
		r.say(ctx, in, "⚠️ Team mode is currently under maintenance. Please use Solo mode for now.")

	case strings.HasPrefix(data, game.JoinData("")):
		matchID := strings.TrimPrefix(data, game.JoinData(""))
		if _, err := r.g.Join(ctx, matchID, in.From); err != nil {
			answer(errText(err), false)
			return
		}
		answer("Joined", false)

	default:
		answer("", false)
	}
}

// upload consumes the attachment an admin armed with /addanim or /restore.
func (r *Router) upload(ctx context.Context, in types.Input) {
	userID := in.From.ID
	att := in.Attachment

	if r.pendingRestore[userID] {
		if att.Kind != types.MediaDocument {
			r.say(ctx, in, "Please upload the backup as a document.")
			return
		}
		delete(r.pendingRestore, userID)
		r.say(ctx, in, "Backup file received. Downloading and validating...")
		n, err := r.g.Restore(ctx, att.FileID)
		if err != nil {
			r.log.Error("restore", zap.String("user_id", userID), zap.String("file", att.FileName), zap.Error(err))
			r.say(ctx, in, "Restore failed. "+errText(err))
			return
		}
		r.say(ctx, in, "Restore complete and applied. Active matches reloaded: "+strconv.Itoa(n)+".")
		return
	}

	label, ok := r.pendingMedia[userID]
	if !ok {
		return
	}
	err := r.g.AddMedia(ctx, types.Media{
		Label:        label,
		FileID:       att.FileID,
		Kind:         att.Kind,
		FileUniqueID: att.FileUniqueID,
		AddedBy:      userID,
		AddedAt:      r.now(),
	})
	if err != nil {
		r.log.Error("saving media", zap.String("label", label), zap.Error(err))
		r.say(ctx, in, "Could not save the media, try again.")
		return
	}
	delete(r.pendingMedia, userID)
	r.say(ctx, in, `Saved animation for label "`+label+`". Use /animlist to confirm.`)
}
