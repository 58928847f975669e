package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/game"
	"github.com/DoyleJ11/hand-cricket/internal/store"
	"github.com/DoyleJ11/hand-cricket/internal/types"
	"go.uber.org/zap"
)

const (
	chooseSolo = "choose:solo"
	chooseTeam = "choose:team"
)

const welcomeText = `Welcome to CricketPCG, a fast and fair Hand-Cricket game for Telegram.

What I do:
• Host quick 1v1 matches (Solo lobby → PvP). No AI, real players only.
• Ball-by-ball private-number bowling and group-number batting with animated reveals.

Quick commands:
/newgame — Start a mode chooser in a group (use in group chats)
/joingame — Join the most recent lobby in the group
/members — Show players & live scoreboard

Admin commands: /addanim, /animlist, /backup, /restore

Players must start a private chat with me so I can send bowling prompts.
Enjoy! 🎯`

const groupWelcomeText = `CricketPCG Bot is online, ready to host hand-cricket matches 🏏
Use /newgame in this group to create a new lobby and start playing.

Tip: Players should start a private chat with the bot so they can receive bowling prompts.`

const groupHelpText = "🏏 CricketPCG — Quick Help\n\n• Use /newgame to create a Solo lobby. • Use /joingame to join. • For full help message the bot privately and send /help."

func (r *Router) command(ctx context.Context, in types.Input) {
	switch in.Command {
	case "start":
		r.start(ctx, in)
	case "help":
		r.help(ctx, in)
	case "newgame":
		r.newGame(ctx, in)
	case "joingame":
		r.joinGame(ctx, in)
	case "members":
		r.members(ctx, in)
	case "addanim":
		r.addAnim(ctx, in)
	case "canceladd":
		if _, ok := r.pendingMedia[in.From.ID]; ok {
			delete(r.pendingMedia, in.From.ID)
			r.say(ctx, in, "Pending upload canceled.")
			return
		}
		r.say(ctx, in, "No pending upload.")
	case "animlist":
		r.animList(ctx, in)
	case "backup":
		r.backup(ctx, in)
	case "restore":
		if !r.adminInPrivate(ctx, in, "Run /restore in a private chat (admin only).") {
			return
		}
		r.pendingRestore[in.From.ID] = true
		r.say(ctx, in, "Please upload the backup file as a document (.json.gz or .json). Send /cancelrestore to cancel.")
	case "cancelrestore":
		if r.pendingRestore[in.From.ID] {
			delete(r.pendingRestore, in.From.ID)
			r.say(ctx, in, "Restore cancelled.")
			return
		}
		r.say(ctx, in, "No pending restore.")
	}
}

func (r *Router) linkButtons() []types.Button {
	var buttons []types.Button
	if r.opts.SupportURL != "" {
		buttons = append(buttons, types.Button{Text: "Support", URL: r.opts.SupportURL})
	}
	if owner := strings.TrimPrefix(r.opts.Owner, "@"); owner != "" {
		buttons = append(buttons, types.Button{Text: "Owner", URL: "https://t.me/" + owner})
	}
	return buttons
}

func (r *Router) start(ctx context.Context, in types.Input) {
	if in.Private() {
		r.reply(ctx, in, types.Outgoing{Text: welcomeText, Buttons: r.linkButtons()})
		return
	}
	r.say(ctx, in, groupWelcomeText)
}

func (r *Router) help(ctx context.Context, in types.Input) {
	if !in.Private() {
		r.say(ctx, in, groupHelpText)
		return
	}

	var b strings.Builder
	b.WriteString("🏏 CricketPCG — Help & Commands\n\n")
	b.WriteString("Player & Lobby commands:\n• /newgame — Start a mode chooser in a group (use in group chat).\n• /joingame — Join the most recent lobby in this group.\n• /members — Show current players and live scoreboard for the active match.\n\n")
	b.WriteString("Gameplay (hand-cricket rules):\n• Bowler (private): choose a number 1–6 and send to the bot in private.\n• Batter (group): when prompted, send a number 1–6 in the group.\n• If numbers match → W (wicket). Otherwise batter scores the number sent.\n\n")
	b.WriteString("Animations & media:\n• /animlist — List stored animation labels.\n• Admin: /addanim <label> — Upload animation media in private.\n\n")
	if r.isAdmin(in.From.ID) {
		b.WriteString("Admin commands:\n• /addanim <label> — Upload animation\n• /animlist — List animations\n• /backup — Download DB backup\n• /restore — Restore DB from uploaded backup\n\n")
	}
	b.WriteString("Notes:\n• Team mode is under maintenance.\n• Admin commands require ADMIN_IDS in the environment.\n• Players must start a private chat with the bot.\n")
	r.reply(ctx, in, types.Outgoing{Text: b.String(), Buttons: r.linkButtons()})
}

func (r *Router) newGame(ctx context.Context, in types.Input) {
	if in.Private() {
		r.say(ctx, in, "Use /newgame in a group chat.")
		return
	}
	r.reply(ctx, in, types.Outgoing{
		Text:     "Choose mode: Solo or Team",
		PhotoURL: r.opts.ModeImageURL,
		Buttons: []types.Button{
			{Text: "Solo", Data: chooseSolo},
			{Text: "Team", Data: chooseTeam},
		},
	})
}

func (r *Router) joinGame(ctx context.Context, in types.Input) {
	if in.Private() {
		r.say(ctx, in, "Join commands work in the group chat where the lobby was created.")
		return
	}
	if _, err := r.g.JoinRoom(ctx, in.ChatID, in.From); err != nil {
		r.say(ctx, in, errText(err))
	}
}

func (r *Router) members(ctx context.Context, in types.Input) {
	if in.Private() {
		m, err := r.g.PlayerMatch(in.From.ID)
		if err != nil {
			r.say(ctx, in, "You are not currently playing in any active match.")
			return
		}
		r.say(ctx, in, "Players & stats (your match):\n"+game.Members(m))
		return
	}
	m, err := r.g.RoomMatch(in.ChatID)
	if err != nil {
		r.say(ctx, in, "No active match in this group right now.")
		return
	}
	r.say(ctx, in, "Players & stats:\n"+game.Members(m))
}

// adminInPrivate replies and returns false unless the sender is an admin in a
// private chat.
func (r *Router) adminInPrivate(ctx context.Context, in types.Input, notPrivate string) bool {
	if !in.Private() {
		r.say(ctx, in, notPrivate)
		return false
	}
	if !r.isAdmin(in.From.ID) {
		r.say(ctx, in, "You are not authorized.")
		return false
	}
	return true
}

func (r *Router) addAnim(ctx context.Context, in types.Input) {
	if !r.adminInPrivate(ctx, in, "Use this command in private (admins only).") {
		return
	}
	label := strings.TrimSpace(in.Args)
	if i := strings.IndexAny(label, " \t\n"); i >= 0 {
		label = label[:i]
	}
	if label == "" {
		r.say(ctx, in, "Usage: /addanim <label>")
		return
	}
	r.pendingMedia[in.From.ID] = label
	r.say(ctx, in, fmt.Sprintf("Upload the media now to save as %q. Send /canceladd to cancel.", label))
}

func (r *Router) animList(ctx context.Context, in types.Input) {
	list, err := r.g.MediaList(ctx)
	if err != nil {
		r.log.Error("listing media", zap.Error(err))
		r.say(ctx, in, "Could not list animations.")
		return
	}
	if len(list) == 0 {
		r.say(ctx, in, "No animations stored.")
		return
	}
	lines := make([]string, 0, len(list))
	for _, m := range list {
		lines = append(lines, fmt.Sprintf("• %s (%s)", m.Label, m.Kind))
	}
	r.say(ctx, in, "Stored animations:\n"+strings.Join(lines, "\n"))
}

func (r *Router) backup(ctx context.Context, in types.Input) {
	if !r.adminInPrivate(ctx, in, "Run /backup in a private chat (admin only).") {
		return
	}
	doc, err := r.g.Backup(ctx, r.now())
	if err != nil {
		r.log.Error("backup", zap.Error(err))
		r.say(ctx, in, "Failed to create/send backup.")
		return
	}
	r.reply(ctx, in, types.Outgoing{Text: "Database backup", Document: doc})
}

// isSilent reports errors a room number should not be answered for: plain
// chatter while no ball waits for a batter.
func isSilent(err error) bool {
	return errors.Is(err, engine.ErrNoPendingBall)
}

func errText(err error) string {
	switch {
	case errors.Is(err, engine.ErrOutOfRange):
		return "Send a number from 1 to 6."
	case errors.Is(err, engine.ErrNotCurrentBowler):
		return "You are not the current bowler."
	case errors.Is(err, engine.ErrNotCurrentBatter):
		return "Only the current batter can send the number now."
	case errors.Is(err, engine.ErrInvalidPhase):
		return "The match is not taking numbers right now."
	case errors.Is(err, engine.ErrNoPendingBall):
		return "No ball is waiting for a batter."
	case errors.Is(err, game.ErrNotYourBall):
		return "No active ball waiting for your input (or you are not the current bowler)."
	case errors.Is(err, engine.ErrPlayerExists):
		return "You already joined the game."
	case errors.Is(err, engine.ErrLobbyFull):
		return "This lobby is full."
	case errors.Is(err, game.ErrLobbyNotFound):
		return "Lobby expired or not found"
	case errors.Is(err, game.ErrAlreadyStarted):
		return "Game already started"
	case errors.Is(err, game.ErrNoLobby):
		return "No active lobby in this group right now."
	case errors.Is(err, store.ErrInvalidBackup):
		return "Uploaded file is not a valid backup."
	case errors.Is(err, types.ErrDelivery):
		return "Could not fetch the file from Telegram."
	case errors.Is(err, store.ErrPersistence):
		return "The database is unavailable right now."
	default:
		return "Something went wrong."
	}
}
