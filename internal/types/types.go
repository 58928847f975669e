package types

import (
	"errors"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
)

// ErrDelivery marks a message the transport could not hand to its recipient,
// typically a player who never opened a private chat with the bot.
var ErrDelivery = errors.New("delivery failed")

type ChatKind string

const (
	ChatPrivate ChatKind = "private"
	ChatGroup   ChatKind = "group"
)

type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaAnimation MediaKind = "animation"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
)

// Media is a file already stored on the chat platform, addressed by label.
type Media struct {
	Label        string    `json:"label"`
	FileID       string    `json:"file_id"`
	Kind         MediaKind `json:"file_type"`
	FileUniqueID string    `json:"file_unique_id"`
	AddedBy      string    `json:"added_by"`
	AddedAt      time.Time `json:"added_at"`
}

type Attachment struct {
	FileID       string
	FileUniqueID string
	Kind         MediaKind
	FileName     string
	MimeType     string
}

// Input is one inbound event from the chat platform.
type Input struct {
	ChatID   string
	ChatKind ChatKind
	From     engine.Player

	Text    string
	Command string // without the leading slash or @botname
	Args    string

	CallbackID   string
	CallbackData string

	Attachment *Attachment
}

func (in Input) Private() bool { return in.ChatKind == ChatPrivate }

type Button struct {
	Text string
	Data string // callback payload
	URL  string
}

type Document struct {
	Name string
	Data []byte
}

// Outgoing is one message to a room or a player. When Media or Document is
// set, Text becomes its caption.
type Outgoing struct {
	Text     string
	Media    *Media
	Document *Document
	PhotoURL string
	Keypad   bool // one-time 1-6 reply keyboard
	Buttons  []Button
}

func Text(s string) Outgoing { return Outgoing{Text: s} }
