package domain

// ChatType discriminates who can see and join a chat.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
	ChatPublic  ChatType = "public"
)

// Valid reports whether t is one of the three known chat types.
func (t ChatType) Valid() bool {
	return t == ChatPrivate || t == ChatGroup || t == ChatPublic
}

// LastMessage is the preview cached on a chat for list display. It is
// overwritten on every send; concurrent senders race and the last write wins.
type LastMessage struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Chat is a conversation record stored at chats/{id}. Participants is a
// set-as-map: a uid key is always true, absence means non-member. For public
// chats the map plays no part in visibility.
type Chat struct {
	ID           string          `json:"id,omitempty"`
	Type         ChatType        `json:"type"`
	Name         string          `json:"name"`
	Participants map[string]bool `json:"participants,omitempty"`
	LastMessage  *LastMessage    `json:"lastMessage,omitempty"`
	CreatedBy    string          `json:"createdBy"`
	CreatedAt    int64           `json:"createdAt"`
}

// VisibleTo reports whether the chat shows up in uid's directory: public
// chats always, anything else only for participants.
func (c *Chat) VisibleTo(uid string) bool {
	if c.Type == ChatPublic {
		return true
	}
	return c.Participants[uid]
}

// LastActivity returns the last-message timestamp, or 0 when the chat has no
// messages yet so it sorts after every chat that has one.
func (c *Chat) LastActivity() int64 {
	if c.LastMessage == nil {
		return 0
	}
	return c.LastMessage.Timestamp
}
