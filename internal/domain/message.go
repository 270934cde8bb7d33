package domain

// Message is one entry in a chat's message sequence, stored at
// messages/{chatID}/{id}. The id is the store-assigned push key; the
// timestamp is client-assigned milliseconds since epoch. Messages are
// immutable once written.
type Message struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Timestamp  int64  `json:"timestamp"`
	ImageURL   string `json:"imageUrl,omitempty"`
}
