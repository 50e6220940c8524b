package models

import "time"

// Message is the payload for chat messages.
type Message struct {
	ID         UUID   `json:"id"`
	ChannelID  UUID   `json:"channel_id"`
	AuthorID   UUID   `json:"author_id"`
	Body       string `json:"body"`
	SentAt     int64  `json:"sent_at"`
	ModifiedAt int64  `json:"modified_at"`
}

// SentAtTime returns SentAt as time.Time.
func (m *Message) SentAtTime() time.Time {
	return time.Unix(m.SentAt, 0)
}
