package chat

import "time"

// Message is one sanitized utterance inside a session. IDs are per-session
// sequence numbers, zero-padded so lexical order equals append order.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
