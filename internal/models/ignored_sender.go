package models

import "time"

// IgnoredSender marks a sender the router should never act on within a
// group — messages still flow through for logging, but Route always
// resolves them to IGNORE (§4.2).
type IgnoredSender struct {
	ID        int       `json:"id" db:"id"`
	GroupJID  string    `json:"group_jid" db:"group_jid"`
	SenderJID string    `json:"sender_jid" db:"sender_jid"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
