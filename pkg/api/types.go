// Package api defines the wire types of the HTTP surface. Request payloads
// are explicit structs with named optional fields, validated at the boundary
// before they reach the core.
package api

import "time"

// NewTransfer originates a deposit or withdrawal against the settlement
// network.
type NewTransfer struct {
	// Direction is "deposit" or "withdrawal".
	Direction   string `json:"direction"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
	// Address is the caller's settlement network address.
	Address string `json:"address"`
	// Secret signs deposits out of the caller's network wallet.
	Secret string `json:"secret,omitempty"`
}

// NewMessage sends a message to a recipient. Charges default to zero;
// SettlementRef marks a send that awaits external confirmation.
type NewMessage struct {
	RecipientId      string `json:"recipient_id"`
	SenderText       string `json:"sender_text,omitempty"`
	RecipientText    string `json:"recipient_text,omitempty"`
	Hash             string `json:"hash,omitempty"`
	Action           string `json:"action,omitempty"`
	ActionParams     string `json:"action_params,omitempty"`
	SystemCharge     int64  `json:"system_charge,omitempty"`
	RecipientCharge  int64  `json:"recipient_charge,omitempty"`
	SenderAddress    string `json:"sender_address,omitempty"`
	RecipientAddress string `json:"recipient_address,omitempty"`
	SettlementRef    string `json:"settlement_ref,omitempty"`
}

// NewConversation opens (or returns) the conversation with a peer.
type NewConversation struct {
	PeerId string `json:"peer_id"`
}

// HideConversation toggles the caller's hidden flag.
type HideConversation struct {
	Hidden bool `json:"hidden"`
}

// Transaction is the caller-facing view of a ledger transaction.
type Transaction struct {
	Id            string    `json:"id"`
	Status        string    `json:"status"`
	Kind          string    `json:"kind"`
	Amount        int64     `json:"amount"`
	SettlementRef string    `json:"settlement_ref,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message is the caller-facing view of a message.
type Message struct {
	Id              string    `json:"id"`
	ConversationId  string    `json:"conversation_id"`
	Hash            string    `json:"hash,omitempty"`
	SenderId        string    `json:"sender_id"`
	RecipientId     string    `json:"recipient_id"`
	SenderText      string    `json:"sender_text,omitempty"`
	RecipientText   string    `json:"recipient_text,omitempty"`
	Action          string    `json:"action,omitempty"`
	ActionParams    string    `json:"action_params,omitempty"`
	ActionProcessed bool      `json:"action_processed"`
	SystemCharge    int64     `json:"system_charge,omitempty"`
	RecipientCharge int64     `json:"recipient_charge,omitempty"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
}

// Conversation is the caller-side view of a conversation: hidden and unread
// are resolved to the caller's side of the pair.
type Conversation struct {
	Id              string    `json:"id"`
	PeerId          string    `json:"peer_id"`
	Hidden          bool      `json:"hidden"`
	NumUnread       int64     `json:"num_unread"`
	LastMessageText string    `json:"last_message_text,omitempty"`
	LastTimestamp   time.Time `json:"last_timestamp"`
	EncryptionKey   string    `json:"encryption_key,omitempty"`
	Version         int64     `json:"version"`
}

// Profile carries only the feed identity; a deleted profile is this same
// minimal record with the marker set.
type Profile struct {
	Id      string `json:"id"`
	Version int64  `json:"version"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Picture mirrors Profile.
type Picture struct {
	Id      string `json:"id"`
	Version int64  `json:"version"`
	Deleted bool   `json:"deleted,omitempty"`
}

// AccountSummary is the account status poll response.
type AccountSummary struct {
	Balance      int64            `json:"balance"`
	Transactions []*Transaction   `json:"transactions,omitempty"`
	Totals       map[string]int64 `json:"totals,omitempty"`
}

// Changes is the change-feed poll response: per-collection deltas ordered
// ascending by version, plus the anchor for the next poll.
type Changes struct {
	Profiles      []*Profile      `json:"profiles"`
	Pictures      []*Picture      `json:"pictures"`
	Conversations []*Conversation `json:"conversations"`
	Messages      []*Message      `json:"messages"`
	NextAnchor    string          `json:"next_anchor"`
}
