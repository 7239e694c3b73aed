package models

import (
	"time"
)

// AccountType identifies who an account belongs to. USER accounts are owned
// by a platform user; the other two are singleton system accounts.
type AccountType string

const (
	// ACCOUNT_USER is an account owned by a specific user.
	ACCOUNT_USER AccountType = "USER"
	// ACCOUNT_EXTERNAL_HOLDING is the pool account mirroring funds held on
	// the settlement network on behalf of users.
	ACCOUNT_EXTERNAL_HOLDING AccountType = "EXTERNAL_HOLDING"
	// ACCOUNT_PLATFORM collects platform fees.
	ACCOUNT_PLATFORM AccountType = "PLATFORM"
)

// Account represents one side of the double-entry ledger.
// Balance is a cache: it is always recomputable as the sum of SUCCESS credits
// minus SUCCESS debits over the transactions referencing this account.
type Account struct {
	Id        string      `json:"id"`
	Type      AccountType `json:"type"`
	OwnerId   string      `json:"owner_id,omitempty"` // empty for system accounts
	Balance   int64       `json:"balance"`
	CreatedAt time.Time   `json:"created_at"`
}

// TransactionStatus defines the possible states of a transaction.
// PENDING is the only non-terminal state.
type TransactionStatus string

const (
	TX_PENDING TransactionStatus = "PENDING"
	TX_SUCCESS TransactionStatus = "SUCCESS"
	TX_FAILED  TransactionStatus = "FAILED"
)

// TransactionKind classifies what a money movement is for.
type TransactionKind string

const (
	KIND_DEPOSIT          TransactionKind = "DEPOSIT"
	KIND_WITHDRAWAL       TransactionKind = "WITHDRAWAL"
	KIND_SYSTEM_CHARGE    TransactionKind = "SYSTEM_CHARGE"
	KIND_RECIPIENT_CHARGE TransactionKind = "RECIPIENT_CHARGE"
	KIND_ADJUSTMENT       TransactionKind = "ADJUSTMENT"
)

// Transaction is a single money movement between two accounts.
// Amounts are in the smallest currency unit and always positive; direction is
// carried by the debit/credit pair.
type Transaction struct {
	Id              string            `json:"id"`
	CreatedBy       string            `json:"created_by"` // account id of the initiator
	Status          TransactionStatus `json:"status"`
	Kind            TransactionKind   `json:"kind"`
	Amount          int64             `json:"amount"`
	DebitAccountId  string            `json:"debit_account_id"`
	CreditAccountId string            `json:"credit_account_id"`
	SettlementRef   string            `json:"settlement_ref,omitempty"` // hash on the settlement network
	LinkedMessageId string            `json:"linked_message_id,omitempty"`
	Error           string            `json:"error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Terminal reports whether the transaction status can no longer change.
func (t *Transaction) Terminal() bool {
	return t.Status != TX_PENDING
}

// MessageStatus defines the message delivery state machine:
// PENDING -> SENT -> READ, PENDING -> FAILED. READ and FAILED are terminal.
type MessageStatus string

const (
	MSG_PENDING MessageStatus = "PENDING"
	MSG_SENT    MessageStatus = "SENT"
	MSG_READ    MessageStatus = "READ"
	MSG_FAILED  MessageStatus = "FAILED"
)

// CanTransition reports whether a message may move from one status to another.
func (s MessageStatus) CanTransition(to MessageStatus) bool {
	switch s {
	case MSG_PENDING:
		return to == MSG_SENT || to == MSG_FAILED
	case MSG_SENT:
		return to == MSG_READ
	default:
		return false
	}
}

// Message is a single message inside a conversation. Version is the global,
// strictly increasing stamp for the messages collection; it is reassigned on
// every mutation so the change feed picks the message up again.
type Message struct {
	Id               string        `json:"id"`
	ConversationId   string        `json:"conversation_id"`
	Hash             string        `json:"hash"` // client-supplied correlation id
	SenderId         string        `json:"sender_id"`
	RecipientId      string        `json:"recipient_id"`
	SenderAddress    string        `json:"sender_address"`    // settlement network address
	RecipientAddress string        `json:"recipient_address"` // settlement network address
	SenderText       string        `json:"sender_text"`
	RecipientText    string        `json:"recipient_text"`
	Action           string        `json:"action,omitempty"`
	ActionParams     string        `json:"action_params,omitempty"`
	ActionProcessed  bool          `json:"action_processed"`
	SystemCharge     int64         `json:"system_charge"`
	RecipientCharge  int64         `json:"recipient_charge"`
	Status           MessageStatus `json:"status"`
	SettlementRef    string        `json:"settlement_ref,omitempty"` // set when the send awaits external settlement
	Error            string        `json:"error,omitempty"`
	Version          int64         `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// PartyRole selects one side of a conversation. Conversations store per-side
// state as two-element arrays indexed by PartyRole.
type PartyRole int

const (
	Party1 PartyRole = 0
	Party2 PartyRole = 1
)

// Other returns the opposite side.
func (r PartyRole) Other() PartyRole {
	if r == Party1 {
		return Party2
	}
	return Party1
}

// Conversation is the denormalized summary of the message exchange between an
// unordered pair of users. Parties are stored in canonical order
// (Parties[0] < Parties[1]) so the pair is unique regardless of who wrote
// first. Hidden and NumUnread are per-side, indexed by PartyRole.
type Conversation struct {
	Id              string    `json:"id"`
	Parties         [2]string `json:"parties"`
	Hidden          [2]bool   `json:"hidden"`
	NumUnread       [2]int64  `json:"num_unread"`
	LastMessageText string    `json:"last_message_text"`
	LastTimestamp   time.Time `json:"last_timestamp"`
	EncryptionKey   string    `json:"encryption_key"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
}

// RoleOf resolves which side of the conversation a user is on.
// The second return is false when the user is not a party.
func (c *Conversation) RoleOf(userID string) (PartyRole, bool) {
	switch userID {
	case c.Parties[Party1]:
		return Party1, true
	case c.Parties[Party2]:
		return Party2, true
	}
	return Party1, false
}

// CanonicalPair orders two user ids into the canonical storage order.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Profile is managed elsewhere; the core only needs its feed identity:
// a version stamp and a deletion tombstone.
type Profile struct {
	Id      string `json:"id"` // user id
	Version int64  `json:"version"`
	Deleted bool   `json:"deleted"`
}

// Picture is managed elsewhere; like Profile it participates in the change
// feed only through its version and tombstone. Pictures are globally visible.
type Picture struct {
	Id      string `json:"id"`
	Version int64  `json:"version"`
	Deleted bool   `json:"deleted"`
}
