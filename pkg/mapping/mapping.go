package mapping

import (
	"github.com/relaymsg/relay/pkg/api"
	"github.com/relaymsg/relay/pkg/feed"
	"github.com/relaymsg/relay/pkg/models"
)

// ToApiTransaction converts a domain Transaction model to an API Transaction model.
func ToApiTransaction(tx *models.Transaction) *api.Transaction {
	return &api.Transaction{
		Id:            tx.Id,
		Status:        string(tx.Status),
		Kind:          string(tx.Kind),
		Amount:        tx.Amount,
		SettlementRef: tx.SettlementRef,
		Error:         tx.Error,
		CreatedAt:     tx.CreatedAt,
		UpdatedAt:     tx.UpdatedAt,
	}
}

// ToApiMessage converts a domain Message model to an API Message model.
func ToApiMessage(msg *models.Message) *api.Message {
	return &api.Message{
		Id:              msg.Id,
		ConversationId:  msg.ConversationId,
		Hash:            msg.Hash,
		SenderId:        msg.SenderId,
		RecipientId:     msg.RecipientId,
		SenderText:      msg.SenderText,
		RecipientText:   msg.RecipientText,
		Action:          msg.Action,
		ActionParams:    msg.ActionParams,
		ActionProcessed: msg.ActionProcessed,
		SystemCharge:    msg.SystemCharge,
		RecipientCharge: msg.RecipientCharge,
		Status:          string(msg.Status),
		Error:           msg.Error,
		Version:         msg.Version,
		CreatedAt:       msg.CreatedAt,
	}
}

// ToApiConversation converts a domain Conversation to the caller's view of
// it: hidden and unread resolve to the caller's side, the peer id to the
// other side. Callers must be a party; non-parties never see the row.
func ToApiConversation(conv *models.Conversation, callerID string) *api.Conversation {
	role, _ := conv.RoleOf(callerID)
	return &api.Conversation{
		Id:              conv.Id,
		PeerId:          conv.Parties[role.Other()],
		Hidden:          conv.Hidden[role],
		NumUnread:       conv.NumUnread[role],
		LastMessageText: conv.LastMessageText,
		LastTimestamp:   conv.LastTimestamp,
		EncryptionKey:   conv.EncryptionKey,
		Version:         conv.Version,
	}
}

// ToApiProfile converts a domain Profile. Deleted profiles are already
// minimal records, so the mapping is uniform.
func ToApiProfile(p *models.Profile) *api.Profile {
	return &api.Profile{Id: p.Id, Version: p.Version, Deleted: p.Deleted}
}

// ToApiPicture converts a domain Picture.
func ToApiPicture(p *models.Picture) *api.Picture {
	return &api.Picture{Id: p.Id, Version: p.Version, Deleted: p.Deleted}
}

// ToApiChanges converts a feed delta plus its next anchor to the poll
// response. Slices are always present (empty, not null) so clients can
// iterate without nil checks.
func ToApiChanges(changes *feed.Changes, next feed.Anchor, callerID string) *api.Changes {
	out := &api.Changes{
		Profiles:      make([]*api.Profile, 0, len(changes.Profiles)),
		Pictures:      make([]*api.Picture, 0, len(changes.Pictures)),
		Conversations: make([]*api.Conversation, 0, len(changes.Conversations)),
		Messages:      make([]*api.Message, 0, len(changes.Messages)),
		NextAnchor:    next.Encode(),
	}
	for i := range changes.Profiles {
		out.Profiles = append(out.Profiles, ToApiProfile(&changes.Profiles[i]))
	}
	for i := range changes.Pictures {
		out.Pictures = append(out.Pictures, ToApiPicture(&changes.Pictures[i]))
	}
	for i := range changes.Conversations {
		out.Conversations = append(out.Conversations, ToApiConversation(&changes.Conversations[i], callerID))
	}
	for i := range changes.Messages {
		out.Messages = append(out.Messages, ToApiMessage(&changes.Messages[i]))
	}
	return out
}

// ToApiSummary converts a ledger summary.
func ToApiSummary(balance int64, txs []models.Transaction, totals map[models.TransactionKind]int64) *api.AccountSummary {
	out := &api.AccountSummary{Balance: balance}
	for i := range txs {
		out.Transactions = append(out.Transactions, ToApiTransaction(&txs[i]))
	}
	if totals != nil {
		out.Totals = make(map[string]int64, len(totals))
		for k, v := range totals {
			out.Totals[string(k)] = v
		}
	}
	return out
}
