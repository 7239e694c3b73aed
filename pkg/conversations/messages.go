package conversations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

// SendRequest carries everything needed to send one message. Optional fields
// default to zero: no action, no charges, no external settlement.
type SendRequest struct {
	SenderID         string
	RecipientID      string
	SenderAddress    string
	RecipientAddress string
	SenderText       string
	RecipientText    string
	Hash             string // client-supplied correlation id
	Action           string
	ActionParams     string
	SystemCharge     int64
	RecipientCharge  int64
	// SettlementRef, when set, means the send carries an external transfer
	// and stays PENDING until the network confirms it.
	SettlementRef string
}

// Send delivers a message: it resolves (or creates) the conversation, applies
// the system and recipient charges through the ledger, persists the message
// with a fresh version stamp and re-projects the conversation summary.
//
// Charges are applied before the message exists; an insufficient balance
// aborts the send with no message created. A message with no pending external
// transfer is SENT immediately.
func (s *Service) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	conv, err := s.GetOrCreate(ctx, req.SenderID, req.RecipientID)
	if err != nil {
		return nil, err
	}

	messageID := uuid.New().String()
	if err := s.applyCharges(ctx, req, messageID); err != nil {
		return nil, err
	}

	status := models.MSG_SENT
	if req.SettlementRef != "" {
		status = models.MSG_PENDING
	}

	var msg *models.Message
	err = s.store.Exclusive(ctx, []storage.Collection{storage.CollectionMessages, storage.CollectionConversations}, func(ctx context.Context) error {
		version, err := s.store.NextVersion(ctx, storage.CollectionMessages)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		msg = &models.Message{
			Id:               messageID,
			ConversationId:   conv.Id,
			Hash:             req.Hash,
			SenderId:         req.SenderID,
			RecipientId:      req.RecipientID,
			SenderAddress:    req.SenderAddress,
			RecipientAddress: req.RecipientAddress,
			SenderText:       req.SenderText,
			RecipientText:    req.RecipientText,
			Action:           req.Action,
			ActionParams:     req.ActionParams,
			SystemCharge:     req.SystemCharge,
			RecipientCharge:  req.RecipientCharge,
			Status:           status,
			SettlementRef:    req.SettlementRef,
			Version:          version,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.store.CreateMessage(ctx, msg); err != nil {
			return err
		}
		return s.Project(ctx, conv.Id)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("message sent",
		slog.String("message_id", msg.Id),
		slog.String("conversation_id", conv.Id),
		slog.String("status", string(status)))
	return msg, nil
}

// applyCharges debits the sender for the message's fees. The ledger acquires
// its own accounts+transactions region per charge.
func (s *Service) applyCharges(ctx context.Context, req SendRequest, messageID string) error {
	if req.SystemCharge <= 0 && req.RecipientCharge <= 0 {
		return nil
	}

	sender, err := s.charger.GetOrCreateAccount(ctx, models.ACCOUNT_USER, req.SenderID)
	if err != nil {
		return err
	}
	if req.SystemCharge > 0 {
		platform, err := s.charger.GetOrCreateAccount(ctx, models.ACCOUNT_PLATFORM, "")
		if err != nil {
			return err
		}
		if _, err := s.charger.ApplyCharge(ctx, sender.Id, platform.Id, req.SystemCharge, models.KIND_SYSTEM_CHARGE, messageID); err != nil {
			return err
		}
	}
	if req.RecipientCharge > 0 {
		recipient, err := s.charger.GetOrCreateAccount(ctx, models.ACCOUNT_USER, req.RecipientID)
		if err != nil {
			return err
		}
		if _, err := s.charger.ApplyCharge(ctx, sender.Id, recipient.Id, req.RecipientCharge, models.KIND_RECIPIENT_CHARGE, messageID); err != nil {
			return err
		}
	}
	return nil
}

// MarkRead marks a SENT message READ on behalf of its recipient and
// re-projects the conversation so the unread count drops. Marking an
// already-read message again is a no-op.
func (s *Service) MarkRead(ctx context.Context, messageID, callerID string) (*models.Message, error) {
	var msg *models.Message
	err := s.store.Exclusive(ctx, []storage.Collection{storage.CollectionMessages, storage.CollectionConversations}, func(ctx context.Context) error {
		var err error
		msg, err = s.store.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		if msg.RecipientId != callerID {
			return fmt.Errorf("user %s reading message %s: %w", callerID, messageID, storage.ErrForbidden)
		}
		if msg.Status == models.MSG_READ {
			return nil
		}
		if !msg.Status.CanTransition(models.MSG_READ) {
			return fmt.Errorf("message %s cannot be read from status %s", messageID, msg.Status)
		}

		version, err := s.store.NextVersion(ctx, storage.CollectionMessages)
		if err != nil {
			return err
		}
		msg.Status = models.MSG_READ
		msg.Version = version
		msg.UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateMessage(ctx, msg); err != nil {
			return err
		}
		return s.Project(ctx, msg.ConversationId)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListForCaller returns a conversation's messages, oldest first, after
// checking the caller is a party.
func (s *Service) ListForCaller(ctx context.Context, conversationID, callerID string) ([]models.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, ok := conv.RoleOf(callerID); !ok {
		return nil, fmt.Errorf("user %s in conversation %s: %w", callerID, conversationID, storage.ErrForbidden)
	}
	return s.store.ListConversationMessages(ctx, conversationID)
}
