// Package feed implements the anchor-based change feed: clients poll with an
// opaque anchor token and receive exactly the entities that changed since,
// plus a fresh anchor, without missing or duplicating updates.
package feed

import (
	"context"
	"log/slog"

	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

// feedCollections are the collections visible through the change feed, in
// response order.
var feedCollections = []storage.Collection{
	storage.CollectionProfiles,
	storage.CollectionPictures,
	storage.CollectionConversations,
	storage.CollectionMessages,
}

// Store is the slice of the data layer the feed needs.
type Store interface {
	storage.MessageStore
	storage.ConversationStore
	storage.ProfileStore
	storage.PictureStore
	storage.Region
	storage.VersionClock
}

// MessageReconciler advances pending messages before a feed read, so sends
// finalized by the settlement network are visible in the same poll.
// Satisfied by settlement.Reconciler.
type MessageReconciler interface {
	ReconcileMessages(ctx context.Context) error
}

// Changes is one poll's delta: per collection, the rows whose version exceeds
// the caller's anchor mark, ascending by version.
type Changes struct {
	Profiles      []models.Profile
	Pictures      []models.Picture
	Conversations []models.Conversation
	Messages      []models.Message
}

// Feed computes anchors and deltas.
type Feed struct {
	store      Store
	reconciler MessageReconciler
	log        *slog.Logger
}

// New creates a Feed.
func New(store Store, reconciler MessageReconciler, log *slog.Logger) *Feed {
	return &Feed{store: store, reconciler: reconciler, log: log}
}

// CurrentAnchor records the current maximum version per feed collection,
// atomically with respect to all writers.
func (f *Feed) CurrentAnchor(ctx context.Context) (Anchor, error) {
	var anchor Anchor
	err := f.store.Exclusive(ctx, feedCollections, func(ctx context.Context) error {
		var err error
		anchor, err = f.currentAnchor(ctx)
		return err
	})
	return anchor, err
}

func (f *Feed) currentAnchor(ctx context.Context) (Anchor, error) {
	anchor := make(Anchor, len(feedCollections))
	for _, c := range feedCollections {
		max, err := f.store.MaxVersion(ctx, c)
		if err != nil {
			return nil, err
		}
		anchor[c] = max
	}
	return anchor, nil
}

// ChangesSince returns everything visible to the caller that changed after
// the anchor token, plus a fresh anchor. The delta and the new anchor are
// computed inside one region over all four collections, so every entity
// committed before the region was acquired is reflected and nothing
// committed after is lost: a concurrent write simply surfaces on the next
// poll with the new anchor.
//
// Pending messages are reconciled first, so a send the network just
// confirmed appears in this same call. A non-empty peer narrows profiles,
// conversations and messages to that counterparty.
func (f *Feed) ChangesSince(ctx context.Context, callerID, token, peer string) (*Changes, Anchor, error) {
	anchor, err := DecodeAnchor(token)
	if err != nil {
		return nil, nil, err
	}

	if err := f.reconciler.ReconcileMessages(ctx); err != nil {
		// Reconciliation is opportunistic; a failed pass must not block the
		// poll, the entities simply stay pending until the next one.
		f.log.Warn("pre-feed reconciliation failed", slog.String("error", err.Error()))
	}

	var changes *Changes
	var next Anchor
	err = f.store.Exclusive(ctx, feedCollections, func(ctx context.Context) error {
		changes = &Changes{}
		var err error
		if changes.Profiles, err = f.store.ListProfilesSince(ctx, callerID, anchor.Mark(storage.CollectionProfiles), peer); err != nil {
			return err
		}
		if changes.Pictures, err = f.store.ListPicturesSince(ctx, anchor.Mark(storage.CollectionPictures)); err != nil {
			return err
		}
		if changes.Conversations, err = f.store.ListConversationsSince(ctx, callerID, anchor.Mark(storage.CollectionConversations), peer); err != nil {
			return err
		}
		if changes.Messages, err = f.store.ListMessagesSince(ctx, callerID, anchor.Mark(storage.CollectionMessages), peer); err != nil {
			return err
		}
		next, err = f.currentAnchor(ctx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return changes, next, nil
}
