package storage

import (
	"context"

	"github.com/relaymsg/relay/pkg/models"
)

// Profiles and pictures are owned by another service; the core persists only
// their feed identity (version stamp plus tombstone) so the change feed can
// report them. Upserts exist for that collaborator and for tests.

// ProfileStore defines the feed-facing view of profiles.
type ProfileStore interface {
	// UpsertProfile records a profile's current version and tombstone.
	UpsertProfile(ctx context.Context, profile *models.Profile) error

	// ListProfilesSince retrieves profiles of the caller's conversation
	// partners with version strictly greater than sinceVersion, ascending by
	// version. Pass sinceVersion < 0 for all. A non-empty peer restricts to
	// that partner's profile.
	ListProfilesSince(ctx context.Context, callerID string, sinceVersion int64, peer string) ([]models.Profile, error)
}

// PictureStore defines the feed-facing view of pictures.
// Pictures are globally visible, so no caller scoping applies.
type PictureStore interface {
	// UpsertPicture records a picture's current version and tombstone.
	UpsertPicture(ctx context.Context, picture *models.Picture) error

	// ListPicturesSince retrieves pictures with version strictly greater
	// than sinceVersion, ascending by version. Pass sinceVersion < 0 for all.
	ListPicturesSince(ctx context.Context, sinceVersion int64) ([]models.Picture, error)
}
