package sqlite

import (
	"context"
	"fmt"

	"github.com/relaymsg/relay/pkg/models"
)

// UpsertProfile records a profile's current version and tombstone.
func (s *Store) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, version, deleted) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version, deleted = excluded.deleted`,
		profile.Id, profile.Version, profile.Deleted)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// ListProfilesSince retrieves profiles of the caller's conversation partners
// newer than sinceVersion, ascending by version.
func (s *Store) ListProfilesSince(ctx context.Context, callerID string, sinceVersion int64, peer string) ([]models.Profile, error) {
	query := `SELECT p.id, p.version, p.deleted FROM profiles p
		WHERE p.version > ?
		AND EXISTS (SELECT 1 FROM conversations c
			WHERE (c.party_1 = ? AND c.party_2 = p.id)
			   OR (c.party_2 = ? AND c.party_1 = p.id))`
	args := []any{sinceVersion, callerID, callerID}
	if peer != "" {
		query += ` AND p.id = ?`
		args = append(args, peer)
	}
	query += ` ORDER BY p.version ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles since version: %w", err)
	}
	defer rows.Close()

	var out []models.Profile
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.Id, &p.Version, &p.Deleted); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertPicture records a picture's current version and tombstone.
func (s *Store) UpsertPicture(ctx context.Context, picture *models.Picture) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pictures (id, version, deleted) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version, deleted = excluded.deleted`,
		picture.Id, picture.Version, picture.Deleted)
	if err != nil {
		return fmt.Errorf("failed to upsert picture: %w", err)
	}
	return nil
}

// ListPicturesSince retrieves pictures newer than sinceVersion, ascending by
// version. Pictures are global; no caller scoping.
func (s *Store) ListPicturesSince(ctx context.Context, sinceVersion int64) ([]models.Picture, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, deleted FROM pictures WHERE version > ? ORDER BY version ASC`,
		sinceVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to list pictures since version: %w", err)
	}
	defer rows.Close()

	var out []models.Picture
	for rows.Next() {
		var p models.Picture
		if err := rows.Scan(&p.Id, &p.Version, &p.Deleted); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
