package feed

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relaymsg/relay/pkg/storage"
)

// ErrInvalidAnchor is returned for a malformed client-supplied anchor token.
// No state changes.
var ErrInvalidAnchor = errors.New("invalid anchor token")

// Anchor maps each entity collection to the highest version stamp observed
// when it was computed. A collection without a mark means "never synced":
// the next poll returns every visible row of it.
type Anchor map[storage.Collection]int64

// Mark returns the stored high-water mark for a collection, or -1 when the
// anchor has none. Versions start at 1, so -1 matches every row.
func (a Anchor) Mark(c storage.Collection) int64 {
	if v, ok := a[c]; ok {
		return v
	}
	return -1
}

// Encode renders the anchor as an opaque transport token. Encoding is stable
// under round-trips: decode(encode(a)) reproduces the same marks.
func (a Anchor) Encode() string {
	raw, _ := json.Marshal(a)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeAnchor parses a client-supplied token. The empty token is a valid
// empty anchor (full sync); anything else must round-trip through Encode.
func DecodeAnchor(token string) (Anchor, error) {
	if token == "" {
		return Anchor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnchor, err)
	}
	var a Anchor
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnchor, err)
	}
	return a, nil
}
