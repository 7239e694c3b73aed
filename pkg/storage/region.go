package storage

import "context"

// Collection names a logical entity collection guarded by the exclusive
// region and stamped by the version clock.
type Collection string

const (
	CollectionAccounts      Collection = "accounts"
	CollectionTransactions  Collection = "transactions"
	CollectionMessages      Collection = "messages"
	CollectionConversations Collection = "conversations"
	CollectionProfiles      Collection = "profiles"
	CollectionPictures      Collection = "pictures"
)

// LockOrder is the fixed global order in which region implementations must
// acquire per-collection locks. Acquiring in one canonical order makes
// overlapping regions deadlock-free.
var LockOrder = []Collection{
	CollectionAccounts,
	CollectionTransactions,
	CollectionMessages,
	CollectionConversations,
	CollectionProfiles,
	CollectionPictures,
}

// Region is the system's only serialization mechanism: a scoped critical
// section over a set of collections. While fn runs, no other region covering
// an overlapping collection set may proceed; regions over disjoint sets may
// run concurrently.
//
// Balance checks, version stamping and anchor/delta computation must all run
// inside a region covering every collection they read or write. Region
// acquisitions do not nest: fn must not call back into Exclusive with an
// overlapping set.
type Region interface {
	Exclusive(ctx context.Context, collections []Collection, fn func(ctx context.Context) error) error
}

// VersionClock hands out the next global version stamp for a collection.
// The stamp is derived from the persisted maximum, so it survives restarts
// and is shared by all workers. Callers must hold a region covering the
// collection between obtaining the stamp and committing the row that
// consumes it; that is what makes stamps unique and strictly increasing.
type VersionClock interface {
	NextVersion(ctx context.Context, collection Collection) (int64, error)

	// MaxVersion returns the highest committed version in the collection,
	// or 0 when it is empty.
	MaxVersion(ctx context.Context, collection Collection) (int64, error)
}
