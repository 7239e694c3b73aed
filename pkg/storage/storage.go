package storage

// Storage defines the root interface for the entire data layer.
// It composes all available storage operations. Components should depend on
// the more granular interfaces (AccountStore, MessageStore, etc.) and on
// Region/VersionClock instead of this one.
type Storage interface {
	AccountStore
	TransactionStore
	MessageStore
	ConversationStore
	ProfileStore
	PictureStore
	Region
	VersionClock
}
