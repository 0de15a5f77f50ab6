// Package sqlstore defines the persistence ports of the daemon. One SQLite
// database backs every store; implementations live in impl.
package sqlstore

// Store aggregates every persistence port plus the shared lifecycle.
type Store interface {
	ContractStore
	MatchStore
	NotificationStore

	Close() error
}
