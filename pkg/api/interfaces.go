// Package api provides interfaces for dependency injection
package api

import "github.com/fptreedb/fptree/pkg/fptree"

// Backend is the tree surface the HTTP layer depends on. It is satisfied by
// *fptree.Tree directly; tests substitute a fake.
type Backend interface {
	Find(key uint64) (uint64, bool)
	Insert(key, value uint64) (bool, error)
	Update(key, value uint64) (bool, error)
	DeleteKey(key uint64) (bool, error)
	RangeScan(start uint64, maxRecords int) []fptree.KV
	Stats() fptree.Stats
	LockStats() (retries, fallbacks uint64)
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer starts the API server with the given configuration
	StartServer(backend Backend, config ServerConfig) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
