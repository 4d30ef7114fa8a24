// Package database defines the key-value store used to persist recent
// rounds of the DAG so that a restarted node can answer point queries.
package database

// DataAccessor defines the common interface by which data gets
// accessed in a generic database.
type DataAccessor interface {
	// Put sets the value for the given key. It overwrites
	// any previous value for that key.
	Put(key *Key, value []byte) error

	// Get gets the value for the given key. It returns
	// ErrNotFound if the given key does not exist.
	Get(key *Key) ([]byte, error)

	// Has returns true if the database does contains the
	// given key.
	Has(key *Key) (bool, error)

	// Delete deletes the value for the given key. Will not
	// return an error if the key doesn't exist.
	Delete(key *Key) error

	// Cursor begins a new cursor over the given bucket.
	Cursor(bucket *Bucket) (Cursor, error)
}

// Database defines the interface of a database that can begin
// batches and be closed.
type Database interface {
	DataAccessor

	// Batch returns a write batch that applies all its operations
	// atomically on Commit.
	Batch() Batch

	// Close closes the database.
	Close() error
}

// Batch collects writes and applies them atomically.
type Batch interface {
	Put(key *Key, value []byte)
	Delete(key *Key)
	Commit() error
}
