package ldb

import (
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/infrastructure/db/database"
	"github.com/syndtr/goleveldb/leveldb"
	ldbErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB defines a thin wrapper around leveldb.
type LevelDB struct {
	ldb *leveldb.DB
}

// NewLevelDB opens a leveldb instance defined by the given path.
func NewLevelDB(path string, cacheSizeMiB int) (*LevelDB, error) {
	options := Options()
	options.BlockCacheCapacity = cacheSizeMiB * opt.MiB

	// Open leveldb. If it doesn't exist, create it.
	ldb, err := leveldb.OpenFile(path, options)

	// If the database is corrupted, attempt to recover.
	var corruptedError *ldbErrors.ErrCorrupted
	if errors.As(err, &corruptedError) {
		log.Warnf("LevelDB corruption detected for path %s: %s",
			path, err)
		var recoverErr error
		ldb, recoverErr = leveldb.RecoverFile(path, nil)
		if recoverErr != nil {
			return nil, errors.Wrapf(recoverErr, "failed recovering from "+
				"database corruption: %s", err)
		}
		log.Warnf("LevelDB recovered from corruption for path %s",
			path)
	} else if err != nil {
		// If the database cannot be opened for any other
		// reason, return the error as-is.
		return nil, errors.WithStack(err)
	}

	db := &LevelDB{
		ldb: ldb,
	}
	return db, nil
}

// NewInMemoryLevelDB opens a leveldb instance that keeps everything in memory.
func NewInMemoryLevelDB() (*LevelDB, error) {
	ldb, err := leveldb.Open(storage.NewMemStorage(), Options())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &LevelDB{ldb: ldb}, nil
}

// Close closes the leveldb instance.
func (db *LevelDB) Close() error {
	err := db.ldb.Close()
	return errors.WithStack(err)
}

// Put sets the value for the given key. It overwrites
// any previous value for that key.
func (db *LevelDB) Put(key *database.Key, value []byte) error {
	err := db.ldb.Put(key.Bytes(), value, nil)
	return errors.WithStack(err)
}

// Get gets the value for the given key. It returns
// ErrNotFound if the given key does not exist.
func (db *LevelDB) Get(key *database.Key) ([]byte, error) {
	data, err := db.ldb.Get(key.Bytes(), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, errors.Wrapf(database.ErrNotFound,
				"key %s not found", key)
		}
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// Has returns true if the database does contains the
// given key.
func (db *LevelDB) Has(key *database.Key) (bool, error) {
	exists, err := db.ldb.Has(key.Bytes(), nil)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return exists, nil
}

// Delete deletes the value for the given key. Will not
// return an error if the key doesn't exist.
func (db *LevelDB) Delete(key *database.Key) error {
	err := db.ldb.Delete(key.Bytes(), nil)
	return errors.WithStack(err)
}

// Cursor begins a new cursor over the given bucket.
func (db *LevelDB) Cursor(bucket *database.Bucket) (database.Cursor, error) {
	ldbIterator := db.ldb.NewIterator(util.BytesPrefix(bucket.Path()), nil)
	return &LevelDBCursor{
		ldbIterator: ldbIterator,
		bucket:      bucket,
	}, nil
}

// Batch returns a new write batch.
func (db *LevelDB) Batch() database.Batch {
	return &LevelDBBatch{db: db, batch: new(leveldb.Batch)}
}

// LevelDBBatch is a write batch over a LevelDB.
type LevelDBBatch struct {
	db    *LevelDB
	batch *leveldb.Batch
}

// Put stages a write of value under key.
func (b *LevelDBBatch) Put(key *database.Key, value []byte) {
	b.batch.Put(key.Bytes(), value)
}

// Delete stages the deletion of key.
func (b *LevelDBBatch) Delete(key *database.Key) {
	b.batch.Delete(key.Bytes())
}

// Commit atomically applies the staged operations.
func (b *LevelDBBatch) Commit() error {
	err := b.db.ldb.Write(b.batch, nil)
	return errors.WithStack(err)
}
