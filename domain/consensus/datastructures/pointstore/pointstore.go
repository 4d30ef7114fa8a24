package pointstore

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/utils/pointserialization"
	"github.com/pointdag/pointdagd/infrastructure/db/database"
)

var bucket = database.MakeBucket([]byte("points"))

const keySize = 4 + externalapi.IDSize + externalapi.IDSize

// pointStore represents a store of points. Entries are ordered by round
// so that eviction and restoring are prefix scans.
type pointStore struct {
	db database.Database
}

// New instantiates a new PointStore
func New(db database.Database) model.PointStore {
	return &pointStore{db: db}
}

func (ps *pointStore) key(id externalapi.PointID) *database.Key {
	suffix := make([]byte, keySize)
	binary.BigEndian.PutUint32(suffix[:4], uint32(id.Round))
	copy(suffix[4:], id.Author[:])
	copy(suffix[4+externalapi.IDSize:], id.Digest[:])
	return bucket.Key(suffix)
}

func roundKey(round externalapi.Round) *database.Key {
	suffix := make([]byte, 4)
	binary.BigEndian.PutUint32(suffix, uint32(round))
	return bucket.Key(suffix)
}

func serializeEntry(point *externalapi.Point, state model.PointState) []byte {
	serializedPoint := pointserialization.SerializePoint(point)
	entry := make([]byte, 1+len(serializedPoint))
	entry[0] = byte(state)
	copy(entry[1:], serializedPoint)
	return entry
}

func deserializeEntry(entry []byte) (*model.StoredPoint, error) {
	if len(entry) < 1 {
		return nil, errors.New("empty point store entry")
	}
	point, err := pointserialization.DeserializePoint(entry[1:])
	if err != nil {
		return nil, err
	}
	return &model.StoredPoint{Point: point, State: model.PointState(entry[0])}, nil
}

// Put stores point as pending. Storing a known point keeps its state.
func (ps *pointStore) Put(point *externalapi.Point) error {
	key := ps.key(point.ID())
	exists, err := ps.db.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return ps.db.Put(key, serializeEntry(point, model.StatePending))
}

// SetState updates the state of a stored point.
func (ps *pointStore) SetState(id externalapi.PointID, state model.PointState) error {
	key := ps.key(id)
	entry, err := ps.db.Get(key)
	if err != nil {
		return err
	}
	updated := append([]byte(nil), entry...)
	updated[0] = byte(state)
	return ps.db.Put(key, updated)
}

// DeleteBelow removes every point of a round lower than round.
func (ps *pointStore) DeleteBelow(round externalapi.Round) error {
	cursor, err := ps.db.Cursor(bucket)
	if err != nil {
		return err
	}
	defer cursor.Close()

	batch := ps.db.Batch()
	for ok := cursor.First(); ok; ok = cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return err
		}
		if len(key.Suffix()) != keySize {
			return errors.Errorf("malformed point store key %s", key)
		}
		if externalapi.Round(binary.BigEndian.Uint32(key.Suffix()[:4])) >= round {
			break
		}
		batch.Delete(key)
	}
	return batch.Commit()
}

// LoadFrom returns every point of round or higher, ordered by round,
// author and digest.
func (ps *pointStore) LoadFrom(round externalapi.Round) ([]*model.StoredPoint, error) {
	cursor, err := ps.db.Cursor(bucket)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var stored []*model.StoredPoint
	err = cursor.Seek(roundKey(round))
	if database.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for ok := true; ok; ok = cursor.Next() {
		entry, err := cursor.Value()
		if err != nil {
			return nil, err
		}
		storedPoint, err := deserializeEntry(entry)
		if err != nil {
			return nil, err
		}
		stored = append(stored, storedPoint)
	}
	return stored, nil
}
