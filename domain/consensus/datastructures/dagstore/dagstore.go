package dagstore

import (
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/ruleerrors"
	"github.com/pointdag/pointdagd/domain/consensus/utils/pointhashing"
)

// ErrBelowWindow is returned when inserting a point of an evicted round.
var ErrBelowWindow = errors.New("point round is below the retention window")

// ErrNothingToSign is returned by SignFor when the location holds no valid point.
var ErrNothingToSign = errors.New("no valid point to sign at location")

type version struct {
	point *externalapi.Point
	state model.PointState
}

// location holds every version an author produced for one round. More than
// one version means the author equivocated.
type location struct {
	versions   map[externalapi.Digest]*version
	firstValid *externalapi.Point
	signature  externalapi.Signature
}

type roundEntry struct {
	round     externalapi.Round
	locations map[externalapi.PeerID]*location
}

func lessRound(a, b *roundEntry) bool {
	return a.round < b.round
}

// dagStore keeps the points of the retention window indexed by round.
// Writes go through to an optional persistent PointStore.
type dagStore struct {
	lock        sync.RWMutex
	rounds      *btree.BTreeG[*roundEntry]
	bottom      externalapi.Round
	persistence model.PointStore
}

const btreeDegree = 8

// New instantiates a new DAGStore. persistence may be nil.
func New(bottom externalapi.Round, persistence model.PointStore) model.DAGStore {
	return &dagStore{
		rounds:      btree.NewG[*roundEntry](btreeDegree, lessRound),
		bottom:      bottom,
		persistence: persistence,
	}
}

// Restore loads the points persisted from round bottom on, keeping their states.
func Restore(bottom externalapi.Round, persistence model.PointStore) (model.DAGStore, error) {
	store := New(bottom, persistence).(*dagStore)
	storedPoints, err := persistence.LoadFrom(bottom)
	if err != nil {
		return nil, err
	}
	for _, stored := range storedPoints {
		if !pointhashing.IsDigestValid(stored.Point) {
			return nil, errors.Wrapf(ruleerrors.ErrDigestMismatch, "persisted point %s", stored.Point.ID())
		}
		store.insertLocked(stored.Point, stored.State)
	}
	return store, nil
}

func (ds *dagStore) getRound(round externalapi.Round) (*roundEntry, bool) {
	return ds.rounds.Get(&roundEntry{round: round})
}

func (ds *dagStore) getLocation(round externalapi.Round, author externalapi.PeerID) (*location, bool) {
	entry, ok := ds.getRound(round)
	if !ok {
		return nil, false
	}
	loc, ok := entry.locations[author]
	return loc, ok
}

// Insert adds point as pending. The digest is verified before anything is
// stored; inserting a known point is a no-op that returns false.
func (ds *dagStore) Insert(point *externalapi.Point) (bool, error) {
	if !pointhashing.IsDigestValid(point) {
		return false, errors.Wrapf(ruleerrors.ErrDigestMismatch, "point %s", point.Digest)
	}

	ds.lock.Lock()
	defer ds.lock.Unlock()

	if point.Round() < ds.bottom {
		return false, errors.Wrapf(ErrBelowWindow, "round %d is below %d", point.Round(), ds.bottom)
	}
	if loc, ok := ds.getLocation(point.Round(), point.Author()); ok {
		if _, known := loc.versions[point.Digest]; known {
			return false, nil
		}
	}
	if ds.persistence != nil {
		err := ds.persistence.Put(point)
		if err != nil {
			return false, err
		}
	}
	ds.insertLocked(point, model.StatePending)
	return true, nil
}

func (ds *dagStore) insertLocked(point *externalapi.Point, state model.PointState) {
	entry, ok := ds.getRound(point.Round())
	if !ok {
		entry = &roundEntry{round: point.Round(), locations: make(map[externalapi.PeerID]*location)}
		ds.rounds.ReplaceOrInsert(entry)
	}
	loc, ok := entry.locations[point.Author()]
	if !ok {
		loc = &location{versions: make(map[externalapi.Digest]*version)}
		entry.locations[point.Author()] = loc
	}
	loc.versions[point.Digest] = &version{point: point, state: state}
	if state == model.StateValid && loc.firstValid == nil {
		loc.firstValid = point
	}
}

// Get returns the point with the given id.
func (ds *dagStore) Get(id externalapi.PointID) (*externalapi.Point, bool) {
	ds.lock.RLock()
	defer ds.lock.RUnlock()

	v, ok := ds.getVersion(id)
	if !ok {
		return nil, false
	}
	return v.point, true
}

func (ds *dagStore) getVersion(id externalapi.PointID) (*version, bool) {
	loc, ok := ds.getLocation(id.Round, id.Author)
	if !ok {
		return nil, false
	}
	v, ok := loc.versions[id.Digest]
	return v, ok
}

// Has returns whether the point with the given id is stored.
func (ds *dagStore) Has(id externalapi.PointID) bool {
	_, ok := ds.Get(id)
	return ok
}

// State returns the validation state of a stored point.
func (ds *dagStore) State(id externalapi.PointID) (model.PointState, bool) {
	ds.lock.RLock()
	defer ds.lock.RUnlock()

	v, ok := ds.getVersion(id)
	if !ok {
		return 0, false
	}
	return v.state, true
}

// SetState records the result of validating a stored point. A point
// leaves the pending state at most once.
func (ds *dagStore) SetState(id externalapi.PointID, state model.PointState) error {
	ds.lock.Lock()
	defer ds.lock.Unlock()

	loc, ok := ds.getLocation(id.Round, id.Author)
	if !ok {
		return errors.Errorf("point %s is not stored", id)
	}
	v, ok := loc.versions[id.Digest]
	if !ok {
		return errors.Errorf("point %s is not stored", id)
	}
	if v.state == state {
		return nil
	}
	if v.state != model.StatePending {
		return errors.Errorf("point %s is already %s", id, v.state)
	}
	if ds.persistence != nil {
		err := ds.persistence.SetState(id, state)
		if err != nil {
			return err
		}
	}
	v.state = state
	if state == model.StateValid && loc.firstValid == nil {
		loc.firstValid = v.point
	}
	return nil
}

// FirstValid returns the first point of the location that was found valid.
func (ds *dagStore) FirstValid(round externalapi.Round, author externalapi.PeerID) (*externalapi.Point, bool) {
	ds.lock.RLock()
	defer ds.lock.RUnlock()

	loc, ok := ds.getLocation(round, author)
	if !ok || loc.firstValid == nil {
		return nil, false
	}
	return loc.firstValid, true
}

// Versions returns every point of the location ordered by digest.
func (ds *dagStore) Versions(round externalapi.Round, author externalapi.PeerID) []*externalapi.Point {
	ds.lock.RLock()
	defer ds.lock.RUnlock()

	loc, ok := ds.getLocation(round, author)
	if !ok {
		return nil
	}
	points := make([]*externalapi.Point, 0, len(loc.versions))
	for _, v := range loc.versions {
		points = append(points, v.point)
	}
	sortPoints(points)
	return points
}

// IsEquivocated returns whether the author produced more than one point at round.
func (ds *dagStore) IsEquivocated(round externalapi.Round, author externalapi.PeerID) bool {
	ds.lock.RLock()
	defer ds.lock.RUnlock()

	loc, ok := ds.getLocation(round, author)
	return ok && len(loc.versions) > 1
}

// RoundPoints returns every point of round ordered by author and digest.
func (ds *dagStore) RoundPoints(round externalapi.Round) []*externalapi.Point {
	ds.lock.RLock()
	defer ds.lock.RUnlock()

	entry, ok := ds.getRound(round)
	if !ok {
		return nil
	}
	var points []*externalapi.Point
	for _, loc := range entry.locations {
		for _, v := range loc.versions {
			points = append(points, v.point)
		}
	}
	sortPoints(points)
	return points
}

// ValidPoints returns the first valid point of every author at round,
// ordered by author.
func (ds *dagStore) ValidPoints(round externalapi.Round) []*externalapi.Point {
	ds.lock.RLock()
	defer ds.lock.RUnlock()

	entry, ok := ds.getRound(round)
	if !ok {
		return nil
	}
	var points []*externalapi.Point
	for _, loc := range entry.locations {
		if loc.firstValid != nil {
			points = append(points, loc.firstValid)
		}
	}
	sortPoints(points)
	return points
}

// SignFor returns the signature over the first valid point of the location,
// calling sign only the first time.
func (ds *dagStore) SignFor(round externalapi.Round, author externalapi.PeerID,
	sign func(point *externalapi.Point) (externalapi.Signature, error)) (externalapi.Signature, error) {

	ds.lock.Lock()
	defer ds.lock.Unlock()

	loc, ok := ds.getLocation(round, author)
	if !ok || loc.firstValid == nil {
		return nil, errors.Wrapf(ErrNothingToSign, "location %d @ %s", round, author.Alt())
	}
	if loc.signature != nil {
		return loc.signature, nil
	}
	signature, err := sign(loc.firstValid)
	if err != nil {
		return nil, err
	}
	loc.signature = signature
	return signature, nil
}

// EvictBelow drops every round lower than round and returns the ids of the
// dropped points.
func (ds *dagStore) EvictBelow(round externalapi.Round) []externalapi.PointID {
	ds.lock.Lock()
	defer ds.lock.Unlock()

	if round <= ds.bottom {
		return nil
	}
	ds.bottom = round

	var evictedRounds []*roundEntry
	ds.rounds.AscendLessThan(&roundEntry{round: round}, func(entry *roundEntry) bool {
		evictedRounds = append(evictedRounds, entry)
		return true
	})
	var evicted []externalapi.PointID
	for _, entry := range evictedRounds {
		ds.rounds.Delete(entry)
		for _, loc := range entry.locations {
			for _, v := range loc.versions {
				evicted = append(evicted, v.point.ID())
			}
		}
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i].Less(evicted[j]) })

	if ds.persistence != nil {
		err := ds.persistence.DeleteBelow(round)
		if err != nil {
			log.Warnf("Failed to delete persisted points below round %d: %s", round, err)
		}
	}
	return evicted
}

// Bottom returns the lowest round that is still retained.
func (ds *dagStore) Bottom() externalapi.Round {
	ds.lock.RLock()
	defer ds.lock.RUnlock()

	return ds.bottom
}

// Top returns the highest round holding a valid point, or the bottom if
// there is none. Pending and invalid points do not move it.
func (ds *dagStore) Top() externalapi.Round {
	ds.lock.RLock()
	defer ds.lock.RUnlock()

	top := ds.bottom
	ds.rounds.Descend(func(entry *roundEntry) bool {
		for _, loc := range entry.locations {
			if loc.firstValid != nil {
				top = entry.round
				return false
			}
		}
		return true
	})
	return top
}

// Rounds returns the rounds holding at least one point, in ascending order.
func (ds *dagStore) Rounds() []externalapi.Round {
	ds.lock.RLock()
	defer ds.lock.RUnlock()

	rounds := make([]externalapi.Round, 0, ds.rounds.Len())
	ds.rounds.Ascend(func(entry *roundEntry) bool {
		rounds = append(rounds, entry.round)
		return true
	})
	return rounds
}

func sortPoints(points []*externalapi.Point) {
	sort.Slice(points, func(i, j int) bool { return points[i].ID().Less(points[j].ID()) })
}
