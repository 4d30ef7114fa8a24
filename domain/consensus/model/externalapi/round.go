package externalapi

import "fmt"

// Round is a logical time step of the DAG.
type Round uint32

// Prev returns the preceding round, or 0 for round 0.
func (r Round) Prev() Round {
	if r == 0 {
		return 0
	}
	return r - 1
}

// Next returns the following round.
func (r Round) Next() Round {
	return r + 1
}

// SubSaturating returns r-n, or 0 if n > r.
func (r Round) SubSaturating(n uint32) Round {
	if uint32(r) < n {
		return 0
	}
	return r - Round(n)
}

// UnixTime is a timestamp in unix milliseconds.
type UnixTime int64

// Location is the place a point occupies in the DAG. Honest authors
// produce at most one point per location.
type Location struct {
	Round  Round
	Author PeerID
}

func (l Location) String() string {
	return fmt.Sprintf("%d @ %s", l.Round, l.Author.Alt())
}

// PointID uniquely identifies a point.
type PointID struct {
	Author PeerID
	Round  Round
	Digest Digest
}

// Location returns the location of the identified point.
func (id PointID) Location() Location {
	return Location{Round: id.Round, Author: id.Author}
}

// Less orders ids by round, then author, then digest.
func (id PointID) Less(other PointID) bool {
	if id.Round != other.Round {
		return id.Round < other.Round
	}
	if id.Author != other.Author {
		return id.Author.Less(other.Author)
	}
	return id.Digest.Less(other.Digest)
}

func (id PointID) String() string {
	return fmt.Sprintf("%d @ %s # %s", id.Round, id.Author.Alt(), id.Digest.Alt())
}
