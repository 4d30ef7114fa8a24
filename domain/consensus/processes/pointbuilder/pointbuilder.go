package pointbuilder

import (
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/peerschedule"
	"github.com/pointdag/pointdagd/domain/consensus/utils/pointhashing"
	"github.com/pointdag/pointdagd/domain/consensus/utils/signing"
)

// ErrNoDependencies indicates there are no valid points of the previous
// round to include.
var ErrNoDependencies = errors.New("no valid points to include")

type pointBuilder struct {
	genesis *externalapi.Point
	keyPair *signing.KeyPair

	schedule     *peerschedule.PeerSchedule
	dagStore     model.DAGStore
	linkResolver model.LinkResolver
}

// New instantiates a new PointBuilder
func New(genesis *externalapi.Point,
	keyPair *signing.KeyPair,

	schedule *peerschedule.PeerSchedule,
	dagStore model.DAGStore,
	linkResolver model.LinkResolver) model.PointBuilder {

	return &pointBuilder{
		genesis: genesis,
		keyPair: keyPair,

		schedule:     schedule,
		dagStore:     dagStore,
		linkResolver: linkResolver,
	}
}

// firstValidPoints returns the first valid point of every scheduled peer at
// round, sorted by author.
func (pb *pointBuilder) firstValidPoints(round externalapi.Round) []*externalapi.Point {
	if round == pb.genesis.Round() {
		return []*externalapi.Point{pb.genesis}
	}
	var points []*externalapi.Point
	for _, peer := range pb.schedule.Peers() {
		point, ok := pb.dagStore.FirstValid(round, peer)
		if ok {
			points = append(points, point)
		}
	}
	return points
}

// Coverage returns the weight of the points a point at round would include
// and whether it reaches the quorum.
func (pb *pointBuilder) Coverage(round externalapi.Round) (uint64, bool) {
	if round <= pb.genesis.Round() {
		return 0, false
	}
	if round == pb.genesis.Round()+1 {
		return pb.schedule.TotalWeight(), true
	}
	var weight uint64
	for _, point := range pb.firstValidPoints(round - 1) {
		weight += pb.schedule.Weight(point.Author())
	}
	return weight, pb.schedule.IsQuorum(weight)
}

// BuildPoint builds and signs the local point of round. prev is the local
// point of the previous round, if there is one, and evidence the
// signatures collected over it.
func (pb *pointBuilder) BuildPoint(round externalapi.Round, payload [][]byte, now externalapi.UnixTime,
	prev *externalapi.Point, evidence []externalapi.PeerSignaturePair) (*externalapi.Point, error) {

	if round <= pb.genesis.Round() {
		return nil, errors.Errorf("cannot build a point at round %d, genesis is at round %d",
			round, pb.genesis.Round())
	}
	if prev != nil && (prev.Author() != pb.keyPair.PeerID() || prev.Round() != round-1) {
		return nil, errors.Errorf("%s is not the local point of round %d", prev.ID(), round-1)
	}

	includes := pb.firstValidPoints(round - 1)
	if prev != nil {
		includes = replaceOwn(includes, prev)
	} else {
		evidence = nil
	}
	if len(includes) == 0 {
		return nil, errors.Wrapf(ErrNoDependencies, "round %d", round)
	}
	witness := pb.witness(round, includes)

	links, err := pb.anchorLinks(round, includes, witness)
	if err != nil {
		return nil, err
	}

	anchorTime := links.proofTime
	time := now
	if time < anchorTime {
		time = anchorTime
	}
	if prev != nil && time <= prev.Body.Data.Time {
		time = prev.Body.Data.Time + 1
	}

	body := &externalapi.PointBody{
		Round:   round,
		Payload: payload,
		Data: externalapi.PointData{
			Author:        pb.keyPair.PeerID(),
			Includes:      pairs(includes),
			Witness:       pairs(witness),
			AnchorTrigger: links.trigger,
			AnchorProof:   links.proof,
			Time:          time,
			AnchorTime:    anchorTime,
		},
		Evidence: evidence,
	}
	digest := pointhashing.BodyDigest(body)
	signature, err := pb.keyPair.Sign(digest)
	if err != nil {
		return nil, err
	}
	return &externalapi.Point{Digest: digest, Signature: signature, Body: body}, nil
}

func replaceOwn(points []*externalapi.Point, own *externalapi.Point) []*externalapi.Point {
	for i, point := range points {
		if point.Author() == own.Author() {
			points[i] = own
			return points
		}
	}
	points = append(points, own)
	externalapi.SortPointsByAuthor(points)
	return points
}

// witness returns the valid points of round-2 that no included point
// references.
func (pb *pointBuilder) witness(round externalapi.Round, includes []*externalapi.Point) []*externalapi.Point {
	if round < pb.genesis.Round()+2 {
		return nil
	}
	referenced := make(map[externalapi.PointID]struct{})
	for _, point := range includes {
		for _, id := range point.IncludesIDs() {
			referenced[id] = struct{}{}
		}
	}
	var witness []*externalapi.Point
	for _, point := range pb.firstValidPoints(round - 2) {
		if point == pb.genesis {
			continue
		}
		if _, ok := referenced[point.ID()]; !ok {
			witness = append(witness, point)
		}
	}
	return witness
}

func pairs(points []*externalapi.Point) []externalapi.PeerDigestPair {
	result := make([]externalapi.PeerDigestPair, len(points))
	for i, point := range points {
		result[i] = externalapi.PeerDigestPair{Peer: point.Author(), Digest: point.Digest}
	}
	return result
}
