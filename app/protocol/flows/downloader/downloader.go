package downloader

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/app/appmessage"
	"github.com/pointdag/pointdagd/app/protocol/flowcontext"
	"github.com/pointdag/pointdagd/app/protocol/protocolerrors"
	"github.com/pointdag/pointdagd/domain/consensus"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/utils/pointhashing"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter"
	"github.com/pointdag/pointdagd/util/roundwindow"
	"golang.org/x/sync/errgroup"
)

// maxResolveAttempts is the number of times a point is validated again
// after downloading the dependencies the previous validation asked for.
const maxResolveAttempts = 4

var (
	// ErrPointNotExists means a majority of peers, or every peer that could
	// be asked, answered that the requested point does not exist.
	ErrPointNotExists = errors.New("point does not exist")

	// ErrRoundLeftWindow means the round of the requested point is no
	// longer retained.
	ErrRoundLeftWindow = errors.New("round left the window")

	errNotAvailableYet = errors.New("point is not available yet")
)

// DownloaderContext is the interface for the context needed by the Downloader.
type DownloaderContext interface {
	Config() *flowcontext.Config
	Consensus() consensus.Consensus
	NetAdapter() netadapter.NetAdapter
	RoundWindow() *roundwindow.RoundWindow
	ValidateAndInsertPoint(point *externalapi.Point) (model.ValidationResult, error)
}

type download struct {
	done  chan struct{}
	point *externalapi.Point
	err   error
}

// Downloader validates points received from peers and fetches the
// dependencies they reference. Every point is downloaded at most once at a
// time; concurrent requests for it wait for the same download.
type Downloader struct {
	DownloaderContext

	lock      sync.Mutex
	downloads map[externalapi.PointID]*download
	bans      map[externalapi.PeerID]externalapi.Round
}

// New returns a new Downloader
func New(context DownloaderContext) *Downloader {
	return &Downloader{
		DownloaderContext: context,
		downloads:         make(map[externalapi.PointID]*download),
		bans:              make(map[externalapi.PeerID]externalapi.Round),
	}
}

// Insert validates point and stores it, downloading the points it depends
// on. hint is the peer point was received from; it is asked for the
// dependencies right after their authors.
func (d *Downloader) Insert(ctx context.Context, point *externalapi.Point,
	hint externalapi.PeerID) (model.ValidationResult, error) {

	for attempt := 1; ; attempt++ {
		result, err := d.ValidateAndInsertPoint(point)
		if err != nil || result.Status != model.ValidationIncomplete {
			return result, err
		}
		if attempt == maxResolveAttempts || (len(result.Missing) == 0 && len(result.Pending) == 0) {
			return result, nil
		}

		err = d.resolveDependencies(ctx, result, hint)
		if errors.Is(err, ErrPointNotExists) {
			err = d.Consensus().InvalidatePoint(point.ID(), err)
			if err != nil {
				return model.ValidationResult{}, err
			}
			return model.InvalidResult(errors.Wrapf(ErrPointNotExists, "a dependency of %s", point.ID())), nil
		}
		if err != nil {
			return result, err
		}
	}
}

func (d *Downloader) resolveDependencies(ctx context.Context, result model.ValidationResult,
	hint externalapi.PeerID) error {

	group, groupCtx := errgroup.WithContext(ctx)
	for _, id := range result.Missing {
		group.Go(func() error {
			_, err := d.Download(groupCtx, id, hint)
			return err
		})
	}
	for _, id := range result.Pending {
		group.Go(func() error {
			dependency, _, ok := d.Consensus().GetPoint(id)
			if !ok {
				return nil
			}
			_, err := d.Insert(groupCtx, dependency, hint)
			return err
		})
	}
	return group.Wait()
}

// Download returns the point with the given id, fetching it from peers
// and inserting it if it is not known. The download itself runs within
// the context of the point's round and outlives ctx.
func (d *Downloader) Download(ctx context.Context, id externalapi.PointID,
	hint externalapi.PeerID) (*externalapi.Point, error) {

	if point, _, ok := d.Consensus().GetPoint(id); ok {
		return point, nil
	}

	d.lock.Lock()
	task, ok := d.downloads[id]
	if !ok {
		roundCtx, ok := d.RoundWindow().Context(id.Round)
		if !ok {
			d.lock.Unlock()
			return nil, errors.Wrapf(ErrRoundLeftWindow, "cannot download %s", id)
		}
		task = &download{done: make(chan struct{})}
		d.downloads[id] = task
		spawn("Downloader.Download", func() {
			d.runDownload(roundCtx, id, hint, task)
		})
	}
	d.lock.Unlock()

	select {
	case <-task.done:
		return task.point, task.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Downloader) runDownload(ctx context.Context, id externalapi.PointID, hint externalapi.PeerID,
	task *download) {

	defer func() {
		d.lock.Lock()
		delete(d.downloads, id)
		d.lock.Unlock()
		close(task.done)
	}()

	log.Debugf("Downloading %s", id)
	fetched, err := d.fetch(ctx, id, hint)
	if err != nil {
		log.Debugf("Could not download %s: %s", id, err)
		task.err = err
		return
	}
	_, err = d.Insert(ctx, fetched.point, fetched.peer)
	if err != nil {
		task.err = err
		return
	}
	task.point = fetched.point
}

type fetchedPoint struct {
	point *externalapi.Point
	peer  externalapi.PeerID
}

type pointQueryOutcome struct {
	peer     externalapi.PeerID
	response *appmessage.MsgPointResponse
	err      error
}

// fetchState tracks the peers that may still be asked for a point.
type fetchState struct {
	id         externalapi.PointID
	undone     map[externalapi.PeerID]struct{}
	noneWeight uint64
}

// fetch asks peers for the point until one of them sends it. Peers that
// answer tryLater, or fail to answer, are asked again after a backoff.
// Peers that answer definedNone are not asked again.
func (d *Downloader) fetch(ctx context.Context, id externalapi.PointID,
	hint externalapi.PeerID) (fetchedPoint, error) {

	state := &fetchState{id: id, undone: make(map[externalapi.PeerID]struct{})}
	localPeer := d.Consensus().LocalPeer()
	for _, peer := range d.Consensus().Schedule().Peers() {
		if peer != localPeer && !d.isBanned(peer) {
			state.undone[peer] = struct{}{}
		}
	}

	attempt := 0
	operation := func() (fetchedPoint, error) {
		attempt++
		var targets []externalapi.PeerID
		if attempt == 1 {
			targets = state.firstTargets(hint)
		}
		if len(targets) == 0 {
			targets = state.targets()
		}
		if len(targets) == 0 {
			return fetchedPoint{}, backoff.Permanent(
				errors.Wrapf(ErrPointNotExists, "no peer left to download %s from", id))
		}

		fetched, err := d.queryPeers(ctx, state, targets)
		if err != nil {
			return fetchedPoint{}, backoff.Permanent(err)
		}
		if fetched != nil {
			return *fetched, nil
		}
		if d.Consensus().Schedule().IsMajority(state.noneWeight) || len(state.undone) == 0 {
			return fetchedPoint{}, backoff.Permanent(
				errors.Wrapf(ErrPointNotExists, "peers do not know %s", id))
		}
		return fetchedPoint{}, errNotAvailableYet
	}

	cfg := d.Config()
	fetched, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(cfg.NewBackOff()),
		backoff.WithMaxElapsedTime(cfg.RetryMaxElapsedTime()))
	if err != nil {
		return fetchedPoint{}, err
	}
	return fetched, nil
}

// firstTargets returns the author of the point and hint, if they may be asked.
func (s *fetchState) firstTargets(hint externalapi.PeerID) []externalapi.PeerID {
	var targets []externalapi.PeerID
	for _, peer := range []externalapi.PeerID{s.id.Author, hint} {
		if _, ok := s.undone[peer]; ok && (len(targets) == 0 || targets[0] != peer) {
			targets = append(targets, peer)
		}
	}
	return targets
}

func (s *fetchState) targets() []externalapi.PeerID {
	targets := make([]externalapi.PeerID, 0, len(s.undone))
	for peer := range s.undone {
		targets = append(targets, peer)
	}
	return targets
}

// queryPeers asks every target for the point at once and applies their
// answers to state. It returns the point if one of them sent it.
func (d *Downloader) queryPeers(ctx context.Context, state *fetchState,
	targets []externalapi.PeerID) (*fetchedPoint, error) {

	outcomes := make([]pointQueryOutcome, len(targets))
	group := errgroup.Group{}
	for i, peer := range targets {
		group.Go(func() error {
			queryCtx, cancel := context.WithTimeout(ctx, d.Config().QueryTimeout)
			defer cancel()

			outcomes[i].peer = peer
			response, err := d.NetAdapter().Query(queryCtx, peer, appmessage.NewMsgPointQuery(state.id))
			if err != nil {
				outcomes[i].err = err
				return nil
			}
			pointResponse, ok := response.(*appmessage.MsgPointResponse)
			if !ok {
				outcomes[i].err = protocolerrors.Errorf(true, "answered a point query with %s", response.Command())
				return nil
			}
			outcomes[i].response = pointResponse
			return nil
		})
	}
	_ = group.Wait()

	var found *fetchedPoint
	for _, outcome := range outcomes {
		if outcome.err != nil {
			if protocolerrors.ShouldBan(outcome.err) {
				d.ban(state, outcome.peer, outcome.err)
			} else if ctx.Err() == nil {
				log.Debugf("Could not query %s for %s: %s", outcome.peer, state.id, outcome.err)
			}
			continue
		}

		switch outcome.response.Status {
		case appmessage.PointTryLater:
		case appmessage.PointDefinedNone:
			delete(state.undone, outcome.peer)
			state.noneWeight += d.Consensus().Schedule().Weight(outcome.peer)
		case appmessage.PointDefined:
			if found != nil {
				continue
			}
			ok, err := d.acceptPoint(state, outcome.peer, outcome.response.Point)
			if err != nil {
				return nil, err
			}
			if ok {
				found = &fetchedPoint{point: outcome.response.Point, peer: outcome.peer}
			}
		default:
			d.ban(state, outcome.peer, protocolerrors.Errorf(true, "unexpected point response status %s",
				outcome.response.Status))
		}
	}
	return found, nil
}

// acceptPoint checks that point is the requested one and stores it. Peers
// sending another point, or a forged one, are banned.
func (d *Downloader) acceptPoint(state *fetchState, peer externalapi.PeerID,
	point *externalapi.Point) (bool, error) {

	if point == nil || point.Body == nil || point.ID() != state.id || !pointhashing.IsDigestValid(point) {
		d.ban(state, peer, protocolerrors.Errorf(true, "sent a point that is not %s", state.id))
		return false, nil
	}
	_, err := d.ValidateAndInsertPoint(point)
	if err != nil {
		return false, err
	}
	if _, _, ok := d.Consensus().GetPoint(state.id); !ok {
		d.ban(state, peer, protocolerrors.Errorf(true, "sent %s with a bad signature", state.id))
		return false, nil
	}
	return true, nil
}

// ban excludes peer from the downloads of the current round.
func (d *Downloader) ban(state *fetchState, peer externalapi.PeerID, reason error) {
	log.Warnf("Excluding %s from downloads in round %d: %s", peer, d.RoundWindow().Current(), reason)
	delete(state.undone, peer)

	d.lock.Lock()
	defer d.lock.Unlock()
	d.bans[peer] = d.RoundWindow().Current()
}

func (d *Downloader) isBanned(peer externalapi.PeerID) bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	round, ok := d.bans[peer]
	if !ok {
		return false
	}
	if round != d.RoundWindow().Current() {
		delete(d.bans, peer)
		return false
	}
	return true
}
