package model

import "github.com/pointdag/pointdagd/domain/consensus/model/externalapi"

// LinkResolver finds the points that the links of a point designate.
type LinkResolver interface {
	ResolveLink(point *externalapi.Point, link externalapi.Link, field externalapi.AnchorLinkField) Resolution
	AnchorTarget(point *externalapi.Point, field externalapi.AnchorLinkField) Resolution
	IsAnchorCandidate(id externalapi.PointID) bool
	Remember(id externalapi.PointID, trigger, proof externalapi.PointID)
	Forget(belowRound externalapi.Round)
}
