package model

import "github.com/pointdag/pointdagd/domain/consensus/model/externalapi"

// Committer derives the ordered sequence of committed anchors from the DAG.
type Committer interface {
	Commit() []*externalapi.CommittedAnchor
	LastCommitted() externalapi.PointID
	IsCommitted(id externalapi.PointID) bool
}
