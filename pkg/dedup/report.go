package dedup

import (
	"time"

	"github.com/google/uuid"

	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
)

// MergedGroup records one completed merge. Reason is the arbiter's stated
// grounds for the first confirmed pair in the group.
type MergedGroup struct {
	SurvivorID        catalogs.ProductID
	MergedIDs         []catalogs.ProductID
	ListingsRewritten int
	Reason            string
}

// UnresolvedPair is a pair whose arbitration failed. It is neither merged
// nor cached and will be retried on the next scan.
type UnresolvedPair struct {
	LeftID  catalogs.ProductID
	RightID catalogs.ProductID
	Reason  string
}

// FailedMerge records a merge that was rolled back.
type FailedMerge struct {
	SurvivorID catalogs.ProductID
	MemberIDs  []catalogs.ProductID
	Reason     string
}

// Report is the audit trail of one dedup scan.
type Report struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time

	PairsConsidered int
	PairsFiltered   map[string]int
	PairsArbitrated int
	PairsSame       int
	PairsDistinct   int
	CacheHits       int

	Groups       []MergedGroup
	FailedMerges []FailedMerge
	Unresolved   []UnresolvedPair
}

func newReport() *Report {
	return &Report{
		ID:            uuid.NewString(),
		StartedAt:     time.Now(),
		PairsFiltered: make(map[string]int),
	}
}

// FilteredTotal sums rejections across all filter reasons.
func (r *Report) FilteredTotal() int {
	total := 0
	for _, n := range r.PairsFiltered {
		total += n
	}
	return total
}

// MergedProducts counts products removed by merges.
func (r *Report) MergedProducts() int {
	total := 0
	for _, g := range r.Groups {
		total += len(g.MergedIDs)
	}
	return total
}
