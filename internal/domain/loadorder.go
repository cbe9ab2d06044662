package domain

// NodeKind distinguishes mod entries from category dividers in the load order.
type NodeKind string

const (
	KindMod      NodeKind = "mod"
	KindCategory NodeKind = "category"
)

// Record is the flat persistence shape for one load-order line. ParentID is
// empty for root-level nodes. Index is zero-based within the parent's
// children.
type Record struct {
	ID          string
	Name        string
	Kind        NodeKind
	ParentID    string
	Index       int
	Description string
}

// ModInfo is one entry of the extracted mod metadata (the mods_data.json
// shape produced by the pak extraction step).
type ModInfo struct {
	Name        string
	Description string
	Author      string
	Version     string
	UUID        string
}

// PairVerdict records how the oracle query for one (entry, category) pair
// ended up.
type PairVerdict string

const (
	VerdictScored       PairVerdict = "scored"
	VerdictInconclusive PairVerdict = "inconclusive"
)

// Evidence is the audit trail for one (entry, category) comparison: which
// sorted entries were sampled and what the oracle concluded.
type Evidence struct {
	CategoryID   string
	CategoryName string
	SampledIDs   []string
	Fit          float64
	Verdict      PairVerdict
}

// Recommendation is a proposed placement of one unsorted entry, pending user
// acceptance.
type Recommendation struct {
	ID                 string
	EntryID            string
	EntryName          string
	ProposedCategoryID string
	Evidence           []Evidence
	Accepted           bool
}

// GenerateReport accumulates the outcome of one recommendation batch. One bad
// entry never aborts the rest; it lands in one of the lists below instead.
type GenerateReport struct {
	Recommendations []Recommendation
	// MissingDescription lists unsorted entry IDs that were skipped because
	// no description is available for them.
	MissingDescription []string
	// Unplaced lists entry IDs whose every category comparison came back
	// inconclusive, so no category could be proposed.
	Unplaced     []string
	Queries      int
	Inconclusive int
}

// SkippedRecommendation explains why one accepted recommendation was not
// applied during a merge.
type SkippedRecommendation struct {
	RecommendationID string
	EntryID          string
	Reason           string
}

// ApplyReport is the outcome of merging a recommendation batch back into the
// load order.
type ApplyReport struct {
	Applied []string
	Skipped []SkippedRecommendation
}
