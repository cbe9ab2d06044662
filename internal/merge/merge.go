// Package merge applies accepted recommendations back onto the load order.
// Nothing here ever aborts a batch: stale references are skipped and
// reported, and each applied entry is appended to its target category
// without disturbing existing siblings.
package merge

import (
	"log"
	"sort"

	"losort/internal/domain"
	"losort/internal/loadorder"
)

type Engine struct {
	model *loadorder.Model
}

func New(model *loadorder.Model) *Engine {
	return &Engine{model: model}
}

// Apply moves every accepted recommendation's entry to the end of its
// proposed category. Entries are applied in their current relative order in
// the load order, so the final tree is deterministic for a given batch.
// Recommendations that were not accepted are discarded silently.
func (e *Engine) Apply(recommendations []domain.Recommendation) domain.ApplyReport {
	var report domain.ApplyReport

	accepted := make([]domain.Recommendation, 0, len(recommendations))
	for _, rec := range recommendations {
		if rec.Accepted {
			accepted = append(accepted, rec)
		}
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		pi, iOK := e.model.Position(accepted[i].EntryID)
		pj, jOK := e.model.Position(accepted[j].EntryID)
		if iOK != jOK {
			// Stale entries sort last; they are skipped below anyway.
			return iOK
		}
		return pi < pj
	})

	for _, rec := range accepted {
		if _, ok := e.model.Get(rec.EntryID); !ok {
			report.Skipped = append(report.Skipped, skipped(rec, "entry no longer exists"))
			continue
		}
		target, ok := e.model.Get(rec.ProposedCategoryID)
		if !ok {
			report.Skipped = append(report.Skipped, skipped(rec, "category no longer exists"))
			continue
		}
		if target.Kind != domain.KindCategory {
			report.Skipped = append(report.Skipped, skipped(rec, "proposed target is not a category"))
			continue
		}
		if err := e.model.Move(rec.EntryID, rec.ProposedCategoryID, loadorder.Append); err != nil {
			report.Skipped = append(report.Skipped, skipped(rec, err.Error()))
			continue
		}
		log.Printf("merge applied entry=%s category=%s", rec.EntryID, rec.ProposedCategoryID)
		report.Applied = append(report.Applied, rec.EntryID)
	}
	return report
}

func skipped(rec domain.Recommendation, reason string) domain.SkippedRecommendation {
	return domain.SkippedRecommendation{
		RecommendationID: rec.ID,
		EntryID:          rec.EntryID,
		Reason:           reason,
	}
}
