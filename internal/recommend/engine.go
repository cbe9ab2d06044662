// Package recommend proposes category placements for unsorted entries by
// comparing their descriptions against sampled already-sorted entries through
// an external text-comparison oracle.
package recommend

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"losort/internal/domain"
	"losort/internal/loadorder"
)

// Candidate is one entry the oracle sees: either the unsorted target or a
// sampled sibling from a category.
type Candidate struct {
	ID          string
	Name        string
	Description string
}

// FitRequest asks the oracle how well the target description fits alongside
// the candidate descriptions.
type FitRequest struct {
	TargetID          string
	TargetName        string
	TargetDescription string
	Candidates        []Candidate
}

// FitScore is the oracle's per-candidate judgment, in [0,1].
type FitScore struct {
	CandidateID string
	Fit         float64
}

// Oracle is the external text-comparison service. Implementations are free
// to use any transport; they must return a distinguishable error on
// timeout/malformed/rate-limited responses so the engine can retry.
type Oracle interface {
	ScoreFit(ctx context.Context, req FitRequest) ([]FitScore, error)
}

// SnapshotCategory is one non-UNSORTED category with its direct mod children.
type SnapshotCategory struct {
	ID       string
	Name     string
	Position int
	Entries  []Candidate
}

// Snapshot is an immutable copy of the model state the engine needs, taken
// under the model lock so oracle calls can run without holding it.
type Snapshot struct {
	Categories []SnapshotCategory
	Unsorted   []Candidate
}

// BuildSnapshot captures the root-level categories and the UNSORTED entries.
// Recommendations only target categories that are direct children of the
// root, matching how the load order file is organized.
func BuildSnapshot(m *loadorder.Model) Snapshot {
	var snap Snapshot
	roots, err := m.ChildrenOf("")
	if err != nil {
		return snap
	}
	for _, c := range roots {
		if c.Kind != domain.KindCategory {
			continue
		}
		children, err := m.ChildrenOf(c.ID)
		if err != nil {
			continue
		}
		var entries []Candidate
		for _, child := range children {
			if child.Kind != domain.KindMod {
				continue
			}
			entries = append(entries, Candidate{ID: child.ID, Name: child.Name, Description: child.Description})
		}
		if c.Name == loadorder.UnsortedName {
			snap.Unsorted = entries
			continue
		}
		snap.Categories = append(snap.Categories, SnapshotCategory{
			ID:       c.ID,
			Name:     c.Name,
			Position: len(snap.Categories),
			Entries:  entries,
		})
	}
	return snap
}

// Options bound the engine's oracle traffic.
type Options struct {
	// MaxAttempts caps oracle retries per (entry, category) pair.
	MaxAttempts int
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
	// Concurrency caps in-flight oracle queries; excess queries queue.
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	return o
}

type Engine struct {
	oracle Oracle
	opts   Options
}

func New(oracle Oracle, opts Options) *Engine {
	return &Engine{oracle: oracle, opts: opts.withDefaults()}
}

// pair is one (unsorted entry, category) oracle query.
type pair struct {
	entry    Candidate
	category SnapshotCategory
	sampled  []Candidate
}

type pairResult struct {
	evidence domain.Evidence
}

// Generate produces ranked recommendations for every unsorted entry that has
// a description. The sample draw is seeded so identical snapshot + seed
// reproduce identical candidate sets. Cancelling ctx abandons the whole
// batch; no partial result is returned.
func (e *Engine) Generate(ctx context.Context, snap Snapshot, seed int64, k int) (domain.GenerateReport, error) {
	var report domain.GenerateReport
	if k < 1 {
		k = 1
	}

	// Draw all samples up front from one seeded source so the draw order is
	// independent of oracle timing.
	rng := rand.New(rand.NewSource(seed))
	var pairs []pair
	eligible := make([]Candidate, 0, len(snap.Unsorted))
	for _, entry := range snap.Unsorted {
		if entry.Description == "" {
			report.MissingDescription = append(report.MissingDescription, entry.ID)
			continue
		}
		eligible = append(eligible, entry)
		for _, cat := range snap.Categories {
			sampled := sampleCandidates(rng, cat.Entries, k)
			if len(sampled) == 0 {
				continue
			}
			pairs = append(pairs, pair{entry: entry, category: cat, sampled: sampled})
		}
	}
	if len(pairs) == 0 {
		report.Unplaced = entryIDs(eligible)
		return report, nil
	}

	log.Printf("recommend generate entries=%d categories=%d pairs=%d k=%d seed=%d",
		len(eligible), len(snap.Categories), len(pairs), k, seed)

	results := make([]pairResult, len(pairs))
	sem := semaphore.NewWeighted(int64(e.opts.Concurrency))
	var wg sync.WaitGroup
	for i, p := range pairs {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(idx int, p pair) {
			defer wg.Done()
			defer sem.Release(1)
			results[idx] = e.queryPair(ctx, p)
		}(i, p)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return domain.GenerateReport{}, err
	}
	report.Queries = len(pairs)

	// Group evidence per entry, in unsorted order.
	evidenceFor := make(map[string][]domain.Evidence, len(eligible))
	for i, r := range results {
		entryID := pairs[i].entry.ID
		evidenceFor[entryID] = append(evidenceFor[entryID], r.evidence)
		if r.evidence.Verdict == domain.VerdictInconclusive {
			report.Inconclusive++
		}
	}

	positionOf := make(map[string]int, len(snap.Categories))
	for _, cat := range snap.Categories {
		positionOf[cat.ID] = cat.Position
	}
	for _, entry := range eligible {
		evidence := evidenceFor[entry.ID]
		best := ""
		bestFit := -1.0
		for _, ev := range evidence {
			if ev.Verdict != domain.VerdictScored {
				continue
			}
			switch {
			case ev.Fit > bestFit:
				best, bestFit = ev.CategoryID, ev.Fit
			case ev.Fit == bestFit && best != "" && positionOf[ev.CategoryID] < positionOf[best]:
				// Deterministic tie-break: earlier category wins.
				best = ev.CategoryID
			}
		}
		if best == "" {
			report.Unplaced = append(report.Unplaced, entry.ID)
			continue
		}
		report.Recommendations = append(report.Recommendations, domain.Recommendation{
			ID:                 uuid.NewString(),
			EntryID:            entry.ID,
			EntryName:          entry.Name,
			ProposedCategoryID: best,
			Evidence:           evidence,
		})
	}
	return report, nil
}

// queryPair runs one oracle query with retries and exponential backoff.
// Exhausting retries downgrades the pair to Inconclusive instead of failing
// the batch.
func (e *Engine) queryPair(ctx context.Context, p pair) pairResult {
	ev := domain.Evidence{
		CategoryID:   p.category.ID,
		CategoryName: p.category.Name,
		SampledIDs:   candidateIDs(p.sampled),
		Verdict:      domain.VerdictInconclusive,
	}
	req := FitRequest{
		TargetID:          p.entry.ID,
		TargetName:        p.entry.Name,
		TargetDescription: p.entry.Description,
		Candidates:        p.sampled,
	}
	backoff := e.opts.BackoffBase
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		scores, err := e.oracle.ScoreFit(ctx, req)
		if err == nil {
			if fit, ok := bestFit(scores, p.sampled); ok {
				ev.Fit = fit
				ev.Verdict = domain.VerdictScored
				return pairResult{evidence: ev}
			}
			err = errNoScores
		}
		if ctx.Err() != nil {
			return pairResult{evidence: ev}
		}
		log.Printf("oracle query entry=%s category=%s attempt=%d/%d err=%v",
			p.entry.ID, p.category.ID, attempt, e.opts.MaxAttempts, err)
		if attempt < e.opts.MaxAttempts {
			if sleepCtx(ctx, backoff) != nil {
				return pairResult{evidence: ev}
			}
			backoff *= 2
		}
	}
	return pairResult{evidence: ev}
}

// bestFit reduces the oracle's per-candidate scores to the pair's fit: the
// best judgment among the candidates we actually sampled. Scores for unknown
// candidate ids are discarded; missing candidates simply don't contribute.
func bestFit(scores []FitScore, sampled []Candidate) (float64, bool) {
	valid := make(map[string]bool, len(sampled))
	for _, c := range sampled {
		valid[c.ID] = true
	}
	best := 0.0
	found := false
	for _, s := range scores {
		if !valid[s.CandidateID] {
			continue
		}
		fit := s.Fit
		if fit < 0 {
			fit = 0
		}
		if fit > 1 {
			fit = 1
		}
		if !found || fit > best {
			best = fit
		}
		found = true
	}
	return best, found
}

// sampleCandidates draws up to k described entries uniformly without
// replacement. Categories with fewer eligible entries contribute all of
// them; the draw never pads or repeats.
func sampleCandidates(rng *rand.Rand, pool []Candidate, k int) []Candidate {
	var described []Candidate
	for _, c := range pool {
		if c.Description != "" {
			described = append(described, c)
		}
	}
	if len(described) <= k {
		return described
	}
	out := make([]Candidate, 0, k)
	for _, idx := range rng.Perm(len(described))[:k] {
		out = append(out, described[idx])
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func candidateIDs(cs []Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func entryIDs(cs []Candidate) []string {
	if len(cs) == 0 {
		return nil
	}
	return candidateIDs(cs)
}

var errNoScores = errors.New("oracle returned no scores for sampled candidates")
