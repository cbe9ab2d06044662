// Package app wires the load-order editor together: config, storage, the
// description catalog, the oracle, and the editing session.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"losort/internal/config"
	"losort/internal/domain"
	"losort/internal/extract"
	"losort/internal/httpx"
	"losort/internal/integrations/llm"
	"losort/internal/loadorder"
	"losort/internal/merge"
	"losort/internal/recommend"
	"losort/internal/selection"
	"losort/internal/storage/sqlite"
)

// Session owns one load order and serializes all access to it. The model and
// the selection engine are not safe for concurrent use on their own; every
// entry point here takes the session lock.
type Session struct {
	mu        sync.Mutex
	model     *loadorder.Model
	selection *selection.Engine
	recommend *recommend.Engine
	pending   []domain.Recommendation
}

func NewSession(oracle recommend.Oracle, opts recommend.Options) *Session {
	model := loadorder.New()
	return &Session{
		model:     model,
		selection: selection.New(model),
		recommend: recommend.New(oracle, opts),
	}
}

// LoadFromRecords swaps in a freshly built tree. The selection and any
// pending recommendations refer to the old tree's ids, so both are reset.
func (s *Session) LoadFromRecords(records []domain.Record) error {
	model, err := loadorder.LoadFromRecords(records)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
	s.selection = selection.New(model)
	s.pending = nil
	return nil
}

// Mutate runs fn with exclusive access to the model and selection engine.
func (s *Session) Mutate(fn func(m *loadorder.Model, sel *selection.Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.model, s.selection)
}

// GenerateRecommendations snapshots the tree under the lock, runs the oracle
// queries without it, and stores the resulting proposals as the pending set.
func (s *Session) GenerateRecommendations(ctx context.Context, seed int64, k int) (domain.GenerateReport, error) {
	s.mu.Lock()
	snap := recommend.BuildSnapshot(s.model)
	s.mu.Unlock()

	report, err := s.recommend.Generate(ctx, snap, seed, k)
	if err != nil {
		return domain.GenerateReport{}, err
	}

	s.mu.Lock()
	s.pending = report.Recommendations
	s.mu.Unlock()
	return report, nil
}

// Pending returns a copy of the current proposals.
func (s *Session) Pending() []domain.Recommendation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Recommendation, len(s.pending))
	copy(out, s.pending)
	return out
}

func (s *Session) AcceptRecommendation(id string) error {
	return s.setAccepted(id, true)
}

func (s *Session) RejectRecommendation(id string) error {
	return s.setAccepted(id, false)
}

func (s *Session) setAccepted(id string, accepted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pending {
		if s.pending[i].ID == id {
			s.pending[i].Accepted = accepted
			return nil
		}
	}
	return fmt.Errorf("no pending recommendation %s", id)
}

// ConfirmMerge applies the accepted proposals to the tree and clears the
// pending set. Rejected and stale proposals are dropped; stale ones are
// reported in the returned ApplyReport.
func (s *Session) ConfirmMerge() domain.ApplyReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	report := merge.New(s.model).Apply(s.pending)
	s.pending = nil
	return report
}

func (s *Session) ExportToRecords() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.ExportToRecords()
}

func Main() {
	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. DB=%s ModsData=%s OracleProvider=%s SampleSize=%d Concurrency=%d MaxAttempts=%d BackoffMS=%d ExternalHTTPTimeout=%s",
		cfg.DBPath,
		cfg.ModsDataPath,
		cfg.OracleProvider,
		cfg.SampleSize,
		cfg.OracleConcurrency,
		cfg.OracleMaxAttempts,
		cfg.OracleBackoffMS,
		appliedHTTPTimeout,
	)

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)
	defer db.Close()

	if _, statErr := os.Stat(cfg.ModsDataPath); statErr == nil {
		imported, importErr := extract.ImportModsData(db, cfg.ModsDataPath)
		if importErr != nil {
			log.Fatalf("Failed to import mods data: %v", importErr)
		}
		log.Printf("Imported %d catalog entries from %s", imported, cfg.ModsDataPath)
	} else {
		log.Printf("No mods data at %s, using stored catalog", cfg.ModsDataPath)
	}

	oracle := llm.NewScorer(llm.Options{
		Provider:        cfg.OracleProvider,
		Model:           cfg.OracleModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
	})
	session := NewSession(oracle, recommend.Options{
		MaxAttempts: cfg.OracleMaxAttempts,
		BackoffBase: time.Duration(cfg.OracleBackoffMS) * time.Millisecond,
		Concurrency: cfg.OracleConcurrency,
	})

	records, err := sqlite.LoadRecords(db)
	if err != nil {
		log.Fatalf("Failed to load stored load order: %v", err)
	}
	if err := session.LoadFromRecords(records); err != nil {
		log.Fatalf("Failed to rebuild load order: %v", err)
	}
	log.Printf("Load order restored: %d records", len(records))

	err = session.Mutate(func(m *loadorder.Model, _ *selection.Engine) error {
		m.EnsureUnsorted()
		stamp, stampErr := extract.Stamp(m, &sqlite.DescriptionStore{DB: db})
		if stampErr != nil {
			return stampErr
		}
		log.Printf("Descriptions stamped=%d missing=%d", stamp.Stamped, len(stamp.Missing))
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to stamp descriptions: %v", err)
	}

	extract.StartRefreshScheduler(db, cfg.ModsDataPath, cfg.RefreshCron)

	log.Println("Generating recommendations for unsorted entries...")
	report, err := session.GenerateRecommendations(context.Background(), time.Now().UnixNano(), cfg.SampleSize)
	if err != nil {
		log.Fatalf("Recommendation run failed: %v", err)
	}
	log.Printf("Recommendation run done: proposals=%d queries=%d inconclusive=%d unplaced=%d missing_description=%d",
		len(report.Recommendations), report.Queries, report.Inconclusive,
		len(report.Unplaced), len(report.MissingDescription))
	_ = session.Mutate(func(m *loadorder.Model, _ *selection.Engine) error {
		for _, rec := range report.Recommendations {
			target, _ := m.Get(rec.ProposedCategoryID)
			log.Printf("proposal entry=%s -> category=%s", rec.EntryName, target.Name)
		}
		return nil
	})

	if err := sqlite.SaveRecords(db, session.ExportToRecords()); err != nil {
		log.Fatalf("Failed to persist load order: %v", err)
	}
	log.Println("Load order saved.")
}
