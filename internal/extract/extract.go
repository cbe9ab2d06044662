// Package extract pulls mod descriptions out of the exported mods_data.json
// catalog and stamps them onto the in-memory load order.
package extract

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"losort/internal/domain"
	"losort/internal/loadorder"
	"losort/internal/storage/sqlite"
)

// Source looks up the description for a mod by name. The bool reports whether
// the mod is known to the source at all.
type Source interface {
	Description(name string) (string, bool, error)
}

type modsDataEntry struct {
	Description string `json:"description"`
	Author      string `json:"author"`
	Version     string `json:"version"`
	UUID        string `json:"uuid"`
}

// LoadModsData parses a mods_data.json catalog, a JSON object keyed by mod
// name.
func LoadModsData(path string) ([]domain.ModInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]modsDataEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	infos := make([]domain.ModInfo, 0, len(raw))
	for name, entry := range raw {
		infos = append(infos, domain.ModInfo{
			Name:        name,
			Description: strings.TrimSpace(entry.Description),
			Author:      entry.Author,
			Version:     entry.Version,
			UUID:        entry.UUID,
		})
	}
	return infos, nil
}

// ImportModsData loads a mods_data.json catalog and upserts every entry into
// the mod_info table. Returns the number of imported entries.
func ImportModsData(db *sql.DB, path string) (int, error) {
	infos, err := LoadModsData(path)
	if err != nil {
		return 0, err
	}
	imported := 0
	for _, info := range infos {
		if err := sqlite.UpsertModInfo(db, info); err != nil {
			return imported, err
		}
		imported++
	}
	log.Printf("mods-data import path=%s entries=%d", path, imported)
	return imported, nil
}

type StampReport struct {
	Stamped int
	Missing []string
}

// Stamp copies descriptions from the source onto every mod in the model that
// does not already carry one. Mods the source does not know are reported in
// Missing.
func Stamp(m *loadorder.Model, src Source) (StampReport, error) {
	var report StampReport
	for _, rec := range m.ExportToRecords() {
		if rec.Kind != domain.KindMod || rec.Description != "" {
			continue
		}
		desc, ok, err := src.Description(rec.Name)
		if err != nil {
			return report, fmt.Errorf("looking up %s: %w", rec.Name, err)
		}
		if !ok || desc == "" {
			report.Missing = append(report.Missing, rec.Name)
			continue
		}
		if err := m.SetDescription(rec.ID, desc); err != nil {
			return report, err
		}
		report.Stamped++
	}
	return report, nil
}

// StartRefreshScheduler re-imports the mods_data catalog on a 5-field cron
// schedule (minute hour day-of-month month day-of-week).
// Examples: "0 9 * * *" (daily 9am), "*/30 * * * *" (every 30 minutes).
func StartRefreshScheduler(db *sql.DB, path, schedule string) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		log.Println("Catalog refresh disabled (refresh_cron not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid refresh_cron '%s': %v, catalog refresh disabled", schedule, err)
		return
	}
	log.Printf("Catalog refresh scheduled (cron: %s) from %s", schedule, path)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next catalog refresh at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			imported, err := ImportModsData(db, path)
			if err != nil {
				log.Printf("Catalog refresh error: %v", err)
				continue
			}
			log.Printf("Catalog refresh complete: imported=%d", imported)
		}
	}()
}
