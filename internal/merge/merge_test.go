package merge

import (
	"reflect"
	"testing"

	"losort/internal/domain"
	"losort/internal/loadorder"
)

func newTestTree(t *testing.T) (*loadorder.Model, map[string]string) {
	t.Helper()
	m := loadorder.New()
	ids := map[string]string{}
	add := func(key, name string, kind domain.NodeKind, parentKey string) {
		parentID := ""
		if parentKey != "" {
			parentID = ids[parentKey]
		}
		id, err := m.Insert(name, kind, parentID, loadorder.Append)
		if err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
		ids[key] = id
	}
	add("armor", "Armor", domain.KindCategory, "")
	add("a1", "Heavy Plate", domain.KindMod, "armor")
	add("weapons", "Weapons", domain.KindCategory, "")
	add("unsorted", loadorder.UnsortedName, domain.KindCategory, "")
	add("u1", "Cloak", domain.KindMod, "unsorted")
	add("u2", "Dagger", domain.KindMod, "unsorted")
	add("u3", "Buckler", domain.KindMod, "unsorted")
	return m, ids
}

func rec(id, entryID, categoryID string, accepted bool) domain.Recommendation {
	return domain.Recommendation{
		ID:                 id,
		EntryID:            entryID,
		ProposedCategoryID: categoryID,
		Accepted:           accepted,
	}
}

func childNames(t *testing.T, m *loadorder.Model, parentID string) []string {
	t.Helper()
	children, err := m.ChildrenOf(parentID)
	if err != nil {
		t.Fatalf("ChildrenOf: %v", err)
	}
	var out []string
	for _, c := range children {
		out = append(out, c.Name)
	}
	return out
}

func TestApplyOnlyAcceptedRecommendations(t *testing.T) {
	m, ids := newTestTree(t)
	e := New(m)

	report := e.Apply([]domain.Recommendation{
		rec("r1", ids["u1"], ids["armor"], true),
		rec("r2", ids["u2"], ids["weapons"], false),
	})
	if !reflect.DeepEqual(report.Applied, []string{ids["u1"]}) {
		t.Fatalf("applied = %v, want [u1]", report.Applied)
	}
	if len(report.Skipped) != 0 {
		t.Fatalf("skipped = %v, want none", report.Skipped)
	}
	if got := childNames(t, m, ids["armor"]); !reflect.DeepEqual(got, []string{"Heavy Plate", "Cloak"}) {
		t.Fatalf("armor = %v, want Cloak appended", got)
	}
	if got := childNames(t, m, ids["unsorted"]); !reflect.DeepEqual(got, []string{"Dagger", "Buckler"}) {
		t.Fatalf("unsorted = %v, want pending entries untouched", got)
	}
}

func TestApplyAppendsInOriginalEntryOrder(t *testing.T) {
	m, ids := newTestTree(t)
	e := New(m)

	// Recommendations passed in reverse of the entries' load-order positions.
	report := e.Apply([]domain.Recommendation{
		rec("r3", ids["u3"], ids["weapons"], true),
		rec("r1", ids["u1"], ids["weapons"], true),
		rec("r2", ids["u2"], ids["weapons"], true),
	})
	want := []string{ids["u1"], ids["u2"], ids["u3"]}
	if !reflect.DeepEqual(report.Applied, want) {
		t.Fatalf("applied order = %v, want %v", report.Applied, want)
	}
	if got := childNames(t, m, ids["weapons"]); !reflect.DeepEqual(got, []string{"Cloak", "Dagger", "Buckler"}) {
		t.Fatalf("weapons = %v, want original relative order", got)
	}
}

func TestApplySkipsStaleReferences(t *testing.T) {
	m, ids := newTestTree(t)
	if err := m.Remove(ids["u2"]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	e := New(m)

	report := e.Apply([]domain.Recommendation{
		rec("r1", ids["u1"], ids["armor"], true),
		rec("r2", ids["u2"], ids["armor"], true),
		rec("r3", ids["u3"], "ghost-category", true),
		rec("r4", ids["u3"], ids["a1"], true),
	})
	if !reflect.DeepEqual(report.Applied, []string{ids["u1"]}) {
		t.Fatalf("applied = %v, want only u1", report.Applied)
	}
	if len(report.Skipped) != 3 {
		t.Fatalf("skipped = %+v, want 3 entries", report.Skipped)
	}
	for _, s := range report.Skipped {
		if s.Reason == "" {
			t.Fatalf("skipped %s has empty reason", s.RecommendationID)
		}
	}
}
