package loadorder

import (
	"errors"
	"reflect"
	"testing"

	"losort/internal/domain"
)

func newTestModel(t *testing.T) (*Model, map[string]string) {
	t.Helper()
	m := New()
	ids := map[string]string{}
	mustInsert := func(key, name string, kind domain.NodeKind, parentKey string) {
		parentID := ""
		if parentKey != "" {
			parentID = ids[parentKey]
		}
		id, err := m.Insert(name, kind, parentID, Append)
		if err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
		ids[key] = id
	}
	mustInsert("armor", "Armor", domain.KindCategory, "")
	mustInsert("a1", "Heavy Plate", domain.KindMod, "armor")
	mustInsert("a2", "Chainmail", domain.KindMod, "armor")
	mustInsert("weapons", "Weapons", domain.KindCategory, "")
	mustInsert("w1", "Longsword", domain.KindMod, "weapons")
	mustInsert("unsorted", UnsortedName, domain.KindCategory, "")
	mustInsert("u1", "Cloak of Shadows", domain.KindMod, "unsorted")
	mustInsert("u2", "Mystery Mod", domain.KindMod, "unsorted")
	return m, ids
}

func assertDenseIndices(t *testing.T, m *Model, parentID string) {
	t.Helper()
	children, err := m.ChildrenOf(parentID)
	if err != nil {
		t.Fatalf("ChildrenOf(%q): %v", parentID, err)
	}
	for i, c := range children {
		if c.Index != i {
			t.Fatalf("parent %q child %s has index %d, want %d", parentID, c.Name, c.Index, i)
		}
	}
}

func TestInsertRemoveKeepDenseIndices(t *testing.T) {
	m, ids := newTestModel(t)

	assertDenseIndices(t, m, "")
	assertDenseIndices(t, m, ids["armor"])

	if _, err := m.Insert("Gauntlets", domain.KindMod, ids["armor"], 1); err != nil {
		t.Fatalf("insert at index: %v", err)
	}
	assertDenseIndices(t, m, ids["armor"])

	if err := m.Remove(ids["a1"]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	assertDenseIndices(t, m, ids["armor"])

	if err := m.Remove("nope"); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("remove unknown = %v, want ErrUnknownNode", err)
	}
}

func TestRemoveCategoryDropsSubtree(t *testing.T) {
	m, ids := newTestModel(t)

	if err := m.Remove(ids["armor"]); err != nil {
		t.Fatalf("remove category: %v", err)
	}
	if _, ok := m.Get(ids["a1"]); ok {
		t.Fatal("expected armor child to be destroyed with its category")
	}
	if _, ok := m.Get(ids["a2"]); ok {
		t.Fatal("expected armor child to be destroyed with its category")
	}
	assertDenseIndices(t, m, "")
}

func TestCyclicMoveFailsAndLeavesTreeUnchanged(t *testing.T) {
	m, ids := newTestModel(t)
	sub, err := m.Insert("Shields", domain.KindCategory, ids["armor"], Append)
	if err != nil {
		t.Fatalf("insert subcategory: %v", err)
	}
	before := m.ExportToRecords()

	if err := m.Move(ids["armor"], sub, 0); !errors.Is(err, ErrCyclicMove) {
		t.Fatalf("move into own descendant = %v, want ErrCyclicMove", err)
	}
	if err := m.Move(ids["armor"], ids["armor"], 0); !errors.Is(err, ErrCyclicMove) {
		t.Fatalf("move into self = %v, want ErrCyclicMove", err)
	}

	after := m.ExportToRecords()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("tree changed after failed cyclic move:\nbefore=%v\nafter=%v", before, after)
	}
}

func TestMoveRangeNormalizesToOriginalRelativeOrder(t *testing.T) {
	m, ids := newTestModel(t)

	// Pass ids in a scrambled order; a1, a2, w1 appear in that order in the
	// tree and must land in that order.
	if err := m.MoveRange([]string{ids["w1"], ids["a2"], ids["a1"]}, ids["unsorted"], 0); err != nil {
		t.Fatalf("move range: %v", err)
	}
	children, err := m.ChildrenOf(ids["unsorted"])
	if err != nil {
		t.Fatalf("ChildrenOf: %v", err)
	}
	var names []string
	for _, c := range children {
		names = append(names, c.Name)
	}
	want := []string{"Heavy Plate", "Chainmail", "Longsword", "Cloak of Shadows", "Mystery Mod"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("unsorted children = %v, want %v", names, want)
	}
	assertDenseIndices(t, m, ids["unsorted"])
	assertDenseIndices(t, m, ids["armor"])
	assertDenseIndices(t, m, ids["weapons"])
}

func TestMoveRangeAppend(t *testing.T) {
	m, ids := newTestModel(t)

	if err := m.Move(ids["u1"], ids["armor"], Append); err != nil {
		t.Fatalf("move append: %v", err)
	}
	children, _ := m.ChildrenOf(ids["armor"])
	if last := children[len(children)-1]; last.ID != ids["u1"] {
		t.Fatalf("appended entry is %s, want %s", last.Name, "Cloak of Shadows")
	}
}

func TestMoveRangeUnknownIDIsAtomic(t *testing.T) {
	m, ids := newTestModel(t)
	before := m.ExportToRecords()

	err := m.MoveRange([]string{ids["a1"], "ghost"}, ids["weapons"], 0)
	if !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("move range with unknown id = %v, want ErrUnknownNode", err)
	}
	if !reflect.DeepEqual(before, m.ExportToRecords()) {
		t.Fatal("tree changed after failed move range")
	}
}

func TestVisibleOrderRespectsFoldState(t *testing.T) {
	m, ids := newTestModel(t)

	if err := m.SetFold(ids["armor"], Collapsed); err != nil {
		t.Fatalf("set fold: %v", err)
	}
	var names []string
	for _, v := range m.VisibleOrder() {
		names = append(names, v.Name)
	}
	want := []string{"Armor", "Weapons", "Longsword", UnsortedName, "Cloak of Shadows", "Mystery Mod"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("visible order = %v, want %v", names, want)
	}

	if err := m.SetFold(ids["a1"], Expanded); !errors.Is(err, ErrNotCategory) {
		t.Fatalf("set fold on mod = %v, want ErrNotCategory", err)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	m, ids := newTestModel(t)
	if err := m.SetDescription(ids["u1"], "stealth bonus"); err != nil {
		t.Fatalf("set description: %v", err)
	}
	records := m.ExportToRecords()

	reloaded, err := LoadFromRecords(records)
	if err != nil {
		t.Fatalf("LoadFromRecords: %v", err)
	}
	if got := reloaded.ExportToRecords(); !reflect.DeepEqual(records, got) {
		t.Fatalf("round trip mismatch:\nwant %v\ngot  %v", records, got)
	}
}

func TestLoadFromRecordsRejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		records []domain.Record
	}{
		{"duplicate id", []domain.Record{
			{ID: "x", Name: "A", Kind: domain.KindMod},
			{ID: "x", Name: "B", Kind: domain.KindMod},
		}},
		{"missing parent", []domain.Record{
			{ID: "x", Name: "A", Kind: domain.KindMod, ParentID: "ghost"},
		}},
		{"mod parent", []domain.Record{
			{ID: "x", Name: "A", Kind: domain.KindMod},
			{ID: "y", Name: "B", Kind: domain.KindMod, ParentID: "x"},
		}},
	}
	for _, tc := range cases {
		if _, err := LoadFromRecords(tc.records); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestEnsureUnsorted(t *testing.T) {
	m := New()
	id := m.EnsureUnsorted()
	if id == "" {
		t.Fatal("expected an id for the created UNSORTED category")
	}
	if again := m.EnsureUnsorted(); again != id {
		t.Fatalf("EnsureUnsorted created a second category: %s vs %s", id, again)
	}
	v, ok := m.Unsorted()
	if !ok || v.Name != UnsortedName {
		t.Fatalf("Unsorted() = %+v, %v", v, ok)
	}
}
