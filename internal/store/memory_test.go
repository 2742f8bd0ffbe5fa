package store

import (
	"reflect"
	"testing"

	"github.com/amishk599/feedsync/internal/model"
)

func rec(id, title string, score int) model.JobRecord {
	return model.JobRecord{ID: id, Title: title, Company: "testco", AIMatchScore: score}
}

func ids(records []model.JobRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestUpsertMany_AppendsInInputOrder(t *testing.T) {
	s := NewMemoryStore()
	res := s.UpsertMany([]model.JobRecord{rec("a", "A", 0), rec("b", "B", 0), rec("c", "C", 0)})

	if got := ids(s.All()); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("order = %v, want [a b c]", got)
	}
	if len(res.Appended) != 3 || res.Replaced != 0 || res.Dropped != 0 {
		t.Errorf("result = %+v, want 3 appended", res)
	}
	if s.Count() != 3 {
		t.Errorf("Count() = %d, want 3", s.Count())
	}
}

func TestUpsertMany_ReplaceKeepsPosition(t *testing.T) {
	s := NewMemoryStore()
	s.UpsertMany([]model.JobRecord{rec("a", "A", 0), rec("b", "B", 10)})
	s.UpsertMany([]model.JobRecord{rec("c", "C", 0)})
	res := s.UpsertMany([]model.JobRecord{rec("b", "B updated", 90)})

	all := s.All()
	if got := ids(all); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("order = %v, want [a b c]", got)
	}
	if all[1].Title != "B updated" || all[1].AIMatchScore != 90 {
		t.Errorf("b = %+v, want updated fields", all[1])
	}
	if len(res.Appended) != 0 || res.Replaced != 1 {
		t.Errorf("result = %+v, want 1 replaced, 0 appended", res)
	}
}

func TestUpsertMany_Idempotent(t *testing.T) {
	once := NewMemoryStore()
	once.UpsertMany([]model.JobRecord{rec("x", "X", 50)})

	twice := NewMemoryStore()
	twice.UpsertMany([]model.JobRecord{rec("x", "X", 50)})
	twice.UpsertMany([]model.JobRecord{rec("x", "X", 50)})

	if !reflect.DeepEqual(once.All(), twice.All()) {
		t.Errorf("applying the same upsert twice changed the store: %v vs %v", once.All(), twice.All())
	}
}

func TestUpsertMany_DropsMissingID(t *testing.T) {
	s := NewMemoryStore()
	res := s.UpsertMany([]model.JobRecord{rec("", "no id", 0), rec("a", "A", 0), {Title: "also no id"}})

	if res.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", res.Dropped)
	}
	if got := ids(s.All()); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("store = %v, want [a]", got)
	}
}

func TestUpsertMany_DuplicateInsideBatch(t *testing.T) {
	s := NewMemoryStore()
	res := s.UpsertMany([]model.JobRecord{rec("a", "first", 0), rec("a", "second", 0)})

	if s.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", s.Count())
	}
	if len(res.Appended) != 1 || res.Appended[0].Title != "second" {
		t.Errorf("Appended = %+v, want single latest record", res.Appended)
	}
	if res.Replaced != 0 {
		t.Errorf("Replaced = %d, want 0 (record is new to the store)", res.Replaced)
	}
	if got, _ := s.Get("a"); got.Title != "second" {
		t.Errorf("Get(a).Title = %q, want second (last write wins)", got.Title)
	}
}

func TestNoDuplicateIDsAcrossManyUpserts(t *testing.T) {
	s := NewMemoryStore()
	batches := [][]string{{"1", "2"}, {"2", "3"}, {"1", "3", "4"}, {"4"}}
	for _, b := range batches {
		var batch []model.JobRecord
		for _, id := range b {
			batch = append(batch, rec(id, "T"+id, 0))
		}
		s.UpsertMany(batch)
	}

	seen := make(map[string]bool)
	for _, r := range s.All() {
		if seen[r.ID] {
			t.Fatalf("duplicate id %s in store", r.ID)
		}
		seen[r.ID] = true
	}
	if got := ids(s.All()); !reflect.DeepEqual(got, []string{"1", "2", "3", "4"}) {
		t.Errorf("order = %v, want [1 2 3 4]", got)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	s.UpsertMany([]model.JobRecord{rec("a", "A", 0)})

	all := s.All()
	all[0].Title = "mutated"

	if got, _ := s.Get("a"); got.Title != "A" {
		t.Errorf("store mutated through All(): %q", got.Title)
	}
}

func TestRemove(t *testing.T) {
	s := NewMemoryStore()
	s.UpsertMany([]model.JobRecord{rec("a", "A", 0), rec("b", "B", 0), rec("c", "C", 0)})

	if !s.Remove("b") {
		t.Fatal("Remove(b) = false, want true")
	}
	if s.Remove("b") {
		t.Error("second Remove(b) = true, want false")
	}
	if got := ids(s.All()); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("order = %v, want [a c]", got)
	}

	// Index must stay consistent after removal.
	s.UpsertMany([]model.JobRecord{rec("c", "C updated", 0)})
	if got, _ := s.Get("c"); got.Title != "C updated" {
		t.Errorf("Get(c) = %+v after re-upsert", got)
	}
	if s.Count() != 2 {
		t.Errorf("Count() = %d, want 2", s.Count())
	}
}
