package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pfrederiksen/course-scraper/internal/course"
)

const headerLine = "Timestamp,Course Code,Course Name,Description,Hub Units,Credits,URL"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "data", "course_data.csv"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	return store
}

var clock = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func rec(code, name string) *course.Record {
	clock = clock.Add(time.Millisecond)
	return course.NewRecord(code, name, name+" description, with a comma", []string{"Critical Thinking", "Oral and/or Signed Communication"}, "4 cr", "https://example.com/search?a=1&b=2", clock)
}

func codes(records []*course.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.CourseCode)
	}
	return out
}

func TestNew_ExpandsDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	store, err := New(filepath.Join(dir, "courses.csv"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("data directory not created: %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Errorf("store file should not exist before first merge, stat err = %v", err)
	}

	if _, err := New(""); err == nil {
		t.Error("New(\"\") expected error, got nil")
	}
}

func TestMerge_CreatesStoreWithHeader(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Merge([]*course.Record{rec("CAS CS 101", "Intro")})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if result.Appended != 1 || result.Duplicates != 0 {
		t.Errorf("Merge() = %+v, want 1 appended", result)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("reading store: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != headerLine {
		t.Errorf("header = %q, want %q", lines[0], headerLine)
	}
	if len(lines) != 2 {
		t.Errorf("store has %d lines, want 2", len(lines))
	}
	// Hub units collapse to one quoted field
	if !strings.Contains(lines[1], `"Critical Thinking, Oral and/or Signed Communication"`) {
		t.Errorf("row does not hold joined hub units: %q", lines[1])
	}
}

func TestMerge_EmptyBatchOnNewStore(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Merge(nil)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if result.Appended != 0 {
		t.Errorf("Appended = %d, want 0", result.Appended)
	}

	data, _ := os.ReadFile(store.Path())
	if strings.TrimSpace(string(data)) != headerLine {
		t.Errorf("store = %q, want header only", data)
	}

	// A second merge must not repeat the header
	if _, err := store.Merge([]*course.Record{rec("CAS CS 101", "Intro")}); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	data, _ = os.ReadFile(store.Path())
	if n := strings.Count(string(data), headerLine); n != 1 {
		t.Errorf("header written %d times, want 1", n)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	store := newTestStore(t)
	batch := []*course.Record{rec("CAS CS 101", "A"), rec("CAS CS 102", "B"), rec("CAS CS 103", "C")}

	if _, err := store.Merge(batch); err != nil {
		t.Fatalf("first Merge() error = %v", err)
	}
	once, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}

	result, err := store.Merge(batch)
	if err != nil {
		t.Fatalf("second Merge() error = %v", err)
	}
	if result.Appended != 0 || result.Duplicates != 3 {
		t.Errorf("second Merge() = %+v, want 0 appended and 3 duplicates", result)
	}

	twice, _ := os.ReadFile(store.Path())
	if string(once) != string(twice) {
		t.Errorf("store changed after merging the same batch again:\n%s\nvs\n%s", once, twice)
	}
}

func TestMerge_FirstWriteWins(t *testing.T) {
	store := newTestStore(t)

	original := rec("CAS CS 101", "Original Title")
	if _, err := store.Merge([]*course.Record{original}); err != nil {
		t.Fatal(err)
	}

	replacement := rec("CAS CS 101", "Updated Title")
	replacement.Description = "Refreshed description"
	if _, err := store.Merge([]*course.Record{replacement, rec("CAS CS 102", "Other")}); err != nil {
		t.Fatal(err)
	}

	records, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ReadAll() returned %d records, want 2", len(records))
	}
	if !reflect.DeepEqual(records[0], original) {
		t.Errorf("original record changed:\n got %+v\nwant %+v", records[0], original)
	}
}

func TestMerge_InBatchDuplicates(t *testing.T) {
	store := newTestStore(t)

	first := rec("CAS CS 101", "First")
	result, err := store.Merge([]*course.Record{first, rec("CAS CS 101", "Second"), rec("CAS CS 102", "Other")})
	if err != nil {
		t.Fatal(err)
	}
	if result.Appended != 2 || result.Duplicates != 1 {
		t.Errorf("Merge() = %+v, want 2 appended and 1 duplicate", result)
	}

	records, _ := store.ReadAll()
	if records[0].CourseName != "First" {
		t.Errorf("kept %q, want the first occurrence", records[0].CourseName)
	}
}

func TestReadAll_OrderPreserved(t *testing.T) {
	store := newTestStore(t)

	merges := [][]*course.Record{
		{rec("C", "c"), rec("A", "a")},
		{rec("B", "b"), rec("A", "dup")},
		{rec("D", "d")},
	}
	for _, batch := range merges {
		if _, err := store.Merge(batch); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	want := []string{"C", "A", "B", "D"}
	if got := codes(records); !reflect.DeepEqual(got, want) {
		t.Errorf("ReadAll() codes = %v, want %v", got, want)
	}
}

func TestReadAll_MissingStore(t *testing.T) {
	store := newTestStore(t)

	records, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v, want nil for missing store", err)
	}
	if len(records) != 0 {
		t.Errorf("ReadAll() returned %d records, want 0", len(records))
	}
}

func TestReadAll_DecodesURLAndHubUnits(t *testing.T) {
	store := newTestStore(t)

	content := headerLine + "\n" +
		`2024-01-01T00:00:00.000001,CAS WR 120,Writing,Desc,"Writing, Research, and Inquiry, Critical Thinking",4 cr,https://www.bu.edu/search.php?page=w0&amp;adv=1&amp;search_adv_all=CAS%20WR` + "\n"
	if err := os.WriteFile(store.Path(), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ReadAll() returned %d records, want 1", len(records))
	}

	r := records[0]
	if r.SourceURL != "https://www.bu.edu/search.php?page=w0&adv=1&search_adv_all=CAS WR" {
		t.Errorf("SourceURL = %q", r.SourceURL)
	}
	// Tags containing the separator are split; only display fidelity is required
	if len(r.HubUnits) != 4 {
		t.Errorf("HubUnits = %v, want 4 parts", r.HubUnits)
	}
	if r.Timestamp != "2024-01-01T00:00:00.000001" {
		t.Errorf("Timestamp = %q", r.Timestamp)
	}
}

func TestReadAll_Unreadable(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing columns", "Timestamp,Name\n2024,Foo\n"},
		{"ragged row", headerLine + "\na,b,c\n"},
		{"bad quoting", headerLine + "\n\"unterminated,b,c,d,e,f,g\n"},
		{"foreign header only", "foo,bar\n"},
		{"partial header only", "Timestamp,Course Code\n"},
		{"reordered header only", "Course Code,Timestamp,Course Name,Description,Hub Units,Credits,URL\n"},
		{"extra column header only", headerLine + ",Notes\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			if err := os.WriteFile(store.Path(), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			_, err := store.ReadAll()
			if !errors.Is(err, ErrStoreUnreadable) {
				t.Errorf("ReadAll() error = %v, want ErrStoreUnreadable", err)
			}

			// Merge refuses to append to a store it cannot read
			if _, err := store.Merge([]*course.Record{rec("X", "x")}); !errors.Is(err, ErrStoreUnreadable) {
				t.Errorf("Merge() error = %v, want ErrStoreUnreadable", err)
			}
			after, err := os.ReadFile(store.Path())
			if err != nil {
				t.Fatal(err)
			}
			if string(after) != tt.content {
				t.Errorf("Merge() modified an unreadable store:\n%s", after)
			}
		})
	}
}

func TestExistingCodes(t *testing.T) {
	store := newTestStore(t)

	got, err := store.ExistingCodes()
	if err != nil || len(got) != 0 {
		t.Fatalf("ExistingCodes() on missing store = %v, %v", got, err)
	}

	if _, err := store.Merge([]*course.Record{rec("A", "a"), rec("B", "b")}); err != nil {
		t.Fatal(err)
	}
	got, err = store.ExistingCodes()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["A"]; !ok || len(got) != 2 {
		t.Errorf("ExistingCodes() = %v, want {A, B}", got)
	}
}

func TestDeleteByKey(t *testing.T) {
	store := newTestStore(t)

	// Duplicates cannot come from Merge; write them directly
	content := headerLine + "\n" +
		"2024-01-01T00:00:00.000001,CS101,Intro,First copy,N/A,4 cr,https://example.com\n" +
		"2024-01-01T00:00:00.000002,CS102,Data Structures,\"Trees, graphs\",Critical Thinking,4 cr,https://example.com\n" +
		"2024-01-01T00:00:00.000003,CS101,Intro,Second copy,N/A,4 cr,https://example.com\n"
	if err := os.WriteFile(store.Path(), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if ok := store.DeleteByKey("CS101"); !ok {
		t.Fatal("DeleteByKey() = false, want true")
	}

	records, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ReadAll() returned %d records, want 1", len(records))
	}

	want := &course.Record{
		Timestamp:   "2024-01-01T00:00:00.000002",
		CourseCode:  "CS102",
		CourseName:  "Data Structures",
		Description: "Trees, graphs",
		HubUnits:    []string{"Critical Thinking"},
		Credits:     "4 cr",
		SourceURL:   "https://example.com",
	}
	if !reflect.DeepEqual(records[0], want) {
		t.Errorf("remaining record = %+v\nwant %+v", records[0], want)
	}

	// No temp files left behind
	entries, _ := os.ReadDir(filepath.Dir(store.Path()))
	if len(entries) != 1 {
		t.Errorf("data dir has %d entries, want only the store", len(entries))
	}
}

func TestDeleteByKey_NoMatch(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Merge([]*course.Record{rec("A", "a"), rec("B", "b")}); err != nil {
		t.Fatal(err)
	}
	before, _ := store.ReadAll()

	if ok := store.DeleteByKey("ZZZ"); !ok {
		t.Error("DeleteByKey() = false for unknown code, want true")
	}

	after, _ := store.ReadAll()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("store changed after deleting unknown code")
	}
}

func TestDeleteByKey_Failures(t *testing.T) {
	t.Run("missing store", func(t *testing.T) {
		store := newTestStore(t)
		if store.DeleteByKey("A") {
			t.Error("DeleteByKey() = true on missing store, want false")
		}
	})

	t.Run("unreadable store", func(t *testing.T) {
		store := newTestStore(t)
		if err := os.WriteFile(store.Path(), []byte("Timestamp\nx\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if store.DeleteByKey("A") {
			t.Error("DeleteByKey() = true on unreadable store, want false")
		}
	})
}

func TestMerge_ConcurrentWriters(t *testing.T) {
	store := newTestStore(t)

	batch := []*course.Record{rec("SAME", "same"), rec("ALSO", "also")}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Merge(batch); err != nil {
				t.Errorf("Merge() error = %v", err)
			}
		}()
	}
	wg.Wait()

	records, err := store.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("concurrent merges stored %d records, want 2", len(records))
	}
}

func TestReadAll_EmptyHubUnitsField(t *testing.T) {
	store := newTestStore(t)
	content := headerLine + "\n" +
		"2024-01-01T00:00:00.000001,CS101,Intro,Desc,,4 cr,https://example.com\n"
	if err := os.WriteFile(store.Path(), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	recs, err := store.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || len(recs[0].HubUnits) != 0 {
		t.Errorf("ReadAll() hub units = %v, want empty", recs[0].HubUnits)
	}
}
