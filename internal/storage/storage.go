package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jszwec/csvutil"
	"github.com/pfrederiksen/course-scraper/internal/course"
	"github.com/pfrederiksen/course-scraper/internal/logger"
)

// ErrStoreUnreadable is returned when the store exists but is not a valid course CSV
var ErrStoreUnreadable = errors.New("store unreadable")

// Header is the fixed column order of the store
var Header = []string{"Timestamp", "Course Code", "Course Name", "Description", "Hub Units", "Credits", "URL"}

// row is the on-disk shape of a course record; field order matches Header
type row struct {
	Timestamp   string `csv:"Timestamp"`
	CourseCode  string `csv:"Course Code"`
	CourseName  string `csv:"Course Name"`
	Description string `csv:"Description"`
	HubUnits    string `csv:"Hub Units"`
	Credits     string `csv:"Credits"`
	URL         string `csv:"URL"`
}

func toRow(r *course.Record) row {
	return row{
		Timestamp:   r.Timestamp,
		CourseCode:  r.CourseCode,
		CourseName:  r.CourseName,
		Description: r.Description,
		HubUnits:    r.HubUnitsText(),
		Credits:     r.Credits,
		URL:         r.SourceURL,
	}
}

func (r row) record() *course.Record {
	return &course.Record{
		Timestamp:   r.Timestamp,
		CourseCode:  r.CourseCode,
		CourseName:  r.CourseName,
		Description: r.Description,
		HubUnits:    course.SplitHubUnits(r.HubUnits),
		Credits:     r.Credits,
		SourceURL:   decodeURL(r.URL),
	}
}

// decodeURL turns HTML entities and percent escapes in a stored URL back into literal text
func decodeURL(s string) string {
	s = html.UnescapeString(s)
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return s
}

// MergeResult reports what a Merge call did with its batch
type MergeResult struct {
	Appended   int `json:"appended"`
	Duplicates int `json:"duplicates"`
}

// Store handles persistence of course records in a single CSV file
type Store struct {
	mu   sync.Mutex // single writer per store
	path string
}

// New creates a new Store for the CSV file at path.
// The file itself is created lazily by the first Merge.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Store{path: path}, nil
}

// Path returns the location of the CSV file
func (s *Store) Path() string {
	return s.path
}

// readRows loads every row. A missing file reports exists=false and no error.
// Callers must hold s.mu.
func (s *Store) readRows() (rows []row, exists bool, err error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("opening store: %w", err)
	}
	defer f.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: created but never written
			return nil, true, nil
		}
		return nil, true, fmt.Errorf("%w: reading header: %v", ErrStoreUnreadable, err)
	}
	dec.DisallowMissingColumns = true

	// Merge appends in Header order, so the columns must match exactly
	if !slices.Equal(dec.Header(), Header) {
		return nil, true, fmt.Errorf("%w: unexpected header %v", ErrStoreUnreadable, dec.Header())
	}

	if err := dec.Decode(&rows); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, true, nil
		}
		return nil, true, fmt.Errorf("%w: %v", ErrStoreUnreadable, err)
	}

	return rows, true, nil
}

// ExistingCodes returns the set of course codes already persisted
func (s *Store) ExistingCodes() (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, _, err := s.readRows()
	if err != nil {
		return nil, err
	}
	return codeSet(rows), nil
}

func codeSet(rows []row) map[string]struct{} {
	codes := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		codes[r.CourseCode] = struct{}{}
	}
	return codes
}

// Merge appends the records of batch whose course code is not yet stored.
// Records are considered in order, so only the first of several same-coded
// records in one batch is kept. Existing rows are never rewritten.
func (s *Store) Merge(batch []*course.Record) (MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result MergeResult

	rows, _, err := s.readRows()
	if err != nil {
		return result, fmt.Errorf("loading existing codes: %w", err)
	}
	existing := codeSet(rows)

	fresh := make([]row, 0, len(batch))
	for _, rec := range batch {
		if _, seen := existing[rec.CourseCode]; seen {
			result.Duplicates++
			continue
		}
		existing[rec.CourseCode] = struct{}{}
		fresh = append(fresh, toRow(rec))
	}

	needHeader := true
	if info, err := os.Stat(s.path); err == nil && info.Size() > 0 {
		needHeader = false
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return result, fmt.Errorf("opening store for append: %w", err)
	}

	if err := writeRows(f, fresh, needHeader); err != nil {
		f.Close() // nolint:errcheck
		return result, fmt.Errorf("appending records: %w", err)
	}
	if err := f.Close(); err != nil {
		return result, fmt.Errorf("closing store: %w", err)
	}

	result.Appended = len(fresh)
	return result, nil
}

// writeRows encodes rows to w, preceded by the header when requested
func writeRows(w io.Writer, rows []row, header bool) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = false

	if header {
		if err := enc.EncodeHeader(row{}); err != nil {
			return fmt.Errorf("encoding header: %w", err)
		}
	}
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding row %q: %w", r.CourseCode, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadAll returns every stored record in storage order.
// A store that does not exist yet yields an empty slice.
func (s *Store) ReadAll() ([]*course.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, _, err := s.readRows()
	if err != nil {
		return nil, err
	}

	records := make([]*course.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

// DeleteByKey removes every row whose course code equals courseCode and
// rewrites the store. Failures are logged and reported as false.
func (s *Store) DeleteByKey(courseCode string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.deleteByKey(courseCode)
	if err != nil {
		logger.Error("Failed to delete course", logger.Fields{
			"store":       s.path,
			"course_code": courseCode,
		}, err)
		return false
	}

	logger.Info("Deleted course", logger.Fields{
		"store":       s.path,
		"course_code": courseCode,
		"removed":     removed,
	})
	return true
}

func (s *Store) deleteByKey(courseCode string) (int, error) {
	rows, exists, err := s.readRows()
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("store %s does not exist", s.path)
	}

	kept := make([]row, 0, len(rows))
	for _, r := range rows {
		if r.CourseCode != courseCode {
			kept = append(kept, r)
		}
	}

	if err := s.replace(kept); err != nil {
		return 0, err
	}
	return len(rows) - len(kept), nil
}

// replace writes header and rows to a temporary file beside the store and
// renames it into place, so readers never observe a partial file
func (s *Store) replace(rows []row) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name()) // nolint:errcheck
		}
	}()

	if err = writeRows(tmp, rows, true); err != nil {
		tmp.Close() // nolint:errcheck
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close() // nolint:errcheck
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing store: %w", err)
	}
	return nil
}
