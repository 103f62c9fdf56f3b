package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	SearchURL   = "https://www.bu.edu/phpbin/course-search/search.php"
	DefaultTerm = "2024-SPRG"
	UserAgent   = "course-scraper/1.0 (github.com/pfrederiksen/course-scraper)"
	Timeout     = 30 * time.Second
)

// Selectors for the course search results markup
const (
	resultBlockSelector = "ul.coursearch-results"
	codeSelector        = "h6"
	nameSelector        = "h2"
	descriptionSelector = "div.coursearch-result-content-description"
	hubListSelector     = "ul.coursearch-result-hub-list"
)

var (
	// ErrFetchFailed is returned when the results page cannot be retrieved
	ErrFetchFailed = errors.New("fetch failed")

	// ErrMalformedRecord marks a result block lacking its course code or title
	ErrMalformedRecord = errors.New("malformed record")
)

// Scraper handles fetching and parsing course search results
type Scraper struct {
	client    *http.Client
	baseURL   string
	term      string
	userAgent string
	now       func() time.Time
}

// Option configures a Scraper
type Option func(*Scraper)

// WithBaseURL overrides the search endpoint
func WithBaseURL(u string) Option {
	return func(s *Scraper) { s.baseURL = u }
}

// WithTerm sets the academic term searched (e.g. "2024-SPRG")
func WithTerm(term string) Option {
	return func(s *Scraper) { s.term = term }
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) { s.client.Timeout = d }
}

// WithUserAgent sets the User-Agent header sent with each fetch
func WithUserAgent(ua string) Option {
	return func(s *Scraper) { s.userAgent = ua }
}

// WithClock replaces the clock used to stamp records
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) { s.now = now }
}

// New creates a new Scraper instance
func New(opts ...Option) *Scraper {
	s := &Scraper{
		client: &http.Client{
			Timeout: Timeout,
		},
		baseURL:   SearchURL,
		term:      DefaultTerm,
		userAgent: UserAgent,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildURL returns the advanced-search URL for a free-text query.
// Parameters are emitted in a fixed order and spaces in the query become '+'.
func (s *Scraper) BuildURL(query string) string {
	params := [][2]string{
		{"page", "w0"},
		{"pagesize", "-1"},
		{"adv", "1"},
		{"nolog", ""},
		{"search_adv_all", strings.ReplaceAll(query, " ", "+")},
		{"yearsem_adv", s.term},
		{"credits", "*"},
		{"pathway", ""},
		{"hub_match", "all"},
	}

	pairs := make([]string, 0, len(params))
	for _, p := range params {
		pairs = append(pairs, p[0]+"="+p[1])
	}
	return s.baseURL + "?" + strings.Join(pairs, "&")
}

// Fetch retrieves the raw results page at pageURL
func (s *Scraper) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching page: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrFetchFailed, err)
	}
	return body, nil
}

// Scrape fetches the results page for query and extracts its course records
func (s *Scraper) Scrape(ctx context.Context, query string) (*Batch, error) {
	pageURL := s.BuildURL(query)

	body, err := s.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	return s.Extract(bytes.NewReader(body), pageURL)
}
