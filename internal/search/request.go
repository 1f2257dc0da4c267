// Package search defines the request and searcher contracts used to obtain
// ranked candidate lists from a similarity backend.
package search

import (
	"fmt"
	"strings"

	"github.com/ricesearch/covereval/internal/pkg/errors"
)

// DefaultSize is the default number of candidates requested per query.
const DefaultSize = 100

// EvidenceSource names the representation a search compares tracks by.
type EvidenceSource int

const (
	SourceTitle EvidenceSource = iota
	SourceCleanTitle
	SourceLyricsDeezer
	SourceLyricsMXM
	SourceCredits
	SourceAudio
)

var sourceNames = [...]string{
	SourceTitle:        "title",
	SourceCleanTitle:   "title_clean",
	SourceLyricsDeezer: "lyrics_dzr",
	SourceLyricsMXM:    "lyrics_mxm",
	SourceCredits:      "credits",
	SourceAudio:        "audio",
}

// String returns the source name.
func (s EvidenceSource) String() string {
	if s < 0 || int(s) >= len(sourceNames) {
		return fmt.Sprintf("EvidenceSource(%d)", int(s))
	}
	return sourceNames[s]
}

// Vector returns the backend vector name holding this source's embedding.
// Credits searches compare titles among credited tracks.
func (s EvidenceSource) Vector() string {
	if s == SourceCredits {
		return SourceTitle.String()
	}
	return s.String()
}

// ParseEvidenceSource parses a source name.
func ParseEvidenceSource(name string) (EvidenceSource, error) {
	for i, n := range sourceNames {
		if n == name {
			return EvidenceSource(i), nil
		}
	}
	return 0, errors.ValidationError(fmt.Sprintf("unknown evidence source %q", name))
}

// QueryMode selects how the query text constrains candidates.
type QueryMode int

const (
	// ModeSimpleQuery ranks every candidate by similarity to the query track.
	ModeSimpleQuery QueryMode = iota
	// ModeQueryString additionally requires candidate titles to contain the
	// query title terms.
	ModeQueryString
)

// String returns the mode name.
func (m QueryMode) String() string {
	switch m {
	case ModeSimpleQuery:
		return "simple_query"
	case ModeQueryString:
		return "query_string"
	default:
		return fmt.Sprintf("QueryMode(%d)", int(m))
	}
}

// ParseQueryMode parses a mode name. An empty name selects ModeSimpleQuery.
func ParseQueryMode(name string) (QueryMode, error) {
	switch name {
	case "", "simple_query":
		return ModeSimpleQuery, nil
	case "query_string":
		return ModeQueryString, nil
	default:
		return 0, errors.ValidationError(fmt.Sprintf("unknown query mode %q", name))
	}
}

// Filters restricts the candidate pool.
type Filters struct {
	// SHSOnly keeps candidates that belong to the SecondHandSongs subset.
	SHSOnly bool `json:"shs_only" yaml:"shs_only"`
	// ExcludeDuplicates drops candidates flagged as official duplicates.
	ExcludeDuplicates bool `json:"exclude_duplicates" yaml:"exclude_duplicates"`
	// DeezerMapped keeps candidates that have a Deezer mapping.
	DeezerMapped bool `json:"deezer_mapped" yaml:"deezer_mapped"`
}

// String renders the active filters.
func (f Filters) String() string {
	var parts []string
	if f.SHSOnly {
		parts = append(parts, "shs_only")
	}
	if f.ExcludeDuplicates {
		parts = append(parts, "no_duplicates")
	}
	if f.DeezerMapped {
		parts = append(parts, "deezer_mapped")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// Request is an immutable search request. Build one with NewRequest and
// derive variants with the With methods; each returns a new value.
type Request struct {
	query       string
	title       string
	source      EvidenceSource
	mode        QueryMode
	size        int
	filters     Filters
	roleType    string
	roleArtists []string
	fields      []string
}

// NewRequest creates a request for the query track over source.
func NewRequest(query string, source EvidenceSource) Request {
	return Request{
		query:  query,
		source: source,
		size:   DefaultSize,
	}
}

// WithTitle sets the query title used by ModeQueryString.
func (r Request) WithTitle(title string) Request {
	r.title = title
	return r
}

// WithSource switches the evidence source.
func (r Request) WithSource(source EvidenceSource) Request {
	r.source = source
	return r
}

// WithMode sets the query mode.
func (r Request) WithMode(mode QueryMode) Request {
	r.mode = mode
	return r
}

// WithSize sets the number of candidates to return.
func (r Request) WithSize(size int) Request {
	r.size = size
	return r
}

// WithFilters sets the candidate filters.
func (r Request) WithFilters(f Filters) Request {
	r.filters = f
	return r
}

// WithRoles restricts candidates to tracks crediting one of artists in
// roleType (e.g. Composer).
func (r Request) WithRoles(roleType string, artists []string) Request {
	r.roleType = roleType
	r.roleArtists = append([]string(nil), artists...)
	return r
}

// WithFields asks for payload fields to be returned with each candidate.
func (r Request) WithFields(fields ...string) Request {
	r.fields = append(append([]string(nil), r.fields...), fields...)
	return r
}

func (r Request) Query() string          { return r.query }
func (r Request) Title() string          { return r.title }
func (r Request) Source() EvidenceSource { return r.source }
func (r Request) Mode() QueryMode        { return r.mode }
func (r Request) Size() int              { return r.size }
func (r Request) Filters() Filters       { return r.filters }
func (r Request) RoleType() string       { return r.roleType }

// RoleArtists returns a copy of the credited artists.
func (r Request) RoleArtists() []string {
	return append([]string(nil), r.roleArtists...)
}

// Fields returns a copy of the requested payload fields.
func (r Request) Fields() []string {
	return append([]string(nil), r.fields...)
}

// Validate checks the request is executable.
func (r Request) Validate() error {
	var errs []string
	if r.query == "" {
		errs = append(errs, "query track id is required")
	}
	if r.size <= 0 {
		errs = append(errs, fmt.Sprintf("size must be positive, got %d", r.size))
	}
	if r.source < 0 || int(r.source) >= len(sourceNames) {
		errs = append(errs, fmt.Sprintf("unknown evidence source %d", int(r.source)))
	}
	if r.mode == ModeQueryString && strings.TrimSpace(r.title) == "" {
		errs = append(errs, "query_string mode needs a title")
	}
	if r.source == SourceCredits && (r.roleType == "" || len(r.roleArtists) == 0) {
		errs = append(errs, "credits search needs a role type and credited artists")
	}
	if len(errs) > 0 {
		return errors.ValidationError("invalid search request: " + strings.Join(errs, "; "))
	}
	return nil
}

// String renders the request for logs.
func (r Request) String() string {
	return fmt.Sprintf("query=%s source=%s mode=%s size=%d filters=%s", r.query, r.source, r.mode, r.size, r.filters)
}
