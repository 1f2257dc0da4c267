// Package experiment runs cover-song retrieval methods over a ground-truth
// query set and produces the resulting collections of ranked responses.
package experiment

import (
	"fmt"

	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/search"
)

// Split selects the ground-truth partition to evaluate.
type Split int

const (
	SplitTrain Split = iota
	SplitTest
)

// String returns the split name.
func (s Split) String() string {
	switch s {
	case SplitTrain:
		return "train"
	case SplitTest:
		return "test"
	default:
		return fmt.Sprintf("Split(%d)", int(s))
	}
}

// ParseSplit parses a split name.
func ParseSplit(name string) (Split, error) {
	switch name {
	case "train":
		return SplitTrain, nil
	case "test":
		return SplitTest, nil
	default:
		return 0, errors.ValidationError(fmt.Sprintf("unknown mode %q (must be train or test)", name))
	}
}

// Profile is a named combination of candidate filters.
type Profile int

const (
	ProfileMSD Profile = iota
	ProfileMSDNoDup
	ProfileDeezer
	ProfileSHS
	ProfileSHSNoDup
)

var profileNames = [...]string{
	ProfileMSD:      "msd",
	ProfileMSDNoDup: "msd_no_dup",
	ProfileDeezer:   "dzr_msd",
	ProfileSHS:      "shs",
	ProfileSHSNoDup: "shs_no_dup",
}

// String returns the profile name.
func (p Profile) String() string {
	if p < 0 || int(p) >= len(profileNames) {
		return fmt.Sprintf("Profile(%d)", int(p))
	}
	return profileNames[p]
}

// Filters returns the search filters the profile applies.
func (p Profile) Filters() search.Filters {
	switch p {
	case ProfileMSDNoDup:
		return search.Filters{ExcludeDuplicates: true}
	case ProfileDeezer:
		return search.Filters{DeezerMapped: true, ExcludeDuplicates: true}
	case ProfileSHS:
		return search.Filters{SHSOnly: true}
	case ProfileSHSNoDup:
		return search.Filters{SHSOnly: true, ExcludeDuplicates: true}
	default:
		return search.Filters{}
	}
}

// WithoutDuplicates returns the variant of p that also drops official
// duplicates.
func (p Profile) WithoutDuplicates() Profile {
	switch p {
	case ProfileMSD:
		return ProfileMSDNoDup
	case ProfileSHS:
		return ProfileSHSNoDup
	default:
		return p
	}
}

// ParseProfile parses a profile name.
func ParseProfile(name string) (Profile, error) {
	for i, n := range profileNames {
		if n == name {
			return Profile(i), nil
		}
	}
	return 0, errors.ValidationError(fmt.Sprintf("unknown profile %q", name))
}

// Method is a retrieval strategy producing one ranked response per query.
type Method int

const (
	MethodTitle Method = iota
	MethodCleanTitle
	MethodMXMLyrics
	MethodDeezerLyrics
	MethodTitleMXMLyrics
	MethodCleanTitleMXMLyrics
	MethodTitleDeezerLyrics
	MethodTitleArtistRerank
	MethodCredits
	MethodTitleCredits
	MethodTitleMXMLyricsRRF
)

var methodNames = [...]string{
	MethodTitle:               "msd_title",
	MethodCleanTitle:          "pre-msd_title",
	MethodMXMLyrics:           "mxm_lyrics",
	MethodDeezerLyrics:        "dzr_lyrics",
	MethodTitleMXMLyrics:      "title_mxm_lyrics",
	MethodCleanTitleMXMLyrics: "pre-title_mxm_lyrics",
	MethodTitleDeezerLyrics:   "title_dzr_lyrics",
	MethodTitleArtistRerank:   "title_artist_rerank",
	MethodCredits:             "credits",
	MethodTitleCredits:        "title_credits",
	MethodTitleMXMLyricsRRF:   "title_mxm_lyrics_rrf",
}

// String returns the method name.
func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod parses a method name.
func ParseMethod(name string) (Method, error) {
	for i, n := range methodNames {
		if n == name {
			return Method(i), nil
		}
	}
	return 0, errors.ValidationError(fmt.Sprintf("unknown method %q", name))
}

// ParseMethods parses a list of method names.
func ParseMethods(names []string) ([]Method, error) {
	methods := make([]Method, 0, len(names))
	for _, name := range names {
		m, err := ParseMethod(name)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, nil
}

// Methods returns every method in declaration order.
func Methods() []Method {
	methods := make([]Method, len(methodNames))
	for i := range methodNames {
		methods[i] = Method(i)
	}
	return methods
}

// primary returns the evidence source of the method's first search.
func (m Method) primary() search.EvidenceSource {
	switch m {
	case MethodCleanTitle, MethodCleanTitleMXMLyrics:
		return search.SourceCleanTitle
	case MethodMXMLyrics:
		return search.SourceLyricsMXM
	case MethodDeezerLyrics:
		return search.SourceLyricsDeezer
	case MethodCredits:
		return search.SourceCredits
	default:
		return search.SourceTitle
	}
}

// secondary returns the evidence source fused into the primary response,
// if any.
func (m Method) secondary() (search.EvidenceSource, bool) {
	switch m {
	case MethodTitleMXMLyrics, MethodCleanTitleMXMLyrics, MethodTitleMXMLyricsRRF:
		return search.SourceLyricsMXM, true
	case MethodTitleDeezerLyrics:
		return search.SourceLyricsDeezer, true
	case MethodTitleCredits:
		return search.SourceCredits, true
	default:
		return 0, false
	}
}
