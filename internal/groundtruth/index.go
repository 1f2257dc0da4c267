// Package groundtruth indexes a cover-song dataset by clique.
package groundtruth

import (
	"fmt"
	"strconv"

	"github.com/ricesearch/covereval/internal/pkg/errors"
)

// Index maps tracks to cliques and cliques to their member tracks.
// It is immutable after Build.
type Index struct {
	cliqueOf map[string]string
	members  map[string][]string
	rows     map[string]Row
	queries  []string
}

// Build indexes rows. Every row must carry a track id and a clique id;
// a track listed under two cliques is rejected. Repeated rows for the same
// track and clique are collapsed. Errors carry the 0-based index of the
// offending row in the "row" detail.
func Build(rows []Row) (*Index, error) {
	if len(rows) == 0 {
		return nil, errors.MalformedDatasetError("dataset has no rows")
	}
	for _, col := range []string{ColumnTrackID, ColumnCliqueID} {
		if _, ok := rows[0][col]; !ok {
			return nil, errors.MalformedDatasetError(fmt.Sprintf("required column %q is missing", col)).
				WithDetail("column", col)
		}
	}

	idx := &Index{
		cliqueOf: make(map[string]string, len(rows)),
		members:  make(map[string][]string),
		rows:     make(map[string]Row, len(rows)),
		queries:  make([]string, 0, len(rows)),
	}

	for i, row := range rows {
		pos := strconv.Itoa(i)
		track := row[ColumnTrackID]
		if track == "" {
			return nil, errors.MalformedDatasetError("null track id").WithDetail("row", pos)
		}
		clique := row[ColumnCliqueID]
		if clique == "" {
			return nil, errors.MalformedDatasetError(fmt.Sprintf("null clique id for track %s", track)).
				WithDetail("row", pos)
		}

		if prev, seen := idx.cliqueOf[track]; seen {
			if prev != clique {
				return nil, errors.MalformedDatasetError(
					fmt.Sprintf("track %s belongs to cliques %s and %s", track, prev, clique)).
					WithDetail("row", pos).
					WithDetail("track_id", track)
			}
			continue
		}

		idx.cliqueOf[track] = clique
		idx.members[clique] = append(idx.members[clique], track)
		idx.rows[track] = row
		idx.queries = append(idx.queries, track)
	}

	return idx, nil
}

// CliqueOf returns the clique of track.
func (x *Index) CliqueOf(track string) (string, bool) {
	c, ok := x.cliqueOf[track]
	return c, ok
}

// MembersOf returns the tracks of clique in dataset order. Unknown cliques
// have no members. The returned slice must not be modified.
func (x *Index) MembersOf(clique string) []string {
	return x.members[clique]
}

// CliqueMembers returns the members of track's clique, track included.
func (x *Index) CliqueMembers(track string) []string {
	c, ok := x.cliqueOf[track]
	if !ok {
		return nil
	}
	return x.members[c]
}

// MemberSet returns the members of track's clique as a set.
func (x *Index) MemberSet(track string) map[string]struct{} {
	members := x.CliqueMembers(track)
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set
}

// Queries returns every indexed track in dataset order.
func (x *Index) Queries() []string {
	out := make([]string, len(x.queries))
	copy(out, x.queries)
	return out
}

// Len returns the number of indexed tracks.
func (x *Index) Len() int {
	return len(x.queries)
}

// Cliques returns the number of distinct cliques.
func (x *Index) Cliques() int {
	return len(x.members)
}

// Title returns the title column of track.
func (x *Index) Title(track string) string {
	return x.rows[track][ColumnTitle]
}

// Attribute returns an arbitrary column of track.
func (x *Index) Attribute(track, column string) (string, bool) {
	row, ok := x.rows[track]
	if !ok {
		return "", false
	}
	v, ok := row[column]
	return v, ok && v != ""
}
