package groundtruth

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ricesearch/covereval/internal/pkg/errors"
)

const sampleCSV = `,msd_id,work_id,title,artist_id
0,T1,W1,Yesterday,A1
1,T2,W1,Yesterday (live),A2
2,T3,W1,Yesterday,A3
3,T4,W2,Hallelujah,A4
`

func TestReadCSV_Aliases(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("len(rows) = %d, want 4", len(rows))
	}
	if rows[0][ColumnTrackID] != "T1" || rows[0][ColumnCliqueID] != "W1" {
		t.Errorf("aliases not applied: %v", rows[0])
	}
	if _, ok := rows[0][""]; ok {
		t.Error("unnamed index column should be dropped")
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"ragged", "track_id,clique_id\nT1,W1,extra\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			if !errors.IsMalformedDataset(err) {
				t.Errorf("ReadCSV() error = %v, want malformed dataset", err)
			}
		})
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shs.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	rows, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV() error = %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("len(rows) = %d, want 4", len(rows))
	}

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.IsMalformedDataset(err) {
		t.Errorf("LoadCSV(missing) error = %v, want malformed dataset", err)
	}
}

func TestBuild(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	idx, err := Build(rows)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if c, ok := idx.CliqueOf("T2"); !ok || c != "W1" {
		t.Errorf("CliqueOf(T2) = %q, %v", c, ok)
	}
	if _, ok := idx.CliqueOf("nope"); ok {
		t.Error("CliqueOf(unknown) should report false")
	}
	if got := idx.MembersOf("W1"); !reflect.DeepEqual(got, []string{"T1", "T2", "T3"}) {
		t.Errorf("MembersOf(W1) = %v", got)
	}
	if got := idx.MembersOf("W9"); len(got) != 0 {
		t.Errorf("MembersOf(unknown) = %v, want empty", got)
	}
	if got := idx.CliqueMembers("T4"); !reflect.DeepEqual(got, []string{"T4"}) {
		t.Errorf("CliqueMembers(T4) = %v", got)
	}
	if got := idx.Queries(); !reflect.DeepEqual(got, []string{"T1", "T2", "T3", "T4"}) {
		t.Errorf("Queries() = %v", got)
	}
	if idx.Cliques() != 2 {
		t.Errorf("Cliques() = %d, want 2", idx.Cliques())
	}
	if idx.Title("T4") != "Hallelujah" {
		t.Errorf("Title(T4) = %q", idx.Title("T4"))
	}
	if a, ok := idx.Attribute("T3", ColumnArtistID); !ok || a != "A3" {
		t.Errorf("Attribute(T3, artist_id) = %q, %v", a, ok)
	}
	if _, ok := idx.MemberSet("T1")["T3"]; !ok {
		t.Error("MemberSet(T1) should contain T3")
	}
}

func TestBuild_Malformed(t *testing.T) {
	tests := []struct {
		name string
		rows []Row
	}{
		{"no rows", nil},
		{"missing clique column", []Row{{"track_id": "T1", "title": "x"}}},
		{"missing track column", []Row{{"clique_id": "W1"}}},
		{"null track id", []Row{{"track_id": "", "clique_id": "W1"}}},
		{"null clique id", []Row{{"track_id": "T1", "clique_id": ""}}},
		{"conflicting clique", []Row{
			{"track_id": "T1", "clique_id": "W1"},
			{"track_id": "T1", "clique_id": "W2"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.rows)
			if !errors.IsMalformedDataset(err) {
				t.Errorf("Build() error = %v, want malformed dataset", err)
			}
		})
	}
}

func TestBuild_RepeatedRowCollapsed(t *testing.T) {
	idx, err := Build([]Row{
		{"track_id": "T1", "clique_id": "W1"},
		{"track_id": "T1", "clique_id": "W1"},
		{"track_id": "T2", "clique_id": "W1"},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := idx.MembersOf("W1"); !reflect.DeepEqual(got, []string{"T1", "T2"}) {
		t.Errorf("MembersOf(W1) = %v", got)
	}
	if idx.Len() != 2 {
		t.Errorf("Len() = %d, want 2", idx.Len())
	}
}

func TestBuild_ErrorPosition(t *testing.T) {
	rows := []Row{
		{"track_id": "T1", "clique_id": "W1"},
		{"track_id": "T2", "clique_id": "W1"},
		{"track_id": "T1", "clique_id": "W2"},
	}

	_, err := Build(rows)
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		t.Fatalf("Build() error = %v, want *AppError", err)
	}
	if appErr.Details["row"] != "2" {
		t.Errorf("row = %q, want 2", appErr.Details["row"])
	}
	if _, ok := appErr.Details["line"]; ok {
		t.Error("Build() should not report a file line")
	}

	csvRows, err := ReadCSV(strings.NewReader("track_id,clique_id\nT1,W1\nT2,W1\nT1,W2\n"))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	_, err = BuildFromCSV(csvRows)
	if !stderrors.As(err, &appErr) {
		t.Fatalf("BuildFromCSV() error = %v, want *AppError", err)
	}
	if appErr.Details["row"] != "2" || appErr.Details["line"] != "4" {
		t.Errorf("details = %v, want row 2 line 4", appErr.Details)
	}
}
