package groundtruth

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ricesearch/covereval/internal/pkg/errors"
)

// Column names understood by the index.
const (
	ColumnTrackID  = "track_id"
	ColumnCliqueID = "clique_id"
	ColumnTitle    = "title"
	ColumnArtistID = "artist_id"
)

// headerAliases maps dataset headers used by the SHS/MSD exports to the
// canonical column names.
var headerAliases = map[string]string{
	"msd_id":  ColumnTrackID,
	"work_id": ColumnCliqueID,
}

// Row represents a single dataset row with column name to value mapping.
type Row map[string]string

// LoadCSV reads a dataset CSV file. The first row is treated as headers.
func LoadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeMalformedDataset, fmt.Sprintf("open %s", path), err)
	}
	defer f.Close() //nolint:errcheck

	rows, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// ReadCSV reads dataset rows from r. Header aliases are normalized and an
// unnamed leading index column is ignored.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.CodeMalformedDataset, "parse csv", err)
	}

	if len(records) == 0 {
		return nil, errors.MalformedDatasetError("dataset is empty (no header row)")
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if canonical, ok := headerAliases[h]; ok {
			h = canonical
		}
		headers[i] = h
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != len(headers) {
			return nil, errors.MalformedDatasetError(
				fmt.Sprintf("row %d has %d columns, expected %d", i+2, len(record), len(headers)))
		}
		row := make(Row, len(headers))
		for j, h := range headers {
			if h == "" {
				continue
			}
			row[h] = strings.TrimSpace(record[j])
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// BuildFromCSV indexes rows read by ReadCSV. Errors additionally carry the
// 1-based file line of the offending row, counting the header, in the
// "line" detail.
func BuildFromCSV(rows []Row) (*Index, error) {
	idx, err := Build(rows)
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			if pos, convErr := strconv.Atoi(appErr.Details["row"]); convErr == nil {
				appErr.WithDetail("line", strconv.Itoa(pos+2))
			}
		}
		return nil, err
	}
	return idx, nil
}
