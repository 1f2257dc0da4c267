package qdrant

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxTrackLine bounds one JSON line of a catalogue file.
const maxTrackLine = 16 << 20

// ScanTracks decodes a JSON-lines catalogue, calling fn for every valid
// track. Blank lines are skipped; the first undecodable or invalid line
// stops the scan with its line number.
func ScanTracks(r io.Reader, fn func(Track) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxTrackLine)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var t Track
		if err := json.Unmarshal([]byte(text), &t); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// VectorDims collects the dimension of every named vector across tracks.
type VectorDims map[string]uint64

// Add records the vectors of t. A name seen with two dimensions is an error.
func (d VectorDims) Add(t Track) error {
	for name, v := range t.Vectors {
		size := uint64(len(v))
		if prev, ok := d[name]; ok && prev != size {
			return fmt.Errorf("track %s: vector %s has %d dimensions, expected %d", t.TrackID, name, size, prev)
		}
		d[name] = size
	}
	return nil
}
