package handle

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
)

// Artifacts are NDJSON: a header line with the column names, then one
// JSON array per row. The format is append-then-publish; an artifact is
// only referenced by a handle after the final byte is written.

type artifactHeader struct {
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

func encodeArtifact(columns []string, rows [][]interface{}) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	if err := enc.Encode(artifactHeader{Columns: columns, Rows: len(rows)}); err != nil {
		return nil, fmt.Errorf("encoding artifact header: %w", err)
	}
	for i, row := range rows {
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("encoding row %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// decodeArtifact reads the header and the rows in [offset, offset+count).
// count < 0 means all remaining rows.
func decodeArtifact(data []byte, offset, count int) (artifactHeader, [][]interface{}, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return artifactHeader{}, nil, fmt.Errorf("artifact is empty")
	}
	var header artifactHeader
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return artifactHeader{}, nil, fmt.Errorf("decoding artifact header: %w", err)
	}

	var rows [][]interface{}
	line := 0
	for scanner.Scan() {
		if line >= offset && (count < 0 || len(rows) < count) {
			var row []interface{}
			if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
				return artifactHeader{}, nil, fmt.Errorf("decoding row %d: %w", line, err)
			}
			rows = append(rows, row)
		}
		line++
		if count >= 0 && len(rows) >= count {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return artifactHeader{}, nil, fmt.Errorf("reading artifact: %w", err)
	}

	return header, rows, nil
}
