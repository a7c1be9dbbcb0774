// Package report encodes, renders and archives recommendation reports.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/arkilian/advisor/pkg/types"
)

// Encode returns the canonical JSON form of a report. Identical reports
// encode to identical bytes.
func Encode(r *types.RecommendationReport) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("report: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a report produced by Encode.
func Decode(data []byte) (*types.RecommendationReport, error) {
	var r types.RecommendationReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: decode: %w", err)
	}
	return &r, nil
}
