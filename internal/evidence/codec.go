// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package evidence

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/cite-engine/pkg/types"
)

// MarshalRecords encodes records as a YAML list. Optional fields that are
// unknown are omitted.
func MarshalRecords(records []types.EvidenceRecord) ([]byte, error) {
	if records == nil {
		records = []types.EvidenceRecord{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encoding evidence records: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding evidence records: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalRecords decodes a YAML list of records, rejecting unknown
// fields and records that fail validation.
func UnmarshalRecords(data []byte) ([]types.EvidenceRecord, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var records []types.EvidenceRecord
	if err := dec.Decode(&records); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding evidence records: %w", err)
	}
	for _, r := range records {
		if err := types.Validate(r); err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID, err)
		}
	}
	return records, nil
}
