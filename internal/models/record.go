package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeRecord decodes a JSON object, keeping numbers as json.Number so
// integer ids and amounts round-trip exactly.
func DecodeRecord(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var record map[string]interface{}
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("record is not a JSON object")
	}
	return record, nil
}
