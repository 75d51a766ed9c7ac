package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adityalohuni/tabcart/internal/catalog"
)

// DefaultKey is the slot key holding the catalog record.
const DefaultKey = "items"

var ErrMalformedRecord = errors.New("persist: malformed record")

// Record is the value stored in the slot. Origin identifies the tab that
// wrote it.
type Record struct {
	Origin string           `json:"tabID,omitempty"`
	Items  catalog.Snapshot `json:"items"`
}

func Encode(r Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("persist: encode record: %w", err)
	}
	return data, nil
}

// Decode parses a slot value. The items field is required; a null items
// array yields an empty snapshot.
func Decode(data []byte) (Record, error) {
	var raw struct {
		Origin string          `json:"tabID"`
		Items  json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if raw.Items == nil {
		return Record{}, fmt.Errorf("%w: missing items", ErrMalformedRecord)
	}
	var items catalog.Snapshot
	if err := json.Unmarshal(raw.Items, &items); err != nil {
		return Record{}, fmt.Errorf("%w: items: %v", ErrMalformedRecord, err)
	}
	return Record{Origin: raw.Origin, Items: items}, nil
}

// SameItems reports whether a and b encode to the same canonical JSON.
// Origins are not compared.
func SameItems(a, b catalog.Snapshot) bool {
	ea, err := json.Marshal(a)
	if err != nil {
		return false
	}
	eb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// Origin returns the tabID of a stored record without decoding its items.
// Values that are not records yield "".
func Origin(data []byte) string {
	var head struct {
		Origin string `json:"tabID"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return ""
	}
	return head.Origin
}
