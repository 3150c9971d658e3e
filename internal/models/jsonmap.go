package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BoolMap is a JSONB object mapping user ids (as decimal strings) to booleans.
type BoolMap map[string]bool

func (m BoolMap) Value() (driver.Value, error) { return marshalMap(m) }

func (m *BoolMap) Scan(src interface{}) error { return scanMap(src, m) }

// IntMap is a JSONB object mapping user ids to integers.
type IntMap map[string]int

func (m IntMap) Value() (driver.Value, error) { return marshalMap(m) }

func (m *IntMap) Scan(src interface{}) error { return scanMap(src, m) }

// TimeMap is a JSONB object mapping user ids to timestamps.
type TimeMap map[string]time.Time

func (m TimeMap) Value() (driver.Value, error) { return marshalMap(m) }

func (m *TimeMap) Scan(src interface{}) error { return scanMap(src, m) }

// RawMap is a JSONB object mapping user ids to opaque JSON documents.
type RawMap map[string]json.RawMessage

func (m RawMap) Value() (driver.Value, error) { return marshalMap(m) }

func (m *RawMap) Scan(src interface{}) error { return scanMap(src, m) }

func marshalMap(m interface{}) (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func scanMap(src interface{}, dst interface{}) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}
