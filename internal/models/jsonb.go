package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONB is an opaque JSON document stored as a single column. Strategy
// parameters and filter-param overrides flow through the system as JSONB
// so the catalog and the parameter channel never need to know the shape of
// a specific filter's tunables.
type JSONB map[string]interface{}

// Value converts JSONB to a database value.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan converts a database value back to JSONB.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return errors.New("JSONB: unsupported scan source, expected []byte or string")
		}
		bytes = []byte(s)
	}

	return json.Unmarshal(bytes, j)
}

// IntList is a JSON-encoded array of ints, used for Execution.SelectedStrategyIDs.
type IntList []int

func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

func (l *IntList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return errors.New("IntList: unsupported scan source, expected []byte or string")
		}
		bytes = []byte(s)
	}

	if len(bytes) == 0 {
		*l = nil
		return nil
	}

	return json.Unmarshal(bytes, l)
}

// StringList is a JSON-encoded array of strings, used for Execution.Errors.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return errors.New("StringList: unsupported scan source, expected []byte or string")
		}
		bytes = []byte(s)
	}

	if len(bytes) == 0 {
		*l = nil
		return nil
	}

	return json.Unmarshal(bytes, l)
}
