package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList is a slice of strings stored as a JSON array in a text column,
// so the same schema works on Postgres and SQLite.
type StringList []string

// Scan is a GORM hook that scans a JSON array into a StringList.
func (s *StringList) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*s = StringList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal StringList value: %v", value)
	}

	if len(data) == 0 {
		*s = StringList{}
		return nil
	}

	var result []string
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}
	if result == nil {
		result = []string{}
	}
	*s = StringList(result)
	return nil
}

// Value is a GORM hook that returns the JSON value of a StringList.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
