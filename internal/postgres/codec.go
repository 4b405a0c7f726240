package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/attendance-mainframe/internal/domain"
)

// Row codecs for the legacy TEXT encodings: attendance is a JSON array
// stored as text, dates are RFC3339 text, and a profile with no prior
// attendance stores the literal string "null" rather than a true NULL.

const nullSentinel = "null"

func encodeAttendance(attendance []int64) (string, error) {
	data, err := json.Marshal(attendance)
	if err != nil {
		return "", fmt.Errorf("encoding attendance: %w", err)
	}
	return string(data), nil
}

func decodeAttendance(raw string) ([]int64, error) {
	var attendance []int64
	if err := json.Unmarshal([]byte(raw), &attendance); err != nil {
		return nil, fmt.Errorf("%w: attendance %q: %v", domain.ErrCorruptRow, raw, err)
	}
	return attendance, nil
}

func encodeDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeDate(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", domain.ErrCorruptRow, raw, err)
	}
	return t.UTC(), nil
}

func encodeOptionalDate(t *time.Time) string {
	if t == nil {
		return nullSentinel
	}
	return encodeDate(*t)
}

func decodeOptionalDate(raw string) (*time.Time, error) {
	if raw == nullSentinel {
		return nil, nil
	}
	t, err := decodeDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeMetadata(metadata map[string]map[string]string) (*string, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	s := string(data)
	return &s, nil
}

func decodeMetadata(raw *string) (map[string]map[string]string, error) {
	if raw == nil {
		return nil, nil
	}
	var metadata map[string]map[string]string
	if err := json.Unmarshal([]byte(*raw), &metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata %q: %v", domain.ErrCorruptRow, *raw, err)
	}
	return metadata, nil
}
