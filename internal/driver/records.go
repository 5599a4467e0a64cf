package driver

import (
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/graphdiff/internal/core/model"
)

// timeLayout is fixed width so stored times sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders ts in the stored time layout.
func FormatTime(ts model.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Time().UTC().Format(timeLayout)
}

func stringValue(rec *neo4j.Record, key string) (string, error) {
	v, isNil, err := neo4j.GetRecordValue[string](rec, key)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", key, err)
	}
	if isNil {
		return "", nil
	}
	return v, nil
}

func optionalString(rec *neo4j.Record, key string) (*string, error) {
	raw, ok := rec.Get(key)
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case string:
		return &v, nil
	case bool, int64, float64:
		s := fmt.Sprint(v)
		return &s, nil
	default:
		return nil, fmt.Errorf("column %s: unexpected type %T", key, raw)
	}
}

func timestampValue(rec *neo4j.Record, key string) (model.Timestamp, error) {
	raw, ok := rec.Get(key)
	if !ok || raw == nil {
		return model.Timestamp{}, nil
	}
	switch v := raw.(type) {
	case string:
		if v == "" {
			return model.Timestamp{}, nil
		}
		return model.ParseTimestamp(v)
	case time.Time:
		return model.NewTimestamp(v), nil
	default:
		return model.Timestamp{}, fmt.Errorf("column %s: unexpected type %T", key, raw)
	}
}

func statusValue(rec *neo4j.Record, key string) (model.EdgeStatus, error) {
	s, err := stringValue(rec, key)
	if err != nil || s == "" {
		return "", err
	}
	// unknown statuses are left for the parser to reject with the path attached
	return model.EdgeStatus(s), nil
}
