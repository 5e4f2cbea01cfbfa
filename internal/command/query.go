// Package command implements the ingestion wire protocol: the query
// codec, the listening server and the submitting client.
package command

import (
	"encoding/json"
	"fmt"

	"firestige.xyz/chronod/internal/task"
)

// QueryKind tags the wire union.
type QueryKind string

const (
	// QueryOk carries no payload; it doubles as the acknowledgement.
	QueryOk QueryKind = "Ok"
	// QueryNewTaskGroup carries a serialized task group.
	QueryNewTaskGroup QueryKind = "NewTaskGroup"
)

// Query is one wire document. Ok encodes as the bare string "Ok";
// NewTaskGroup as a single-key object {"NewTaskGroup": {...}}.
type Query struct {
	Kind  QueryKind
	Group *task.GroupConfig
}

func (q Query) MarshalJSON() ([]byte, error) {
	switch q.Kind {
	case QueryOk:
		return json.Marshal(string(QueryOk))
	case QueryNewTaskGroup:
		if q.Group == nil {
			return nil, fmt.Errorf("query %s: missing group payload", q.Kind)
		}
		return json.Marshal(map[string]*task.GroupConfig{
			string(QueryNewTaskGroup): q.Group,
		})
	default:
		return nil, fmt.Errorf("unknown query kind %q", q.Kind)
	}
}

func (q *Query) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag != string(QueryOk) {
			return fmt.Errorf("unknown query tag %q", tag)
		}
		*q = Query{Kind: QueryOk}
		return nil
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("malformed query: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("query must carry exactly one tag, got %d", len(tagged))
	}

	payload, ok := tagged[string(QueryNewTaskGroup)]
	if !ok {
		for tag := range tagged {
			return fmt.Errorf("unknown query tag %q", tag)
		}
	}

	var group task.GroupConfig
	if err := json.Unmarshal(payload, &group); err != nil {
		return fmt.Errorf("malformed task group: %w", err)
	}
	*q = Query{Kind: QueryNewTaskGroup, Group: &group}
	return nil
}
