package vecindex

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Filter scopes a vector search or delete through payload predicates.
// Zero-valued fields are not applied. At least one of MeetingID, OwnerID, or
// DocumentID must be set.
type Filter struct {
	MeetingID  int64
	OwnerID    int64
	DocumentID int64
	// Kinds restricts to the given source kinds (transcript, upload).
	Kinds []string
	// IndexVersion restricts to vectors written at this index version.
	IndexVersion int
	// ExcludeMeetingID drops one meeting from cross-meeting searches.
	ExcludeMeetingID int64
}

// scoped reports whether the filter pins at least one tenant dimension.
func (f Filter) scoped() bool {
	return f.MeetingID != 0 || f.OwnerID != 0 || f.DocumentID != 0
}

// clauses renders the filter as a SQL predicate over the payload column,
// appending bind values to args. Placeholders continue from len(args)+1 so
// the caller can pre-seed positional arguments.
//
// Equality predicates use jsonb containment (payload @> ...) to hit the GIN
// jsonb_path_ops index.
func (f Filter) clauses(args []any) (string, []any, error) {
	if !f.scoped() {
		return "", nil, ErrUnscopedFilter
	}

	var preds []string
	contain := func(key string, value any) error {
		doc, err := json.Marshal(map[string]any{key: value})
		if err != nil {
			return fmt.Errorf("marshaling %s predicate: %w", key, err)
		}
		args = append(args, doc)
		preds = append(preds, fmt.Sprintf("payload @> $%d", len(args)))
		return nil
	}

	if f.MeetingID != 0 {
		if err := contain("meeting_id", f.MeetingID); err != nil {
			return "", nil, err
		}
	}
	if f.OwnerID != 0 {
		if err := contain("owner_id", f.OwnerID); err != nil {
			return "", nil, err
		}
	}
	if f.DocumentID != 0 {
		if err := contain("document_id", f.DocumentID); err != nil {
			return "", nil, err
		}
	}
	if f.IndexVersion != 0 {
		if err := contain("index_version", f.IndexVersion); err != nil {
			return "", nil, err
		}
	}

	switch len(f.Kinds) {
	case 0:
	case 1:
		if err := contain("kind", f.Kinds[0]); err != nil {
			return "", nil, err
		}
	default:
		args = append(args, f.Kinds)
		preds = append(preds, fmt.Sprintf("payload->>'kind' = ANY($%d)", len(args)))
	}

	if f.ExcludeMeetingID != 0 {
		doc, err := json.Marshal(map[string]any{"meeting_id": f.ExcludeMeetingID})
		if err != nil {
			return "", nil, fmt.Errorf("marshaling exclusion predicate: %w", err)
		}
		args = append(args, doc)
		preds = append(preds, fmt.Sprintf("NOT (payload @> $%d)", len(args)))
	}

	return strings.Join(preds, " AND "), args, nil
}
