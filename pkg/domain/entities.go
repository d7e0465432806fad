package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Document is the in-memory shape of application state: a JSON object whose
// fields are application-defined except for the reserved metadata fields
// (schema version, update timestamp).
type Document map[string]any

// Clone returns a deep copy of the document. Nested maps and slices are
// copied; scalar leaves are shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case Document:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Marshal serializes the document to its canonical JSON form. encoding/json
// emits map keys in sorted order, so two equal documents marshal identically.
func (d Document) Marshal() (string, error) {
	payload, err := json.Marshal(map[string]any(d))
	if err != nil {
		return "", fmt.Errorf("domain: marshal document: %w", err)
	}
	return string(payload), nil
}

// ParseDocument decodes a JSON object blob into a Document.
func ParseDocument(blob string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		return nil, fmt.Errorf("domain: parse document: %w", err)
	}
	return doc, nil
}

// SyncResult is the audit record produced by one reconciliation pass. It is
// reported to the caller and discarded, never persisted by the library.
type SyncResult struct {
	ID          uuid.UUID `json:"id"`
	State       Document  `json:"state"`
	HadConflict bool      `json:"had_conflict"`
	Strategy    string    `json:"strategy"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// RecordMeta captures identifiers and audit fields shared across persisted rows.
type RecordMeta struct {
	ID        uuid.UUID `bun:",pk,type:uuid" json:"id"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	DeletedAt time.Time `bun:",soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureID assigns a UUID when the struct is about to be persisted.
func (m *RecordMeta) EnsureID() {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
}

// StateRecord is the remote row model: one row per storage key holding the
// fully transformed blob exactly as it left the layer chain.
type StateRecord struct {
	bun.BaseModel `bun:"table:state_records"`

	RecordMeta
	Key      string  `bun:",notnull,unique" json:"key"`
	Blob     string  `bun:",notnull" json:"blob"`
	Metadata JSONMap `bun:",type:jsonb" json:"metadata,omitempty"`
}

// JSONMap persists arbitrary metadata fields as JSON.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if m == nil {
		return errors.New("JSONMap: Scan on nil pointer")
	}
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("JSONMap: unsupported type %T", value)
	}
}
