// internal/outbox/outbox.go
//
// Package outbox opisuje operacje czekające na potwierdzenie przez zdalny magazyn.
// Każdy wariant jest osobnym typem, więc dispatch w syncerze to type switch,
// a nie porównywanie stringów table_name/operation_type.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bartek5186/pos2cloud/internal/model"
)

type Table string

const (
	TableProducts Table = "products"
	TableHistory  Table = "product_history"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Op: zamknięta suma wariantów operacji.
type Op interface {
	Table() Table
	Kind() Kind
	RecordID() string
	sealed()
}

// ProductUpsert niesie pełny rekord; insert i update różnią się tylko Kind.
type ProductUpsert struct {
	Product model.Product
	Insert  bool
}

// ProductStock: częściowa aktualizacja ograniczona do {id, quantity}.
type ProductStock struct {
	ID        string    `json:"id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
	Origin    string    `json:"origin,omitempty"`
}

type ProductDelete struct {
	ID string `json:"id"`
}

type HistoryUpsert struct {
	Entry model.HistoryEntry
}

type HistoryDelete struct {
	ID string `json:"id"`
}

func (ProductUpsert) Table() Table { return TableProducts }
func (o ProductUpsert) Kind() Kind {
	if o.Insert {
		return KindInsert
	}
	return KindUpdate
}
func (o ProductUpsert) RecordID() string { return o.Product.ID }
func (ProductUpsert) sealed()            {}

func (ProductStock) Table() Table       { return TableProducts }
func (ProductStock) Kind() Kind         { return KindUpdate }
func (o ProductStock) RecordID() string { return o.ID }
func (ProductStock) sealed()            {}

func (ProductDelete) Table() Table       { return TableProducts }
func (ProductDelete) Kind() Kind         { return KindDelete }
func (o ProductDelete) RecordID() string { return o.ID }
func (ProductDelete) sealed()            {}

func (HistoryUpsert) Table() Table       { return TableHistory }
func (HistoryUpsert) Kind() Kind         { return KindInsert }
func (o HistoryUpsert) RecordID() string { return o.Entry.ID }
func (HistoryUpsert) sealed()            {}

func (HistoryDelete) Table() Table       { return TableHistory }
func (HistoryDelete) Kind() Kind         { return KindDelete }
func (o HistoryDelete) RecordID() string { return o.ID }
func (HistoryDelete) sealed()            {}

// Encode zwraca payload JSON zapisywany w kolumnie data.
func Encode(op Op) (string, error) {
	var v any
	switch o := op.(type) {
	case ProductUpsert:
		v = o.Product
	case ProductStock:
		v = o
	case ProductDelete:
		v = o
	case HistoryUpsert:
		v = o.Entry
	case HistoryDelete:
		v = o
	default:
		return "", fmt.Errorf("outbox: unknown op %T", op)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("outbox: encode %s/%s: %w", op.Table(), op.Kind(), err)
	}
	return string(b), nil
}

// Decode odtwarza wariant z wiersza pending_operations.
func Decode(table, kind, recordID, payload string) (Op, error) {
	switch Table(table) {
	case TableProducts:
		switch Kind(kind) {
		case KindDelete:
			return ProductDelete{ID: recordID}, nil
		case KindInsert, KindUpdate:
			var keys map[string]json.RawMessage
			if err := json.Unmarshal([]byte(payload), &keys); err != nil {
				return nil, fmt.Errorf("outbox: decode products/%s %s: %w", kind, recordID, err)
			}
			// bez "name" to patch stanu, nie pełny rekord
			if _, full := keys["name"]; !full && Kind(kind) == KindUpdate {
				var st ProductStock
				if err := json.Unmarshal([]byte(payload), &st); err != nil {
					return nil, fmt.Errorf("outbox: decode stock patch %s: %w", recordID, err)
				}
				if st.ID == "" {
					st.ID = recordID
				}
				return st, nil
			}
			var p model.Product
			if err := json.Unmarshal([]byte(payload), &p); err != nil {
				return nil, fmt.Errorf("outbox: decode product %s: %w", recordID, err)
			}
			if p.ID == "" {
				p.ID = recordID
			}
			return ProductUpsert{Product: p, Insert: Kind(kind) == KindInsert}, nil
		}
	case TableHistory:
		switch Kind(kind) {
		case KindDelete:
			return HistoryDelete{ID: recordID}, nil
		case KindInsert, KindUpdate:
			var e model.HistoryEntry
			if err := json.Unmarshal([]byte(payload), &e); err != nil {
				return nil, fmt.Errorf("outbox: decode history %s: %w", recordID, err)
			}
			if e.ID == "" {
				e.ID = recordID
			}
			return HistoryUpsert{Entry: e}, nil
		}
	}
	return nil, fmt.Errorf("outbox: unsupported operation %s/%s", table, kind)
}
