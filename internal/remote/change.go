package remote

import (
	"context"
	"encoding/json"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Change: zdarzenie kanału zmian: {table, type, new, old}. Ten sam kształt
// wysyła trigger NOTIFY w Postgresie i Publisher dla pozostałych backendów.
type Change struct {
	Table string          `json:"table"`
	Type  EventType       `json:"type"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

func (s *Store) publish(ctx context.Context, table string, typ EventType, newRow, oldRow any) {
	if s.pub == nil {
		return
	}
	c := Change{Table: table, Type: typ}
	if newRow != nil {
		b, err := json.Marshal(newRow)
		if err != nil {
			s.log.Warn().Err(err).Str("table", table).Msg("publish: marshal new")
			return
		}
		c.New = b
	}
	if oldRow != nil {
		b, err := json.Marshal(oldRow)
		if err != nil {
			s.log.Warn().Err(err).Str("table", table).Msg("publish: marshal old")
			return
		}
		c.Old = b
	}
	// zapis już się udał; błąd rozgłoszenia tylko logujemy
	if err := s.pub.Publish(ctx, c); err != nil {
		s.log.Warn().Err(err).Str("table", table).Str("type", string(typ)).Msg("publish change failed")
	}
}
