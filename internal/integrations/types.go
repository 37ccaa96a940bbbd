// internal/integrations/types.go
package integrations

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/bartek5186/pos2cloud/internal/db"
	"github.com/bartek5186/pos2cloud/internal/model"
)

type Integration interface {
	Name() string
	Start(ctx context.Context) error // blokuje do ctx.Done (long-running) lub odpala własną pętlę
	Stop()                           // idempotent
}

// Catalog: zapis produktów przez tę samą ścieżkę co UI (outbox, stan w pamięci).
type Catalog interface {
	SaveProduct(ctx context.Context, data model.ProductPatch, isUpdate bool) (model.Product, error)
}

// Deps: zależności przekazywane jawnie do fabryk integracji.
type Deps struct {
	DB      *db.Handle
	Catalog Catalog
}

type Factory func(log zerolog.Logger, raw json.RawMessage, deps Deps) (Integration, error)
