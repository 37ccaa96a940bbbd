package outbox

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/pos2cloud/internal/model"
)

func TestDecodeDistinguishesStockPatchFromFullRecord(t *testing.T) {
	full := ProductUpsert{Product: model.Product{ID: "p1", Name: "Soda", Quantity: 10, PriceSell: decimal.NewFromInt(3)}}
	payload, err := Encode(full)
	require.NoError(t, err)

	op, err := Decode("products", "update", "p1", payload)
	require.NoError(t, err)
	up, ok := op.(ProductUpsert)
	require.True(t, ok, "expected ProductUpsert, got %T", op)
	assert.Equal(t, "Soda", up.Product.Name)
	assert.Equal(t, KindUpdate, up.Kind())

	patch, err := Encode(ProductStock{ID: "p1", Quantity: 4, UpdatedAt: time.Now()})
	require.NoError(t, err)
	op, err = Decode("products", "update", "p1", patch)
	require.NoError(t, err)
	st, ok := op.(ProductStock)
	require.True(t, ok, "expected ProductStock, got %T", op)
	assert.Equal(t, 4, st.Quantity)
}

func TestDecodeDeletesIgnorePayload(t *testing.T) {
	op, err := Decode("product_history", "delete", "h9", "")
	require.NoError(t, err)
	assert.Equal(t, HistoryDelete{ID: "h9"}, op)

	op, err = Decode("products", "delete", "p9", "{}")
	require.NoError(t, err)
	assert.Equal(t, "p9", op.RecordID())
	assert.Equal(t, TableProducts, op.Table())
}

func TestDecodeRejectsUnknownTable(t *testing.T) {
	_, err := Decode("customers", "insert", "c1", "{}")
	require.Error(t, err)
}

func TestHistoryInsertRoundTrip(t *testing.T) {
	pm := model.PaymentCash
	e := model.HistoryEntry{ID: "h1", ProductID: "p1", ActionType: model.ActionSale, Quantity: 2, PaymentMethod: &pm}
	payload, err := Encode(HistoryUpsert{Entry: e})
	require.NoError(t, err)

	op, err := Decode("product_history", "insert", "h1", payload)
	require.NoError(t, err)
	hu := op.(HistoryUpsert)
	assert.Equal(t, model.ActionSale, hu.Entry.ActionType)
	require.NotNil(t, hu.Entry.PaymentMethod)
	assert.Equal(t, model.PaymentCash, *hu.Entry.PaymentMethod)
}
