// internal/model/history.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ActionType string

const (
	ActionPurchase ActionType = "compra"
	ActionSale     ActionType = "venta"
)

type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "efectivo"
	PaymentDigital PaymentMethod = "digital"
)

// HistoryEntry: wpis księgi zakupów/sprzedaży. Ceny to migawki z chwili
// transakcji, nigdy nie przeliczane z bieżącego produktu.
type HistoryEntry struct {
	ID            string              `gorm:"primaryKey;size:36" json:"id"`
	ProductID     string              `gorm:"index;size:36" json:"product_id" validate:"required"`
	ActionType    ActionType          `gorm:"index;size:16" json:"action_type" validate:"required,oneof=compra venta"`
	Quantity      int                 `json:"quantity" validate:"gt=0"`
	PriceBuy      decimal.Decimal     `gorm:"type:numeric" json:"price_buy"`
	PriceSell     decimal.Decimal     `gorm:"type:numeric" json:"price_sell"`
	UnitCost      decimal.NullDecimal `gorm:"type:numeric" json:"unit_cost"`
	UnitPriceSell decimal.NullDecimal `gorm:"type:numeric" json:"unit_price_sell"`
	TotalBuy      decimal.NullDecimal `gorm:"type:numeric" json:"total_buy"`
	ExpiryDate    *string             `json:"expiry_date,omitempty"`
	PaymentMethod *PaymentMethod      `gorm:"size:16" json:"payment_method,omitempty" validate:"omitempty,oneof=efectivo digital"`
	TransactionID *string             `gorm:"index;size:36" json:"transaction_id,omitempty"`
	Notes         string              `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time           `gorm:"autoCreateTime:false;index" json:"created_at"`
	SyncStatus    SyncStatus          `gorm:"column:sync_status;size:16;default:synced" json:"sync_status,omitempty"`
	Origin        string              `gorm:"size:64" json:"origin,omitempty"`
}

func (HistoryEntry) TableName() string { return "product_history" }

func (h HistoryEntry) IsSale() bool { return h.ActionType == ActionSale }
