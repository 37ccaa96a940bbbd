// internal/model/product.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncStatus mówi, czy lokalna kopia zgadza się z ostatnim potwierdzonym stanem zdalnym.
type SyncStatus string

const (
	SyncSynced   SyncStatus = "synced"
	SyncPending  SyncStatus = "pending"
	SyncConflict SyncStatus = "conflict"
)

type ProductType string

const (
	ProductUnits   ProductType = "units"
	ProductPackage ProductType = "package"
	ProductBoth    ProductType = "both"
)

// Product: pozycja magazynowa. Quantity zawsze w najmniejszej śledzonej jednostce.
type Product struct {
	ID              string              `gorm:"primaryKey;size:36" json:"id"`
	Name            string              `gorm:"not null" json:"name" validate:"required,max=200"`
	Category        *string             `gorm:"index" json:"category,omitempty"`
	Quantity        int                 `gorm:"not null;default:0" json:"quantity" validate:"gte=0"`
	PriceBuy        decimal.Decimal     `gorm:"type:numeric" json:"price_buy"`
	PriceSell       decimal.Decimal     `gorm:"type:numeric" json:"price_sell"`
	UnitCost        decimal.NullDecimal `gorm:"type:numeric" json:"unit_cost"`
	UnitPriceSell   decimal.NullDecimal `gorm:"type:numeric" json:"unit_price_sell"`
	UnitsPerPackage int                 `gorm:"not null;default:1" json:"units_per_package" validate:"gte=1"`
	ProductType     ProductType         `gorm:"size:16" json:"product_type" validate:"omitempty,oneof=units package both"`
	TrackStock      bool                `json:"track_stock"`
	MinStock        int                 `json:"min_stock" validate:"gte=0"`
	ExpiryDate      *string             `json:"expiry_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ImageURL        string              `gorm:"type:text" json:"image_url,omitempty"`
	CreatedAt       time.Time           `gorm:"autoCreateTime:false;index" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime:false" json:"updated_at"`
	SyncStatus      SyncStatus          `gorm:"column:sync_status;size:16;default:synced" json:"sync_status,omitempty"`
	Origin          string              `gorm:"size:64" json:"origin,omitempty"`
}

func (Product) TableName() string { return "products" }

// ProductPatch: częściowy zapis; nil oznacza "nie ruszaj pola".
type ProductPatch struct {
	ID              *string              `json:"id,omitempty"`
	Name            *string              `json:"name,omitempty"`
	Category        *string              `json:"category,omitempty"`
	Quantity        *int                 `json:"quantity,omitempty"`
	PriceBuy        *decimal.Decimal     `json:"price_buy,omitempty"`
	PriceSell       *decimal.Decimal     `json:"price_sell,omitempty"`
	UnitCost        *decimal.NullDecimal `json:"unit_cost,omitempty"`
	UnitPriceSell   *decimal.NullDecimal `json:"unit_price_sell,omitempty"`
	UnitsPerPackage *int                 `json:"units_per_package,omitempty"`
	ProductType     *ProductType         `json:"product_type,omitempty"`
	TrackStock      *bool                `json:"track_stock,omitempty"`
	MinStock        *int                 `json:"min_stock,omitempty"`
	ExpiryDate      *string              `json:"expiry_date,omitempty"`
	ImageURL        *string              `json:"image_url,omitempty"`
}

// Apply nakłada ustawione pola na p. ID, CreatedAt i pola synchronizacji zostają.
func (pp ProductPatch) Apply(p *Product) {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Category != nil {
		c := *pp.Category
		if c == "" {
			p.Category = nil
		} else {
			p.Category = &c
		}
	}
	if pp.Quantity != nil {
		p.Quantity = *pp.Quantity
	}
	if pp.PriceBuy != nil {
		p.PriceBuy = *pp.PriceBuy
	}
	if pp.PriceSell != nil {
		p.PriceSell = *pp.PriceSell
	}
	if pp.UnitCost != nil {
		p.UnitCost = *pp.UnitCost
	}
	if pp.UnitPriceSell != nil {
		p.UnitPriceSell = *pp.UnitPriceSell
	}
	if pp.UnitsPerPackage != nil {
		p.UnitsPerPackage = *pp.UnitsPerPackage
	}
	if pp.ProductType != nil {
		p.ProductType = *pp.ProductType
	}
	if pp.TrackStock != nil {
		p.TrackStock = *pp.TrackStock
	}
	if pp.MinStock != nil {
		p.MinStock = *pp.MinStock
	}
	if pp.ExpiryDate != nil {
		d := *pp.ExpiryDate
		if d == "" {
			p.ExpiryDate = nil
		} else {
			p.ExpiryDate = &d
		}
	}
	if pp.ImageURL != nil {
		p.ImageURL = *pp.ImageURL
	}
}

// NewProduct zwraca produkt z domyślnymi wartościami dla nowego rekordu.
func NewProduct(id string) Product {
	return Product{
		ID:              id,
		UnitsPerPackage: 1,
		ProductType:     ProductUnits,
		TrackStock:      true,
	}
}

// InCategory: pusty filtr pasuje do wszystkiego.
func (p Product) InCategory(category string) bool {
	if category == "" {
		return true
	}
	return p.Category != nil && *p.Category == category
}
