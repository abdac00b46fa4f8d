package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SparePart is a stocked consumable. Quantity never drops below zero.
type SparePart struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name            string             `json:"name" bson:"name"`
	Quantity        int                `json:"quantity" bson:"quantity"`
	MinimumQuantity int                `json:"minimum_quantity" bson:"minimum_quantity"`
	Unit            string             `json:"unit" bson:"unit"`
	Location        string             `json:"location" bson:"location"`
	Category        string             `json:"category" bson:"category"`
	Supplier        string             `json:"supplier" bson:"supplier"`
	UnitCost        decimal.Decimal    `json:"unit_cost" bson:"unit_cost"`
	LastUpdated     time.Time          `json:"last_updated" bson:"last_updated"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
}

// IsLowStock is derived on every read and never stored.
func (p *SparePart) IsLowStock() bool {
	return p.Quantity <= p.MinimumQuantity
}

// MarshalJSON adds the derived is_low_stock flag.
func (p SparePart) MarshalJSON() ([]byte, error) {
	type sparePart SparePart
	return json.Marshal(struct {
		sparePart
		IsLowStock bool `json:"is_low_stock"`
	}{sparePart(p), p.IsLowStock()})
}

// SparePartFilter narrows a spare part listing.
type SparePartFilter struct {
	Category     string
	LowStockOnly bool
}

// Matches reports whether p passes the filter.
func (f SparePartFilter) Matches(p *SparePart) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.LowStockOnly && !p.IsLowStock() {
		return false
	}
	return true
}

// SparePartPatch is a partial catalogue update; nil fields are left unchanged.
type SparePartPatch struct {
	Name            *string
	Quantity        *int
	MinimumQuantity *int
	Unit            *string
	Location        *string
	Category        *string
	Supplier        *string
	UnitCost        *decimal.Decimal
}

// Apply copies the set fields of u onto p.
func (u SparePartPatch) Apply(p *SparePart) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Quantity != nil {
		p.Quantity = *u.Quantity
	}
	if u.MinimumQuantity != nil {
		p.MinimumQuantity = *u.MinimumQuantity
	}
	if u.Unit != nil {
		p.Unit = *u.Unit
	}
	if u.Location != nil {
		p.Location = *u.Location
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Supplier != nil {
		p.Supplier = *u.Supplier
	}
	if u.UnitCost != nil {
		p.UnitCost = *u.UnitCost
	}
}
