package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductPhysical     ProductType = "physical"
	ProductDigitalKey   ProductType = "digital_key"
	ProductSubscription ProductType = "subscription"
	ProductVoucher      ProductType = "voucher"
	ProductSoftware     ProductType = "software"
	ProductOther        ProductType = "other"
)

type Inventory struct {
	Quantity       int  `bson:"quantity" json:"quantity"`
	TrackInventory bool `bson:"track_inventory" json:"track_inventory"`
	AllowBackorder bool `bson:"allow_backorder" json:"allow_backorder"`
}

// DigitalContent holds delivery fields for non-physical products. LicenseKey
// and DownloadURL are never rendered in catalog responses.
type DigitalContent struct {
	DeliveryMethod         string     `bson:"delivery_method,omitempty" json:"delivery_method,omitempty"`
	ActivationInstructions string     `bson:"activation_instructions,omitempty" json:"activation_instructions,omitempty"`
	LicenseKey             string     `bson:"license_key,omitempty" json:"-"`
	DownloadURL            string     `bson:"download_url,omitempty" json:"-"`
	ExpiryDate             *time.Time `bson:"expiry_date,omitempty" json:"expiry_date,omitempty"`
}

type ProductMetadata struct {
	Views     int `bson:"views" json:"views"`
	Purchases int `bson:"purchases" json:"purchases"`
}

type Product struct {
	ID             string           `bson:"_id" json:"id"`
	Name           string           `bson:"name" json:"name"`
	Price          decimal.Decimal  `bson:"price" json:"price"`
	DiscountPrice  *decimal.Decimal `bson:"discount_price,omitempty" json:"discount_price,omitempty"`
	ProductType    ProductType      `bson:"product_type" json:"product_type"`
	IsActive       bool             `bson:"is_active" json:"is_active"`
	Inventory      Inventory        `bson:"inventory" json:"inventory"`
	DigitalContent *DigitalContent  `bson:"digital_content,omitempty" json:"digital_content,omitempty"`
	Metadata       ProductMetadata  `bson:"metadata" json:"metadata"`
	CreatedAt      time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `bson:"updated_at" json:"updated_at"`
}

// IsInStock reports whether the product can be sold right now: untracked
// inventory, positive quantity, or backorders allowed.
func (p *Product) IsInStock() bool {
	return !p.Inventory.TrackInventory || p.Inventory.Quantity > 0 || p.Inventory.AllowBackorder
}

// SellablePrice is the discount price when one is set, otherwise the list price.
func (p *Product) SellablePrice() decimal.Decimal {
	if p.DiscountPrice != nil && p.DiscountPrice.IsPositive() {
		return *p.DiscountPrice
	}
	return p.Price
}

func (p *Product) IsPhysical() bool {
	return p.ProductType == ProductPhysical
}
