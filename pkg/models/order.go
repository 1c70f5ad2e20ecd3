package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentWhatsApp       PaymentMethod = "whatsapp"
	PaymentTransfer       PaymentMethod = "transfer"
	PaymentCreditCard     PaymentMethod = "credit_card"
	PaymentDebitCard      PaymentMethod = "debit_card"
	PaymentPayPal         PaymentMethod = "paypal"
	PaymentStripe         PaymentMethod = "stripe"
	PaymentCashOnDelivery PaymentMethod = "cod"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentWhatsApp, PaymentTransfer, PaymentCreditCard, PaymentDebitCard,
		PaymentPayPal, PaymentStripe, PaymentCashOnDelivery:
		return true
	}
	return false
}

type Address struct {
	FullName   string `bson:"full_name" json:"full_name" validate:"required"`
	Line1      string `bson:"line1" json:"line1" validate:"required"`
	Line2      string `bson:"line2,omitempty" json:"line2,omitempty"`
	City       string `bson:"city" json:"city" validate:"required"`
	State      string `bson:"state,omitempty" json:"state,omitempty"`
	PostalCode string `bson:"postal_code" json:"postal_code" validate:"required"`
	Country    string `bson:"country" json:"country" validate:"required,len=2"`
	Phone      string `bson:"phone,omitempty" json:"phone,omitempty"`
}

type OrderItem struct {
	ProductID      string          `bson:"product_id" json:"product_id"`
	Name           string          `bson:"name" json:"name"`
	UnitPrice      decimal.Decimal `bson:"unit_price" json:"unit_price"`
	Quantity       int             `bson:"quantity" json:"quantity"`
	DigitalContent *DigitalContent `bson:"digital_content,omitempty" json:"digital_content,omitempty"`
}

type PaymentDetails struct {
	TransactionID   string     `bson:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	PaymentIntentID string     `bson:"payment_intent_id,omitempty" json:"payment_intent_id,omitempty"`
	Status          string     `bson:"status,omitempty" json:"status,omitempty"`
	PaidAt          *time.Time `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
}

type Pricing struct {
	Subtotal decimal.Decimal `bson:"subtotal" json:"subtotal"`
	Tax      decimal.Decimal `bson:"tax" json:"tax"`
	Shipping decimal.Decimal `bson:"shipping" json:"shipping"`
	Discount decimal.Decimal `bson:"discount" json:"discount"`
	Total    decimal.Decimal `bson:"total" json:"total"`
}

type StatusChange struct {
	Status    OrderStatus `bson:"status" json:"status"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
	Note      string      `bson:"note,omitempty" json:"note,omitempty"`
	UpdatedBy string      `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
}

type Refund struct {
	Requested   bool             `bson:"requested" json:"requested"`
	RequestedAt *time.Time       `bson:"requested_at,omitempty" json:"requested_at,omitempty"`
	Reason      string           `bson:"reason,omitempty" json:"reason,omitempty"`
	Amount      *decimal.Decimal `bson:"amount,omitempty" json:"amount,omitempty"`
	ProcessedAt *time.Time       `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
	ProcessedBy string           `bson:"processed_by,omitempty" json:"processed_by,omitempty"`
}

type Order struct {
	ID              string         `bson:"_id" json:"id"`
	OrderNumber     string         `bson:"order_number" json:"order_number"`
	UserID          string         `bson:"user_id" json:"user_id"`
	Items           []OrderItem    `bson:"items" json:"items"`
	ShippingAddress *Address       `bson:"shipping_address,omitempty" json:"shipping_address,omitempty"`
	BillingAddress  *Address       `bson:"billing_address,omitempty" json:"billing_address,omitempty"`
	PaymentMethod   PaymentMethod  `bson:"payment_method" json:"payment_method"`
	PaymentDetails  PaymentDetails `bson:"payment_details" json:"payment_details"`
	Pricing         Pricing        `bson:"pricing" json:"pricing"`
	CouponCode      string         `bson:"coupon_code,omitempty" json:"coupon_code,omitempty"`
	OfferID         string         `bson:"offer_id,omitempty" json:"offer_id,omitempty"`
	CustomerNote    string         `bson:"customer_note,omitempty" json:"customer_note,omitempty"`
	Status          OrderStatus    `bson:"status" json:"status"`
	StatusHistory   []StatusChange `bson:"status_history" json:"status_history"`
	Refund          Refund         `bson:"refund" json:"refund"`
	Version         int64          `bson:"version" json:"version"`
	CreatedAt       time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `bson:"updated_at" json:"updated_at"`
}

func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}
