package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusRejected   OrderStatus = "REJECTED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// 終端ステータスからは動かさない
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRejected
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusRejected, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type Order struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber string `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_number"`

	//会員注文ならuser_id、ゲスト注文ならcustomer_*
	UserID    *int64 `gorm:"index;uniqueIndex:idx_orders_user_idem" json:"user_id"`
	AddressID *int64 `json:"address_id"`

	CustomerName    string `gorm:"type:varchar(255)" json:"customer_name,omitempty"`
	CustomerEmail   string `gorm:"type:varchar(255)" json:"customer_email,omitempty"`
	CustomerPhone   string `gorm:"type:varchar(30)" json:"customer_phone,omitempty"`
	CustomerAddress string `gorm:"type:varchar(500)" json:"customer_address,omitempty"`
	CustomerCity    string `gorm:"type:varchar(255)" json:"customer_city,omitempty"`
	CustomerZipCode string `gorm:"type:varchar(20)" json:"customer_zip_code,omitempty"`

	Total         decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total"`
	Status        OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentMethod string          `gorm:"type:varchar(30);not null" json:"payment_method"`
	Notes         string          `gorm:"type:text" json:"notes"`

	//在庫を引き当て済みか。戻すときに1回だけfalseにする
	StockReserved bool `gorm:"not null;default:false" json:"-"`

	IdempotencyKey *string `gorm:"type:varchar(255);uniqueIndex:idx_orders_user_idem" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (o Order) IsGuest() bool {
	return o.UserID == nil
}
