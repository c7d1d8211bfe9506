package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 価格・商品名は注文時点のスナップショット
type OrderItem struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64           `gorm:"not null;index" json:"order_id"`
	ProductID   int64           `gorm:"not null;index" json:"product_id"`
	VariantID   *int64          `gorm:"index" json:"variant_id"`
	ProductName string          `gorm:"type:varchar(255);not null" json:"product_name"`
	Size        string          `gorm:"type:varchar(20)" json:"size"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (it OrderItem) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(it.Quantity))
}
