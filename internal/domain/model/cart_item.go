package model

import "time"

// カートの明細。ユーザーに直接ぶら下がる
// (user_id, product_id, variant_id) で1行
type CartItem struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64  `gorm:"not null;index" json:"user_id"`
	ProductID int64  `gorm:"not null" json:"product_id"`
	// (user_id, product_id, variant_id) の一意性は db.Migrate の式インデックスで張る
	VariantID *int64 `json:"variant_id"`
	Quantity  int64  `gorm:"not null" json:"quantity"`

	Product *Product        `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Variant *ProductVariant `gorm:"foreignKey:VariantID" json:"variant,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
