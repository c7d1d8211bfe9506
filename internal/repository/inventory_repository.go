package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// バリアント単位の在庫
type InventoryRepository interface {
	FindVariant(ctx context.Context, variantID int64) (model.ProductVariant, error)

	//idが0なら作成、それ以外は更新
	SaveVariant(ctx context.Context, v *model.ProductVariant) error

	//keepIDs以外のバリアントを消す（商品更新でバリアントを置き換えるとき）
	DeleteVariantsExcept(ctx context.Context, productID int64, keepIDs []int64) error

	// 在庫の現在値を設定
	SetStock(ctx context.Context, variantID int64, newStock int64) error

	// 在庫が足りるときだけ減算
	DecreaseStockIfEnough(ctx context.Context, variantID int64, qty int64) (bool, error)

	// 在庫戻し（キャンセルなど）
	IncreaseStock(ctx context.Context, variantID int64, qty int64) error

	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
}
