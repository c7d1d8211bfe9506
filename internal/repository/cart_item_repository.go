package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartItemRepository interface {
	//ProductとVariantを詰めて返す（表示用）
	ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error)
	//注文確定用。行ロック（FOR UPDATE）で取る
	LockByUserID(ctx context.Context, userID int64) ([]model.CartItem, error)
	//同じ(product, variant)の行。行ロックで取る
	FindLine(ctx context.Context, userID int64, productID int64, variantID *int64) (model.CartItem, error)
	FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error)
	Create(ctx context.Context, item *model.CartItem) error
	UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error
	DeleteByID(ctx context.Context, cartItemID int64) error
	DeleteByUserID(ctx context.Context, userID int64) error
}
