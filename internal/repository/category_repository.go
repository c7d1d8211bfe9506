package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CategoryRepository interface {
	//product_count付きで返す
	List(ctx context.Context, onlyActive bool) ([]model.Category, error)
	FindByID(ctx context.Context, id int64) (model.Category, error)
	FindBySlug(ctx context.Context, slug string) (model.Category, error)
	Create(ctx context.Context, c *model.Category) error
	Update(ctx context.Context, c model.Category) error
	Delete(ctx context.Context, id int64) error
	//論理削除済みの商品も数える
	CountProducts(ctx context.Context, id int64) (int64, error)
}
