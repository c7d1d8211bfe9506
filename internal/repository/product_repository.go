package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 一覧検索
type ProductListQuery struct {
	Page         int
	Limit        int
	Q            string
	CategorySlug string
	//管理画面は非公開も含める
	IncludeInactive bool
}

// 商品の永続化（保存・取得）だけを約束。
// FindByIDはVariantsとCategoryを詰めて返す
type ProductRepository interface {
	List(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)

	//Variantsも一緒に作る
	Create(ctx context.Context, p *model.Product) error
	Update(ctx context.Context, p model.Product) error
	SoftDelete(ctx context.Context, id int64) error
}
