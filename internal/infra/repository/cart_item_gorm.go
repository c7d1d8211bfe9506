package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartItemGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartItemGormRepository(db *gorm.DB) *CartItemGormRepository {
	return &CartItemGormRepository{db: db}
}

// カート明細を一覧取得（表示用）
func (r *CartItemGormRepository) ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	var items []model.CartItem
	if err := r.db.WithContext(ctx).
		Preload("Product").
		Preload("Variant").
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, err
	}
	return items, nil
}

// 注文確定用：このユーザーの明細を行ロック
// 同時に確定した側は先のコミットを待ち、削除済みの行は返らない
func (r *CartItemGormRepository) LockByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	var items []model.CartItem
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, err
	}
	return items, nil
}

// 同一(product, variant)の行を行ロックで取得
func (r *CartItemGormRepository) FindLine(ctx context.Context, userID int64, productID int64, variantID *int64) (model.CartItem, error) {
	var item model.CartItem
	q := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND product_id = ?", userID, productID)
	if variantID == nil {
		q = q.Where("variant_id IS NULL")
	} else {
		q = q.Where("variant_id = ?", *variantID)
	}
	if err := q.First(&item).Error; err != nil {
		return model.CartItem{}, translate(err)
	}
	return item, nil
}

func (r *CartItemGormRepository) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	var item model.CartItem
	if err := r.db.WithContext(ctx).First(&item, cartItemID).Error; err != nil {
		return model.CartItem{}, translate(err)
	}
	return item, nil
}

func (r *CartItemGormRepository) Create(ctx context.Context, item *model.CartItem) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error)
}

// 明細の数量を更新
func (r *CartItemGormRepository) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	return affected(r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ?", cartItemID).
		Update("quantity", qty))
}

func (r *CartItemGormRepository) DeleteByID(ctx context.Context, cartItemID int64) error {
	return affected(r.db.WithContext(ctx).Delete(&model.CartItem{}, cartItemID))
}

// 空のカートでもエラーにしない
func (r *CartItemGormRepository) DeleteByUserID(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.CartItem{}).Error
}

var _ repo.CartItemRepository = (*CartItemGormRepository)(nil)
