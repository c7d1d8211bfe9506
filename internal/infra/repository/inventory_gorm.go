package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

func (r *InventoryGormRepository) FindVariant(ctx context.Context, variantID int64) (model.ProductVariant, error) {
	var v model.ProductVariant
	if err := r.db.WithContext(ctx).First(&v, variantID).Error; err != nil {
		return model.ProductVariant{}, translate(err)
	}
	return v, nil
}

func (r *InventoryGormRepository) SaveVariant(ctx context.Context, v *model.ProductVariant) error {
	if v.ID == 0 {
		return translate(r.db.WithContext(ctx).Create(v).Error)
	}
	res := r.db.WithContext(ctx).Model(&model.ProductVariant{}).
		Where("id = ? AND product_id = ?", v.ID, v.ProductID).
		Updates(map[string]interface{}{
			"size":  v.Size,
			"color": v.Color,
			"stock": v.Stock,
		})
	return affected(res)
}

func (r *InventoryGormRepository) DeleteVariantsExcept(ctx context.Context, productID int64, keepIDs []int64) error {
	q := r.db.WithContext(ctx).Where("product_id = ?", productID)
	if len(keepIDs) > 0 {
		q = q.Where("id NOT IN ?", keepIDs)
	}
	return q.Delete(&model.ProductVariant{}).Error
}

// 在庫の現在値を設定
func (r *InventoryGormRepository) SetStock(ctx context.Context, variantID int64, newStock int64) error {
	return affected(r.db.WithContext(ctx).
		Model(&model.ProductVariant{}).
		Where("id = ?", variantID).
		Update("stock", newStock))
}

// 在庫が足りるときだけ減らす
// 同じ行への同時UPDATEは行ロックで直列化され、後から来た方はWHEREを再評価する
func (r *InventoryGormRepository) DecreaseStockIfEnough(ctx context.Context, variantID int64, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ProductVariant{}).
		Where("id = ? AND stock >= ?", variantID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// 在庫戻し（キャンセル）
func (r *InventoryGormRepository) IncreaseStock(ctx context.Context, variantID int64, qty int64) error {
	return affected(r.db.WithContext(ctx).
		Model(&model.ProductVariant{}).
		Where("id = ?", variantID).
		Update("stock", gorm.Expr("stock + ?", qty)))
}

// 調整履歴作成
func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	return r.db.WithContext(ctx).Create(&adj).Error
}

var _ repo.InventoryRepository = (*InventoryGormRepository)(nil)
