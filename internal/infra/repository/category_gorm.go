package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type CategoryGormRepository struct {
	db *gorm.DB
}

func NewCategoryGormRepository(db *gorm.DB) *CategoryGormRepository {
	return &CategoryGormRepository{db: db}
}

const activeProductCount = `(SELECT COUNT(*) FROM products p
	WHERE p.category_id = categories.id AND p.is_active = TRUE AND p.deleted_at IS NULL) AS product_count`

func (r *CategoryGormRepository) List(ctx context.Context, onlyActive bool) ([]model.Category, error) {
	q := r.db.WithContext(ctx).Model(&model.Category{}).Select("categories.*, " + activeProductCount)
	if onlyActive {
		q = q.Where("categories.is_active = ?", true)
	}
	var list []model.Category
	if err := q.Order("categories.name asc").Find(&list).Error; err != nil {
		return []model.Category{}, err
	}
	return list, nil
}

func (r *CategoryGormRepository) FindByID(ctx context.Context, id int64) (model.Category, error) {
	var c model.Category
	err := r.db.WithContext(ctx).Select("categories.*, "+activeProductCount).Where("categories.id = ?", id).First(&c).Error
	if err != nil {
		return model.Category{}, translate(err)
	}
	return c, nil
}

func (r *CategoryGormRepository) FindBySlug(ctx context.Context, slug string) (model.Category, error) {
	var c model.Category
	err := r.db.WithContext(ctx).Select("categories.*, "+activeProductCount).Where("categories.slug = ?", slug).First(&c).Error
	if err != nil {
		return model.Category{}, translate(err)
	}
	return c, nil
}

func (r *CategoryGormRepository) Create(ctx context.Context, c *model.Category) error {
	return translate(r.db.WithContext(ctx).Create(c).Error)
}

func (r *CategoryGormRepository) Update(ctx context.Context, c model.Category) error {
	res := r.db.WithContext(ctx).Model(&model.Category{}).Where("id = ?", c.ID).Updates(map[string]interface{}{
		"name":        c.Name,
		"slug":        c.Slug,
		"description": c.Description,
		"image_url":   c.ImageURL,
		"is_active":   c.IsActive,
	})
	return affected(res)
}

func (r *CategoryGormRepository) Delete(ctx context.Context, id int64) error {
	return affected(r.db.WithContext(ctx).Delete(&model.Category{}, id))
}

func (r *CategoryGormRepository) CountProducts(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Unscoped().Model(&model.Product{}).Where("category_id = ?", id).Count(&n).Error
	return n, err
}

var _ repo.CategoryRepository = (*CategoryGormRepository)(nil)
