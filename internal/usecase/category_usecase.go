package usecase

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/validator"
)

type CategoryUsecase struct {
	categories repo.CategoryRepository
}

func NewCategoryUsecase(categories repo.CategoryRepository) *CategoryUsecase {
	return &CategoryUsecase{categories: categories}
}

type CategoryInput struct {
	Name        string
	Slug        string
	Description string
	ImageURL    string
	//nilなら公開
	IsActive *bool
}

// 公開中のカテゴリ（商品数付き）
func (u *CategoryUsecase) List(ctx context.Context) ([]model.Category, error) {
	list, err := u.categories.List(ctx, true)
	if err != nil {
		return nil, internal(err)
	}
	return list, nil
}

func (u *CategoryUsecase) ListAll(ctx context.Context) ([]model.Category, error) {
	list, err := u.categories.List(ctx, false)
	if err != nil {
		return nil, internal(err)
	}
	return list, nil
}

func (u *CategoryUsecase) GetByID(ctx context.Context, id int64) (model.Category, error) {
	if id <= 0 {
		return model.Category{}, validationError("invalid id")
	}
	c, err := u.categories.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Category{}, notFound("category")
	}
	if err != nil {
		return model.Category{}, internal(err)
	}
	return c, nil
}

func (u *CategoryUsecase) GetBySlug(ctx context.Context, slug string) (model.Category, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return model.Category{}, validationError("invalid slug")
	}
	c, err := u.categories.FindBySlug(ctx, slug)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !c.IsActive) {
		return model.Category{}, notFound("category")
	}
	if err != nil {
		return model.Category{}, internal(err)
	}
	return c, nil
}

// slug省略時は名前から作る
func (u *CategoryUsecase) Create(ctx context.Context, in CategoryInput) (model.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Category{}, validationError("name is required")
	}
	slug := validator.Slugify(in.Slug)
	if slug == "" {
		slug = validator.Slugify(name)
	}
	if slug == "" {
		return model.Category{}, validationError("invalid slug")
	}

	c := model.Category{
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if err := u.categories.Create(ctx, &c); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return model.Category{}, conflict(ErrDuplicate, "category name or slug already exists")
		}
		return model.Category{}, internal(err)
	}
	return c, nil
}

// 空のフィールドは変更しない
func (u *CategoryUsecase) Update(ctx context.Context, id int64, in CategoryInput) (model.Category, error) {
	c, err := u.GetByID(ctx, id)
	if err != nil {
		return model.Category{}, err
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		c.Name = name
	}
	if s := strings.TrimSpace(in.Slug); s != "" {
		c.Slug = validator.Slugify(s)
		if c.Slug == "" {
			return model.Category{}, validationError("invalid slug")
		}
	}
	if in.Description != "" {
		c.Description = strings.TrimSpace(in.Description)
	}
	if in.ImageURL != "" {
		c.ImageURL = strings.TrimSpace(in.ImageURL)
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}

	if err := u.categories.Update(ctx, c); err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return model.Category{}, notFound("category")
		case errors.Is(err, repo.ErrConflict):
			return model.Category{}, conflict(ErrDuplicate, "category name or slug already exists")
		}
		return model.Category{}, internal(err)
	}
	return c, nil
}

// 商品が残っているカテゴリは消さない
func (u *CategoryUsecase) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return validationError("invalid id")
	}
	n, err := u.categories.CountProducts(ctx, id)
	if err != nil {
		return internal(err)
	}
	if n > 0 {
		return conflict(ErrInUse, "category still has products")
	}
	if err := u.categories.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("category")
		}
		return internal(err)
	}
	return nil
}
