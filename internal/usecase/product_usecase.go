package usecase

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

type ProductUsecase struct {
	productRepo  repo.ProductRepository
	categoryRepo repo.CategoryRepository
	tx           repo.TransactionManager
	clock        Clock
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	categoryRepo repo.CategoryRepository,
	tx repo.TransactionManager,
	clock Clock,
) *ProductUsecase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ProductUsecase{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
		tx:           tx,
		clock:        clock,
	}
}

// GET /productsの入力
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	Category string
}

type ProductListOutput struct {
	Products   []model.Product `json:"products"`
	Pagination Pagination      `json:"pagination"`
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	return u.list(ctx, in, false)
}

// 管理画面：非公開も含める
func (u *ProductUsecase) AdminListProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	return u.list(ctx, in, true)
}

func (u *ProductUsecase) list(ctx context.Context, in ListProductsInput, includeInactive bool) (ProductListOutput, error) {
	page, limit, err := normalizePage(in.Page, in.Limit, 12)
	if err != nil {
		return ProductListOutput{}, err
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, validationError("q too long")
	}

	items, total, err := u.productRepo.List(ctx, repo.ProductListQuery{
		Page:            page,
		Limit:           limit,
		Q:               strings.TrimSpace(in.Q),
		CategorySlug:    strings.TrimSpace(in.Category),
		IncludeInactive: includeInactive,
	})
	if err != nil {
		return ProductListOutput{}, internal(err)
	}

	return ProductListOutput{
		Products:   items,
		Pagination: newPagination(page, limit, total),
	}, nil
}

// 非公開の商品は404
func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	p, err := u.AdminGetProduct(ctx, productID)
	if err != nil {
		return model.Product{}, err
	}
	if !p.IsActive {
		return model.Product{}, notFound("product")
	}
	return p, nil
}

func (u *ProductUsecase) AdminGetProduct(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, validationError("invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, notFound("product")
	}
	if err != nil {
		return model.Product{}, internal(err)
	}
	return p, nil
}

type VariantInput struct {
	//0なら新規
	ID    int64
	Size  string
	Color string
	Stock int64
}

type AdminProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	CategoryID  int64
	IsActive    *bool
	Variants    []VariantInput
}

// 部分更新。nilは変更しない。Variantsを渡したら置き換える
type AdminProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	ImageURL    *string
	CategoryID  *int64
	IsActive    *bool
	Variants    *[]VariantInput
}

func validateVariants(vs []VariantInput) error {
	for _, v := range vs {
		if strings.TrimSpace(v.Size) == "" {
			return validationError("variant size is required")
		}
		if v.Stock < 0 {
			return validationError("stock must be >= 0")
		}
	}
	return nil
}

func (u *ProductUsecase) ensureCategory(ctx context.Context, categoryID int64) error {
	if categoryID <= 0 {
		return validationError("category_id is required")
	}
	if _, err := u.categoryRepo.FindByID(ctx, categoryID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return validationError("category not found")
		}
		return internal(err)
	}
	return nil
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, adminUserID int64, in AdminProductInput) (model.Product, error) {
	if adminUserID <= 0 {
		return model.Product{}, ErrUnauthorized
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Product{}, validationError("name required")
	}
	if !in.Price.IsPositive() {
		return model.Product{}, validationError("price must be > 0")
	}
	if err := validateVariants(in.Variants); err != nil {
		return model.Product{}, err
	}
	if err := u.ensureCategory(ctx, in.CategoryID); err != nil {
		return model.Product{}, err
	}

	now := u.clock.Now()
	p := model.Product{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price.Round(2),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		CategoryID:  in.CategoryID,
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, v := range in.Variants {
		p.Variants = append(p.Variants, model.ProductVariant{
			Size:  strings.TrimSpace(v.Size),
			Color: strings.TrimSpace(v.Color),
			Stock: v.Stock,
		})
	}

	if err := u.productRepo.Create(ctx, &p); err != nil {
		return model.Product{}, internal(err)
	}
	return u.AdminGetProduct(ctx, p.ID)
}

func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, adminUserID int64, productID int64, in AdminProductPatch) (model.Product, error) {
	if adminUserID <= 0 {
		return model.Product{}, ErrUnauthorized
	}
	p, err := u.AdminGetProduct(ctx, productID)
	if err != nil {
		return model.Product{}, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return model.Product{}, validationError("name required")
		}
		p.Name = name
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		if !in.Price.IsPositive() {
			return model.Product{}, validationError("price must be > 0")
		}
		p.Price = in.Price.Round(2)
	}
	if in.ImageURL != nil {
		p.ImageURL = strings.TrimSpace(*in.ImageURL)
	}
	if in.CategoryID != nil && *in.CategoryID != p.CategoryID {
		if err := u.ensureCategory(ctx, *in.CategoryID); err != nil {
			return model.Product{}, err
		}
		p.CategoryID = *in.CategoryID
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if in.Variants != nil {
		if err := validateVariants(*in.Variants); err != nil {
			return model.Product{}, err
		}
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Products().Update(ctx, p); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("product")
			}
			return internal(err)
		}
		if in.Variants == nil {
			return nil
		}

		//idがあるものは更新、無いものは作成、渡されなかったものは削除
		keep := make([]int64, 0, len(*in.Variants))
		for _, vi := range *in.Variants {
			v := model.ProductVariant{
				ID:        vi.ID,
				ProductID: p.ID,
				Size:      strings.TrimSpace(vi.Size),
				Color:     strings.TrimSpace(vi.Color),
				Stock:     vi.Stock,
			}
			if err := r.Inventory().SaveVariant(ctx, &v); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return validationError("variant does not belong to product")
				}
				return internal(err)
			}
			keep = append(keep, v.ID)
		}
		if err := r.Inventory().DeleteVariantsExcept(ctx, p.ID, keep); err != nil {
			return internal(err)
		}
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	return u.AdminGetProduct(ctx, p.ID)
}

func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, adminUserID int64, productID int64) error {
	if adminUserID <= 0 {
		return ErrUnauthorized
	}
	if productID <= 0 {
		return validationError("invalid product id")
	}

	err := u.productRepo.SoftDelete(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound("product")
	}
	if err != nil {
		return internal(err)
	}
	return nil
}

// バリアントの在庫を設定する。履歴と監査ログも同じTxで残す
func (u *ProductUsecase) AdminSetVariantStock(ctx context.Context, adminUserID int64, variantID int64, newStock int64, reason string) (model.ProductVariant, error) {
	if adminUserID <= 0 {
		return model.ProductVariant{}, ErrUnauthorized
	}
	if variantID <= 0 {
		return model.ProductVariant{}, validationError("invalid variant id")
	}
	if newStock < 0 {
		return model.ProductVariant{}, validationError("stock must be >= 0")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.ProductVariant{}, validationError("reason required")
	}

	var out model.ProductVariant
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前の在庫（before）
		v, err := r.Inventory().FindVariant(ctx, variantID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("variant")
		}
		if err != nil {
			return internal(err)
		}

		if err := r.Inventory().SetStock(ctx, variantID, newStock); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("variant")
			}
			return internal(err)
		}

		now := u.clock.Now()
		//履歴を作成（差分）
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			VariantID:   variantID,
			AdminUserID: adminUserID,
			Delta:       newStock - v.Stock,
			Reason:      reason,
			CreatedAt:   now,
		}); err != nil {
			return internal(err)
		}

		//「誰が」「何を」「どの対象に」「どう変えたか」を残す
		if err := writeAudit(ctx, r, adminUserID, model.AuditActionUpdateStock, model.AuditResourceVariant, variantID,
			map[string]int64{"stock": v.Stock},
			map[string]any{"stock": newStock, "reason": reason}, now); err != nil {
			return err
		}

		v.Stock = newStock
		out = v
		return nil
	})
	if err != nil {
		return model.ProductVariant{}, err
	}
	return out, nil
}
