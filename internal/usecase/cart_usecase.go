package usecase

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジック。
// ここでの在庫チェックは目安で、注文確定時にもう一度確認する
type CartUsecase struct {
	tx        repo.TransactionManager
	cartItems repo.CartItemRepository
}

func NewCartUsecase(tx repo.TransactionManager, cartItems repo.CartItemRepository) *CartUsecase {
	return &CartUsecase{tx: tx, cartItems: cartItems}
}

type CartOutput struct {
	Items []model.CartItem `json:"items"`
	Total decimal.Decimal  `json:"total"`
	//数量の合計
	Count int64 `json:"count"`
}

type AddCartInput struct {
	ProductID int64
	VariantID *int64
	Quantity  int64
}

func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, ErrUnauthorized
	}
	items, err := u.cartItems.ListByUserID(ctx, userID)
	if err != nil {
		return CartOutput{}, internal(err)
	}

	out := CartOutput{Items: make([]model.CartItem, 0, len(items)), Total: decimal.Zero}
	for _, it := range items {
		//論理削除された商品の行は出さない
		if it.Product == nil {
			continue
		}
		out.Total = out.Total.Add(it.Product.Price.Mul(decimal.NewFromInt(it.Quantity)))
		out.Count += it.Quantity
		out.Items = append(out.Items, it)
	}
	return out, nil
}

// 同じ(product, variant)なら数量を加算
func (u *CartUsecase) AddItem(ctx context.Context, userID int64, in AddCartInput) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, ErrUnauthorized
	}
	if in.ProductID <= 0 {
		return CartOutput{}, validationError("invalid product_id")
	}
	if in.Quantity < 1 {
		return CartOutput{}, validationError("invalid quantity")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, in.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("product")
		}
		if err != nil {
			return internal(err)
		}
		if !p.IsActive {
			return validationError("product is not available")
		}

		stock, err := variantStock(ctx, r, p, in.VariantID)
		if err != nil {
			return err
		}

		line, err := r.CartItems().FindLine(ctx, userID, p.ID, in.VariantID)
		switch {
		case err == nil:
			newQty := line.Quantity + in.Quantity
			if stock != nil && newQty > *stock {
				return insufficientStock(p.Name, *stock)
			}
			if err := r.CartItems().UpdateQuantity(ctx, line.ID, newQty); err != nil {
				return internal(err)
			}
			return nil
		case !errors.Is(err, repo.ErrNotFound):
			return internal(err)
		}

		if stock != nil && in.Quantity > *stock {
			return insufficientStock(p.Name, *stock)
		}
		item := model.CartItem{
			UserID:    userID,
			ProductID: p.ID,
			VariantID: in.VariantID,
			Quantity:  in.Quantity,
		}
		if err := r.CartItems().Create(ctx, &item); err != nil {
			// 並行追加で idx_cart_line_uniq に当たった（variant なしの行も対象）
			if errors.Is(err, repo.ErrConflict) {
				return conflict(ErrDuplicate, "cart line was modified concurrently, retry")
			}
			return internal(err)
		}
		return nil
	})
	if err != nil {
		return CartOutput{}, err
	}
	return u.GetCart(ctx, userID)
}

// バリアントがある商品はvariant_id必須。在庫上限を返す（バリアント無しならnil）
func variantStock(ctx context.Context, r repo.TxRepos, p model.Product, variantID *int64) (*int64, error) {
	if variantID == nil {
		if len(p.Variants) > 0 {
			return nil, validationError("variant_id is required")
		}
		return nil, nil
	}
	v, err := r.Inventory().FindVariant(ctx, *variantID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && v.ProductID != p.ID) {
		return nil, validationError("invalid variant_id")
	}
	if err != nil {
		return nil, internal(err)
	}
	return &v.Stock, nil
}

// 数量変更（所有チェック＋在庫チェック）
func (u *CartUsecase) UpdateItem(ctx context.Context, userID int64, cartItemID int64, quantity int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, ErrUnauthorized
	}
	if cartItemID <= 0 {
		return CartOutput{}, validationError("invalid id")
	}
	if quantity < 1 {
		return CartOutput{}, validationError("invalid quantity")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		item, err := r.CartItems().FindByID(ctx, cartItemID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && item.UserID != userID) {
			return notFound("cart item")
		}
		if err != nil {
			return internal(err)
		}

		p, err := r.Products().FindByID(ctx, item.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return validationError("product is not available")
		}
		if err != nil {
			return internal(err)
		}
		stock, err := variantStock(ctx, r, p, item.VariantID)
		if err != nil {
			return err
		}
		if stock != nil && quantity > *stock {
			return insufficientStock(p.Name, *stock)
		}

		if err := r.CartItems().UpdateQuantity(ctx, cartItemID, quantity); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("cart item")
			}
			return internal(err)
		}
		return nil
	})
	if err != nil {
		return CartOutput{}, err
	}
	return u.GetCart(ctx, userID)
}

func (u *CartUsecase) RemoveItem(ctx context.Context, userID int64, cartItemID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, ErrUnauthorized
	}
	if cartItemID <= 0 {
		return CartOutput{}, validationError("invalid id")
	}

	item, err := u.cartItems.FindByID(ctx, cartItemID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && item.UserID != userID) {
		return CartOutput{}, notFound("cart item")
	}
	if err != nil {
		return CartOutput{}, internal(err)
	}
	if err := u.cartItems.DeleteByID(ctx, cartItemID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return CartOutput{}, internal(err)
	}
	return u.GetCart(ctx, userID)
}

func (u *CartUsecase) Clear(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrUnauthorized
	}
	if err := u.cartItems.DeleteByUserID(ctx, userID); err != nil {
		return internal(err)
	}
	return nil
}
