package usecase

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// 呼び出し元（JWTから取り出した値）
type Actor struct {
	UserID int64
	Role   model.Role
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

func newPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// page/limitの最低限チェック。limit=0ならデフォルト
func normalizePage(page, limit, defLimit int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defLimit
	}
	if page < 1 {
		return 0, 0, validationError("invalid page")
	}
	if limit < 1 || limit > 100 {
		return 0, 0, validationError("invalid limit")
	}
	return page, limit, nil
}

type OrderItemOutput struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	VariantID   *int64          `json:"variant_id"`
	ProductName string          `json:"product_name"`
	Size        string          `json:"size"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// 注文＋明細＋支払い
type OrderOutput struct {
	model.Order
	Items   []OrderItemOutput `json:"items"`
	Payment *model.Payment    `json:"payment,omitempty"`
}

type OrderListOutput struct {
	Orders     []OrderOutput `json:"orders"`
	Pagination Pagination    `json:"pagination"`
}

func toOrderOutput(o model.Order, items []model.OrderItem, p *model.Payment) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ID:          it.ID,
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			Size:        it.Size,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    it.Subtotal(),
		})
	}
	return OrderOutput{Order: o, Items: outItems, Payment: p}
}

// 明細と支払いを詰める
func loadOrderOutput(ctx context.Context, r repo.TxRepos, o model.Order) (OrderOutput, error) {
	items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, internal(err)
	}
	var pay *model.Payment
	p, err := r.Payments().FindByOrderID(ctx, o.ID)
	switch {
	case err == nil:
		pay = &p
	case !errors.Is(err, repo.ErrNotFound):
		return OrderOutput{}, internal(err)
	}
	return toOrderOutput(o, items, pay), nil
}

// 引き当て済みの在庫を戻す。2回目以降は何もしない
func releaseStock(ctx context.Context, r repo.TxRepos, orderID int64) error {
	released, err := r.Orders().ReleaseStock(ctx, orderID)
	if err != nil {
		return internal(err)
	}
	if !released {
		return nil
	}
	items, err := r.OrderItems().ListByOrderID(ctx, orderID)
	if err != nil {
		return internal(err)
	}
	for _, it := range items {
		if it.VariantID == nil {
			continue
		}
		if err := r.Inventory().IncreaseStock(ctx, *it.VariantID, it.Quantity); err != nil {
			return internal(fmt.Errorf("restore stock variant %d: %w", *it.VariantID, err))
		}
	}
	return nil
}

// 他人のものは存在しない扱い
func orderVisibleTo(o model.Order, a Actor) bool {
	if a.IsAdmin() {
		return true
	}
	return o.UserID != nil && *o.UserID == a.UserID
}
