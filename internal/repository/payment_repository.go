package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type PaymentListFilter struct {
	Page   int
	Limit  int
	Status string
}

type PaymentRepository interface {
	//order_idの重複はErrConflict
	Create(ctx context.Context, p *model.Payment) error
	FindByID(ctx context.Context, paymentID int64) (model.Payment, error)
	//処理中に他から触られないよう行ロック
	FindByIDForUpdate(ctx context.Context, paymentID int64) (model.Payment, error)
	FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error)
	//PENDINGのときだけ更新。更新できなければfalse
	TransitionFromPending(ctx context.Context, paymentID int64, to model.PaymentStatus, transactionID *string, processedAt time.Time) (bool, error)
	List(ctx context.Context, f PaymentListFilter) ([]model.Payment, int64, error)
	DeleteByOrderID(ctx context.Context, orderID int64) error
}
