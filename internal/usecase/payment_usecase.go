package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type PaymentUsecase struct {
	tx      repo.TransactionManager
	gateway PaymentGateway
	events  EventPublisher
	clock   Clock
}

func NewPaymentUsecase(tx repo.TransactionManager, gateway PaymentGateway, events EventPublisher, clock Clock) *PaymentUsecase {
	if events == nil {
		events = nopPublisher{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &PaymentUsecase{tx: tx, gateway: gateway, events: events, clock: clock}
}

type PaymentResult struct {
	Payment model.Payment `json:"payment"`
	Message string        `json:"message"`
}

type PaymentListOutput struct {
	Payments   []model.Payment `json:"payments"`
	Pagination Pagination      `json:"pagination"`
}

type PaymentProcessedEvent struct {
	PaymentID     int64               `json:"payment_id"`
	OrderID       int64               `json:"order_id"`
	Status        model.PaymentStatus `json:"status"`
	TransactionID *string             `json:"transaction_id,omitempty"`
	ProcessedAt   time.Time           `json:"processed_at"`
}

// 注文に支払いを作る。1注文1件
func (u *PaymentUsecase) CreatePayment(ctx context.Context, actor Actor, orderID int64, method string) (model.Payment, error) {
	if actor.UserID <= 0 {
		return model.Payment{}, ErrUnauthorized
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if orderID <= 0 || method == "" || len(method) > 30 {
		return model.Payment{}, validationError("order_id and method are required")
	}

	var out model.Payment
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && !orderVisibleTo(o, actor)) {
			return notFound("order")
		}
		if err != nil {
			return internal(err)
		}

		if _, err := r.Payments().FindByOrderID(ctx, orderID); err == nil {
			return ErrPaymentExists
		} else if !errors.Is(err, repo.ErrNotFound) {
			return internal(err)
		}

		now := u.clock.Now()
		out = model.Payment{
			OrderID:   orderID,
			Method:    method,
			Amount:    o.Total,
			Status:    model.PaymentStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.Payments().Create(ctx, &out); err != nil {
			// 並行して作られた
			if errors.Is(err, repo.ErrConflict) {
				return ErrPaymentExists
			}
			return internal(err)
		}
		return nil
	})
	if err != nil {
		return model.Payment{}, err
	}
	return out, nil
}

// 決済処理。支払いと注文の更新は同じTxで確定する
func (u *PaymentUsecase) ProcessPayment(ctx context.Context, actor Actor, paymentID int64) (PaymentResult, error) {
	if actor.UserID <= 0 {
		return PaymentResult{}, ErrUnauthorized
	}
	if paymentID <= 0 {
		return PaymentResult{}, validationError("invalid id")
	}

	var res PaymentResult
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, o, err := u.lockPayment(ctx, r, actor, paymentID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentStatusPending {
			return ErrAlreadyProcessed
		}

		gr, err := u.gateway.Authorize(ctx, p)
		if err != nil {
			return internal(err)
		}

		now := u.clock.Now()
		to := model.PaymentStatusRejected
		var txnID *string
		if gr.Approved {
			to = model.PaymentStatusApproved
			txnID = &gr.TransactionID
		}

		ok, err := r.Payments().TransitionFromPending(ctx, p.ID, to, txnID, now)
		if err != nil {
			return internal(err)
		}
		if !ok {
			return ErrAlreadyProcessed
		}

		if gr.Approved {
			if !o.Status.IsTerminal() {
				if err := r.Orders().UpdateStatus(ctx, o.ID, model.OrderStatusConfirmed); err != nil {
					return internal(err)
				}
			}
			res.Message = "payment approved"
		} else {
			// 否認なら注文も否認、引き当てた在庫を戻す
			if err := releaseStock(ctx, r, o.ID); err != nil {
				return err
			}
			if !o.Status.IsTerminal() {
				if err := r.Orders().UpdateStatus(ctx, o.ID, model.OrderStatusRejected); err != nil {
					return internal(err)
				}
			}
			res.Message = "payment rejected"
		}

		p.Status = to
		p.TransactionID = txnID
		p.ProcessedAt = &now
		p.UpdatedAt = now
		res.Payment = p
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	paymentsProcessed.WithLabelValues(string(res.Payment.Status)).Inc()
	publishAfterCommit(ctx, u.events, EventPaymentProcessed, PaymentProcessedEvent{
		PaymentID:     res.Payment.ID,
		OrderID:       res.Payment.OrderID,
		Status:        res.Payment.Status,
		TransactionID: res.Payment.TransactionID,
		ProcessedAt:   *res.Payment.ProcessedAt,
	})
	return res, nil
}

// PENDINGからだけ取り消せる。注文も取消、在庫を戻す
func (u *PaymentUsecase) CancelPayment(ctx context.Context, actor Actor, paymentID int64) (PaymentResult, error) {
	if actor.UserID <= 0 {
		return PaymentResult{}, ErrUnauthorized
	}
	if paymentID <= 0 {
		return PaymentResult{}, validationError("invalid id")
	}

	var res PaymentResult
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, o, err := u.lockPayment(ctx, r, actor, paymentID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentStatusPending {
			return conflict(ErrInvalidTransition, "only pending payments can be cancelled")
		}

		now := u.clock.Now()
		ok, err := r.Payments().TransitionFromPending(ctx, p.ID, model.PaymentStatusCancelled, nil, now)
		if err != nil {
			return internal(err)
		}
		if !ok {
			return conflict(ErrInvalidTransition, "only pending payments can be cancelled")
		}

		if err := releaseStock(ctx, r, o.ID); err != nil {
			return err
		}
		if !o.Status.IsTerminal() {
			if err := r.Orders().UpdateStatus(ctx, o.ID, model.OrderStatusCancelled); err != nil {
				return internal(err)
			}
		}

		p.Status = model.PaymentStatusCancelled
		p.ProcessedAt = &now
		p.UpdatedAt = now
		res = PaymentResult{Payment: p, Message: "payment cancelled"}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	paymentsProcessed.WithLabelValues(string(model.PaymentStatusCancelled)).Inc()
	publishAfterCommit(ctx, u.events, EventPaymentProcessed, PaymentProcessedEvent{
		PaymentID:   res.Payment.ID,
		OrderID:     res.Payment.OrderID,
		Status:      res.Payment.Status,
		ProcessedAt: *res.Payment.ProcessedAt,
	})
	return res, nil
}

// 行ロックで取り、注文の所有者も確認する
func (u *PaymentUsecase) lockPayment(ctx context.Context, r repo.TxRepos, actor Actor, paymentID int64) (model.Payment, model.Order, error) {
	p, err := r.Payments().FindByIDForUpdate(ctx, paymentID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Payment{}, model.Order{}, notFound("payment")
	}
	if err != nil {
		return model.Payment{}, model.Order{}, internal(err)
	}
	o, err := r.Orders().FindByID(ctx, p.OrderID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !orderVisibleTo(o, actor)) {
		return model.Payment{}, model.Order{}, notFound("payment")
	}
	if err != nil {
		return model.Payment{}, model.Order{}, internal(err)
	}
	return p, o, nil
}

func (u *PaymentUsecase) GetPayment(ctx context.Context, actor Actor, paymentID int64) (model.Payment, error) {
	if paymentID <= 0 {
		return model.Payment{}, validationError("invalid id")
	}
	var out model.Payment
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Payments().FindByID(ctx, paymentID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("payment")
		}
		if err != nil {
			return internal(err)
		}
		if err := u.checkVisible(ctx, r, actor, p.OrderID); err != nil {
			return notFound("payment")
		}
		out = p
		return nil
	})
	return out, err
}

func (u *PaymentUsecase) GetPaymentByOrder(ctx context.Context, actor Actor, orderID int64) (model.Payment, error) {
	if orderID <= 0 {
		return model.Payment{}, validationError("invalid id")
	}
	var out model.Payment
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := u.checkVisible(ctx, r, actor, orderID); err != nil {
			return err
		}
		p, err := r.Payments().FindByOrderID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("payment")
		}
		if err != nil {
			return internal(err)
		}
		out = p
		return nil
	})
	return out, err
}

func (u *PaymentUsecase) checkVisible(ctx context.Context, r repo.TxRepos, actor Actor, orderID int64) error {
	o, err := r.Orders().FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound("order")
	}
	if err != nil {
		return internal(err)
	}
	if !orderVisibleTo(o, actor) {
		return notFound("order")
	}
	return nil
}

// 管理者用
func (u *PaymentUsecase) ListPayments(ctx context.Context, page, limit int, status string) (PaymentListOutput, error) {
	page, limit, err := normalizePage(page, limit, 20)
	if err != nil {
		return PaymentListOutput{}, err
	}
	status = strings.ToUpper(strings.TrimSpace(status))
	switch model.PaymentStatus(status) {
	case "", model.PaymentStatusPending, model.PaymentStatusApproved, model.PaymentStatusRejected, model.PaymentStatusCancelled:
	default:
		return PaymentListOutput{}, validationError("invalid status")
	}

	var out PaymentListOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		ps, total, err := r.Payments().List(ctx, repo.PaymentListFilter{Page: page, Limit: limit, Status: status})
		if err != nil {
			return internal(err)
		}
		out = PaymentListOutput{Payments: ps, Pagination: newPagination(page, limit, total)}
		return nil
	})
	if err != nil {
		return PaymentListOutput{}, err
	}
	return out, nil
}
