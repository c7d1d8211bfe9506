package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	repo "storefront/internal/repository"
	"storefront/internal/validator"

	"github.com/shopspring/decimal"
)

type AdminOrderUsecase struct {
	tx        repo.TransactionManager
	users     repo.UserRepository
	addresses repo.AddressRepository
	events    EventPublisher
	clock     Clock
}

func NewAdminOrderUsecase(
	tx repo.TransactionManager,
	users repo.UserRepository,
	addresses repo.AddressRepository,
	events EventPublisher,
	clock Clock,
) *AdminOrderUsecase {
	if events == nil {
		events = nopPublisher{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &AdminOrderUsecase{tx: tx, users: users, addresses: addresses, events: events, clock: clock}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

type AdminOrderItemInput struct {
	ProductID int64
	VariantID *int64
	Quantity  int64
}

// 会員（UserID）かゲスト（Customer*）のどちらか
type AdminCreateOrderInput struct {
	UserID *int64

	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	CustomerAddress string
	CustomerCity    string
	CustomerZipCode string

	Items         []AdminOrderItemInput
	PaymentMethod string
	Notes         string
	Status        string
}

type OrderStatusChangedEvent struct {
	OrderID   int64             `json:"order_id"`
	From      model.OrderStatus `json:"from"`
	To        model.OrderStatus `json:"to"`
	ChangedAt time.Time         `json:"changed_at"`
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrderListOutput, error) {
	page, limit, err := normalizePage(f.Page, f.Limit, 20)
	if err != nil {
		return OrderListOutput{}, err
	}
	f.Page, f.Limit = page, limit
	if f.Status != "" && !model.OrderStatus(f.Status).Valid() {
		return OrderListOutput{}, validationError("invalid status")
	}

	var out OrderListOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return internal(err)
		}

		out.Orders = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			oo, err := loadOrderOutput(ctx, r, o)
			if err != nil {
				return err
			}
			out.Orders = append(out.Orders, oo)
		}
		out.Pagination = newPagination(page, limit, total)
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

func (u *AdminOrderUsecase) Get(ctx context.Context, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}
	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("order")
		}
		if err != nil {
			return internal(err)
		}
		out, err = loadOrderOutput(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 管理者による手動作成。カートと在庫は触らない
func (u *AdminOrderUsecase) CreateOrder(ctx context.Context, actorAdminUserID int64, in AdminCreateOrderInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, ErrUnauthorized
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, validationError("items are required")
	}
	for _, it := range in.Items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			return OrderOutput{}, validationError("invalid item")
		}
	}
	method := strings.ToUpper(strings.TrimSpace(in.PaymentMethod))
	if method == "" || len(method) > 30 {
		return OrderOutput{}, validationError("invalid payment_method")
	}
	status := model.OrderStatusPending
	if s := strings.ToUpper(strings.TrimSpace(in.Status)); s != "" {
		status = model.OrderStatus(s)
		if !status.Valid() {
			return OrderOutput{}, validationError("invalid status")
		}
	}

	order := model.Order{
		Status:        status,
		PaymentMethod: method,
		Notes:         strings.TrimSpace(in.Notes),
	}

	if in.UserID != nil {
		// 会員：デフォルト住所を注文の住所にする
		user, err := u.users.FindByID(ctx, *in.UserID)
		if errors.Is(err, repo.ErrNotFound) {
			return OrderOutput{}, validationError("user not found")
		}
		if err != nil {
			return OrderOutput{}, internal(err)
		}
		addr, err := u.addresses.FindDefaultByUserID(ctx, user.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return OrderOutput{}, validationError("user has no default address")
		}
		if err != nil {
			return OrderOutput{}, internal(err)
		}
		order.UserID = &user.ID
		order.AddressID = &addr.ID
	} else {
		//ゲスト
		name := strings.TrimSpace(in.CustomerName)
		email := validator.NormalizeEmail(in.CustomerEmail)
		if name == "" || email == "" {
			return OrderOutput{}, validationError("customer_name and customer_email are required")
		}
		if !validator.IsEmailLike(email) {
			return OrderOutput{}, validationError("invalid customer_email")
		}
		order.CustomerName = name
		order.CustomerEmail = email
		order.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
		order.CustomerAddress = strings.TrimSpace(in.CustomerAddress)
		order.CustomerCity = strings.TrimSpace(in.CustomerCity)
		order.CustomerZipCode = strings.TrimSpace(in.CustomerZipCode)
	}

	for attempt := 1; ; attempt++ {
		out, err := u.createOrder(ctx, actorAdminUserID, order, method, in.Items)
		if !errors.Is(err, errOrderConflict) {
			return out, err
		}
		// 管理者作成はidempotency keyなし。衝突は order_number だけ
		if attempt >= orderNumberAttempts {
			return OrderOutput{}, internal(fmt.Errorf("order number collision after %d attempts", attempt))
		}
		logging.FromCtx(ctx).Warn("order number collision, retrying", "attempt", attempt)
	}
}

func (u *AdminOrderUsecase) createOrder(ctx context.Context, actorAdminUserID int64, order model.Order, method string, lines []AdminOrderItemInput) (OrderOutput, error) {
	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		now := u.clock.Now()
		items := make([]model.OrderItem, 0, len(lines))
		total := decimal.Zero
		for _, it := range lines {
			p, err := r.Products().FindByID(ctx, it.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return validationError(fmt.Sprintf("product %d not found", it.ProductID))
			}
			if err != nil {
				return internal(err)
			}
			oi := model.OrderItem{
				ProductID:   p.ID,
				VariantID:   it.VariantID,
				ProductName: p.Name,
				Quantity:    it.Quantity,
				Price:       p.Price,
				CreatedAt:   now,
			}
			if it.VariantID != nil {
				v, err := r.Inventory().FindVariant(ctx, *it.VariantID)
				if errors.Is(err, repo.ErrNotFound) || (err == nil && v.ProductID != p.ID) {
					return validationError(fmt.Sprintf("invalid variant for product %d", p.ID))
				}
				if err != nil {
					return internal(err)
				}
				oi.Size = v.Size
			}
			total = total.Add(oi.Subtotal())
			items = append(items, oi)
		}

		order.OrderNumber = orderNumberGen(now)
		order.Total = total
		order.CreatedAt = now
		order.UpdatedAt = now
		if err := r.Orders().Create(ctx, &order); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return errOrderConflict
			}
			return internal(err)
		}
		if err := r.OrderItems().CreateBulk(ctx, order.ID, items); err != nil {
			return internal(err)
		}

		payment := model.Payment{
			OrderID:   order.ID,
			Method:    method,
			Amount:    total,
			Status:    model.PaymentStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.Payments().Create(ctx, &payment); err != nil {
			return internal(err)
		}

		out = toOrderOutput(order, items, &payment)
		return writeAudit(ctx, r, actorAdminUserID, model.AuditActionCreateOrder, model.AuditResourceOrder, order.ID, nil, out, now)
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// ステータス更新（CANCELLED / REJECTED なら在庫戻し）
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, ErrUnauthorized
	}
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}

	newStatus := model.OrderStatus(strings.ToUpper(strings.TrimSpace(in.Status)))
	if !newStatus.Valid() {
		return OrderOutput{}, validationError("invalid status")
	}

	var (
		out     OrderOutput
		changed bool
		before  model.OrderStatus
	)
	cancelling := newStatus == model.OrderStatusCancelled || newStatus == model.OrderStatusRejected
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 取消は支払い→注文の順で行ロック（ProcessPayment / CancelPayment と同じ順番）
		var payment *model.Payment
		if cancelling {
			p, err := lockPaymentOfOrder(ctx, r, orderID)
			if err != nil {
				return err
			}
			payment = p
		}

		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("order")
		}
		if err != nil {
			return internal(err)
		}

		// すでに同じなら何もしない
		if o.Status == newStatus {
			out, err = loadOrderOutput(ctx, r, o)
			return err
		}
		// 終端ガード
		if o.Status.IsTerminal() {
			return conflict(ErrInvalidTransition, fmt.Sprintf("cannot change %s order", strings.ToLower(string(o.Status))))
		}

		now := u.clock.Now()
		if cancelling {
			//未処理の支払いも一緒に取り消す
			if payment != nil && payment.Status == model.PaymentStatusPending {
				if _, err := r.Payments().TransitionFromPending(ctx, payment.ID, model.PaymentStatusCancelled, nil, now); err != nil {
					return internal(err)
				}
			}
			if err := releaseStock(ctx, r, orderID); err != nil {
				return err
			}
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, newStatus); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("order")
			}
			return internal(err)
		}

		// 監査ログ（UPDATE_ORDER_STATUS）
		if err := writeAudit(ctx, r, actorAdminUserID, model.AuditActionUpdateOrderStatus, model.AuditResourceOrder, orderID,
			map[string]string{"status": string(o.Status)},
			map[string]string{"status": string(newStatus)}, now); err != nil {
			return err
		}

		before = o.Status
		changed = true
		o.Status = newStatus
		o.UpdatedAt = now
		out, err = loadOrderOutput(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderOutput{}, err
	}

	if changed {
		publishAfterCommit(ctx, u.events, EventOrderStatusChanged, OrderStatusChangedEvent{
			OrderID:   orderID,
			From:      before,
			To:        newStatus,
			ChangedAt: out.UpdatedAt,
		})
	}
	return out, nil
}

// 注文の支払いを FOR UPDATE で取る。支払いが無い注文は nil
func lockPaymentOfOrder(ctx context.Context, r repo.TxRepos, orderID int64) (*model.Payment, error) {
	p, err := r.Payments().FindByOrderID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal(err)
	}
	locked, err := r.Payments().FindByIDForUpdate(ctx, p.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal(err)
	}
	return &locked, nil
}

// PENDING / CANCELLED / REJECTED だけ削除できる
func (u *AdminOrderUsecase) Delete(ctx context.Context, actorAdminUserID int64, orderID int64) error {
	if actorAdminUserID <= 0 {
		return ErrUnauthorized
	}
	if orderID <= 0 {
		return validationError("invalid id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// UpdateStatus と同じく支払いを先にロック
		if _, err := lockPaymentOfOrder(ctx, r, orderID); err != nil {
			return err
		}
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("order")
		}
		if err != nil {
			return internal(err)
		}
		switch o.Status {
		case model.OrderStatusPending, model.OrderStatusCancelled, model.OrderStatusRejected:
		default:
			return conflict(ErrInvalidTransition, "only pending or cancelled orders can be deleted")
		}

		// PENDINGで引き当て済みなら戻す（取消済みは戻し済み）
		if err := releaseStock(ctx, r, orderID); err != nil {
			return err
		}
		if err := r.Payments().DeleteByOrderID(ctx, orderID); err != nil {
			return internal(err)
		}
		if err := r.OrderItems().DeleteByOrderID(ctx, orderID); err != nil {
			return internal(err)
		}
		if err := r.Orders().Delete(ctx, orderID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("order")
			}
			return internal(err)
		}

		return writeAudit(ctx, r, actorAdminUserID, model.AuditActionDeleteOrder, model.AuditResourceOrder, orderID,
			map[string]string{"order_number": o.OrderNumber, "status": string(o.Status)}, nil, u.clock.Now())
	})
}

// before/afterはJSONにして残す。nilなら空
func writeAudit(ctx context.Context, r repo.TxRepos, actor int64, action model.AuditAction, rt model.AuditResourceType, id int64, before, after any, at time.Time) error {
	b, err := auditJSON(before)
	if err != nil {
		return internal(err)
	}
	a, err := auditJSON(after)
	if err != nil {
		return internal(err)
	}
	if err := r.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  actor,
		Action:       action,
		ResourceType: rt,
		ResourceID:   id,
		BeforeJSON:   b,
		AfterJSON:    a,
		CreatedAt:    at,
	}); err != nil {
		return internal(err)
	}
	return nil
}

func auditJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// 期間パラメータ（RFC3339）。空ならnil
func ParseDateTimeRFC3339(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, validationError("invalid datetime: " + s)
	}
	return &t, nil
}
