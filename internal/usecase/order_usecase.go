package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	idemScopeOrder = "order"
	// order_number 衝突時の作り直し回数
	orderNumberAttempts = 3
)

// 注文のinsertが一意制約に当たった（idempotency key か order_number）
var errOrderConflict = errors.New("order insert conflict")

type OrderUsecase struct {
	tx        repo.TransactionManager
	addresses repo.AddressRepository
	idem      IdempotencyStore
	events    EventPublisher
	clock     Clock
}

// idem / events はnilなら使わない
func NewOrderUsecase(
	tx repo.TransactionManager,
	addresses repo.AddressRepository,
	idem IdempotencyStore,
	events EventPublisher,
	clock Clock,
) *OrderUsecase {
	if idem == nil {
		idem = nopIdempotencyStore{}
	}
	if events == nil {
		events = nopPublisher{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &OrderUsecase{tx: tx, addresses: addresses, idem: idem, events: events, clock: clock}
}

type PlaceOrderInput struct {
	AddressID      int64
	PaymentMethod  string
	Notes          string
	IdempotencyKey string
}

type PlaceOrderResult struct {
	Order OrderOutput
	//同じidempotency keyで既に作られていた
	Replayed bool
}

type OrderPlacedEvent struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
	PlacedAt    time.Time       `json:"placed_at"`
}

// EMY + unixミリ秒 + 4桁
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("EMY%d%04d", now.UnixMilli(), rand.IntN(10000))
}

// テストで差し替える
var orderNumberGen = newOrderNumber

// カートから注文を確定する。
// 注文・明細・支払い作成、在庫減算、カート削除は全部同じTxで、どれか失敗したら全部戻る
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (PlaceOrderResult, error) {
	res, err := u.placeOrder(ctx, userID, in)
	if err != nil {
		recordPlacementFailure(err)
		return PlaceOrderResult{}, err
	}
	if !res.Replayed {
		ordersPlaced.Inc()
		publishAfterCommit(ctx, u.events, EventOrderPlaced, OrderPlacedEvent{
			OrderID:     res.Order.ID,
			OrderNumber: res.Order.OrderNumber,
			UserID:      userID,
			Total:       res.Order.Total,
			ItemCount:   len(res.Order.Items),
			PlacedAt:    res.Order.CreatedAt,
		})
	}
	return res, nil
}

func (u *OrderUsecase) placeOrder(ctx context.Context, userID int64, in PlaceOrderInput) (PlaceOrderResult, error) {
	if userID <= 0 {
		return PlaceOrderResult{}, ErrUnauthorized
	}
	method := strings.ToUpper(strings.TrimSpace(in.PaymentMethod))
	if in.AddressID <= 0 || method == "" {
		return PlaceOrderResult{}, validationError("address_id and payment_method are required")
	}
	if len(method) > 30 {
		return PlaceOrderResult{}, validationError("invalid payment_method")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > 255 {
		return PlaceOrderResult{}, validationError("invalid idempotency key")
	}

	//address_idの存在確認＋所有チェック（他人の住所も404）
	addr, err := u.addresses.FindByID(ctx, in.AddressID)
	if errors.Is(err, repo.ErrNotFound) {
		return PlaceOrderResult{}, notFound("address")
	}
	if err != nil {
		return PlaceOrderResult{}, internal(err)
	}
	if addr.UserID != userID {
		return PlaceOrderResult{}, notFound("address")
	}

	scope := idemScopeOrder + ":" + strconv.FormatInt(userID, 10)
	if key != "" {
		//結果を覚えていればそれを返す
		if v, ok, err := u.idem.Recall(ctx, scope, key); err == nil && ok {
			if id, perr := strconv.ParseInt(v, 10, 64); perr == nil {
				if out, err := u.findOwnOrder(ctx, userID, id); err == nil {
					return PlaceOrderResult{Order: out, Replayed: true}, nil
				}
			}
		}

		token, locked, err := u.idem.TryLock(ctx, scope, key)
		if err != nil {
			//Redisが落ちていてもDBの一意制約で守れる
			logging.FromCtx(ctx).Warn("idempotency lock unavailable", "err", err)
		} else if !locked {
			return PlaceOrderResult{}, ErrIdempotencyInFlight
		} else {
			defer func() {
				// 自分のトークンのときだけ消える
				if err := u.idem.Unlock(context.WithoutCancel(ctx), scope, key, token); err != nil {
					logging.FromCtx(ctx).Warn("idempotency unlock failed", "err", err)
				}
			}()
		}
	}

	var res PlaceOrderResult
	for attempt := 1; ; attempt++ {
		res, err = u.createOrder(ctx, userID, key, addr.ID, method, in.Notes)
		if !errors.Is(err, errOrderConflict) {
			break
		}
		if key != "" {
			//先に入った方の注文があればそれを返す。無ければ order_number の衝突
			o, ferr := u.findByIdempotencyKey(ctx, userID, key)
			if ferr == nil {
				return PlaceOrderResult{Order: o, Replayed: true}, nil
			}
			if !errors.Is(ferr, ErrIdempotencyInFlight) {
				return PlaceOrderResult{}, ferr
			}
		}
		if attempt >= orderNumberAttempts {
			return PlaceOrderResult{}, internal(fmt.Errorf("order number collision after %d attempts", attempt))
		}
		logging.FromCtx(ctx).Warn("order number collision, retrying", "attempt", attempt)
	}
	if err != nil {
		return PlaceOrderResult{}, err
	}

	if key != "" && !res.Replayed {
		if err := u.idem.Remember(ctx, scope, key, strconv.FormatInt(res.Order.ID, 10)); err != nil {
			logging.FromCtx(ctx).Warn("idempotency remember failed", "err", err)
		}
	}
	return res, nil
}

// 1回分のTx。insertが一意制約に当たったら errOrderConflict
func (u *OrderUsecase) createOrder(ctx context.Context, userID int64, key string, addressID int64, method, notes string) (PlaceOrderResult, error) {
	var out OrderOutput
	replayed := false

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		if key != "" {
			existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
			if err != nil {
				return internal(err)
			}
			if found {
				out, err = loadOrderOutput(ctx, r, existing)
				replayed = true
				return err
			}
		}

		//カート明細を行ロックで取得（同時確定は片方が待つ）
		lines, err := r.CartItems().LockByUserID(ctx, userID)
		if err != nil {
			return internal(err)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		//先に全行をチェック
		priced, err := priceCartLines(ctx, r, lines)
		if err != nil {
			return err
		}

		now := u.clock.Now()
		items := make([]model.OrderItem, 0, len(priced))
		total := decimal.Zero
		for _, pl := range priced {
			it := model.OrderItem{
				ProductID:   pl.product.ID,
				VariantID:   pl.line.VariantID,
				ProductName: pl.product.Name,
				Quantity:    pl.line.Quantity,
				Price:       pl.product.Price,
				CreatedAt:   now,
			}
			if pl.variant != nil {
				it.Size = pl.variant.Size
			}
			total = total.Add(it.Subtotal())
			items = append(items, it)
		}

		// 注文作成
		order := model.Order{
			OrderNumber:   orderNumberGen(now),
			UserID:        &userID,
			AddressID:     &addressID,
			Total:         total,
			Status:        model.OrderStatusPending,
			PaymentMethod: method,
			Notes:         strings.TrimSpace(notes),
			StockReserved: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if key != "" {
			order.IdempotencyKey = &key
		}
		if err := r.Orders().Create(ctx, &order); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return errOrderConflict
			}
			return internal(err)
		}

		//注文明細一括作成
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

		//在庫を確定時に減らす（足りなければ全部ロールバック）
		for _, pl := range priced {
			if pl.variant == nil {
				continue
			}
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, pl.variant.ID, pl.line.Quantity)
			if err != nil {
				return internal(err)
			}
			if !ok {
				available := int64(0)
				if v, err := r.Inventory().FindVariant(ctx, pl.variant.ID); err == nil {
					available = v.Stock
				}
				return insufficientStock(pl.product.Name, available)
			}
		}

		//カートを空にする
		if err := r.CartItems().DeleteByUserID(ctx, userID); err != nil {
			return internal(err)
		}

		out = toOrderOutput(order, items, &payment)
		return nil
	})
	if err != nil {
		return PlaceOrderResult{}, err
	}
	return PlaceOrderResult{Order: out, Replayed: replayed}, nil
}

type pricedLine struct {
	line    model.CartItem
	product model.Product
	variant *model.ProductVariant
}

// 商品・バリアント・在庫を確認し、最新の価格を取る
func priceCartLines(ctx context.Context, r repo.TxRepos, lines []model.CartItem) ([]pricedLine, error) {
	out := make([]pricedLine, 0, len(lines))
	for _, ci := range lines {
		p, err := r.Products().FindByID(ctx, ci.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, validationError(fmt.Sprintf("product %d is no longer available", ci.ProductID))
		}
		if err != nil {
			return nil, internal(err)
		}
		if !p.IsActive {
			return nil, validationError(fmt.Sprintf("product %s is no longer available", p.Name))
		}

		pl := pricedLine{line: ci, product: p}
		if ci.VariantID != nil {
			v, err := r.Inventory().FindVariant(ctx, *ci.VariantID)
			if errors.Is(err, repo.ErrNotFound) || (err == nil && v.ProductID != p.ID) {
				return nil, validationError(fmt.Sprintf("variant of %s is no longer available", p.Name))
			}
			if err != nil {
				return nil, internal(err)
			}
			if v.Stock < ci.Quantity {
				return nil, insufficientStock(p.Name, v.Stock)
			}
			pl.variant = &v
		}
		out = append(out, pl)
	}
	return out, nil
}

func (u *OrderUsecase) findByIdempotencyKey(ctx context.Context, userID int64, key string) (OrderOutput, error) {
	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return internal(err)
		}
		if !found {
			return ErrIdempotencyInFlight
		}
		out, err = loadOrderOutput(ctx, r, o)
		return err
	})
	return out, err
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, ErrUnauthorized
	}
	page, limit, err := normalizePage(page, limit, 10)
	if err != nil {
		return OrderListOutput{}, err
	}

	var out OrderListOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit)
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

func (u *OrderUsecase) GetMyOrder(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, ErrUnauthorized
	}
	if orderID <= 0 {
		return OrderOutput{}, validationError("invalid id")
	}
	return u.findOwnOrder(ctx, userID, orderID)
}

func (u *OrderUsecase) findOwnOrder(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("order")
		}
		if err != nil {
			return internal(err)
		}
		//他人の注文は「存在しない扱い」にする
		if !orderVisibleTo(o, Actor{UserID: userID, Role: model.RoleCustomer}) {
			return notFound("order")
		}
		out, err = loadOrderOutput(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}
