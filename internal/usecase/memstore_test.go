package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
)

// =====================
// in-memory TxRepos / TransactionManager
// =====================

// memState はコミット単位でまるごと差し替える
type memState struct {
	seq int64

	products    map[int64]model.Product
	variants    map[int64]model.ProductVariant
	cartItems   map[int64]model.CartItem
	orders      map[int64]model.Order
	orderItems  map[int64]model.OrderItem
	payments    map[int64]model.Payment
	adjustments []model.InventoryAdjustment
	auditLogs   []model.AuditLog

	// 行ロック・行更新の順番（"payment:<id>" / "order:<id>"）
	lockTrail []string
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	return &memState{
		seq:         s.seq,
		products:    cloneMap(s.products),
		variants:    cloneMap(s.variants),
		cartItems:   cloneMap(s.cartItems),
		orders:      cloneMap(s.orders),
		orderItems:  cloneMap(s.orderItems),
		payments:    cloneMap(s.payments),
		adjustments: append([]model.InventoryAdjustment(nil), s.adjustments...),
		auditLogs:   append([]model.AuditLog(nil), s.auditLogs...),
		lockTrail:   append([]string(nil), s.lockTrail...),
	}
}

func (s *memState) nextID() int64 {
	s.seq++
	return s.seq
}

// memStore はTxを1本ずつ直列に流す（FOR UPDATEの代わり）
type memStore struct {
	mu    sync.Mutex
	state *memState

	// trueならコミット直前に失敗させる
	failCommit bool
	txCount    int
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		products:   map[int64]model.Product{},
		variants:   map[int64]model.ProductVariant{},
		cartItems:  map[int64]model.CartItem{},
		orders:     map[int64]model.Order{},
		orderItems: map[int64]model.OrderItem{},
		payments:   map[int64]model.Payment{},
	}}
}

var _ repo.TransactionManager = (*memStore)(nil)

func (m *memStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++

	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	if m.failCommit {
		return errCommitFailed
	}
	m.state = work
	return nil
}

var errCommitFailed = errors.New("commit failed")

// ---- seed / inspect helpers ----

func (m *memStore) addProduct(name string, price string, active bool) model.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := model.Product{
		ID:       m.state.nextID(),
		Name:     name,
		Price:    mustDec(price),
		IsActive: active,
	}
	m.state.products[p.ID] = p
	return p
}

func (m *memStore) addVariant(productID int64, size string, stock int64) model.ProductVariant {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := model.ProductVariant{ID: m.state.nextID(), ProductID: productID, Size: size, Stock: stock}
	m.state.variants[v.ID] = v
	return v
}

func (m *memStore) addCartLine(userID, productID int64, variantID *int64, qty int64) model.CartItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	ci := model.CartItem{ID: m.state.nextID(), UserID: userID, ProductID: productID, VariantID: variantID, Quantity: qty}
	m.state.cartItems[ci.ID] = ci
	return ci
}

func (m *memStore) stock(variantID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.variants[variantID].Stock
}

func (m *memStore) cartCount(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ci := range m.state.cartItems {
		if ci.UserID == userID {
			n++
		}
	}
	return n
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders)
}

func (m *memStore) order(id int64) model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.orders[id]
}

func (m *memStore) paymentByOrder(orderID int64) (model.Payment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.state.payments {
		if p.OrderID == orderID {
			return p, true
		}
	}
	return model.Payment{}, false
}

func (m *memStore) lockTrail() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.state.lockTrail...)
}

func (m *memStore) audits() []model.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AuditLog(nil), m.state.auditLogs...)
}

func (m *memStore) adjustments() []model.InventoryAdjustment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.InventoryAdjustment(nil), m.state.adjustments...)
}

// ---- TxRepos ----

type memTx struct{ s *memState }

func (t *memTx) Orders() repo.OrderRepository         { return memOrders{t.s} }
func (t *memTx) OrderItems() repo.OrderItemRepository { return memOrderItems{t.s} }
func (t *memTx) Payments() repo.PaymentRepository     { return memPayments{t.s} }
func (t *memTx) CartItems() repo.CartItemRepository   { return memCartItems{t.s} }
func (t *memTx) Inventory() repo.InventoryRepository  { return memInventory{t.s} }
func (t *memTx) Products() repo.ProductRepository     { return memProducts{t.s} }
func (t *memTx) AuditLogs() repo.AuditLogRepository   { return memAudit{t.s} }

// orders

type memOrders struct{ s *memState }

func (r memOrders) FindByID(_ context.Context, id int64) (model.Order, error) {
	o, ok := r.s.orders[id]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r memOrders) ListByUserID(_ context.Context, userID int64, page, limit int) ([]model.Order, int64, error) {
	var all []model.Order
	for _, o := range r.s.orders {
		if o.UserID != nil && *o.UserID == userID {
			all = append(all, o)
		}
	}
	return paginate(sortOrders(all), page, limit)
}

func (r memOrders) Create(_ context.Context, o *model.Order) error {
	for _, ex := range r.s.orders {
		if ex.OrderNumber == o.OrderNumber {
			return repo.ErrConflict
		}
	}
	if o.IdempotencyKey != nil && o.UserID != nil {
		for _, ex := range r.s.orders {
			if ex.IdempotencyKey != nil && ex.UserID != nil && *ex.UserID == *o.UserID && *ex.IdempotencyKey == *o.IdempotencyKey {
				return repo.ErrConflict
			}
		}
	}
	o.ID = r.s.nextID()
	r.s.orders[o.ID] = *o
	return nil
}

func (r memOrders) UpdateStatus(_ context.Context, id int64, status model.OrderStatus) error {
	o, ok := r.s.orders[id]
	if !ok {
		return repo.ErrNotFound
	}
	r.s.lockTrail = append(r.s.lockTrail, fmt.Sprintf("order:%d", id))
	o.Status = status
	r.s.orders[id] = o
	return nil
}

func (r memOrders) ReleaseStock(_ context.Context, id int64) (bool, error) {
	r.s.lockTrail = append(r.s.lockTrail, fmt.Sprintf("order:%d", id))
	o, ok := r.s.orders[id]
	if !ok || !o.StockReserved {
		return false, nil
	}
	o.StockReserved = false
	r.s.orders[id] = o
	return true, nil
}

func (r memOrders) Delete(_ context.Context, id int64) error {
	if _, ok := r.s.orders[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.s.orders, id)
	return nil
}

func (r memOrders) CountByUserID(_ context.Context, userID int64) (int64, error) {
	var n int64
	for _, o := range r.s.orders {
		if o.UserID != nil && *o.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r memOrders) FindByIdempotencyKey(_ context.Context, userID int64, key string) (model.Order, bool, error) {
	for _, o := range r.s.orders {
		if o.UserID != nil && *o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (r memOrders) ListAdmin(_ context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	var all []model.Order
	for _, o := range r.s.orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		if f.UserID != nil && (o.UserID == nil || *o.UserID != *f.UserID) {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		all = append(all, o)
	}
	return paginate(sortOrders(all), f.Page, f.Limit)
}

func sortOrders(list []model.Order) []model.Order {
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list
}

func paginate[T any](all []T, page, limit int) ([]T, int64, error) {
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return []T{}, total, nil
	}
	end := min(start+limit, len(all))
	return all[start:end], total, nil
}

// order items

type memOrderItems struct{ s *memState }

func (r memOrderItems) CreateBulk(_ context.Context, orderID int64, items []model.OrderItem) error {
	for i := range items {
		items[i].ID = r.s.nextID()
		items[i].OrderID = orderID
		r.s.orderItems[items[i].ID] = items[i]
	}
	return nil
}

func (r memOrderItems) ListByOrderID(_ context.Context, orderID int64) ([]model.OrderItem, error) {
	out := []model.OrderItem{}
	for _, it := range r.s.orderItems {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memOrderItems) DeleteByOrderID(_ context.Context, orderID int64) error {
	for id, it := range r.s.orderItems {
		if it.OrderID == orderID {
			delete(r.s.orderItems, id)
		}
	}
	return nil
}

// payments

type memPayments struct{ s *memState }

func (r memPayments) Create(_ context.Context, p *model.Payment) error {
	for _, ex := range r.s.payments {
		if ex.OrderID == p.OrderID {
			return repo.ErrConflict
		}
	}
	p.ID = r.s.nextID()
	r.s.payments[p.ID] = *p
	return nil
}

func (r memPayments) FindByID(_ context.Context, id int64) (model.Payment, error) {
	p, ok := r.s.payments[id]
	if !ok {
		return model.Payment{}, repo.ErrNotFound
	}
	return p, nil
}

func (r memPayments) FindByIDForUpdate(ctx context.Context, id int64) (model.Payment, error) {
	r.s.lockTrail = append(r.s.lockTrail, fmt.Sprintf("payment:%d", id))
	return r.FindByID(ctx, id)
}

func (r memPayments) FindByOrderID(_ context.Context, orderID int64) (model.Payment, error) {
	for _, p := range r.s.payments {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return model.Payment{}, repo.ErrNotFound
}

func (r memPayments) TransitionFromPending(_ context.Context, id int64, to model.PaymentStatus, txnID *string, at time.Time) (bool, error) {
	p, ok := r.s.payments[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = to
	p.TransactionID = txnID
	p.ProcessedAt = &at
	r.s.payments[id] = p
	return true, nil
}

func (r memPayments) List(_ context.Context, f repo.PaymentListFilter) ([]model.Payment, int64, error) {
	var all []model.Payment
	for _, p := range r.s.payments {
		if f.Status == "" || string(p.Status) == f.Status {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, f.Page, f.Limit)
}

func (r memPayments) DeleteByOrderID(_ context.Context, orderID int64) error {
	for id, p := range r.s.payments {
		if p.OrderID == orderID {
			delete(r.s.payments, id)
		}
	}
	return nil
}

// cart items

type memCartItems struct{ s *memState }

func (r memCartItems) fill(ci model.CartItem) model.CartItem {
	if p, ok := r.s.products[ci.ProductID]; ok {
		ci.Product = &p
	}
	if ci.VariantID != nil {
		if v, ok := r.s.variants[*ci.VariantID]; ok {
			ci.Variant = &v
		}
	}
	return ci
}

func (r memCartItems) ListByUserID(_ context.Context, userID int64) ([]model.CartItem, error) {
	out := []model.CartItem{}
	for _, ci := range r.s.cartItems {
		if ci.UserID == userID {
			out = append(out, r.fill(ci))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memCartItems) LockByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	return r.ListByUserID(ctx, userID)
}

func sameVariant(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r memCartItems) FindLine(_ context.Context, userID, productID int64, variantID *int64) (model.CartItem, error) {
	for _, ci := range r.s.cartItems {
		if ci.UserID == userID && ci.ProductID == productID && sameVariant(ci.VariantID, variantID) {
			return ci, nil
		}
	}
	return model.CartItem{}, repo.ErrNotFound
}

func (r memCartItems) FindByID(_ context.Context, id int64) (model.CartItem, error) {
	ci, ok := r.s.cartItems[id]
	if !ok {
		return model.CartItem{}, repo.ErrNotFound
	}
	return r.fill(ci), nil
}

func (r memCartItems) Create(_ context.Context, item *model.CartItem) error {
	item.ID = r.s.nextID()
	stored := *item
	stored.Product, stored.Variant = nil, nil
	r.s.cartItems[item.ID] = stored
	return nil
}

func (r memCartItems) UpdateQuantity(_ context.Context, id int64, qty int64) error {
	ci, ok := r.s.cartItems[id]
	if !ok {
		return repo.ErrNotFound
	}
	ci.Quantity = qty
	r.s.cartItems[id] = ci
	return nil
}

func (r memCartItems) DeleteByID(_ context.Context, id int64) error {
	if _, ok := r.s.cartItems[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.s.cartItems, id)
	return nil
}

func (r memCartItems) DeleteByUserID(_ context.Context, userID int64) error {
	for id, ci := range r.s.cartItems {
		if ci.UserID == userID {
			delete(r.s.cartItems, id)
		}
	}
	return nil
}

// inventory

type memInventory struct{ s *memState }

func (r memInventory) FindVariant(_ context.Context, id int64) (model.ProductVariant, error) {
	v, ok := r.s.variants[id]
	if !ok {
		return model.ProductVariant{}, repo.ErrNotFound
	}
	return v, nil
}

func (r memInventory) SaveVariant(_ context.Context, v *model.ProductVariant) error {
	if v.ID == 0 {
		v.ID = r.s.nextID()
	} else if ex, ok := r.s.variants[v.ID]; !ok || ex.ProductID != v.ProductID {
		return repo.ErrNotFound
	}
	r.s.variants[v.ID] = *v
	return nil
}

func (r memInventory) DeleteVariantsExcept(_ context.Context, productID int64, keepIDs []int64) error {
	keep := map[int64]bool{}
	for _, id := range keepIDs {
		keep[id] = true
	}
	for id, v := range r.s.variants {
		if v.ProductID == productID && !keep[id] {
			delete(r.s.variants, id)
		}
	}
	return nil
}

func (r memInventory) SetStock(_ context.Context, id int64, stock int64) error {
	v, ok := r.s.variants[id]
	if !ok {
		return repo.ErrNotFound
	}
	v.Stock = stock
	r.s.variants[id] = v
	return nil
}

func (r memInventory) DecreaseStockIfEnough(_ context.Context, id int64, qty int64) (bool, error) {
	v, ok := r.s.variants[id]
	if !ok || v.Stock < qty {
		return false, nil
	}
	v.Stock -= qty
	r.s.variants[id] = v
	return true, nil
}

func (r memInventory) IncreaseStock(_ context.Context, id int64, qty int64) error {
	v, ok := r.s.variants[id]
	if !ok {
		return repo.ErrNotFound
	}
	v.Stock += qty
	r.s.variants[id] = v
	return nil
}

func (r memInventory) CreateAdjustment(_ context.Context, a model.InventoryAdjustment) error {
	a.ID = r.s.nextID()
	r.s.adjustments = append(r.s.adjustments, a)
	return nil
}

// products

type memProducts struct{ s *memState }

func (r memProducts) withVariants(p model.Product) model.Product {
	p.Variants = nil
	for _, v := range r.s.variants {
		if v.ProductID == p.ID {
			p.Variants = append(p.Variants, v)
		}
	}
	sort.Slice(p.Variants, func(i, j int) bool { return p.Variants[i].ID < p.Variants[j].ID })
	return p
}

func (r memProducts) List(_ context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var all []model.Product
	for _, p := range r.s.products {
		if !q.IncludeInactive && !p.IsActive {
			continue
		}
		if q.Q != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Q)) {
			continue
		}
		all = append(all, r.withVariants(p))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, q.Page, q.Limit)
}

func (r memProducts) FindByID(_ context.Context, id int64) (model.Product, error) {
	p, ok := r.s.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return r.withVariants(p), nil
}

func (r memProducts) Create(_ context.Context, p *model.Product) error {
	p.ID = r.s.nextID()
	for i := range p.Variants {
		p.Variants[i].ID = r.s.nextID()
		p.Variants[i].ProductID = p.ID
		r.s.variants[p.Variants[i].ID] = p.Variants[i]
	}
	stored := *p
	stored.Variants = nil
	r.s.products[p.ID] = stored
	return nil
}

func (r memProducts) Update(_ context.Context, p model.Product) error {
	if _, ok := r.s.products[p.ID]; !ok {
		return repo.ErrNotFound
	}
	p.Variants = nil
	r.s.products[p.ID] = p
	return nil
}

func (r memProducts) SoftDelete(_ context.Context, id int64) error {
	if _, ok := r.s.products[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.s.products, id)
	return nil
}

// audit

type memAudit struct{ s *memState }

func (r memAudit) Create(_ context.Context, l model.AuditLog) error {
	l.ID = r.s.nextID()
	r.s.auditLogs = append(r.s.auditLogs, l)
	return nil
}

func (r memAudit) List(_ context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	var out []model.AuditLog
	for _, l := range r.s.auditLogs {
		if f.Action != nil && l.Action != *f.Action {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// =====================
// Tx外のrepo
// =====================

type memAddresses struct {
	mu   sync.Mutex
	seq  int64
	rows map[int64]model.Address
}

func newMemAddresses() *memAddresses {
	return &memAddresses{rows: map[int64]model.Address{}}
}

var _ repo.AddressRepository = (*memAddresses)(nil)

func (r *memAddresses) Create(_ context.Context, a model.Address) (model.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	a.ID = r.seq
	r.rows[a.ID] = a
	return a, nil
}

func (r *memAddresses) ListByUserID(_ context.Context, userID int64) ([]model.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Address{}
	for _, a := range r.rows {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memAddresses) FindByID(_ context.Context, id int64) (model.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return model.Address{}, repo.ErrNotFound
	}
	return a, nil
}

func (r *memAddresses) FindDefaultByUserID(_ context.Context, userID int64) (model.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.UserID == userID && a.IsDefault {
			return a, nil
		}
	}
	return model.Address{}, repo.ErrNotFound
}

func (r *memAddresses) Update(_ context.Context, a model.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[a.ID]; !ok {
		return repo.ErrNotFound
	}
	r.rows[a.ID] = a
	return nil
}

func (r *memAddresses) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memAddresses) SetDefault(_ context.Context, userID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.rows[id]; !ok || a.UserID != userID {
		return repo.ErrNotFound
	}
	for k, a := range r.rows {
		if a.UserID == userID {
			a.IsDefault = k == id
			r.rows[k] = a
		}
	}
	return nil
}

type memUsers struct {
	mu   sync.Mutex
	seq  int64
	rows map[int64]model.User
}

func newMemUsers() *memUsers {
	return &memUsers{rows: map[int64]model.User{}}
}

var _ repo.UserRepository = (*memUsers)(nil)

func (r *memUsers) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.rows {
		if strings.EqualFold(ex.Email, u.Email) {
			return repo.ErrConflict
		}
	}
	r.seq++
	u.ID = r.seq
	r.rows[u.ID] = *u
	return nil
}

func (r *memUsers) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &u, nil
}

func (r *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *memUsers) Update(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[u.ID]; !ok {
		return repo.ErrNotFound
	}
	for _, ex := range r.rows {
		if ex.ID != u.ID && strings.EqualFold(ex.Email, u.Email) {
			return repo.ErrConflict
		}
	}
	r.rows[u.ID] = *u
	return nil
}

func (r *memUsers) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memUsers) List(_ context.Context, f repo.UserListFilter) ([]model.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []model.User
	for _, u := range r.rows {
		if f.Q != "" && !strings.Contains(u.Name+" "+u.Email, f.Q) {
			continue
		}
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, f.Page, f.Limit)
}

func (r *memUsers) Count(_ context.Context, role *model.Role) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.rows {
		if role == nil || u.Role == *role {
			n++
		}
	}
	return n, nil
}

func (r *memUsers) IncrementTokenVersion(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.TokenVersion++
	r.rows[id] = u
	return nil
}

func (r *memUsers) add(u model.User) model.User {
	_ = r.Create(context.Background(), &u)
	return u
}

// =====================
// その他のport
// =====================

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, key)
	return nil
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type memIdempotency struct {
	mu     sync.Mutex
	locks  map[string]string
	values map[string]string
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{locks: map[string]string{}, values: map[string]string{}}
}

func (s *memIdempotency) TryLock(_ context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scope + "|" + key
	if _, held := s.locks[k]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	s.locks[k] = token
	return token, true, nil
}

// 他人のトークンでは消えない
func (s *memIdempotency) Unlock(_ context.Context, scope, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scope + "|" + key
	if s.locks[k] == token {
		delete(s.locks, k)
	}
	return nil
}

func (s *memIdempotency) held(scope, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locks[scope+"|"+key]
	return ok
}

func (s *memIdempotency) Remember(_ context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[scope+"|"+key] = value
	return nil
}

func (s *memIdempotency) Recall(_ context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[scope+"|"+key]
	return v, ok, nil
}

// Tx外から使うカートrepo（1操作=1Tx）
type memCartOutside struct{ m *memStore }

func (m *memStore) cartRepo() repo.CartItemRepository { return memCartOutside{m} }

func (c memCartOutside) ListByUserID(ctx context.Context, userID int64) (out []model.CartItem, err error) {
	err = c.m.WithinTx(ctx, func(r repo.TxRepos) error {
		out, err = r.CartItems().ListByUserID(ctx, userID)
		return err
	})
	return out, err
}

func (c memCartOutside) LockByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	return c.ListByUserID(ctx, userID)
}

func (c memCartOutside) FindLine(ctx context.Context, userID, productID int64, variantID *int64) (out model.CartItem, err error) {
	err = c.m.WithinTx(ctx, func(r repo.TxRepos) error {
		out, err = r.CartItems().FindLine(ctx, userID, productID, variantID)
		return err
	})
	return out, err
}

func (c memCartOutside) FindByID(ctx context.Context, id int64) (out model.CartItem, err error) {
	err = c.m.WithinTx(ctx, func(r repo.TxRepos) error {
		out, err = r.CartItems().FindByID(ctx, id)
		return err
	})
	return out, err
}

func (c memCartOutside) Create(ctx context.Context, item *model.CartItem) error {
	return c.m.WithinTx(ctx, func(r repo.TxRepos) error { return r.CartItems().Create(ctx, item) })
}

func (c memCartOutside) UpdateQuantity(ctx context.Context, id int64, qty int64) error {
	return c.m.WithinTx(ctx, func(r repo.TxRepos) error { return r.CartItems().UpdateQuantity(ctx, id, qty) })
}

func (c memCartOutside) DeleteByID(ctx context.Context, id int64) error {
	return c.m.WithinTx(ctx, func(r repo.TxRepos) error { return r.CartItems().DeleteByID(ctx, id) })
}

func (c memCartOutside) DeleteByUserID(ctx context.Context, userID int64) error {
	return c.m.WithinTx(ctx, func(r repo.TxRepos) error { return r.CartItems().DeleteByUserID(ctx, userID) })
}

// Tx外から使う商品repo
type memProductsOutside struct{ m *memStore }

func (m *memStore) productRepo() repo.ProductRepository { return memProductsOutside{m} }

func (p memProductsOutside) List(ctx context.Context, q repo.ProductListQuery) (out []model.Product, total int64, err error) {
	err = p.m.WithinTx(ctx, func(r repo.TxRepos) error {
		out, total, err = r.Products().List(ctx, q)
		return err
	})
	return out, total, err
}

func (p memProductsOutside) FindByID(ctx context.Context, id int64) (out model.Product, err error) {
	err = p.m.WithinTx(ctx, func(r repo.TxRepos) error {
		out, err = r.Products().FindByID(ctx, id)
		return err
	})
	return out, err
}

func (p memProductsOutside) Create(ctx context.Context, prod *model.Product) error {
	return p.m.WithinTx(ctx, func(r repo.TxRepos) error { return r.Products().Create(ctx, prod) })
}

func (p memProductsOutside) Update(ctx context.Context, prod model.Product) error {
	return p.m.WithinTx(ctx, func(r repo.TxRepos) error { return r.Products().Update(ctx, prod) })
}

func (p memProductsOutside) SoftDelete(ctx context.Context, id int64) error {
	return p.m.WithinTx(ctx, func(r repo.TxRepos) error { return r.Products().SoftDelete(ctx, id) })
}
