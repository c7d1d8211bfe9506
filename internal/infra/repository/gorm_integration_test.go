package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/infra/db"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// TEST_DATABASE_URL が無ければスキップ（docker compose の postgres を想定）
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	gdb, err := db.Connect(config.Config{DatabaseURL: url, DBMaxOpenConns: 20, DBMaxIdleConns: 5})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}

func seedVariant(t *testing.T, gdb *gorm.DB, stock int64) model.ProductVariant {
	t.Helper()
	suffix := uuid.NewString()[:8]
	cat := model.Category{Name: "cat-" + suffix, Slug: "cat-" + suffix, IsActive: true}
	require.NoError(t, gdb.Create(&cat).Error)

	p := model.Product{Name: "p-" + suffix, Price: decimal.RequireFromString("10.00"), CategoryID: cat.ID, IsActive: true}
	require.NoError(t, gdb.Create(&p).Error)

	v := model.ProductVariant{ProductID: p.ID, Size: "M", Stock: stock}
	require.NoError(t, gdb.Create(&v).Error)
	return v
}

func TestInventory_DecreaseStockIfEnough_Concurrent(t *testing.T) {
	gdb := openTestDB(t)
	v := seedVariant(t, gdb, 5)
	inv := NewInventoryGormRepository(gdb)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done, err := inv.DecreaseStockIfEnough(context.Background(), v.ID, 1)
			assert.NoError(t, err)
			if done {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	got, err := inv.FindVariant(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Stock)
}

func TestTxManager_RollbackRestoresStock(t *testing.T) {
	gdb := openTestDB(t)
	v := seedVariant(t, gdb, 3)
	tm := NewTxManagerGorm(gdb)
	boom := errors.New("boom")

	err := tm.WithinTx(context.Background(), func(r repo.TxRepos) error {
		done, err := r.Inventory().DecreaseStockIfEnough(context.Background(), v.ID, 2)
		require.NoError(t, err)
		require.True(t, done)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := NewInventoryGormRepository(gdb).FindVariant(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Stock)
}

func TestOrders_IdempotencyKeyIsUniquePerUser(t *testing.T) {
	gdb := openTestDB(t)
	orders := NewOrderGormRepository(gdb)
	ctx := context.Background()

	userID := int64(900000 + uuid.New().ID()%100000)
	key := "k-" + uuid.NewString()
	newOrder := func(uid int64) *model.Order {
		return &model.Order{
			OrderNumber:    "T" + uuid.NewString()[:20],
			UserID:         &uid,
			Total:          decimal.NewFromInt(1),
			Status:         model.OrderStatusPending,
			PaymentMethod:  "pix",
			IdempotencyKey: &key,
		}
	}

	require.NoError(t, orders.Create(ctx, newOrder(userID)))
	err := orders.Create(ctx, newOrder(userID))
	assert.ErrorIs(t, err, repo.ErrConflict)

	// 別ユーザーなら同じキーでもOK
	assert.NoError(t, orders.Create(ctx, newOrder(userID+1)))

	found, ok, err := orders.FindByIdempotencyKey(ctx, userID, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.OrderStatusPending, found.Status)
}

func TestOrders_ReleaseStockOnlyOnce(t *testing.T) {
	gdb := openTestDB(t)
	orders := NewOrderGormRepository(gdb)
	ctx := context.Background()

	o := &model.Order{
		OrderNumber:   "T" + uuid.NewString()[:20],
		Total:         decimal.NewFromInt(1),
		Status:        model.OrderStatusPending,
		PaymentMethod: "pix",
		StockReserved: true,
	}
	require.NoError(t, orders.Create(ctx, o))

	first, err := orders.ReleaseStock(ctx, o.ID)
	require.NoError(t, err)
	second, err := orders.ReleaseStock(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
}

func TestCartItems_VariantlessLineIsUniqueUnderConcurrency(t *testing.T) {
	gdb := openTestDB(t)
	v := seedVariant(t, gdb, 5)
	carts := NewCartItemGormRepository(gdb)
	userID := int64(900000 + uuid.New().ID()%100000)

	var ok, conflicts atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			// variant_id は NULL のまま
			err := carts.Create(context.Background(), &model.CartItem{UserID: userID, ProductID: v.ProductID, Quantity: 1})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, repo.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), conflicts.Load())

	var n int64
	require.NoError(t, gdb.Model(&model.CartItem{}).Where("user_id = ? AND product_id = ?", userID, v.ProductID).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	// variant 付きの行は別の行として入る
	assert.NoError(t, carts.Create(context.Background(), &model.CartItem{UserID: userID, ProductID: v.ProductID, VariantID: &v.ID, Quantity: 1}))
}
