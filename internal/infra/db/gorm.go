package db

import (
	"fmt"
	"log/slog"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/logging"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。プロセスで1つだけ作って各repoに渡す
func Connect(cfg config.Config) (*gorm.DB, error) {
	gl := logger.New(
		slog.NewLogLogger(logging.New("gorm").Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gl,
		//一意制約違反をgorm.ErrDuplicatedKeyに変換
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return gdb, nil
}

// cart_items の1行 = (user, product, variant)。variant_id が NULL の行同士も
// 重複させないため COALESCE で 0 に寄せた式インデックスにする
var cartLineIndexDDL = []string{
	`DROP INDEX IF EXISTS idx_cart_line`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_line_uniq ON cart_items (user_id, product_id, COALESCE(variant_id, 0))`,
}

// Migrate はテーブルを作成・更新する
func Migrate(gdb *gorm.DB) error {
	if err := autoMigrate(gdb); err != nil {
		return err
	}
	for _, ddl := range cartLineIndexDDL {
		if err := gdb.Exec(ddl).Error; err != nil {
			return fmt.Errorf("migrate cart line index: %w", err)
		}
	}
	return nil
}

func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&model.User{},
		&model.Address{},
		&model.Category{},
		&model.Product{},
		&model.ProductVariant{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
		&model.InventoryAdjustment{},
		&model.AuditLog{},
	)
}

// Close はシャットダウン時に呼ぶ
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
