package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/mail"
	"storefront/internal/infra/payment"
	"storefront/internal/infra/queue"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/infra/storage"
	"storefront/internal/logging"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	//.envは無くてもよい（本番は環境変数）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.Init("storefront", cfg.LogFile, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(gormDB); err != nil {
			log.Warn("db close failed", "err", err)
		}
	}()
	if err := db.Migrate(gormDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	addressRepo := infraRepo.NewAddressGormRepository(gormDB)
	categoryRepo := infraRepo.NewCategoryGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartItemGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//Redis（任意）
	var idem usecase.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		idem = cache.NewRedisIdempotencyStore(rdb, cfg.IdempotencyTTL)
		log.Info("idempotency store: redis", "addr", cfg.RedisAddr)
	}

	//RabbitMQ（任意）
	var events usecase.EventPublisher
	if cfg.AMQPURL != "" {
		pub, err := queue.NewRabbitPublisher(cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer pub.Close()
		events = pub
		log.Info("event publisher: rabbitmq")
	}

	//SMTP未設定ならログに出すだけ
	var mailer usecase.Mailer = mail.NewLogMailer(logging.New("mail"))
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.StoreEmail)
	}

	images, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		return err
	}

	clock := usecase.SystemClock{}
	gateway := payment.NewSimulator(cfg.PaymentApprovalRate, clock)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(cfg, userRepo, clock)
	categoryUC := usecase.NewCategoryUsecase(categoryRepo)
	productUC := usecase.NewProductUsecase(productRepo, categoryRepo, txm, clock)
	cartUC := usecase.NewCartUsecase(txm, cartRepo)
	addressUC := usecase.NewAddressUsecase(addressRepo, clock)
	orderUC := usecase.NewOrderUsecase(txm, addressRepo, idem, events, clock)
	paymentUC := usecase.NewPaymentUsecase(txm, gateway, events, clock)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, userRepo, addressRepo, events, clock)
	userAdminUC := usecase.NewUserAdminUsecase(userRepo, txm, clock)
	auditUC := usecase.NewAuditLogUsecase(auditRepo)
	contactUC := usecase.NewContactUsecase(mailer, cfg.StoreEmail)
	uploadUC := usecase.NewUploadUsecase(images, cfg.UploadMaxBytes, nil)

	//Handler生成
	h := server.Handlers{
		Auth:         handler.NewAuthHandler(authUC),
		Product:      handler.NewProductHandler(productUC, categoryUC),
		Cart:         handler.NewCartHandler(cartUC),
		Address:      handler.NewAddressHandler(addressUC),
		Order:        handler.NewOrderHandler(orderUC),
		Payment:      handler.NewPaymentHandler(paymentUC),
		Contact:      handler.NewContactHandler(contactUC),
		Upload:       handler.NewUploadHandler(uploadUC),
		AdminProduct: handler.NewAdminProductHandler(productUC, categoryUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		AdminUser:    handler.NewAdminUserHandler(userAdminUC, auditUC),
	}

	e := server.New(cfg, logging.New("http"), userRepo, h)

	//Server起動
	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}
	start := time.Now()
	err = server.Start(ctx, e, addr, log)
	log.Info("server stopped", "uptime", time.Since(start).String())
	return err
}
