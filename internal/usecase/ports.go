package usecase

import (
	"context"
	"io"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
)

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID() string
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// 二重送信のロックと結果の記録（Redisなど）
// TryLock が返したトークンを持つ呼び出し元だけが Unlock できる
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (token string, ok bool, err error)
	Unlock(ctx context.Context, scope, key, token string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

// コミット後のイベント通知
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentProcessed   = "payment.processed"
)

type GatewayResult struct {
	Approved      bool
	TransactionID string
}

// 決済の承認/否認を決める
type PaymentGateway interface {
	Authorize(ctx context.Context, p model.Payment) (GatewayResult, error)
}

type Mail struct {
	To      []string
	ReplyTo string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// 画像の保存先。保存したファイル名を返す
type ImageStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Delete(ctx context.Context, name string) error
}

// 未設定のときに使う
type nopIdempotencyStore struct{}

func (nopIdempotencyStore) TryLock(context.Context, string, string) (string, bool, error) {
	return "", true, nil
}

func (nopIdempotencyStore) Unlock(context.Context, string, string, string) error {
	return nil
}

func (nopIdempotencyStore) Remember(context.Context, string, string, string) error {
	return nil
}

func (nopIdempotencyStore) Recall(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

// 送信失敗はリクエストを失敗させない
func publishAfterCommit(ctx context.Context, pub EventPublisher, routingKey string, payload any) {
	if err := pub.Publish(ctx, routingKey, payload); err != nil {
		logging.FromCtx(ctx).Warn("event publish failed", "routing_key", routingKey, "err", err)
	}
}
