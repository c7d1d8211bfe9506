package usecase

import (
	"testing"
	"time"
)

// 注文番号の採番を差し替える（テスト終了で戻す）
func SetOrderNumberGen(t testing.TB, gen func(time.Time) string) {
	t.Helper()
	prev := orderNumberGen
	orderNumberGen = gen
	t.Cleanup(func() { orderNumberGen = prev })
}
