package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/google/uuid"
)

// 実際の決済代行の代わり。approvalRateの確率で承認する
type Simulator struct {
	approvalRate float64
	roll         func() float64
	clock        usecase.Clock
}

func NewSimulator(approvalRate float64, clock usecase.Clock) *Simulator {
	return &Simulator{approvalRate: approvalRate, roll: rand.Float64, clock: clock}
}

// テスト用に乱数を差し替える
func (s *Simulator) WithRoll(roll func() float64) *Simulator {
	s.roll = roll
	return s
}

func (s *Simulator) Authorize(ctx context.Context, p model.Payment) (usecase.GatewayResult, error) {
	if err := ctx.Err(); err != nil {
		return usecase.GatewayResult{}, err
	}
	if s.roll() >= s.approvalRate {
		return usecase.GatewayResult{Approved: false}, nil
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return usecase.GatewayResult{
		Approved:      true,
		TransactionID: fmt.Sprintf("TXN_%d_%s", s.clock.Now().UnixMilli(), suffix),
	}, nil
}

var _ usecase.PaymentGateway = (*Simulator)(nil)
