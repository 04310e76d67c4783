package service_test

import (
	"errors"
	"math"
	"testing"

	"ChipStake/internal/model"
	"ChipStake/internal/service"
)

func settlementEvent(rakeFraction float64) *model.Event {
	return &model.Event{
		ID:           7,
		EventUUID:    "evt-007",
		Name:         "结算测试事件",
		Status:       model.EventLocked,
		RakeFraction: rakeFraction,
	}
}

func choicePair(poolA, poolB float64) []*model.EventChoice {
	return []*model.EventChoice{
		{ID: 1, EventID: 7, Label: "A", TotalPool: poolA},
		{ID: 2, EventID: 7, Label: "B", TotalPool: poolB},
	}
}

func bet(id uint64, userID uint64, label string, amount float64) *model.Bet {
	return &model.Bet{
		ID:          id,
		BetUUID:     "bet-" + label,
		EventID:     7,
		UserID:      userID,
		ChoiceLabel: label,
		Amount:      amount,
		Status:      model.BetActive,
	}
}

// 两人对赌：A 盘 1000、B 盘 500，A 胜，事件抽成 1%、奖池抽成 2.5%
func TestComputePayouts_TwoSided(t *testing.T) {
	event := settlementEvent(0.01)
	choices := choicePair(1000, 500)
	bets := []*model.Bet{
		bet(1, 11, "A", 1000),
		bet(2, 22, "B", 500),
	}

	calc, err := service.ComputePayouts(event, choices, bets, 0.025, "A")
	if err != nil {
		t.Fatalf("ComputePayouts 失败: %v", err)
	}
	if calc.Degenerate {
		t.Fatal("有人押中获胜选项，不应退化")
	}
	if !approxEqual(calc.TotalPool, 1500) {
		t.Errorf("total_pool = %.6f, want 1500", calc.TotalPool)
	}
	if !approxEqual(calc.WinningPool, 1000) {
		t.Errorf("winning_pool = %.6f, want 1000", calc.WinningPool)
	}
	// 事件抽成 1500*0.01=15，奖池抽成 (1500-15)*0.025=37.125
	if !approxEqual(calc.EventRakeAmount, 15) {
		t.Errorf("event_rake = %.6f, want 15", calc.EventRakeAmount)
	}
	if !approxEqual(calc.PrizeRakeAmount, 37.125) {
		t.Errorf("prize_rake = %.6f, want 37.125", calc.PrizeRakeAmount)
	}
	if !approxEqual(calc.DistributionPool, 1447.875) {
		t.Errorf("distribution_pool = %.6f, want 1447.875", calc.DistributionPool)
	}

	if len(calc.Winners) != 1 {
		t.Fatalf("期望 1 笔派彩，got %d", len(calc.Winners))
	}
	w := calc.Winners[0]
	if w.UserID != 11 || w.BetID != 1 {
		t.Errorf("派彩归属错误: %+v", w)
	}
	// 唯一中奖者独得分配池
	if !approxEqual(w.Payout, 1447.875) {
		t.Errorf("payout = %.6f, want 1447.875", w.Payout)
	}
	if len(calc.LosingBetIDs) != 1 || calc.LosingBetIDs[0] != 2 {
		t.Errorf("落败注单错误: %v", calc.LosingBetIDs)
	}
}

// 多名中奖者按注额比例分配，Σ payout == 分配池（浮点容差内）
func TestComputePayouts_Proportional(t *testing.T) {
	event := settlementEvent(0.05)
	choices := choicePair(300, 700)
	bets := []*model.Bet{
		bet(1, 11, "A", 100),
		bet(2, 22, "A", 200),
		bet(3, 33, "B", 700),
	}

	calc, err := service.ComputePayouts(event, choices, bets, 0.025, "A")
	if err != nil {
		t.Fatalf("ComputePayouts 失败: %v", err)
	}
	if len(calc.Winners) != 2 {
		t.Fatalf("期望 2 笔派彩，got %d", len(calc.Winners))
	}

	var sum float64
	for _, w := range calc.Winners {
		sum += w.Payout
	}
	if !approxEqual(sum, calc.DistributionPool) {
		t.Errorf("Σ payout = %.6f, 分配池 = %.6f", sum, calc.DistributionPool)
	}
	// 2:1 的注额比例对应 2:1 的派彩比例
	ratio := calc.Winners[1].Payout / calc.Winners[0].Payout
	if math.Abs(ratio-2) > 1e-9 {
		t.Errorf("派彩比例 = %.9f, want 2", ratio)
	}
}

// 守恒检验：分配池 + 两段抽成 == 总池
func TestComputePayouts_Conservation(t *testing.T) {
	event := settlementEvent(0.08)
	choices := choicePair(123.456789, 987.654321)
	bets := []*model.Bet{
		bet(1, 11, "A", 123.456789),
		bet(2, 22, "B", 987.654321),
	}

	calc, err := service.ComputePayouts(event, choices, bets, 0.025, "B")
	if err != nil {
		t.Fatalf("ComputePayouts 失败: %v", err)
	}
	total := calc.DistributionPool + calc.EventRakeAmount + calc.PrizeRakeAmount
	if !approxEqual(total, calc.TotalPool) {
		t.Errorf("分配池+抽成 = %.6f, 总池 = %.6f", total, calc.TotalPool)
	}
}

// 无人押中获胜选项：退化为全额退注，不收任何抽成
func TestComputePayouts_DegenerateEmptyWinningPool(t *testing.T) {
	event := settlementEvent(0.01)
	choices := choicePair(0, 800)
	bets := []*model.Bet{
		bet(1, 11, "B", 500),
		bet(2, 22, "B", 300),
	}

	calc, err := service.ComputePayouts(event, choices, bets, 0.025, "A")
	if err != nil {
		t.Fatalf("ComputePayouts 失败: %v", err)
	}
	if !calc.Degenerate {
		t.Fatal("winning_pool 为零应退化")
	}
	if calc.EventRakeAmount != 0 || calc.PrizeRakeAmount != 0 || calc.DistributionPool != 0 {
		t.Errorf("退化结算不应产生抽成/分配池: %+v", calc)
	}
	if len(calc.Winners) != 0 {
		t.Errorf("退化结算不应产生派彩: %v", calc.Winners)
	}
}

// 零抽成事件：分配池即总池
func TestComputePayouts_ZeroRake(t *testing.T) {
	event := settlementEvent(0)
	choices := choicePair(600, 400)
	bets := []*model.Bet{
		bet(1, 11, "A", 600),
		bet(2, 22, "B", 400),
	}

	calc, err := service.ComputePayouts(event, choices, bets, 0, "A")
	if err != nil {
		t.Fatalf("ComputePayouts 失败: %v", err)
	}
	if !approxEqual(calc.DistributionPool, 1000) {
		t.Errorf("零抽成分配池 = %.6f, want 1000", calc.DistributionPool)
	}
	if !approxEqual(calc.Winners[0].Payout, 1000) {
		t.Errorf("payout = %.6f, want 1000", calc.Winners[0].Payout)
	}
}

func TestComputePayouts_InvalidWinningChoice(t *testing.T) {
	event := settlementEvent(0.01)
	choices := choicePair(100, 100)

	_, err := service.ComputePayouts(event, choices, nil, 0.025, "C")
	var ic *service.InvalidChoiceError
	if !errors.As(err, &ic) {
		t.Fatalf("期望 InvalidChoiceError，got %v", err)
	}
	if ic.Choice != "C" {
		t.Errorf("Choice = %s, want C", ic.Choice)
	}
	if len(ic.Valid) != 2 {
		t.Errorf("Valid = %v, want [A B]", ic.Valid)
	}
}
