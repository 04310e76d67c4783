package service_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"ChipStake/internal/model"
	"ChipStake/internal/service"
)

// chainBuilder 按顺序构造 running-balance 连续的账本流水
type chainBuilder struct {
	running float64
	seq     int
	entries []*model.ChipTransaction
}

func (b *chainBuilder) add(txType model.TransactionType, amount float64) *chainBuilder {
	b.seq++
	e := &model.ChipTransaction{
		ID:            uint64(b.seq),
		TxUUID:        fmt.Sprintf("tx-%03d", b.seq),
		UserID:        1,
		Currency:      model.ChipCurrency,
		Amount:        amount,
		BalanceBefore: b.running,
		BalanceAfter:  b.running + amount,
		TxType:        txType,
	}
	b.running += amount
	b.entries = append(b.entries, e)
	return b
}

func approxEqual(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestProjectBalances_Empty(t *testing.T) {
	got, clamps, err := service.ProjectBalances(1, nil, 0)
	if err != nil {
		t.Fatalf("空账本不应报错: %v", err)
	}
	if len(clamps) != 0 {
		t.Errorf("空账本不应产生截断记录: %v", clamps)
	}
	if got.Total != 0 || got.Purchased != 0 || got.Won != 0 || got.Free != 0 || got.Locked != 0 {
		t.Errorf("空账本应为全零余额: %+v", got)
	}
}

func TestProjectBalances_BucketDecomposition(t *testing.T) {
	b := &chainBuilder{}
	b.add(model.TxDeposit, 100).        // purchased +100
		add(model.TxFreeClaim, 20).     // free +20
		add(model.TxBetPlaced, -30).    // 不参与分类桶
		add(model.TxBetWon, 45).        // won +45
		add(model.TxReferralReward, 5). // free +5
		add(model.TxCashout, -10)       // won -10

	got, clamps, err := service.ProjectBalances(1, b.entries, 30)
	if err != nil {
		t.Fatalf("ProjectBalances 失败: %v", err)
	}
	if len(clamps) != 0 {
		t.Errorf("不应产生截断记录: %v", clamps)
	}
	if !approxEqual(got.Purchased, 100) {
		t.Errorf("purchased = %.6f, want 100", got.Purchased)
	}
	if !approxEqual(got.Won, 35) {
		t.Errorf("won = %.6f, want 35", got.Won)
	}
	if !approxEqual(got.Free, 25) {
		t.Errorf("free = %.6f, want 25", got.Free)
	}
	if !approxEqual(got.Locked, 30) {
		t.Errorf("locked = %.6f, want 30", got.Locked)
	}
	if !approxEqual(got.Total, 160) {
		t.Errorf("total = %.6f, want 160", got.Total)
	}
}

func TestProjectBalances_BrokenEntry(t *testing.T) {
	b := &chainBuilder{}
	b.add(model.TxDeposit, 100)
	b.entries[0].BalanceAfter = 90 // before+amount != after

	_, _, err := service.ProjectBalances(1, b.entries, 0)
	var cv *service.ConsistencyViolationError
	if !errors.As(err, &cv) {
		t.Fatalf("期望 ConsistencyViolationError，got %v", err)
	}
}

func TestProjectBalances_BrokenChain(t *testing.T) {
	b := &chainBuilder{}
	b.add(model.TxDeposit, 100).add(model.TxBetPlaced, -30)
	b.entries[1].BalanceBefore = 80 // 与前条 after=100 不连续
	b.entries[1].BalanceAfter = 50

	_, _, err := service.ProjectBalances(1, b.entries, 0)
	var cv *service.ConsistencyViolationError
	if !errors.As(err, &cv) {
		t.Fatalf("期望 ConsistencyViolationError，got %v", err)
	}
}

func TestProjectBalances_NegativeRunningBalance(t *testing.T) {
	b := &chainBuilder{}
	b.add(model.TxDeposit, 50).add(model.TxBetPlaced, -80)

	_, _, err := service.ProjectBalances(1, b.entries, 0)
	var cv *service.ConsistencyViolationError
	if !errors.As(err, &cv) {
		t.Fatalf("总余额为负应报 ConsistencyViolationError，got %v", err)
	}
}

func TestProjectBalances_ClampNegativeBucket(t *testing.T) {
	// won 桶为负（数据损坏场景）：cashout 扣得比 bet_won 多，
	// 但 running-balance 链本身仍连续（deposit 垫着总额）
	b := &chainBuilder{}
	b.add(model.TxDeposit, 100).
		add(model.TxBetWon, 10).
		add(model.TxCashout, -40)

	got, clamps, err := service.ProjectBalances(1, b.entries, 0)
	if err != nil {
		t.Fatalf("ProjectBalances 失败: %v", err)
	}
	if len(clamps) != 1 {
		t.Fatalf("期望 1 条截断记录，got %v", clamps)
	}
	if got.Won != 0 {
		t.Errorf("won 为负应截断到 0，got %.6f", got.Won)
	}
	if !approxEqual(got.Purchased, 100) {
		t.Errorf("purchased 不应受影响: %.6f", got.Purchased)
	}
}

func TestProjectBalances_ClampNegativeLocked(t *testing.T) {
	got, clamps, err := service.ProjectBalances(1, nil, -5)
	if err != nil {
		t.Fatalf("ProjectBalances 失败: %v", err)
	}
	if got.Locked != 0 {
		t.Errorf("locked 为负应截断到 0，got %.6f", got.Locked)
	}
	if len(clamps) != 1 {
		t.Errorf("期望 1 条截断记录，got %v", clamps)
	}
}

func TestAvailable(t *testing.T) {
	cases := []struct {
		name string
		b    model.UserBalances
		want float64
	}{
		{"无锁定", model.UserBalances{Total: 100}, 100},
		{"部分锁定", model.UserBalances{Total: 100, Locked: 40}, 60},
		{"全部锁定", model.UserBalances{Total: 100, Locked: 100}, 0},
		{"锁定超总额下限为零", model.UserBalances{Total: 100, Locked: 120}, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := service.Available(c.b); !approxEqual(got, c.want) {
				t.Errorf("Available = %.6f, want %.6f", got, c.want)
			}
		})
	}
}

// 并发双注场景的余额语义：120 总额各锁 60 后可用归零，第三笔 100 必拒
func TestAvailable_ConcurrentStakes(t *testing.T) {
	b := &chainBuilder{}
	b.add(model.TxDeposit, 120).
		add(model.TxBetPlaced, -60).
		add(model.TxBetPlaced, -60)

	got, _, err := service.ProjectBalances(1, b.entries, 120)
	if err != nil {
		t.Fatalf("ProjectBalances 失败: %v", err)
	}
	if avail := service.Available(got); avail != 0 {
		t.Errorf("两笔各 60 锁定后可用额应为 0，got %.6f", avail)
	}
}
