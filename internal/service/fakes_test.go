package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"ChipStake/internal/config"
	"ChipStake/internal/interfaces"
	"ChipStake/internal/model"
	"ChipStake/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 内存仓储实现，供服务层事务流程测试使用：
// 通过 stubTx 直接以同一组内存仓储充当事务作用域，
// 行为与生产仓储对齐（条件更新返回 ErrStatusConflict、
// 账本维护 running-balance 链并拒绝负余额）。

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func memTestConfig() *config.BettingConfig {
	return &config.BettingConfig{
		MinBet:            1,
		MaxBet:            100000,
		MinRakeFraction:   0,
		MaxRakeFraction:   0.10,
		PrizeRakeFraction: 0.025,
	}
}

// stubTx 把固定的一组内存仓储当作事务作用域执行 fn
func stubTx(r *txRepos) txRunner {
	return func(ctx context.Context, fn func(r *txRepos) error) error {
		return fn(r)
	}
}

// ---- 用户 ----

type memUserRepo struct {
	users map[uint64]*model.User
}

func newMemUserRepo(ids ...uint64) *memUserRepo {
	m := &memUserRepo{users: make(map[uint64]*model.User)}
	for _, id := range ids {
		m.users[id] = &model.User{ID: id, WalletAddress: fmt.Sprintf("0xwallet%d", id), IsActive: true}
	}
	return m
}

func (m *memUserRepo) GetByID(ctx context.Context, userID uint64) (*model.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) GetByWallet(ctx context.Context, wallet string) (*model.User, error) {
	for _, u := range m.users {
		if u.WalletAddress == wallet {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memUserRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == 0 {
		user.ID = uint64(len(m.users) + 1)
	}
	m.users[user.ID] = user
	return nil
}

func (m *memUserRepo) LockByID(ctx context.Context, userID uint64) (*model.User, error) {
	return m.GetByID(ctx, userID)
}

// ---- 账本 ----

type memLedgerRepo struct {
	entries []*model.ChipTransaction
	// forceNegative 为 true 时 Append 直接拒绝，模拟投影口径与
	// running-balance 链口径出现分歧的场景
	forceNegative bool
}

func (m *memLedgerRepo) Append(ctx context.Context, userID uint64, currency string, amount float64,
	txType model.TransactionType, refType, refID string) (*model.ChipTransaction, error) {

	if m.forceNegative {
		return nil, repository.ErrNegativeBalance
	}
	before := 0.0
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID == userID && m.entries[i].Currency == currency {
			before = m.entries[i].BalanceAfter
			break
		}
	}
	after := before + amount
	if after < -balanceEpsilon {
		return nil, repository.ErrNegativeBalance
	}
	if after < 0 {
		after = 0
	}
	e := &model.ChipTransaction{
		ID:            uint64(len(m.entries) + 1),
		TxUUID:        fmt.Sprintf("tx-%d", len(m.entries)+1),
		UserID:        userID,
		Currency:      currency,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		TxType:        txType,
		CreatedAt:     time.Now(),
	}
	if refType != "" {
		rt := refType
		e.ReferenceType = &rt
	}
	if refID != "" {
		rid := refID
		e.ReferenceID = &rid
	}
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memLedgerRepo) ListAllByUser(ctx context.Context, userID uint64, currency string) ([]*model.ChipTransaction, error) {
	var list []*model.ChipTransaction
	for _, e := range m.entries {
		if e.UserID == userID && e.Currency == currency {
			list = append(list, e)
		}
	}
	return list, nil
}

func (m *memLedgerRepo) ListByUser(ctx context.Context, userID uint64, currency string, page, pageSize int) ([]*model.ChipTransaction, int64, error) {
	list, _ := m.ListAllByUser(ctx, userID, currency)
	return list, int64(len(list)), nil
}

func (m *memLedgerRepo) LastEntry(ctx context.Context, userID uint64, currency string) (*model.ChipTransaction, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID == userID && m.entries[i].Currency == currency {
			return m.entries[i], nil
		}
	}
	return nil, nil
}

// countByType 某用户某类型流水条数（测试断言用）
func (m *memLedgerRepo) countByType(userID uint64, txType model.TransactionType) int {
	n := 0
	for _, e := range m.entries {
		if e.UserID == userID && e.TxType == txType {
			n++
		}
	}
	return n
}

// ---- 注单 ----

type memBetRepo struct {
	bets []*model.Bet
}

func (m *memBetRepo) Create(ctx context.Context, bet *model.Bet) error {
	if bet.ID == 0 {
		bet.ID = uint64(len(m.bets) + 1)
	}
	m.bets = append(m.bets, bet)
	return nil
}

func (m *memBetRepo) GetByUUID(ctx context.Context, betUUID string) (*model.Bet, error) {
	for _, b := range m.bets {
		if b.BetUUID == betUUID {
			return b, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memBetRepo) ListActiveByEvent(ctx context.Context, eventID uint64) ([]*model.Bet, error) {
	var list []*model.Bet
	for _, b := range m.bets {
		if b.EventID == eventID && b.Status == model.BetActive {
			list = append(list, b)
		}
	}
	return list, nil
}

func (m *memBetRepo) SumActiveAmountByUser(ctx context.Context, userID uint64) (float64, error) {
	sum := 0.0
	for _, b := range m.bets {
		if b.UserID == userID && b.Status == model.BetActive {
			sum += b.Amount
		}
	}
	return sum, nil
}

func (m *memBetRepo) ListByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*model.Bet, int64, error) {
	var list []*model.Bet
	for _, b := range m.bets {
		if b.UserID == userID {
			list = append(list, b)
		}
	}
	return list, int64(len(list)), nil
}

func (m *memBetRepo) MarkSettled(ctx context.Context, betID uint64, to model.BetStatus) error {
	for _, b := range m.bets {
		if b.ID == betID && b.Status == model.BetActive {
			b.Status = to
			return nil
		}
	}
	return repository.ErrStatusConflict
}

func (m *memBetRepo) MarkSettledBulk(ctx context.Context, betIDs []uint64, to model.BetStatus) (int64, error) {
	var n int64
	for _, id := range betIDs {
		if err := m.MarkSettled(ctx, id, to); err == nil {
			n++
		}
	}
	return n, nil
}

// ---- 事件 ----

type memEventRepo struct {
	event   *model.Event
	choices []*model.EventChoice
	// lockSnapshot 非 nil 时 LockByID 返回它而不是 event：
	// 模拟"锁外读到的快照已过期，锁内看到的是并发提交后的行"
	lockSnapshot *model.Event
}

func (m *memEventRepo) CreateWithChoices(ctx context.Context, event *model.Event, choices []*model.EventChoice) error {
	if event.ID == 0 {
		event.ID = 1
	}
	m.event = event
	for i, c := range choices {
		c.ID = uint64(i + 1)
		c.EventID = event.ID
	}
	m.choices = choices
	return nil
}

func (m *memEventRepo) GetByUUID(ctx context.Context, eventUUID string) (*model.Event, error) {
	if m.event == nil || m.event.EventUUID != eventUUID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m.event
	return &cp, nil
}

func (m *memEventRepo) GetByID(ctx context.Context, eventID uint64) (*model.Event, error) {
	if m.event == nil || m.event.ID != eventID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m.event
	return &cp, nil
}

func (m *memEventRepo) LockByID(ctx context.Context, eventID uint64) (*model.Event, error) {
	if m.lockSnapshot != nil {
		cp := *m.lockSnapshot
		return &cp, nil
	}
	return m.GetByID(ctx, eventID)
}

func (m *memEventRepo) GetChoices(ctx context.Context, eventID uint64) ([]*model.EventChoice, error) {
	return m.choices, nil
}

func (m *memEventRepo) ListEvents(ctx context.Context, filter repository.EventFilter, page, pageSize int) ([]*model.Event, int64, error) {
	if m.event == nil {
		return nil, 0, nil
	}
	return []*model.Event{m.event}, 1, nil
}

func (m *memEventRepo) IncrementChoicePool(ctx context.Context, eventID uint64, label string, delta float64) error {
	for _, c := range m.choices {
		if c.EventID == eventID && c.Label == label {
			c.TotalPool += delta
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *memEventRepo) UpdateStatus(ctx context.Context, eventID uint64, from, to model.EventStatus) error {
	if m.event == nil || m.event.ID != eventID || m.event.Status != from {
		return repository.ErrStatusConflict
	}
	m.event.Status = to
	if m.lockSnapshot != nil {
		m.lockSnapshot.Status = to
	}
	return nil
}

func (m *memEventRepo) SetResolution(ctx context.Context, eventID uint64, winningChoice string, actorID uint64) error {
	m.event.WinningChoice = &winningChoice
	m.event.ResolvedBy = &actorID
	now := time.Now()
	m.event.ResolvedAt = &now
	return nil
}

func (m *memEventRepo) SetDistributed(ctx context.Context, eventID uint64, actorID uint64) error {
	m.event.DistributedBy = &actorID
	now := time.Now()
	m.event.DistributedAt = &now
	return nil
}

// ---- 派彩 ----

type memPayoutRepo struct {
	rows []*model.Payout
	// pendingOverride 非 nil 时 ListPendingByEvent 返回它：
	// 模拟并发分发方拿到的过期 pending 快照
	pendingOverride []*model.Payout
}

func (m *memPayoutRepo) CreateBatch(ctx context.Context, payouts []*model.Payout) error {
	for _, p := range payouts {
		if p.ID == 0 {
			p.ID = uint64(len(m.rows) + 1)
		}
		m.rows = append(m.rows, p)
	}
	return nil
}

func (m *memPayoutRepo) ListPendingByEvent(ctx context.Context, eventID uint64) ([]*model.Payout, error) {
	if m.pendingOverride != nil {
		return m.pendingOverride, nil
	}
	var list []*model.Payout
	for _, p := range m.rows {
		if p.EventID == eventID && p.Status == model.PayoutPending {
			list = append(list, p)
		}
	}
	return list, nil
}

func (m *memPayoutRepo) ListByEvent(ctx context.Context, eventID uint64) ([]*model.Payout, error) {
	var list []*model.Payout
	for _, p := range m.rows {
		if p.EventID == eventID {
			list = append(list, p)
		}
	}
	return list, nil
}

func (m *memPayoutRepo) MarkCompleted(ctx context.Context, payoutID uint64) error {
	for _, p := range m.rows {
		if p.ID == payoutID && p.Status == model.PayoutPending {
			p.Status = model.PayoutCompleted
			now := time.Now()
			p.CompletedAt = &now
			return nil
		}
	}
	return repository.ErrStatusConflict
}

func (m *memPayoutRepo) CountPendingByEvent(ctx context.Context, eventID uint64) (int64, error) {
	var n int64
	for _, p := range m.rows {
		if p.EventID == eventID && p.Status == model.PayoutPending {
			n++
		}
	}
	return n, nil
}

// ---- 提现 ----

type memWithdrawalRepo struct {
	reqs []*model.WithdrawalRequest
}

func (m *memWithdrawalRepo) Create(ctx context.Context, req *model.WithdrawalRequest) error {
	if req.ID == 0 {
		req.ID = uint64(len(m.reqs) + 1)
	}
	m.reqs = append(m.reqs, req)
	return nil
}

func (m *memWithdrawalRepo) GetByUUID(ctx context.Context, requestUUID string) (*model.WithdrawalRequest, error) {
	for _, r := range m.reqs {
		if r.RequestUUID == requestUUID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memWithdrawalRepo) ListByUser(ctx context.Context, userID uint64, page, pageSize int) ([]*model.WithdrawalRequest, int64, error) {
	var list []*model.WithdrawalRequest
	for _, r := range m.reqs {
		if r.UserID == userID {
			list = append(list, r)
		}
	}
	return list, int64(len(list)), nil
}

func (m *memWithdrawalRepo) MarkCompleted(ctx context.Context, requestID uint64, externalRef string, actorID uint64) error {
	for _, r := range m.reqs {
		if r.ID == requestID && r.Status == model.WithdrawalPending {
			r.Status = model.WithdrawalCompleted
			ref := externalRef
			r.ExternalRef = &ref
			r.ProcessedBy = &actorID
			return nil
		}
	}
	return repository.ErrStatusConflict
}

func (m *memWithdrawalRepo) MarkRejected(ctx context.Context, requestID uint64, reason string, actorID uint64) error {
	for _, r := range m.reqs {
		if r.ID == requestID && r.Status == model.WithdrawalPending {
			r.Status = model.WithdrawalRejected
			rs := reason
			r.FailReason = &rs
			r.ProcessedBy = &actorID
			return nil
		}
	}
	return repository.ErrStatusConflict
}

// ---- 入金 ----

type memDepositRepo struct {
	records []*model.DepositRecord
}

func (m *memDepositRepo) Create(ctx context.Context, record *model.DepositRecord) error {
	for _, r := range m.records {
		if r.Signature == record.Signature {
			return gorm.ErrDuplicatedKey
		}
	}
	if record.ID == 0 {
		record.ID = uint64(len(m.records) + 1)
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memDepositRepo) GetBySignature(ctx context.Context, signature string) (*model.DepositRecord, error) {
	for _, r := range m.records {
		if r.Signature == signature {
			return r, nil
		}
	}
	return nil, nil
}

// ---- 外部放款 ----

// fakeDisburser 记录调用参数；err 非 nil 时放款失败
type fakeDisburser struct {
	ref   string
	err   error
	calls []*interfaces.SendFundsRequest
}

func (f *fakeDisburser) SendFunds(ctx context.Context, req *interfaces.SendFundsRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.ref, nil
}

// transientSendErr 临时故障（网络超时一类），Transient() 为 true
type transientSendErr struct{ msg string }

func (e *transientSendErr) Error() string   { return e.msg }
func (e *transientSendErr) Transient() bool { return true }

// newMemRepos 组装一套互相独立的内存仓储作为事务作用域
func newMemRepos(users *memUserRepo, ledger *memLedgerRepo, bets *memBetRepo,
	events *memEventRepo, payouts *memPayoutRepo, withdrawals *memWithdrawalRepo,
	deposits *memDepositRepo) *txRepos {
	return &txRepos{
		users:       users,
		ledger:      ledger,
		bets:        bets,
		events:      events,
		payouts:     payouts,
		withdrawals: withdrawals,
		deposits:    deposits,
	}
}
