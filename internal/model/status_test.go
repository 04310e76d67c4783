package model_test

import (
	"testing"

	"ChipStake/internal/model"
)

func TestEventStatus_CanTransition(t *testing.T) {
	legal := []struct {
		from, to model.EventStatus
	}{
		{model.EventDraft, model.EventPending},
		{model.EventDraft, model.EventActive},
		{model.EventDraft, model.EventCancelled},
		{model.EventPending, model.EventActive},
		{model.EventPending, model.EventCancelled},
		{model.EventActive, model.EventLocked},
		{model.EventActive, model.EventCompleted},
		{model.EventActive, model.EventCancelled},
		{model.EventLocked, model.EventCompleted},
		{model.EventLocked, model.EventCancelled},
		{model.EventCompleted, model.EventPaidOut},
	}
	for _, c := range legal {
		if !c.from.CanTransition(c.to) {
			t.Errorf("%s → %s 应为合法迁移", c.from, c.to)
		}
	}

	illegal := []struct {
		from, to model.EventStatus
	}{
		{model.EventDraft, model.EventLocked},
		{model.EventDraft, model.EventCompleted},
		{model.EventPending, model.EventLocked},
		{model.EventLocked, model.EventActive},     // 不允许回退
		{model.EventCompleted, model.EventActive},  // 不允许回退
		{model.EventCompleted, model.EventCancelled}, // 结算后不可取消
		{model.EventPaidOut, model.EventCancelled},
		{model.EventPaidOut, model.EventCompleted},
		{model.EventCancelled, model.EventActive},
		{model.EventActive, model.EventActive}, // 自迁移非法
	}
	for _, c := range illegal {
		if c.from.CanTransition(c.to) {
			t.Errorf("%s → %s 应为非法迁移", c.from, c.to)
		}
	}
}

func TestEventStatus_Terminal(t *testing.T) {
	if !model.EventPaidOut.Terminal() {
		t.Error("paid_out 应为终态")
	}
	if !model.EventCancelled.Terminal() {
		t.Error("cancelled 应为终态")
	}
	for _, s := range []model.EventStatus{
		model.EventDraft, model.EventPending, model.EventActive,
		model.EventLocked, model.EventCompleted,
	} {
		if s.Terminal() {
			t.Errorf("%s 不应为终态", s)
		}
	}
}

func TestBetStatus_Settled(t *testing.T) {
	if model.BetActive.Settled() {
		t.Error("active 注单未出终态")
	}
	for _, s := range []model.BetStatus{model.BetWon, model.BetLost, model.BetRefunded} {
		if !s.Settled() {
			t.Errorf("%s 应为终态", s)
		}
	}
}
