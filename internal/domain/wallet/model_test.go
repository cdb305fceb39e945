package wallet

import (
	"testing"

	"github.com/google/uuid"
)

func cents(v int64) *int64 { return &v }

func TestComputeBalances(t *testing.T) {
	fertility := &Category{ID: uuid.New(), Label: "Fertility", BenefitType: BenefitCurrency, LimitCents: cents(100000)}
	cycles := 3
	ivf := &Category{ID: uuid.New(), Label: "IVF cycles", BenefitType: BenefitCycle, NumCycles: &cycles}

	req := func(cat *Category, amount int64, st State, typ ReimbursementType) *ReimbursementRequest {
		return &ReimbursementRequest{CategoryID: cat.ID, AmountCents: amount, State: st, ReimbursementType: typ}
	}
	requests := []*ReimbursementRequest{
		req(fertility, 10000, StateApproved, TypeManual),
		req(fertility, 5000, StateReimbursed, TypeManual),
		req(fertility, 2500, StateNeedsReceipt, TypeDebitCard),
		req(fertility, 7000, StateNeedsReceipt, TypeManual), // manual receipt states are neither
		req(fertility, 3000, StateNew, TypeManual),
		req(fertility, 4000, StatePendingMemberInput, TypeManual),
		req(fertility, 9000, StateRefunded, TypeDebitCard),
		req(fertility, 9000, StateDenied, TypeManual),
		req(ivf, 50000, StateApproved, TypeManual),
	}

	got := ComputeBalances([]*Category{fertility, ivf}, requests)
	if len(got) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(got))
	}
	b := got[0]
	if b.SpentCents != 17500 {
		t.Errorf("expected spent 17500, got %d", b.SpentCents)
	}
	if b.PendingCents != 7000 {
		t.Errorf("expected pending 7000, got %d", b.PendingCents)
	}
	if b.RemainingCents == nil || *b.RemainingCents != 82500 {
		t.Errorf("expected remaining 82500, got %v", b.RemainingCents)
	}
	if got[1].SpentCents != 0 || got[1].RemainingCents != nil {
		t.Errorf("expected cycle benefit without currency totals, got %+v", got[1])
	}
	if got[1].NumCycles == nil || *got[1].NumCycles != 3 {
		t.Errorf("expected 3 cycles, got %v", got[1].NumCycles)
	}
}

func TestComputeBalances_RemainingFloorsAtZero(t *testing.T) {
	c := &Category{ID: uuid.New(), BenefitType: BenefitCurrency, LimitCents: cents(1000)}
	got := ComputeBalances([]*Category{c}, []*ReimbursementRequest{
		{CategoryID: c.ID, AmountCents: 1500, State: StateApproved, ReimbursementType: TypeManual},
	})
	if *got[0].RemainingCents != 0 {
		t.Errorf("expected 0, got %d", *got[0].RemainingCents)
	}
}

func TestRequestTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateNew, StatePending, true},
		{StateNew, StateDenied, true},
		{StateNew, StateApproved, false},
		{StatePending, StatePendingMemberInput, true},
		{StatePendingMemberInput, StatePending, true},
		{StateApproved, StateReimbursed, true},
		{StateApproved, StateFailed, true},
		{StateFailed, StateApproved, true},
		{StateReimbursed, StateApproved, false},
		{StateDenied, StatePending, false},
		{StateResolved, StateRefunded, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := canTransition(requestTransitions, tt.from, tt.to); got != tt.ok {
				t.Errorf("expected %v, got %v", tt.ok, got)
			}
		})
	}
}

func TestWalletTransitions(t *testing.T) {
	if !canTransition(walletTransitions, WalletPending, WalletQualified) {
		t.Error("expected PENDING -> QUALIFIED")
	}
	if !canTransition(walletTransitions, WalletRunout, WalletExpired) {
		t.Error("expected RUNOUT -> EXPIRED")
	}
	if canTransition(walletTransitions, WalletExpired, WalletQualified) {
		t.Error("expected EXPIRED to be terminal")
	}
	if canTransition(walletTransitions, WalletRunout, WalletQualified) {
		t.Error("expected RUNOUT -> QUALIFIED to be rejected")
	}
}
