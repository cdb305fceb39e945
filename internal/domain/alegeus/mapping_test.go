package alegeus

import (
	"testing"

	"github.com/carebenefits/platform/internal/domain/wallet"
)

func TestDollarsToCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"125", 12500},
		{"125.5", 12550},
		{"125.50", 12550},
		{`"19.99"`, 1999},
		{"0.005", 1},
		{"0.004", 0},
		{"1.005", 101},
		{"-2.345", -235},
		{"-2.344", -234},
		{".75", 75},
		{"null", 0},
	}
	for _, tt := range tests {
		got, err := DollarsToCents(tt.in)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.in, tt.want, got)
		}
	}
	if _, err := DollarsToCents("12,50"); err == nil {
		t.Error("expected error for malformed amount")
	}
}

func TestCentsToDollars(t *testing.T) {
	if got := CentsToDollars(12550); got != "125.50" {
		t.Errorf("expected 125.50, got %s", got)
	}
	if got := CentsToDollars(-5); got != "-0.05" {
		t.Errorf("expected -0.05, got %s", got)
	}
}

func TestTransactionState(t *testing.T) {
	tests := []struct {
		txn  Transaction
		want wallet.State
		ok   bool
	}{
		{Transaction{StatusCode: 1}, wallet.StateApproved, true},
		{Transaction{StatusCode: 2}, wallet.StateNeedsReceipt, true},
		{Transaction{StatusCode: 3}, wallet.StateReceiptSubmitted, true},
		{Transaction{StatusCode: 4}, wallet.StateInsufficientReceipt, true},
		{Transaction{StatusCode: 5}, wallet.StateIneligibleExpense, true},
		{Transaction{StatusCode: 6}, wallet.StateResolved, true},
		{Transaction{StatusCode: 7}, wallet.StateFailed, true},
		{Transaction{StatusCode: 2, Type: "Refund"}, wallet.StateRefunded, true},
		{Transaction{StatusCode: 42}, "", false},
	}
	for _, tt := range tests {
		got, ok := TransactionState(tt.txn)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%+v: expected %s/%v, got %s/%v", tt.txn, tt.want, tt.ok, got, ok)
		}
	}
}

func TestNextState_Guards(t *testing.T) {
	tests := []struct {
		current, proposed, want wallet.State
		changed                 bool
	}{
		{wallet.StateNeedsReceipt, wallet.StateReceiptSubmitted, wallet.StateReceiptSubmitted, true},
		{wallet.StateReceiptSubmitted, wallet.StateNeedsReceipt, wallet.StateReceiptSubmitted, false},
		{wallet.StateResolved, wallet.StateNeedsReceipt, wallet.StateResolved, false},
		{wallet.StateRefunded, wallet.StateApproved, wallet.StateRefunded, false},
		{wallet.StateApproved, wallet.StateApproved, wallet.StateApproved, false},
		{wallet.StateApproved, wallet.StateRefunded, wallet.StateRefunded, true},
	}
	for _, tt := range tests {
		got, changed := nextState(tt.current, tt.proposed)
		if got != tt.want || changed != tt.changed {
			t.Errorf("%s -> %s: expected %s/%v, got %s/%v", tt.current, tt.proposed, tt.want, tt.changed, got, changed)
		}
	}
}

func TestClaimState(t *testing.T) {
	tests := []struct {
		status string
		want   wallet.State
		adjust bool
		ok     bool
	}{
		{"APPROVED", wallet.StateApproved, false, true},
		{"Paid", wallet.StateReimbursed, false, true},
		{"DENIED", wallet.StateDenied, false, true},
		{"PARTIALLY APPROVED", wallet.StateApproved, true, true},
		{" need more info ", wallet.StatePendingMemberInput, false, true},
		{"IN PROCESS", "", false, false},
	}
	for _, tt := range tests {
		got, adjust, ok := ClaimState(tt.status)
		if got != tt.want || adjust != tt.adjust || ok != tt.ok {
			t.Errorf("%q: expected %s/%v/%v, got %s/%v/%v", tt.status, tt.want, tt.adjust, tt.ok, got, adjust, ok)
		}
	}
}
