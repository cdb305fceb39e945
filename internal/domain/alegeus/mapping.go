package alegeus

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/carebenefits/platform/internal/domain/wallet"
)

// Debit card transaction status codes.
var transactionStates = map[int]wallet.State{
	1: wallet.StateApproved,
	2: wallet.StateNeedsReceipt,
	3: wallet.StateReceiptSubmitted,
	4: wallet.StateInsufficientReceipt,
	5: wallet.StateIneligibleExpense,
	6: wallet.StateResolved,
	7: wallet.StateFailed,
}

// TransactionState maps an Alegeus transaction to a request state. ok is
// false for codes with no mapping.
func TransactionState(t Transaction) (wallet.State, bool) {
	if strings.EqualFold(t.Type, "Refund") {
		return wallet.StateRefunded, true
	}
	s, ok := transactionStates[t.StatusCode]
	return s, ok
}

// nextState applies the reconciliation guards. It returns the state to store
// and whether it differs from current.
func nextState(current, proposed wallet.State) (wallet.State, bool) {
	switch {
	case current == wallet.StateResolved, current == wallet.StateRefunded:
		return current, false
	case current == wallet.StateReceiptSubmitted && proposed == wallet.StateNeedsReceipt:
		return current, false
	case current == proposed:
		return current, false
	}
	return proposed, true
}

// ClaimState maps an Alegeus claim status. adjust reports that the request
// amount must be replaced by the approved amount.
func ClaimState(status string) (s wallet.State, adjust bool, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "APPROVED":
		return wallet.StateApproved, false, true
	case "PAID":
		return wallet.StateReimbursed, false, true
	case "DENIED":
		return wallet.StateDenied, false, true
	case "PARTIALLY APPROVED":
		return wallet.StateApproved, true, true
	case "NEED MORE INFO":
		return wallet.StatePendingMemberInput, false, true
	}
	return "", false, false
}

// DollarsToCents converts a decimal dollar amount (JSON number or string) to
// cents, rounding half away from zero.
func DollarsToCents(raw string) (int64, error) {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	if s == "" || s == "null" {
		return 0, nil
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !digits(whole) || !digits(frac) {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	frac += "000"
	cents := dollars*100 + int64(frac[0]-'0')*10 + int64(frac[1]-'0')
	if frac[2] >= '5' {
		cents++
	}
	if neg {
		cents = -cents
	}
	return cents, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CentsToDollars formats cents as a two-decimal dollar string.
func CentsToDollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
