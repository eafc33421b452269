// Package forwarding turns a claimed payment intent into an ordered
// payout plan. Plan is a pure function: no I/O, no adapter calls.
package forwarding

import (
	"lnbroker/internal/intent"
)

// LegKind classifies a payout leg.
type LegKind string

const (
	LegBase        LegKind = "BASE"
	LegUsernameTip LegKind = "USERNAME_TIP"
	LegLNURLTip    LegKind = "LNURL_TIP"
)

// Leg is one payout step in a PayoutPlan.
type Leg struct {
	Kind        LegKind
	Handle      string // tip recipient handle; empty for the base leg
	Destination intent.Destination
	AmountSat   int64
	Memo        string
	Skipped     bool
	SkipReason  string
}

// PayoutPlan is the ordered sequence of legs the executor drives
// through, base first.
type PayoutPlan struct {
	Legs []Leg
}

// npubCashSuffix marks a tip handle as LNURL-resolvable rather than a
// provider-native username.
const npubCashSuffix = "@npub.cash"

// Plan derives the payout plan from a claimed intent. The base leg is
// always first; tip legs follow in the recipients' original order.
func Plan(in *intent.PaymentIntent) PayoutPlan {
	legs := make([]Leg, 0, 1+len(in.TipRecipients))

	legs = append(legs, Leg{
		Kind:        LegBase,
		Destination: in.Destination,
		AmountSat:   in.BaseAmountSat,
		Memo:        baseMemo(in, tipAmounts(in)),
	})

	amounts := tipAmounts(in)
	n := len(in.TipRecipients)
	for i, recipient := range in.TipRecipients {
		leg := Leg{
			Handle:    recipient.Handle,
			AmountSat: amounts[i],
		}
		if isNpubCash(recipient.Handle) {
			leg.Kind = LegLNURLTip
		} else {
			leg.Kind = LegUsernameTip
		}
		if amounts[i] <= 0 {
			leg.Skipped = true
			leg.SkipReason = "tip amount too small"
		}
		leg.Memo = tipMemo(in, i, n, amounts[i])
		legs = append(legs, leg)
	}

	return PayoutPlan{Legs: legs}
}

func isNpubCash(handle string) bool {
	return len(handle) > len(npubCashSuffix) && handle[len(handle)-len(npubCashSuffix):] == npubCashSuffix
}

// tipAmounts computes each recipient's share of intent.TipAmountSat.
// Recipients 0..N-2 get floor(T*share_i/S); the last recipient absorbs
// the rounding remainder.
func tipAmounts(in *intent.PaymentIntent) []int64 {
	n := len(in.TipRecipients)
	amounts := make([]int64, n)
	if n == 0 {
		return amounts
	}

	total := in.TipAmountSat
	var shareSum float64
	for _, r := range in.TipRecipients {
		shareSum += r.SharePercent
	}

	var allocated int64
	for i := 0; i < n-1; i++ {
		var amt int64
		if shareSum > 0 {
			amt = int64(float64(total) * in.TipRecipients[i].SharePercent / shareSum)
		}
		amounts[i] = amt
		allocated += amt
	}
	amounts[n-1] = total - allocated
	return amounts
}
