package forwarding

import (
	"fmt"
	"regexp"
	"strings"

	"lnbroker/internal/display"
	"lnbroker/internal/intent"
)

// splitTipMemoPattern matches a merchant memo of the form
// "<base> + <percent>% tip = <total>", e.g. "Coffee + 15% tip = $5.75".
var splitTipMemoPattern = regexp.MustCompile(`^(.+?)\s*\+\s*([\d.]+)%\s*tip\s*=\s*(.+)$`)

const memoPrefix = "BlinkPOS:"

// baseMemo builds the base leg's enhanced memo per the bit-exact rules:
// these memos appear in recipients' wallet history and are a stable
// user-visible contract.
func baseMemo(in *intent.PaymentIntent, tipAmounts []int64) string {
	merchantMemo := in.Memo

	if m := splitTipMemoPattern.FindStringSubmatch(merchantMemo); m != nil && in.TipAmountSat > 0 && len(in.TipRecipients) > 0 {
		baseText, percent, totalText := m[1], m[2], m[3]

		splitWord := "to"
		if len(in.TipRecipients) > 1 {
			splitWord = "split to"
		}

		handles := make([]string, len(in.TipRecipients))
		for i, r := range in.TipRecipients {
			handles[i] = r.Handle
		}

		return fmt.Sprintf("%s %s + %s%% tip = %s | %s tip %s %s",
			memoPrefix, baseText, percent, totalText,
			aggregateTipText(in), splitWord, strings.Join(handles, ", "))
	}

	if strings.HasPrefix(merchantMemo, memoPrefix) {
		return merchantMemo
	}

	if merchantMemo != "" {
		return memoPrefix + " " + merchantMemo
	}

	return fmt.Sprintf("%s %d sats", memoPrefix, in.BaseAmountSat)
}

// aggregateTipText is the memo rule's TIP_TEXT for the whole tip pool.
func aggregateTipText(in *intent.PaymentIntent) string {
	if display.IsBitcoinCurrency(in.DisplayCurrency) {
		return fmt.Sprintf("%d sat", in.TipAmountSat)
	}

	formatted := in.TipAmountDisplay
	if formatted == "" {
		formatted = display.Format(in.DisplayCurrency, 0)
	}
	return fmt.Sprintf("%s (%d sat)", formatted, in.TipAmountSat)
}

// tipMemo builds one tip recipient's own memo line.
func tipMemo(in *intent.PaymentIntent, index, total int, amountSat int64) string {
	indexSuffix := ""
	if total > 1 {
		indexSuffix = fmt.Sprintf(" (%d/%d)", index+1, total)
	}

	if display.IsBitcoinCurrency(in.DisplayCurrency) {
		return fmt.Sprintf("BlinkPOS Tip%s: %d sats", indexSuffix, amountSat)
	}

	return fmt.Sprintf("BlinkPOS Tip%s: %s (%d sats)", indexSuffix, recipientDisplayAmount(in, amountSat), amountSat)
}

// recipientDisplayAmount prorates a recipient's fiat-equivalent display
// amount from the aggregate tip_amount_display, since the data model
// only carries one display figure for the whole tip pool. Falls back to
// formatting a bare 0 when no display figure or a non-positive sat total
// is available to prorate from.
func recipientDisplayAmount(in *intent.PaymentIntent, amountSat int64) string {
	if in.TipAmountDisplay == "" || in.TipAmountSat <= 0 {
		return display.Format(in.DisplayCurrency, 0)
	}

	total, err := display.ParseAmount(in.TipAmountDisplay)
	if err != nil {
		return display.Format(in.DisplayCurrency, 0)
	}

	share := total * float64(amountSat) / float64(in.TipAmountSat)
	return display.Format(in.DisplayCurrency, share)
}
