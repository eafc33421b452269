package forwarding

import (
	"testing"

	"lnbroker/internal/intent"

	"github.com/stretchr/testify/assert"
)

func TestBaseMemo_SplitPattern(t *testing.T) {
	in := &intent.PaymentIntent{
		Memo:             "Coffee + 10% tip = $1.08",
		DisplayCurrency:  "USD",
		TipAmountSat:     100,
		TipAmountDisplay: "$0.08",
		TipRecipients: []intent.TipRecipient{
			{Handle: "alice", SharePercent: 70},
			{Handle: "bob", SharePercent: 30},
		},
	}
	got := baseMemo(in, nil)
	assert.Equal(t, "BlinkPOS: Coffee + 10% tip = $1.08 | $0.08 (100 sat) tip split to alice, bob", got)
}

func TestBaseMemo_SplitPatternSingleRecipientUsesTo(t *testing.T) {
	in := &intent.PaymentIntent{
		Memo:            "Coffee + 10% tip = 1100 sats",
		DisplayCurrency: "BTC",
		TipAmountSat:    100,
		TipRecipients: []intent.TipRecipient{
			{Handle: "alice", SharePercent: 100},
		},
	}
	got := baseMemo(in, nil)
	assert.Equal(t, "BlinkPOS: Coffee + 10% tip = 1100 sats | 100 sat tip to alice", got)
}

func TestBaseMemo_SplitPatternIgnoredWhenNoTip(t *testing.T) {
	in := &intent.PaymentIntent{
		Memo:         "Coffee + 10% tip = $1.08",
		TipAmountSat: 0,
	}
	got := baseMemo(in, nil)
	assert.Equal(t, "BlinkPOS: Coffee + 10% tip = $1.08", got)
}

func TestBaseMemo_AlreadyPrefixedPassesThrough(t *testing.T) {
	in := &intent.PaymentIntent{Memo: "BlinkPOS: custom note"}
	assert.Equal(t, "BlinkPOS: custom note", baseMemo(in, nil))
}

func TestBaseMemo_PlainMemoGetsPrefixed(t *testing.T) {
	in := &intent.PaymentIntent{Memo: "Thanks!"}
	assert.Equal(t, "BlinkPOS: Thanks!", baseMemo(in, nil))
}

func TestBaseMemo_NoMemoUsesAmount(t *testing.T) {
	in := &intent.PaymentIntent{BaseAmountSat: 2500}
	assert.Equal(t, "BlinkPOS: 2500 sats", baseMemo(in, nil))
}

func TestMemoIdempotence(t *testing.T) {
	in := &intent.PaymentIntent{Memo: "BlinkPOS: already formatted", TipAmountSat: 0}
	assert.Equal(t, in.Memo, baseMemo(in, nil))
}

func TestTipMemo_BitcoinCurrencySingular(t *testing.T) {
	in := &intent.PaymentIntent{DisplayCurrency: "BTC"}
	assert.Equal(t, "BlinkPOS Tip: 70 sats", tipMemo(in, 0, 1, 70))
}

func TestTipMemo_MultipleRecipientsShowsIndex(t *testing.T) {
	in := &intent.PaymentIntent{DisplayCurrency: "SATS"}
	assert.Equal(t, "BlinkPOS Tip (1/2): 70 sats", tipMemo(in, 0, 2, 70))
	assert.Equal(t, "BlinkPOS Tip (2/2): 30 sats", tipMemo(in, 1, 2, 30))
}

func TestTipMemo_FiatProratesFromAggregate(t *testing.T) {
	in := &intent.PaymentIntent{
		DisplayCurrency:  "USD",
		TipAmountSat:     100,
		TipAmountDisplay: "$0.08",
	}
	got := tipMemo(in, 0, 2, 70)
	assert.Contains(t, got, "70 sats")
	assert.Contains(t, got, "$0.06")
}
