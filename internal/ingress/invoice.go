package ingress

import (
	"encoding/json"
	"errors"
	"net/http"

	"lnbroker/internal/intent"
	"lnbroker/internal/invoiceapi"
)

// destinationRequest mirrors the wire body's tagged destination union.
type destinationRequest struct {
	APIKey *struct {
		Key      string `json:"key"`
		WalletID string `json:"wallet_id"`
	} `json:"api_key,omitempty"`
	LNAddress *struct {
		Username string `json:"username"`
		WalletID string `json:"wallet_id"`
	} `json:"ln_address,omitempty"`
	NpubCash *struct {
		Address string `json:"address"`
	} `json:"npub_cash,omitempty"`
	NWC *struct {
		URI string `json:"uri"`
	} `json:"nwc,omitempty"`
}

type tipRecipientRequest struct {
	Handle       string  `json:"handle"`
	SharePercent float64 `json:"share_percent"`
}

// createInvoiceRequestBody is the JSON body accepted by POST /invoice.
type createInvoiceRequestBody struct {
	BaseAmountSat     int64                 `json:"base_amount_sat"`
	TipAmountSat      int64                 `json:"tip_amount_sat"`
	TipPercent        float64               `json:"tip_percent"`
	Currency          string                `json:"currency"`
	Memo              string                `json:"memo"`
	Destination       destinationRequest    `json:"destination"`
	TipRecipients     []tipRecipientRequest `json:"tip_recipients"`
	BaseAmountDisplay string                `json:"base_amount_display"`
	TipAmountDisplay  string                `json:"tip_amount_display"`
	DisplayCurrency   string                `json:"display_currency"`
	Environment       string                `json:"environment"`
}

type createInvoiceResponseBody struct {
	PaymentRequest string `json:"payment_request"`
	PaymentHash    string `json:"payment_hash"`
	Satoshis       int64  `json:"satoshis"`
}

func (b createInvoiceRequestBody) toAPIRequest() (invoiceapi.CreateInvoiceRequest, error) {
	dest, err := b.Destination.toAPIRequest()
	if err != nil {
		return invoiceapi.CreateInvoiceRequest{}, err
	}

	recipients := make([]intent.TipRecipient, 0, len(b.TipRecipients))
	for _, r := range b.TipRecipients {
		recipients = append(recipients, intent.TipRecipient{Handle: r.Handle, SharePercent: r.SharePercent})
	}

	return invoiceapi.CreateInvoiceRequest{
		BaseAmountSat:     b.BaseAmountSat,
		TipAmountSat:      b.TipAmountSat,
		TipPercent:        b.TipPercent,
		DisplayCurrency:   firstNonEmpty(b.DisplayCurrency, b.Currency),
		BaseAmountDisplay: b.BaseAmountDisplay,
		TipAmountDisplay:  b.TipAmountDisplay,
		Memo:              b.Memo,
		Destination:       dest,
		TipRecipients:     recipients,
		Environment:       intent.Environment(b.Environment),
	}, nil
}

func (d destinationRequest) toAPIRequest() (invoiceapi.DestinationRequest, error) {
	set := 0
	var out invoiceapi.DestinationRequest

	if d.APIKey != nil {
		set++
		out = invoiceapi.DestinationRequest{Mode: intent.DestinationAPIKey, APIKey: d.APIKey.Key, APIWalletID: d.APIKey.WalletID}
	}
	if d.LNAddress != nil {
		set++
		out = invoiceapi.DestinationRequest{Mode: intent.DestinationLNAddress, LNAddressUsername: d.LNAddress.Username, LNAddressWalletID: d.LNAddress.WalletID}
	}
	if d.NpubCash != nil {
		set++
		out = invoiceapi.DestinationRequest{Mode: intent.DestinationNpubCash, NpubCashAddress: d.NpubCash.Address}
	}
	if d.NWC != nil {
		set++
		out = invoiceapi.DestinationRequest{Mode: intent.DestinationNWC, NWCURI: d.NWC.URI}
	}

	if set != 1 {
		return invoiceapi.DestinationRequest{}, errors.New("exactly one destination mode must be specified")
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// PostInvoice is C8's HTTP face: decode, delegate to InvoiceAPI.CreateInvoice,
// translate errors to 400/500.
func (h *handlers) PostInvoice(w http.ResponseWriter, r *http.Request) {
	var body createInvoiceRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	req, err := body.toAPIRequest()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := h.deps.InvoiceAPI.CreateInvoice(r.Context(), req)
	if err != nil {
		if errors.Is(err, invoiceapi.ErrValidation) {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, createInvoiceResponseBody{
		PaymentRequest: resp.PaymentRequest,
		PaymentHash:    resp.PaymentHash,
		Satoshis:       resp.SatoshisTotal,
	})
}
