package intent

import "encoding/json"

// Reserved metadata keys. Either-or destination fields and the ordered
// tip-recipient list live here rather than as separate relational
// columns, per the spec's note that dynamic field unions should be
// captured as a tagged variant instead of nullable columns.
const (
	metaDestinationMode     = "destination_mode"
	metaAPIKey              = "api_key"
	metaAPIWalletID         = "api_wallet_id"
	metaLNAddressUsername   = "ln_address_username"
	metaLNAddressWalletID   = "ln_address_wallet_id"
	metaNpubCashAddress     = "npubcash_address"
	metaNWCURIEncrypted     = "nwc_uri_encrypted"
	metaTipRecipients       = "tip_recipients"
	metaClaimedAt           = "claimed_at"
	metaLastError           = "last_error"
	metaLastFailedAt        = "last_failed_at"
)

// encodeMetadata flattens a PaymentIntent's typed Destination and
// TipRecipients into its metadata map so the whole thing serializes to a
// single jsonb column.
func encodeMetadata(in *PaymentIntent) (map[string]string, error) {
	out := CloneMetadata(in.Metadata)

	out[metaDestinationMode] = string(in.Destination.Mode)
	switch in.Destination.Mode {
	case DestinationAPIKey:
		out[metaAPIKey] = in.Destination.APIKey
		out[metaAPIWalletID] = in.Destination.APIWalletID
	case DestinationLNAddress:
		out[metaLNAddressUsername] = in.Destination.LNAddressUsername
		out[metaLNAddressWalletID] = in.Destination.LNAddressWalletID
	case DestinationNpubCash:
		out[metaNpubCashAddress] = in.Destination.NpubCashAddress
	case DestinationNWC:
		out[metaNWCURIEncrypted] = in.Destination.NWCURIEncrypted
	}

	if len(in.TipRecipients) > 0 {
		recipientsJSON, err := json.Marshal(in.TipRecipients)
		if err != nil {
			return nil, err
		}
		out[metaTipRecipients] = string(recipientsJSON)
	}

	return out, nil
}

// decodeMetadata is encodeMetadata's inverse: it populates Destination
// and TipRecipients from the reserved keys and leaves the full map
// (reserved keys included) on Metadata for operator visibility.
func decodeMetadata(in *PaymentIntent, raw map[string]string) error {
	in.Metadata = raw

	dest := Destination{Mode: DestinationMode(raw[metaDestinationMode])}
	switch dest.Mode {
	case DestinationAPIKey:
		dest.APIKey = raw[metaAPIKey]
		dest.APIWalletID = raw[metaAPIWalletID]
	case DestinationLNAddress:
		dest.LNAddressUsername = raw[metaLNAddressUsername]
		dest.LNAddressWalletID = raw[metaLNAddressWalletID]
	case DestinationNpubCash:
		dest.NpubCashAddress = raw[metaNpubCashAddress]
	case DestinationNWC:
		dest.NWCURIEncrypted = raw[metaNWCURIEncrypted]
	}
	in.Destination = dest

	if recipientsJSON, ok := raw[metaTipRecipients]; ok && recipientsJSON != "" {
		var recipients []TipRecipient
		if err := json.Unmarshal([]byte(recipientsJSON), &recipients); err != nil {
			return err
		}
		in.TipRecipients = recipients
	}

	return nil
}
