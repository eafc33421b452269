package nwc

import (
	"fmt"
	"net/url"
	"strings"
)

// connection is a parsed "nostr+walletconnect://" URI: the wallet
// service's Nostr pubkey, the relay to dial, and the client's own
// secret key used to sign and encrypt requests to it.
type connection struct {
	walletPubkeyHex string
	relayURL        string
	clientSecretHex string
}

// parseURI parses a NIP-47 connection URI of the form
// "nostr+walletconnect://<wallet_pubkey>?relay=<url>&secret=<hex>".
func parseURI(uri string) (connection, error) {
	const scheme = "nostr+walletconnect://"
	if !strings.HasPrefix(uri, scheme) {
		return connection{}, fmt.Errorf("nwc: uri missing %q scheme", scheme)
	}

	rest := strings.TrimPrefix(uri, scheme)
	parts := strings.SplitN(rest, "?", 2)
	if len(parts) != 2 || parts[0] == "" {
		return connection{}, fmt.Errorf("nwc: uri missing wallet pubkey or query string")
	}

	values, err := url.ParseQuery(parts[1])
	if err != nil {
		return connection{}, fmt.Errorf("nwc: parse query: %w", err)
	}

	relay := values.Get("relay")
	secret := values.Get("secret")
	if relay == "" || secret == "" {
		return connection{}, fmt.Errorf("nwc: uri missing relay or secret parameter")
	}

	return connection{
		walletPubkeyHex: parts[0],
		relayURL:        relay,
		clientSecretHex: secret,
	}, nil
}
