package nwc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

const (
	kindInfo    = 13194
	kindRequest = 23194
	kindResult  = 23195
)

// nostrEvent is the subset of NIP-01 fields nwc needs to build and
// verify NIP-47 request/response events.
type nostrEvent struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// buildRequestEvent encrypts payload under the NIP-04 shared secret
// between clientPriv and walletPub, wraps it in a kind-23194 event
// addressed to the wallet pubkey, and signs it with clientPriv.
func buildRequestEvent(clientSecretHex, walletPubkeyHex string, payload []byte) (*nostrEvent, error) {
	clientPriv, clientPub, err := parsePrivateKey(clientSecretHex)
	if err != nil {
		return nil, fmt.Errorf("nwc: client secret: %w", err)
	}

	walletPub, err := parsePublicKey(walletPubkeyHex)
	if err != nil {
		return nil, fmt.Errorf("nwc: wallet pubkey: %w", err)
	}

	shared := sharedSecret(clientPriv, walletPub)

	encrypted, err := nip04Encrypt(shared, payload)
	if err != nil {
		return nil, fmt.Errorf("nwc: encrypt request: %w", err)
	}

	ev := &nostrEvent{
		PubKey:    hex.EncodeToString(clientPub),
		CreatedAt: time.Now().Unix(),
		Kind:      kindRequest,
		Tags:      [][]string{{"p", walletPubkeyHex}},
		Content:   encrypted,
	}
	if err := signEvent(ev, clientPriv); err != nil {
		return nil, fmt.Errorf("nwc: sign request: %w", err)
	}
	return ev, nil
}

// decryptResponse recovers the plaintext JSON-RPC response payload
// from a kind-23195 event's encrypted content.
func decryptResponse(clientSecretHex, walletPubkeyHex, content string) ([]byte, error) {
	clientPriv, _, err := parsePrivateKey(clientSecretHex)
	if err != nil {
		return nil, fmt.Errorf("nwc: client secret: %w", err)
	}
	walletPub, err := parsePublicKey(walletPubkeyHex)
	if err != nil {
		return nil, fmt.Errorf("nwc: wallet pubkey: %w", err)
	}
	shared := sharedSecret(clientPriv, walletPub)
	return nip04Decrypt(shared, content)
}

func parsePrivateKey(hexKey string) (*btcec.PrivateKey, []byte, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return nil, nil, fmt.Errorf("invalid private key")
	}
	priv, pub := btcec.PrivKeyFromBytes(raw)
	return priv, schnorr.SerializePubKey(pub), nil
}

func parsePublicKey(hexKey string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("invalid public key")
	}
	pub, err := schnorr.ParsePubKey(raw)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// sharedSecret derives a NIP-04 shared secret: the x-coordinate of
// priv * pub, SHA-256'd into an AES-256 key.
func sharedSecret(priv *btcec.PrivateKey, pub *btcec.PublicKey) []byte {
	var point btcec.JacobianPoint
	pub.AsJacobian(&point)
	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(&priv.Key, &point, &result)
	result.ToAffine()
	x := result.X.Bytes()
	sum := sha256.Sum256(x[:])
	return sum[:]
}

// nip04Encrypt encrypts plaintext with AES-256-CBC under key, the way
// NIP-04 direct messages are encrypted, returning "base64(ciphertext)
// ?iv=base64(iv)".
func nip04Encrypt(key, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return fmt.Sprintf("%s?iv=%s", base64.StdEncoding.EncodeToString(ciphertext), base64.StdEncoding.EncodeToString(iv)), nil
}

func nip04Decrypt(key []byte, content string) ([]byte, error) {
	parts := splitOnce(content, "?iv=")
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed nip04 content")
	}
	ctB64, ivB64 := parts[0], parts[1]

	ciphertext, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return nil, err
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("invalid ciphertext length")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

func splitOnce(s, sep string) []string {
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			return []string{s[:i], s[i+len(sep):]}
		}
	}
	return []string{s}
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	return data[:len(data)-padLen], nil
}

// signEvent computes the NIP-01 event id and a Schnorr (BIP-340)
// signature over it, filling ev.ID and ev.Sig.
func signEvent(ev *nostrEvent, priv *btcec.PrivateKey) error {
	serialized, err := json.Marshal([]interface{}{0, ev.PubKey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content})
	if err != nil {
		return err
	}
	id := sha256.Sum256(serialized)
	ev.ID = hex.EncodeToString(id[:])

	sig, err := schnorr.Sign(priv, id[:])
	if err != nil {
		return err
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}
