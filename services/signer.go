package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

type signerCredentials interface {
	GetAPIKey() string
	GetAPISecret() string
}

// Signer produces the authentication headers for outbound exchange calls.
// The signature covers timestamp + method + path + body. It holds the secret
// and must never log it or the raw signing payload.
type Signer struct {
	credentials signerCredentials
}

func NewSigner(signerCredentials signerCredentials) *Signer {
	return &Signer{credentials: signerCredentials}
}

func (signer *Signer) Sign(method string, path string, body string, timestamp int64) map[string]string {
	ts := strconv.FormatInt(timestamp, 10)

	mac := hmac.New(sha256.New, []byte(signer.credentials.GetAPISecret()))
	mac.Write([]byte(ts + method + path + body))

	return map[string]string{
		"X-API-KEY":   signer.credentials.GetAPIKey(),
		"X-TIMESTAMP": ts,
		"X-SIGNATURE": hex.EncodeToString(mac.Sum(nil)),
	}
}
