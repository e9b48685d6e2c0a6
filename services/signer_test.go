package services_test

import (
	"testing"

	"github.com/ghdlabs/ghd-market-maker/services"
	"github.com/stretchr/testify/assert"
)

type testSignerCredentials struct {
	key    string
	secret string
}

func (credentials *testSignerCredentials) GetAPIKey() string {
	return credentials.key
}

func (credentials *testSignerCredentials) GetAPISecret() string {
	return credentials.secret
}

func TestSignPost(t *testing.T) {
	signer := services.NewSigner(&testSignerCredentials{key: "testkey", secret: "testsecret"})

	headers := signer.Sign("POST", "/orders", `{"symbol":"GHDUSDT"}`, 1700000000000)

	assert.Equal(t, "testkey", headers["X-API-KEY"])
	assert.Equal(t, "1700000000000", headers["X-TIMESTAMP"])
	assert.Equal(t, "42391dbd6185612802fb6842d003d45980e0708f0d7e690c1cc97199d3d02336", headers["X-SIGNATURE"])
}

func TestSignEmptyBody(t *testing.T) {
	signer := services.NewSigner(&testSignerCredentials{key: "testkey", secret: "testsecret"})

	headers := signer.Sign("GET", "/account/balance", "", 1700000000000)

	assert.Equal(t, "4c6a8c7c580e778e4e96fe43bb2c4f4cb5362fda15d75b8b7ab8ce913dbc135a", headers["X-SIGNATURE"])
}

func TestSignPathWithID(t *testing.T) {
	signer := services.NewSigner(&testSignerCredentials{key: "otherkey", secret: "hunter2"})

	headers := signer.Sign("DELETE", "/orders/42", "", 1699999999999)

	assert.Equal(t, "872b2099a9f4c8caecff12110f88968cc1dcbcc65e7cc4cd68fbdc0875245610", headers["X-SIGNATURE"])
}
