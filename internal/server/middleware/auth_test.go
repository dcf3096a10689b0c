package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signAuth produces the three auth headers for the given key and timestamp.
func signAuth(t *testing.T, r *http.Request, ts int64) common.Address {
	t.Helper()

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(key.PublicKey)

	sig, err := ethcrypto.Sign(signedMessageHash(addr, ts), key)
	require.NoError(t, err)
	// Wallets report V as 27/28.
	sig[64] += 27

	r.Header.Set(HeaderAddress, addr.Hex())
	r.Header.Set(HeaderSignature, "0x"+fmt.Sprintf("%x", sig))
	r.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	return addr
}

// capture records the caller the middleware handed to the next handler.
func capture(got *common.Address, ok *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, *ok = CallerFrom(r.Context())
	})
}

func TestAuthValidSignature(t *testing.T) {
	var got common.Address
	var ok bool
	h := Auth(true)(capture(&got, &ok))

	r := httptest.NewRequest(http.MethodPost, "/api/polls", nil)
	addr := signAuth(t, r, time.Now().Unix())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, ok)
	assert.Equal(t, addr, got)
}

func TestAuthNoAddressPassesThroughUnauthenticated(t *testing.T) {
	var got common.Address
	var ok bool
	h := Auth(true)(capture(&got, &ok))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/polls", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, ok)
}

func TestAuthRejectsWrongSigner(t *testing.T) {
	var got common.Address
	var ok bool
	h := Auth(true)(capture(&got, &ok))

	r := httptest.NewRequest(http.MethodPost, "/api/polls", nil)
	signAuth(t, r, time.Now().Unix())
	// Claim a different address than the one that signed.
	r.Header.Set(HeaderAddress, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, ok)
}

func TestAuthRejectsStaleTimestamp(t *testing.T) {
	var got common.Address
	var ok bool
	h := Auth(true)(capture(&got, &ok))

	r := httptest.NewRequest(http.MethodPost, "/api/polls", nil)
	signAuth(t, r, time.Now().Add(-10*time.Minute).Unix())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsMalformedAddress(t *testing.T) {
	h := Auth(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodPost, "/api/polls", nil)
	r.Header.Set(HeaderAddress, "not-an-address")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnauthorizedBodyEscapesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	writeUnauthorized(w, `bad "header" value \ with specials`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, `bad "header" value \ with specials`, body["error"])
}

func TestAuthDisabledTrustsAddressHeader(t *testing.T) {
	var got common.Address
	var ok bool
	h := Auth(false)(capture(&got, &ok))

	r := httptest.NewRequest(http.MethodPost, "/api/polls", nil)
	r.Header.Set(HeaderAddress, "0xcccccccccccccccccccccccccccccccccccccccc")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"), got)
}
