package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Header names for wallet-signature authentication.
const (
	HeaderAddress   = "X-Stake-Address"
	HeaderSignature = "X-Stake-Signature"
	HeaderTimestamp = "X-Stake-Timestamp"
)

// maxTimestampSkew bounds how far a signed timestamp may drift from server
// time before the signature is rejected as stale.
const maxTimestampSkew = 5 * time.Minute

type ctxKey int

const callerKey ctxKey = 0

// CallerFrom returns the authenticated wallet address stored in the request
// context by the Auth middleware.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey).(common.Address)
	return addr, ok
}

// WithCaller returns a context carrying the given caller address. Exposed for
// handler tests.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey, addr)
}

// Auth returns middleware that authenticates callers by an Ethereum wallet
// signature. The client signs the message "stakepoll-auth:<address>:<unix>"
// with the EIP-191 personal-message prefix and sends address, signature, and
// timestamp in headers. The recovered signer must match the claimed address
// and the timestamp must be within maxTimestampSkew of server time.
//
// When enabled is false the signature check is skipped and the address header
// alone identifies the caller. Intended for local development only.
//
// Requests without an address header pass through unauthenticated; handlers
// that need a caller reject those via CallerFrom.
func Auth(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawAddr := strings.TrimSpace(r.Header.Get(HeaderAddress))
			if rawAddr == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !common.IsHexAddress(rawAddr) {
				writeUnauthorized(w, "malformed wallet address")
				return
			}
			addr := common.HexToAddress(rawAddr)

			if enabled {
				if err := verifySignature(r, addr); err != nil {
					writeUnauthorized(w, err.Error())
					return
				}
			}

			ctx := WithCaller(r.Context(), addr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// verifySignature checks the timestamp freshness and recovers the signer from
// the EIP-191 personal-message signature.
func verifySignature(r *http.Request, claimed common.Address) error {
	rawTS := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	if rawTS == "" {
		return fmt.Errorf("missing %s header", HeaderTimestamp)
	}
	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed %s header", HeaderTimestamp)
	}

	skew := time.Since(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxTimestampSkew {
		return fmt.Errorf("signature timestamp outside allowed window")
	}

	rawSig := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if rawSig == "" {
		return fmt.Errorf("missing %s header", HeaderSignature)
	}
	sig := common.FromHex(rawSig)
	if len(sig) != 65 {
		return fmt.Errorf("malformed signature")
	}

	// Wallets return V as 27/28; go-ethereum expects 0/1.
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	hash := signedMessageHash(claimed, ts)
	pub, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return fmt.Errorf("signature recovery failed")
	}

	if ethcrypto.PubkeyToAddress(*pub) != claimed {
		return fmt.Errorf("signature does not match address")
	}
	return nil
}

// signedMessageHash builds the EIP-191 personal-message digest of the auth
// challenge for the given address and timestamp.
func signedMessageHash(addr common.Address, ts int64) []byte {
	msg := fmt.Sprintf("stakepoll-auth:%s:%d", strings.ToLower(addr.Hex()), ts)
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	return ethcrypto.Keccak256([]byte(prefixed))
}

// writeUnauthorized sends a 401 response with a JSON error body. The message
// is marshaled rather than spliced into a literal so header-derived text
// cannot break out of the JSON string.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	body, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		body = []byte(`{"error":"unauthorized"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write(body)
}
