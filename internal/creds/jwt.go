// Package creds manages the JWT lifecycle used to authenticate to the
// upstream: decoding/validating the current token, refreshing it before
// expiry, and provisioning a fresh anonymous identity when the upstream
// reports quota exhaustion. Grounded on
// original_source/warp2protobuf/core/auth.py.
package creds

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeJWTPayload extracts the JWT payload claims without verifying the
// signature: this process is a relying client of the upstream's tokens,
// not their issuer. Grounded on decode_jwt_payload (split on '.',
// pad-repair, base64url-decode, JSON-parse).
func DecodeJWTPayload(token string) map[string]any {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	// ParseUnverified still requires the signature segment to be present
	// and base64url-decodable, matching the original's tolerance for a
	// structurally valid but unverified token.
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil
	}
	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out
}

// IsTokenExpired reports whether token is missing an exp claim, or expires
// within bufferMinutes of now.
func IsTokenExpired(token string, bufferMinutes int) bool {
	payload := DecodeJWTPayload(token)
	if payload == nil {
		return true
	}
	expRaw, ok := payload["exp"]
	if !ok {
		return true
	}
	exp, ok := asUnixSeconds(expRaw)
	if !ok {
		return true
	}
	buffer := time.Duration(bufferMinutes) * time.Minute
	return time.Until(time.Unix(exp, 0)) <= buffer
}

func asUnixSeconds(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case int64:
		return t, true
	default:
		return 0, false
	}
}
