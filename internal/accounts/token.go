package accounts

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token lifetime. Clients re-authenticate weekly.
const tokenTTL = 7 * 24 * time.Hour

// Roles carried in the token.
const (
	RoleAdmin = "admin"
	RoleCrew  = "crew"
)

// TokenCodec signs and verifies the bearer token. The wire format is
// base64(username:role:expiryMillis::base64(hmac-sha256)); existing
// clients already hold tokens in this shape.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

func NewTokenCodec(secret string) *TokenCodec {
	return &TokenCodec{secret: []byte(secret), now: time.Now}
}

// Claims is the verified token content.
type Claims struct {
	Username string
	Role     string
}

// Issue signs a token for username with the given role.
func (c *TokenCodec) Issue(username, role string) string {
	expiry := c.now().Add(tokenTTL).UnixMilli()
	data := fmt.Sprintf("%s:%s:%d", username, role, expiry)
	return base64.StdEncoding.EncodeToString([]byte(data + "::" + c.sign(data)))
}

// Verify checks signature and expiry, returning false for anything
// malformed. It never says why a token failed.
func (c *TokenCodec) Verify(token string) (Claims, bool) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Claims{}, false
	}
	data, sig, found := strings.Cut(string(raw), "::")
	if !found {
		return Claims{}, false
	}
	if !hmac.Equal([]byte(sig), []byte(c.sign(data))) {
		return Claims{}, false
	}
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return Claims{}, false
	}
	expiry, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || c.now().UnixMilli() > expiry {
		return Claims{}, false
	}
	role := parts[1]
	if role != RoleAdmin && role != RoleCrew {
		return Claims{}, false
	}
	return Claims{Username: parts[0], Role: role}, true
}

func (c *TokenCodec) sign(data string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
