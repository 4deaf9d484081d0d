package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HostClaims is the payload of the host session cookie. MemberToken carries the
// plaintext member-session token; only its hash is stored server side.
type HostClaims struct {
	UserID      int64  `json:"uid"`
	MemberToken string `json:"mst,omitempty"`
	Remember    bool   `json:"rem,omitempty"`
	jwt.RegisteredClaims
}

func GenerateHostToken(secret string, userID int64, memberToken string, remember bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := HostClaims{
		UserID:      userID,
		MemberToken: memberToken,
		Remember:    remember,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ErrHostTokenExpired is returned with the claims of a correctly signed host
// token whose expiry has passed.
var ErrHostTokenExpired = errors.New("host token expired")

// ParseHostToken verifies a host cookie. A signed but expired token yields its
// claims together with ErrHostTokenExpired.
func ParseHostToken(tokenStr string, secret string) (*HostClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &HostClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && token != nil {
			if claims, ok := token.Claims.(*HostClaims); ok && claims.UserID > 0 {
				return claims, ErrHostTokenExpired
			}
		}
		return nil, err
	}
	if claims, ok := token.Claims.(*HostClaims); ok && token.Valid && claims.UserID > 0 {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// GenerateSessionToken returns a random token and the hex SHA-256 of it.
func GenerateSessionToken(length int) (string, string, error) {
	if length <= 0 {
		length = 32
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate session token: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, HashToken(token), nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
