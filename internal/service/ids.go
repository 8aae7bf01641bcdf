package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	base36Charset   = "0123456789abcdefghijklmnopqrstuvwxyz"
	passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewOrderID returns ORD-<base36 millis>-<5 random>, upper-cased
func NewOrderID(now time.Time) (string, error) {
	return traceableID("ORD", now)
}

// NewSaleID returns SALE-<base36 millis>-<5 random>, upper-cased
func NewSaleID(now time.Time) (string, error) {
	return traceableID("SALE", now)
}

func traceableID(prefix string, now time.Time) (string, error) {
	suffix, err := randomString(5, base36Charset)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(fmt.Sprintf("%s-%s-%s", prefix, strconv.FormatInt(now.UnixMilli(), 36), suffix)), nil
}

// GeneratePassword returns a 12 character alphanumeric credential
func GeneratePassword() (string, error) {
	return randomString(12, passwordCharset)
}

// GenerateUserID derives a login from a display name: lowercase
// alphanumerics followed by a number below 1000.
func GenerateUserID(name string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		base = "partner"
	}

	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return "", err
	}
	return base + n.String(), nil
}

func randomString(length int, charset string) (string, error) {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}
	return string(b), nil
}
