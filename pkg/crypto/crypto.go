package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash of the supplied password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares the hashed password with the plaintext candidate.
func VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// GenerateNumericCode returns a uniformly random code of the given number of digits.
// The first digit is never zero.
func GenerateNumericCode(digits int) (string, error) {
	if digits <= 0 {
		return "", errors.New("crypto: digits must be positive")
	}
	var b strings.Builder
	for i := 0; i < digits; i++ {
		upper := int64(10)
		if i == 0 {
			upper = 9
		}
		n, err := rand.Int(rand.Reader, big.NewInt(upper))
		if err != nil {
			return "", err
		}
		d := n.Int64()
		if i == 0 {
			d++
		}
		b.WriteByte(byte('0' + d))
	}
	return b.String(), nil
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode returns a random code of length characters drawn from an
// alphabet without look-alike characters (no 0/O, 1/I).
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("crypto: length must be positive")
	}
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// HashToken returns the hex encoded SHA-256 digest used to persist bearer tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SignHMACSHA512 returns the hex encoded HMAC-SHA512 of data.
func SignHMACSHA512(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA512 compares signature against the expected HMAC in constant time.
func VerifyHMACSHA512(secret, data, signature string) bool {
	expected := SignHMACSHA512(secret, data)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
