package util

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor used when sealing credentials.
const BcryptCost = 12

// CredentialChecker turns a presented secret into its stored form and compares
// presented secrets against stored ones.
type CredentialChecker interface {
	Seal(secret string) (string, error)
	Matches(stored, presented string) bool
}

// PlainCredentials stores secrets as opaque strings.
type PlainCredentials struct{}

func (PlainCredentials) Seal(secret string) (string, error) {
	return secret, nil
}

func (PlainCredentials) Matches(stored, presented string) bool {
	return ConstantTimeEqual(stored, presented)
}

// BcryptCredentials stores salted bcrypt hashes.
type BcryptCredentials struct {
	Cost int
}

func (c BcryptCredentials) Seal(secret string) (string, error) {
	cost := c.Cost
	if cost == 0 {
		cost = BcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (BcryptCredentials) Matches(stored, presented string) bool {
	return CheckPasswordHash(presented, stored)
}

// IsBcryptHash reports whether stored already holds a bcrypt hash.
func IsBcryptHash(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "****"
	}
	return email[:1] + "****" + email[at:]
}
