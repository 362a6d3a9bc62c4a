package api

import (
	"crypto/rand"
	"math/big"
	"regexp"

	"github.com/google/uuid"
)

const (
	idLength        = 24
	charset         = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	sessionIDPrefix = "sess_"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,128}$`)

// NewSessionID generates a session id: "sess_" followed by 24
// cryptographically random alphanumeric characters.
func NewSessionID() string {
	return sessionIDPrefix + randomAlphanumeric(idLength)
}

// ValidateSessionID reports whether id is acceptable as a client-chosen
// session id.
func ValidateSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// ValidateTaskID reports whether id is a task id (a UUID).
func ValidateTaskID(id string) bool {
	return uuid.Validate(id) == nil
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
