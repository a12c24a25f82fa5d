package usecase

import (
	"math/rand"
	"strconv"
	"strings"
)

// CodeGenerator draws a referral code candidate for the given user name.
type CodeGenerator func(name string) string

const (
	codePrefixLength = 3
	codePadding      = 'X'
)

// NewReferralCode returns the upper-cased first three ASCII letters of name, padded with X, followed
// by a random number in [1000, 9999]. Uniqueness is not guaranteed; callers retry on collisions.
func NewReferralCode(name string) string {
	return referralCodePrefix(name) + strconv.Itoa(1000+rand.Intn(9000))
}

func referralCodePrefix(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if b.Len() == codePrefixLength {
			break
		}
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	for b.Len() < codePrefixLength {
		b.WriteByte(codePadding)
	}
	return b.String()
}

func normalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
