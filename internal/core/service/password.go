package service

import (
	"crypto/rand"
	"math/big"
)

const (
	passwordLen      = 16
	passwordLower    = "abcdefghijklmnopqrstuvwxyz"
	passwordUpper    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	passwordDigits   = "0123456789"
	passwordSpecials = "!@#$%^&*()-_=+[]{}"
)

// StrongPassword returns a 16-character password containing at least one
// lowercase letter, one uppercase letter, one digit, and one symbol from the
// fixed symbol set. All characters come from crypto/rand.
func StrongPassword() string {
	all := passwordLower + passwordUpper + passwordDigits + passwordSpecials

	pw := make([]byte, 0, passwordLen)
	pw = append(pw,
		randByte(passwordLower),
		randByte(passwordUpper),
		randByte(passwordDigits),
		randByte(passwordSpecials),
	)
	for len(pw) < passwordLen {
		pw = append(pw, randByte(all))
	}

	// Fisher-Yates so the guaranteed class characters are not predictably
	// positioned at the front.
	for i := len(pw) - 1; i > 0; i-- {
		j := randInt(i + 1)
		pw[i], pw[j] = pw[j], pw[i]
	}
	return string(pw)
}

func randByte(alphabet string) byte {
	return alphabet[randInt(len(alphabet))]
}

func randInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is broken;
		// nothing sensible to do but stop.
		panic("password: entropy source unavailable: " + err.Error())
	}
	return int(v.Int64())
}
