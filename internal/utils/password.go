package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// NewDummyHash returns a hash of a throwaway secret at the given cost.  It is
// compared against when no account matches, so a lookup miss costs as much
// as a wrong password hashed at the same cost.
func NewDummyHash(cost int) string {
	b, err := bcrypt.GenerateFromPassword([]byte("kupa-timing-equalizer"), cost)
	if err != nil {
		b, _ = bcrypt.GenerateFromPassword([]byte("kupa-timing-equalizer"), bcrypt.DefaultCost)
	}
	return string(b)
}

// BurnPasswordCheck performs a throwaway bcrypt comparison against hash.
func BurnPasswordCheck(hash, plain string) {
	_ = bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
