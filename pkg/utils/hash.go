package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordTooLong is returned for passwords bcrypt would silently truncate.
var ErrPasswordTooLong = errors.New("password longer than 72 bytes")

// Passwords hashes and checks user passwords with bcrypt at a configured cost.
type Passwords struct {
	cost  int
	dummy []byte
}

// NewPasswords returns a hasher for cost. Zero or out-of-range costs use bcrypt.DefaultCost.
func NewPasswords(cost int) *Passwords {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("no-such-user"), cost)
	return &Passwords{cost: cost, dummy: dummy}
}

// Cost returns the bcrypt cost new hashes are made with.
func (p *Passwords) Cost() int { return p.cost }

// Hash hashes a plain password.
func (p *Passwords) Hash(plain string) (string, error) {
	if len(plain) > 72 {
		return "", ErrPasswordTooLong
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), p.cost)
	return string(h), err
}

// Check compares a plain password with a stored hash.
func (p *Passwords) Check(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

// CheckMissing spends the same time as Check when no user matched a login, so response
// timing does not reveal which emails exist in a tenant.
func (p *Passwords) CheckMissing(plain string) {
	_ = bcrypt.CompareHashAndPassword(p.dummy, []byte(plain))
}

// NeedsRehash reports whether hashed was made with a different cost.
func (p *Passwords) NeedsRehash(hashed string) bool {
	c, err := bcrypt.Cost([]byte(hashed))
	return err != nil || c != p.cost
}
