package models

import "strings"

// UserCredential is one configured brokerage account.
// Values are parsed once at startup and never mutated.
type UserCredential struct {
	Account  string `json:"account"`
	Password string `json:"-"`
}

// Masked returns the account with everything but the last 4 characters hidden
func (u UserCredential) Masked() string {
	n := len([]rune(u.Account))
	if n <= 4 {
		return u.Account
	}
	runes := []rune(u.Account)
	return strings.Repeat("*", n-4) + string(runes[n-4:])
}

// String never renders the password
func (u UserCredential) String() string {
	return u.Masked()
}
