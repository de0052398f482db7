package common

import (
	"strings"

	"github.com/ternarybob/autobond/internal/models"
)

// ParseUsers parses "account:password" pairs separated by commas.
// Blank pairs are skipped; the password may itself contain ':'.
func ParseUsers(users string) ([]models.UserCredential, error) {
	if strings.TrimSpace(users) == "" {
		return nil, models.ConfigError("USERS is not set, expected account1:password1,account2:password2")
	}

	var creds []models.UserCredential
	for _, pair := range strings.Split(users, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		account, password, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, models.ConfigError("malformed user entry %q, expected account:password", maskEntry(pair))
		}
		account = strings.TrimSpace(account)
		password = strings.TrimSpace(password)
		if account == "" || password == "" {
			return nil, models.ConfigError("user entry %q has an empty account or password", maskEntry(pair))
		}
		creds = append(creds, models.UserCredential{Account: account, Password: password})
	}

	if len(creds) == 0 {
		return nil, models.ConfigError("USERS is empty, at least one account is required")
	}
	return creds, nil
}

// maskEntry renders a malformed entry without leaking its password
func maskEntry(entry string) string {
	account, _, _ := strings.Cut(entry, ":")
	return models.UserCredential{Account: account}.Masked()
}
