// Package site holds the versioned contract with the brokerage portal's markup:
// URLs, element selectors, menu labels and dialog keywords.
package site

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed default_profile.toml
var defaultProfile []byte

// Selectors are CSS selectors for every element the purchase flow touches
type Selectors struct {
	Account          string `toml:"account"`
	Password         string `toml:"password"`
	CaptchaImage     string `toml:"captcha_image"`
	CaptchaInput     string `toml:"captcha_input"`
	LoginConfirm     string `toml:"login_confirm"`
	PopupConfirm     string `toml:"popup_confirm"`
	NonTradingBanner string `toml:"non_trading_banner"`
	TableBody        string `toml:"table_body"`
	SelectAll        string `toml:"select_all"`
	SubmitConfirm    string `toml:"submit_confirm"`
	ResultDialog     string `toml:"result_dialog"`
	DialogClose      string `toml:"dialog_close"`
}

// Menus are the visible link texts followed after login
type Menus struct {
	NewIssues   string `toml:"new_issues"`
	BondBatch   string `toml:"bond_batch"`
	BatchSubmit string `toml:"batch_submit"`
}

// Profile is one version of the site contract
type Profile struct {
	Version            string    `toml:"version"`
	LoginURL           string    `toml:"login_url"`
	NoDataText         string    `toml:"no_data_text"`
	NoPurchaseKeywords []string  `toml:"no_purchase_keywords"`
	Selectors          Selectors `toml:"selectors"`
	Menus              Menus     `toml:"menus"`
}

// Default returns the embedded profile
func Default() *Profile {
	p, err := parse(defaultProfile)
	if err != nil {
		panic(fmt.Sprintf("embedded site profile is invalid: %v", err))
	}
	return p
}

// Load returns the embedded profile overlaid with the file at path.
// An empty path yields the embedded profile unchanged.
func Load(path string) (*Profile, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read site profile %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse site profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("site profile %s: %w", path, err)
	}
	return p, nil
}

func parse(data []byte) (*Profile, error) {
	p := &Profile{}
	if err := toml.Unmarshal(data, p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate reports the first required field left blank
func (p *Profile) Validate() error {
	required := map[string]string{
		"login_url":                    p.LoginURL,
		"selectors.account":            p.Selectors.Account,
		"selectors.password":           p.Selectors.Password,
		"selectors.captcha_image":      p.Selectors.CaptchaImage,
		"selectors.captcha_input":      p.Selectors.CaptchaInput,
		"selectors.login_confirm":      p.Selectors.LoginConfirm,
		"selectors.popup_confirm":      p.Selectors.PopupConfirm,
		"selectors.non_trading_banner": p.Selectors.NonTradingBanner,
		"selectors.table_body":         p.Selectors.TableBody,
		"selectors.select_all":         p.Selectors.SelectAll,
		"selectors.submit_confirm":     p.Selectors.SubmitConfirm,
		"selectors.result_dialog":      p.Selectors.ResultDialog,
		"selectors.dialog_close":       p.Selectors.DialogClose,
		"menus.new_issues":             p.Menus.NewIssues,
		"menus.bond_batch":             p.Menus.BondBatch,
		"menus.batch_submit":           p.Menus.BatchSubmit,
	}
	var missing []string
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if len(p.NoPurchaseKeywords) == 0 {
		return fmt.Errorf("no_purchase_keywords must not be empty")
	}
	return nil
}
