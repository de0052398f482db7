// Package dialog interprets the free text of the portal's result dialogs.
// These functions are the single source of truth for that interpretation.
package dialog

import "strings"

// DefaultNoPurchaseKeywords signal "nothing to subscribe" in the current site wording
var DefaultNoPurchaseKeywords = []string{
	"请选择需申购的新债",
	"当前没有可申购的债券",
	"委托数量不能",
	"申购数量不能",
	"可申购数量为0",
	"请输入",
}

const (
	closeArtifact = "x "
	confirmLabel  = "确定"
)

// Normalize turns CR/LF into spaces, collapses whitespace runs and trims
func Normalize(text string) string {
	text = strings.NewReplacer("\r", " ", "\n", " ").Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

// CleanOutcomeText strips the dialog chrome (close "x" and the confirm label) from a result dialog
func CleanOutcomeText(text string) string {
	cleaned := Normalize(text)
	cleaned = strings.TrimPrefix(cleaned, closeArtifact)
	cleaned = strings.TrimSuffix(cleaned, confirmLabel)
	return strings.TrimSpace(cleaned)
}

// Classifier matches dialog text against a versioned keyword set
type Classifier struct {
	keywords []string
}

// NewClassifier uses keywords, or the default set when none are given
func NewClassifier(keywords []string) *Classifier {
	kw := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = Normalize(k); k != "" {
			kw = append(kw, k)
		}
	}
	if len(kw) == 0 {
		kw = append(kw, DefaultNoPurchaseKeywords...)
	}
	return &Classifier{keywords: kw}
}

// IsNoPurchaseAvailable reports whether the text says there is nothing to subscribe
func (c *Classifier) IsNoPurchaseAvailable(text string) bool {
	normalized := Normalize(text)
	if normalized == "" {
		return false
	}
	for _, keyword := range c.keywords {
		if strings.Contains(normalized, keyword) {
			return true
		}
	}
	return false
}

// Keywords returns a copy of the active keyword set
func (c *Classifier) Keywords() []string {
	return append([]string(nil), c.keywords...)
}

var defaultClassifier = NewClassifier(nil)

// IsNoPurchaseAvailable checks text against DefaultNoPurchaseKeywords
func IsNoPurchaseAvailable(text string) bool {
	return defaultClassifier.IsNoPurchaseAvailable(text)
}
