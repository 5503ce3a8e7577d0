package ai

import "strings"

const (
	TokenLimitAuto   = "auto"
	TokenLimitCustom = "custom"
)

// TokenPolicy is passed through to providers untouched; history is never
// trimmed on its account.
type TokenPolicy struct {
	Mode  string
	Limit int
}

// MaxTokens returns the cap to send, or 0 to let the provider decide.
func (p TokenPolicy) MaxTokens() int {
	if strings.EqualFold(strings.TrimSpace(p.Mode), TokenLimitCustom) && p.Limit > 0 {
		return p.Limit
	}
	return 0
}
