package crypto

import (
	"strings"

	masker "github.com/goliatone/go-masker"
)

// MaskSecret returns a masked rendition of a secret for safe logging. A few
// characters are preserved at each end where the value is long enough.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if masked, err := masker.Default.String("preserveEnds(2,2)", secret); err == nil {
		return masked
	}
	// Fallback masking if no rule is registered.
	runes := []rune(secret)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}
