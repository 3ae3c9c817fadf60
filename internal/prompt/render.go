// Package prompt implements the <<TOKEN>> template renderer (§4.1).
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// ErrUnresolvedTokens is the sentinel behind PROMPT_UNRESOLVED_TOKENS.
type ErrUnresolvedTokens struct {
	Tokens []string
}

func (e *ErrUnresolvedTokens) Error() string {
	return fmt.Sprintf("PROMPT_UNRESOLVED_TOKENS: %s", strings.Join(e.Tokens, ", "))
}

var tokenPattern = regexp.MustCompile(`<<([A-Z0-9_]+)>>`)

// Render substitutes every <<TOKEN>> occurrence in template with values[TOKEN].
// Substitution order does not matter and there is no recursive expansion: a
// value containing "<<TOKEN>>" syntax is never re-scanned. Fails with
// ErrUnresolvedTokens if any <<[A-Z0-9_]+>> remains after substitution.
func Render(template string, values map[string]string) (string, error) {
	var missing []string
	seen := map[string]bool{}

	result := tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := tokenPattern.FindStringSubmatch(match)[1]
		if v, ok := values[name]; ok {
			return v
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return match
	})

	if len(missing) > 0 {
		return "", &ErrUnresolvedTokens{Tokens: missing}
	}
	return result, nil
}
