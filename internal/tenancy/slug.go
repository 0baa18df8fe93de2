package tenancy

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rentora/rentora/internal/shared"
)

const maxSlugLength = 63

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Slugify folds accents, lowercases and joins alphanumeric runs with hyphens.
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if hyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			hyphen = false
			b.WriteRune(r)
		default:
			hyphen = true
		}
	}
	out := b.String()
	if len(out) > maxSlugLength {
		out = strings.TrimRight(out[:maxSlugLength], "-")
	}
	return out
}

// ValidateSlug checks a normalised slug.
func ValidateSlug(slug string) error {
	if len(slug) < 2 || len(slug) > maxSlugLength || !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: invalid slug %q", shared.ErrValidation, slug)
	}
	return nil
}

// PrincipalSlug returns the slug of a tenant's default business unit.
func PrincipalSlug(tenantSlug string) string {
	return tenantSlug + PrincipalSlugSuffix
}
