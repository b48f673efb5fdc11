package handle

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugStrip = regexp.MustCompile(`[^\w\s-]`)
	slugJoin  = regexp.MustCompile(`[-\s]+`)
)

// Slugify turns an institution name into its slug: accents folded to ASCII,
// punctuation dropped, lower-cased, whitespace and dash runs joined by "-".
func Slugify(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	ascii := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, folded)
	s := slugStrip.ReplaceAllString(ascii, "")
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugJoin.ReplaceAllString(s, "-")
	return strings.Trim(s, "-_")
}
