package validation

import (
	"fmt"
	"regexp"
)

// RFC 3986 section 4.2 relative-ref, spelled out with the ABNF rule names.
const (
	pctEncoded = `%[0-9A-Fa-f]{2}`
	unreserved = `A-Za-z0-9\-._~`
	subDelims  = `!$&'()*+,;=`

	pchar        = `(?:[` + unreserved + subDelims + `:@]|` + pctEncoded + `)`
	segment      = pchar + `*`
	segmentNz    = pchar + `+`
	segmentNzNc  = `(?:[` + unreserved + subDelims + `@]|` + pctEncoded + `)+`
	pathAbempty  = `(?:/` + segment + `)*`
	pathAbsolute = `/(?:` + segmentNz + `(?:/` + segment + `)*)?`
	pathNoscheme = segmentNzNc + `(?:/` + segment + `)*`

	userinfo   = `(?:[` + unreserved + subDelims + `:]|` + pctEncoded + `)*`
	ipLiteral  = `\[[0-9A-Fa-f:.]+\]`
	regName    = `(?:[` + unreserved + subDelims + `]|` + pctEncoded + `)*`
	host       = `(?:` + ipLiteral + `|` + regName + `)`
	port       = `[0-9]*`
	authority  = `(?:` + userinfo + `@)?` + host + `(?::` + port + `)?`
	queryOrFrg = `(?:` + pchar + `|[/?])*`

	relativePart = `(?://` + authority + pathAbempty + `|` + pathAbsolute + `|` + pathNoscheme + `)?`
	relativeRef  = `^` + relativePart + `(?:\?` + queryOrFrg + `)?(?:#` + queryOrFrg + `)?$`
)

var relativeRefPattern = regexp.MustCompile(relativeRef)

// ValidateRelativeRef returns a descriptive error when s is not a non-empty
// relative reference.
func ValidateRelativeRef(s string) error {
	if s == "" {
		return fmt.Errorf("path is empty")
	}
	if !relativeRefPattern.MatchString(s) {
		return fmt.Errorf("%q is not a valid relative URI reference", s)
	}
	return nil
}
