package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateDatabasePath checks that s is a relative reference that names a
// location under the database URL as written. Authority-form references,
// fragments and "." or ".." segments are rejected since the request would
// otherwise land somewhere other than s.
func ValidateDatabasePath(s string) error {
	if err := ValidateRelativeRef(s); err != nil {
		return err
	}
	if strings.HasPrefix(s, "//") {
		return fmt.Errorf("%q has an authority component", s)
	}
	if strings.Contains(s, "#") {
		return fmt.Errorf("%q has a fragment", s)
	}

	path, _, _ := strings.Cut(s, "?")
	for _, segment := range strings.Split(path, "/") {
		decoded, err := url.PathUnescape(segment)
		if err != nil {
			return fmt.Errorf("%q is not a valid relative URI reference", s)
		}
		if decoded == "." || decoded == ".." {
			return fmt.Errorf("%q has a dot segment", s)
		}
	}
	return nil
}
