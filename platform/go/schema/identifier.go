package schema

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// maxIdentifierLength matches PostgreSQL's NAMEDATALEN-1 so that no engine silently truncates names.
const maxIdentifierLength = 63

// ValidateIdentifier enforces a lowercase snake_case identifier that is safe to embed in SQL for every driver.
func ValidateIdentifier(kind, input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return fmt.Errorf("%s name is required", kind)
	}
	if trimmed != input {
		return fmt.Errorf("invalid %s name %q: surrounding whitespace", kind, input)
	}
	if len(trimmed) > maxIdentifierLength {
		return fmt.Errorf("invalid %s name %q: longer than %d characters", kind, input, maxIdentifierLength)
	}
	if !identifierPattern.MatchString(trimmed) {
		return fmt.Errorf("invalid %s name %q: must match ^[a-z][a-z0-9_]*$", kind, input)
	}
	return nil
}
