package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidName = errors.New("invalid artifact name")

// Name identifies an artifact file: <logical>_<pattern>.<extension>.
// Two names with the same triple refer to the same artifact.
type Name struct {
	Logical   string
	Pattern   string
	Extension string
}

func (n Name) String() string {
	return n.Logical + "_" + n.Pattern + "." + n.Extension
}

// Path returns the location of the artifact inside dir.
func (n Name) Path(dir string) string {
	return filepath.Join(dir, n.String())
}

// WithPattern returns a copy of n bound to another time bucket.
func (n Name) WithPattern(pattern string) Name {
	n.Pattern = pattern
	return n
}

func (n Name) Validate() error {
	if err := ValidateIdentity(n.Logical, n.Extension); err != nil {
		return err
	}
	return validatePattern(n.Pattern)
}

// ValidateIdentity checks the (logical, extension) pair shared by every
// copy of an artifact.
func ValidateIdentity(logical, extension string) error {
	if err := validateLogical(logical); err != nil {
		return err
	}
	return validateExtension(extension)
}

func validateLogical(logical string) error {
	if logical == "" {
		return fmt.Errorf("%w: empty logical name", ErrInvalidName)
	}
	if hasSeparator(logical) || strings.Contains(logical, ".") {
		return fmt.Errorf("%w: logical name %q contains a path separator or '.'", ErrInvalidName, logical)
	}
	segments := strings.Split(logical, "_")
	for _, s := range segments[1:] {
		if s == "" || isDigit(s[0]) {
			return fmt.Errorf("%w: logical name %q has a '_' segment that could be read as a pattern", ErrInvalidName, logical)
		}
	}
	return nil
}

func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidName)
	}
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if !isDigit(c) && c != '-' && c != '_' {
			return fmt.Errorf("%w: pattern %q may only contain digits, '-' and '_'", ErrInvalidName, pattern)
		}
	}
	return nil
}

func validateExtension(extension string) error {
	if extension == "" {
		return fmt.Errorf("%w: empty extension", ErrInvalidName)
	}
	if hasSeparator(extension) {
		return fmt.Errorf("%w: extension %q contains a path separator", ErrInvalidName, extension)
	}
	if strings.HasPrefix(extension, ".") || strings.HasSuffix(extension, ".") {
		return fmt.Errorf("%w: extension %q must not start or end with '.'", ErrInvalidName, extension)
	}
	return nil
}

// Match reports whether fileName is exactly <logical>_<pattern>.<extension>
// for some valid pattern, and returns that pattern.
func Match(fileName, logical, extension string) (string, bool) {
	prefix := logical + "_"
	suffix := "." + extension
	if len(fileName) <= len(prefix)+len(suffix) {
		return "", false
	}
	if !strings.HasPrefix(fileName, prefix) || !strings.HasSuffix(fileName, suffix) {
		return "", false
	}
	pattern := fileName[len(prefix) : len(fileName)-len(suffix)]
	if validatePattern(pattern) != nil {
		return "", false
	}
	return pattern, true
}

// SanitizeLogical turns an arbitrary resource alias into a valid logical
// name. Characters that would break the naming scheme become '-'.
func SanitizeLogical(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '/' || c == '\\' || c == '.' || c == os.PathSeparator:
			c = '-'
		case c == '_' && (i == len(s)-1 || s[i+1] == '_' || isDigit(s[i+1])):
			c = '-'
		}
		b.WriteByte(c)
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}

func hasSeparator(s string) bool {
	return strings.ContainsRune(s, '/') || strings.ContainsRune(s, os.PathSeparator)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
