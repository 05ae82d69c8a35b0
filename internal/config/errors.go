package config

import (
	"errors"
	"fmt"
)

// ErrorKind separates unreadable files from well-formed files with bad content.
type ErrorKind int

const (
	KindSyntax ErrorKind = iota + 1
	KindSchema
)

// Error is returned by Parse/Load for any settings problem. It is always fatal.
type Error struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindSyntax:
		return fmt.Sprintf("settings %s: invalid syntax: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("settings %s: %v", e.Path, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Remediation is the operator-facing hint printed before exiting.
func (e *Error) Remediation() string {
	if e.Kind == KindSyntax {
		return fmt.Sprintf(`
!!! THE SETTINGS FILE %s IS NOT VALID %s !!!

Fix the syntax errors before asking for help. A linter such as
http://www.yamllint.com/ will point at the offending line.
`, e.Path, formatName(e.Path))
	}
	return fmt.Sprintf(`
!!! THE SETTINGS FILE %s IS MISSING OR HAS MISTYPED FIELDS !!!

api_id (number), api_hash (string) and app_short_name (string) are required,
and every raid entry must reference a message_type defined under messages.
`, e.Path)
}

func formatName(path string) string {
	if formatOf(path) == formatYAML {
		return "YAML"
	}
	return "JSON"
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
