// Package config handles YAML config file loading for ticktape decode.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// MissingEnvError reports a ${VAR:?message} reference to an unset variable.
type MissingEnvError struct {
	Name    string
	Message string
}

func (e *MissingEnvError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("required environment variable %s is not set", e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// ExpandEnv replaces environment references in input:
//   - ${VAR} expands to the value, or empty when unset
//   - ${VAR:-default} expands to the value, or default when unset or empty
//   - ${VAR:?message} expands to the value, or fails with message
//
// The first missing required variable is returned as *MissingEnvError.
func ExpandEnv(input string) (string, error) {
	var missing *MissingEnvError

	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, op, arg := groups[1], groups[2], groups[3]

		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		switch op {
		case "-":
			return arg
		case "?":
			if missing == nil {
				missing = &MissingEnvError{Name: name, Message: strings.TrimSpace(arg)}
			}
		}
		return ""
	})

	if missing != nil {
		return "", missing
	}
	return out, nil
}
