// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package auth

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Validate checks fields against schema in declaration order and returns a
// ValidationError for the first violated rule.
func Validate(fields map[string]string, schema *Schema) error {
	for _, rule := range schema.Fields {
		if msg, ok := checkRule(rule, fields); !ok {
			return NewValidationError(msg)
		}
	}
	return nil
}

func checkRule(rule FieldRule, fields map[string]string) (string, bool) {
	value := fields[rule.Field]

	if value == "" {
		if rule.Required {
			return pick(rule.Messages.Required, "%s is a required field", rule.Label), false
		}
		return "", true
	}

	length := utf8.RuneCountInString(value)
	if rule.MinLength > 0 && length < rule.MinLength {
		return pick(rule.Messages.Min, "%s must be at least %d characters", rule.Label, rule.MinLength), false
	}
	if rule.MaxLength > 0 && length > rule.MaxLength {
		return pick(rule.Messages.Max, "%s must be at most %d characters", rule.Label, rule.MaxLength), false
	}

	if rule.Format == FormatEmail && !isEmail(value) {
		return pick(rule.Messages.Format, "%s must be valid", rule.Label), false
	}

	if rule.Match != "" && value != fields[rule.Match] {
		return pick(rule.Messages.Match, "%s should match", rule.Label), false
	}

	return "", true
}

func pick(override, format string, args ...any) string {
	if override != "" {
		return override
	}
	return fmt.Sprintf(format, args...)
}

// isEmail accepts a bare addr-spec whose domain has at least one dot.
func isEmail(value string) bool {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(value, '@')
	domain := value[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
