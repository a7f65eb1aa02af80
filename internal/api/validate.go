package api

import (
	"regexp"
	"unicode/utf8"
)

// maxNameLen is the maximum length for name fields.
const maxNameLen = 200

// maxPromptLen is the maximum length for tenant system prompts.
const maxPromptLen = 4000

// maxShortStringLen is the maximum length for short text fields.
const maxShortStringLen = 500

// maxPasswordLen is the maximum length for passwords.
const maxPasswordLen = 256

// minPasswordLen is the minimum length for admin passwords.
const minPasswordLen = 8

// phoneRe validates dialed numbers: optional leading +, 5-20 digits.
var phoneRe = regexp.MustCompile(`^\+?\d{5,20}$`)

// validateStringLen checks that a string does not exceed maxLen runes.
// Returns an error message if invalid, empty string if OK.
func validateStringLen(field, value string, maxLen int) string {
	if utf8.RuneCountInString(value) > maxLen {
		return field + " exceeds maximum length"
	}
	return ""
}

// validateRequiredStringLen checks that a non-empty string does not exceed
// maxLen runes.
func validateRequiredStringLen(field, value string, maxLen int) string {
	if value == "" {
		return field + " is required"
	}
	return validateStringLen(field, value, maxLen)
}

// validatePhoneNumber checks a dialed number has a plausible E.164-like shape.
func validatePhoneNumber(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if !phoneRe.MatchString(value) {
		return field + " must be digits with an optional leading +"
	}
	return ""
}
