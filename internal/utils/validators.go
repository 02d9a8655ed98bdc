package utils

import (
	"strings"
	"unicode"
)

const (
	maxRespondentIDLength  = 64
	respondentIDSeparators = "_-.@:"
)

// IsValidRespondentID checks that an inbound respondent identifier is short
// and made only of ASCII letters, digits and the separators panel providers
// use in their IDs: '_', '-', '.', '@' and ':'.
func IsValidRespondentID(id string) bool {
	if id == "" || len(id) > maxRespondentIDLength {
		return false
	}
	for _, char := range id {
		switch {
		case char > unicode.MaxASCII:
			return false
		case unicode.IsLetter(char), unicode.IsDigit(char), strings.ContainsRune(respondentIDSeparators, char):
		default:
			return false
		}
	}
	return true
}
