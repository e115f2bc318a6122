package member

import "strings"

// DialString drops the spaces, parentheses and hyphens people type into phone
// numbers, leaving something a phone can dial.
func DialString(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '(', ')', '-':
			return -1
		default:
			return r
		}
	}, phone)
}

// DisplayPhone renders a North American number as +1 (XXX) XXX-XXXX.
// Anything else is returned unchanged.
func DisplayPhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r == '+' || (r >= '0' && r <= '9') {
			return r
		}

		return -1
	}, phone)

	if len(digits) != 12 || !strings.HasPrefix(digits, "+1") || strings.Count(digits, "+") != 1 {
		return phone
	}

	return "+1 (" + digits[2:5] + ") " + digits[5:8] + "-" + digits[8:]
}
