package utils

import "strings"

// MaskSecret keeps the first four characters of s for display
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "*****"
	}
	return s[:4] + "*****"
}

// MaskEmail hides the local part of an address except its first character
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return MaskSecret(email)
	}
	return local[:1] + "***@" + domain
}
