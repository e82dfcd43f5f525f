package identity

import (
	"regexp"
	"strings"
)

// localRegex covers the unquoted local parts seen in practice. Quoted local
// parts are rejected; list traffic never carries them.
var localRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+$`)

var domainLabelRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)

// IsValidEmail reports whether text is acceptable as a subscriber address.
func IsValidEmail(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\r\n") {
		return false
	}
	at := strings.LastIndex(text, "@")
	if at <= 0 || at == len(text)-1 {
		return false
	}
	local, domain := text[:at], text[at+1:]
	if !localRegex.MatchString(local) {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !domainLabelRegex.MatchString(l) {
			return false
		}
	}
	return true
}
