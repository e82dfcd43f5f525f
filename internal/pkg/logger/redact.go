package logger

import "strings"

// RedactEmail masks the local part of an address so log lines never carry a
// full subscriber address. "anne.person@example.com" becomes
// "an***@example.com"; local parts of two characters or fewer are masked
// entirely.
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***@***"
	}
	local, host := email[:at], email[at+1:]
	if len(local) <= 2 {
		return "***@" + host
	}
	return local[:2] + "***@" + host
}

// RedactToken keeps enough of a confirmation token to correlate log lines
// without making the token usable.
func RedactToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}
