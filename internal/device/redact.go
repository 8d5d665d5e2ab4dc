package device

import "regexp"

// redactionMask replaces secrets in log output.
const redactionMask = "********"

var (
	// urlCredentialsPattern matches the password part of user:pass@host URLs.
	urlCredentialsPattern = regexp.MustCompile(`(https?://[^:/@\s]+:)([^@/\s]+)(@)`)
	// jsonPasswordPattern matches password values in JSON fragments.
	jsonPasswordPattern = regexp.MustCompile(`("password"\s*:\s*")([^"]*)(")`)
	// quotedPasswordPattern matches single-quoted password values emitted by
	// some device firmwares.
	quotedPasswordPattern = regexp.MustCompile(`('password'\s*:\s*')([^']*)(')`)
)

// Redact masks credentials embedded in a string before it reaches any log
// or result message. It covers inline basic-auth URLs and password fields
// in JSON fragments.
func Redact(s string) string {
	s = urlCredentialsPattern.ReplaceAllString(s, "${1}"+redactionMask+"${3}")
	s = jsonPasswordPattern.ReplaceAllString(s, "${1}"+redactionMask+"${3}")
	s = quotedPasswordPattern.ReplaceAllString(s, "${1}"+redactionMask+"${3}")

	return s
}
