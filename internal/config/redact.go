package config

// RedactCredential renders a credential as "first4…last4" so a raw API key
// or username never reaches a log line.
func RedactCredential(s string) string {
	const keep = 4
	if len(s) <= keep*2 {
		return "****"
	}
	return s[:keep] + "…" + s[len(s)-keep:]
}
