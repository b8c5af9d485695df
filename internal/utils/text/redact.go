package text

import "regexp"

// Order matters: the more specific key shapes run first so the generic
// sk- pattern never sees an already masked Anthropic key.
var redactions = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]+`), "sk-ant-****"},
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{10,}`), "sk-****"},
	{regexp.MustCompile(`SG\.[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+`), "SG.****"},
	{regexp.MustCompile(`bot[0-9]+:[a-zA-Z0-9_\-]+`), "bot****"},
	{regexp.MustCompile(`(/api/webhooks/[0-9]+/)[a-zA-Z0-9_\-]+`), "${1}****"},
	{regexp.MustCompile(`(hooks\.slack\.com/services/)[A-Za-z0-9/]+`), "${1}****"},
	{regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`), "://$1:****@"},
}

// Redact masks API keys, bot tokens, webhook secrets and DSN passwords in s.
// Error messages pass through it before they are persisted or sent out.
func Redact(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.repl)
	}
	return s
}
