package config

import (
	"net/url"
	"regexp"
	"strings"
)

// credentialRule matches one way a secret can end up in launcher.lua.
type credentialRule struct {
	name string
	re   *regexp.Regexp
}

// Manifest and payload URLs are the usual place credentials leak into a
// launcher config.
var credentialRules = []credentialRule{
	{"url_userinfo", regexp.MustCompile(`https?://[^/\s:@"']+:[^/\s@"']+@`)},
	{"query_token", regexp.MustCompile(`(?i)[?&](token|access_token|api[_-]?key|sig|signature)=[a-zA-Z0-9%._-]{12,}`)},
	{"github_token", regexp.MustCompile(`gh[ps]_[a-zA-Z0-9]{36,}`)},
}

// CredentialFinding is a line of launcher.lua that looks like it holds a secret.
type CredentialFinding struct {
	Rule    string
	Line    int // 1-based
	Preview string
}

// ScanCredentials reports lines of a config file that appear to carry
// credentials. At most one finding is reported per line.
func ScanCredentials(content string) []CredentialFinding {
	var findings []CredentialFinding
	for i, line := range strings.Split(content, "\n") {
		for _, rule := range credentialRules {
			if !rule.re.MatchString(line) {
				continue
			}
			findings = append(findings, CredentialFinding{
				Rule:    rule.name,
				Line:    i + 1,
				Preview: redactLine(line),
			})
			break
		}
	}
	return findings
}

// redactLine keeps the key of an assignment and hides the value.
func redactLine(line string) string {
	key, _, ok := strings.Cut(line, "=")
	if !ok {
		return "[REDACTED]"
	}
	return strings.TrimSpace(key) + " = [REDACTED]"
}

// RedactURL strips user info and query values from a URL for logging.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable url]"
	}
	if u.User != nil {
		u.User = url.User("REDACTED")
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			q.Set(key, "REDACTED")
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
