// Package validate holds the input validation primitives applied wherever
// untrusted data enters the pipeline: free text, emails, phone numbers,
// file names, and outbound URLs. All functions are pure; validators return
// a *ValidationError with a machine-readable reason code on rejection.
package validate

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var (
	scriptBlockRe  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleBlockRe   = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	danglingTagRe  = regexp.MustCompile(`(?i)</?(script|style|iframe|object|embed)\b[^>]*>?`)
	eventHandlerRe = regexp.MustCompile(`(?i)\bon[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	jsSchemeRe     = regexp.MustCompile(`(?i)javascript\s*:`)
)

// Sanitize strips markup-significant sequences from free text while keeping
// the plain text content. It is idempotent: the stripping passes repeat
// until the output reaches a fixpoint, so fragments reassembled by an
// earlier pass (e.g. "<scr<script>ipt>") cannot survive at any nesting
// depth. Every pass only deletes, so a non-fixpoint pass strictly shortens
// the string and the loop terminates.
func Sanitize(s string) string {
	out := stripControl(s)
	for {
		next := sanitizeOnce(out)
		if next == out {
			return out
		}
		out = next
	}
}

func sanitizeOnce(s string) string {
	s = scriptBlockRe.ReplaceAllString(s, "")
	s = styleBlockRe.ReplaceAllString(s, "")
	s = danglingTagRe.ReplaceAllString(s, "")
	s = eventHandlerRe.ReplaceAllString(s, "")
	s = jsSchemeRe.ReplaceAllString(s, "")
	return s
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == 0 || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func hasMarkup(s string) bool {
	return strings.ContainsAny(s, "<>\"'`") || jsSchemeRe.MatchString(s)
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return r == 0 || unicode.IsControl(r)
	}) >= 0
}

const maxEmailLength = 254

var emailLocalRe = regexp.MustCompile(`^[A-Za-z0-9.!#$%&*+/=?^_{|}~'-]+$`)
var emailLabelRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)

// Email accepts RFC-5322-plausible addresses: a single @, non-empty local
// and domain parts, no consecutive dots, and no markup or control bytes.
func Email(s string) error {
	if s == "" {
		return errf("email", CodeEmpty)
	}
	if len(s) > maxEmailLength {
		return errf("email", CodeTooLong)
	}
	if hasControl(s) {
		return errf("email", CodeControlChars)
	}
	if hasMarkup(s) {
		return errf("email", CodeMarkup)
	}
	at := strings.Index(s, "@")
	if at <= 0 || at != strings.LastIndex(s, "@") || at == len(s)-1 {
		return errf("email", CodeFormat)
	}
	local, domain := s[:at], s[at+1:]
	if strings.Contains(s, "..") {
		return errf("email", CodeFormat)
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return errf("email", CodeFormat)
	}
	if !emailLocalRe.MatchString(local) {
		return errf("email", CodeFormat)
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return errf("email", CodeFormat)
	}
	for _, label := range labels {
		if !emailLabelRe.MatchString(label) {
			return errf("email", CodeFormat)
		}
	}
	return nil
}

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
	maxPhoneLength = 32
)

// PhoneNumber accepts human-entered phone formats: optional leading +,
// digits, and common separators (space, dash, dot, parentheses).
func PhoneNumber(s string) error {
	if strings.TrimSpace(s) == "" {
		return errf("phone", CodeEmpty)
	}
	if len(s) > maxPhoneLength {
		return errf("phone", CodeTooLong)
	}
	if hasControl(s) {
		return errf("phone", CodeControlChars)
	}
	if hasMarkup(s) {
		return errf("phone", CodeMarkup)
	}
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+':
			if i != 0 {
				return errf("phone", CodeFormat)
			}
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return errf("phone", CodeFormat)
		}
	}
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return errf("phone", CodeFormat)
	}
	return nil
}

const maxFileNameLength = 255

// FileName rejects path traversal sequences, absolute path prefixes, and
// embedded null bytes. It validates a name, not a path: separators that
// would escape the intended directory are refused outright.
func FileName(s string) error {
	if s == "" {
		return errf("fileName", CodeEmpty)
	}
	if len(s) > maxFileNameLength {
		return errf("fileName", CodeTooLong)
	}
	if strings.ContainsRune(s, 0) || hasControl(s) {
		return errf("fileName", CodeControlChars)
	}
	if s == ".." || strings.Contains(s, "../") || strings.Contains(s, `..\`) {
		return errf("fileName", CodeTraversal)
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, `\`) {
		return errf("fileName", CodeAbsolutePath)
	}
	if len(s) >= 2 && s[1] == ':' { // windows drive prefix
		return errf("fileName", CodeAbsolutePath)
	}
	return nil
}

// URL validates a user-supplied outbound URL against server-side request
// forgery. Only HTTPS is accepted, the host must not resolve into loopback,
// link-local, or private address space by its literal form, and the host
// must be present in the caller's allowlist. An empty allowlist rejects
// every URL.
func URL(raw string, allowlist []string) error {
	if strings.TrimSpace(raw) == "" {
		return errf("url", CodeEmpty)
	}
	if hasControl(raw) {
		return errf("url", CodeControlChars)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errf("url", CodeFormat)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return errf("url", CodeScheme)
	}
	if u.User != nil {
		return errf("url", CodeFormat)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errf("url", CodeFormat)
	}
	if isInternalHost(host) {
		return errf("url", CodePrivateAddress)
	}
	for _, allowed := range allowlist {
		if strings.EqualFold(strings.TrimSpace(allowed), host) {
			return nil
		}
	}
	return errf("url", CodeHostNotAllowed)
}

func isInternalHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// Length bounds a free-text field. Every text input in the pipeline passes
// through this before storage, capping memory and storage exhaustion.
func Length(s string, max int) error {
	if max > 0 && len(s) > max {
		return errf("text", CodeTooLong)
	}
	return nil
}
