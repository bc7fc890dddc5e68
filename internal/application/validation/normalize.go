package validation

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	frenchPostalCode  = regexp.MustCompile(`^\d{5}$`)
	genericPostalCode = regexp.MustCompile(`^\d{4,10}$`)
)

// NormalizePhone strips separators, rewrites a 00 prefix to + and a French
// local number (0 followed by nine digits) to +33 form.
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsSpace(r):
		case strings.ContainsRune(".-()/", r):
		default:
			b.WriteRune(r)
		}
	}
	phone := b.String()

	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}
	if len(phone) == 10 && phone[0] == '0' && isDigits(phone) {
		phone = "+33" + phone[1:]
	}
	return phone
}

func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func NormalizePostalCode(raw string) string {
	return strings.Join(strings.Fields(raw), "")
}

func ValidPostalCode(code string) bool {
	return frenchPostalCode.MatchString(code) || genericPostalCode.MatchString(code)
}

// NormalizeWebsite adds an https scheme to bare host names.
func NormalizeWebsite(raw string) string {
	site := strings.TrimSpace(raw)
	if site == "" {
		return ""
	}
	lower := strings.ToLower(site)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return site
	}
	return "https://" + site
}

// SplitFullName splits on the first space: the first word is the first name
// and the rest the last name. A single word is treated as the last name.
func SplitFullName(full string) (first, last string) {
	fields := strings.Fields(full)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return "", fields[0]
	}
	return fields[0], strings.Join(fields[1:], " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
