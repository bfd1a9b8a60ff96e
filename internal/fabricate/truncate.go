package fabricate

import (
	"regexp"
	"strings"
	"unicode"
)

// Truncation is class-aware: rather than cutting a value mid-token, each
// class keeps the part that preserves the value's shape. Every rule is
// idempotent and guarantees len(result) <= maxLen.

var (
	phoneExtRe  = regexp.MustCompile(`(?i)(x|ext\.?)\s*\d+$`)
	phoneJunkRe = regexp.MustCompile(`[^\d]`)
	urlSchemeRe = regexp.MustCompile(`^(https?://)([^/]+)`)
)

// Truncate enforces maxLen on value using the rule for the class. A zero or
// negative maxLen yields the empty string.
func Truncate(class Class, value string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(value) <= maxLen {
		return value
	}
	switch class {
	case ClassPhone:
		return truncatePhone(value, maxLen)
	case ClassEmail:
		return truncateEmail(value, maxLen)
	case ClassURL:
		return truncateURL(value, maxLen)
	case ClassAddress:
		return truncateAddress(value, maxLen)
	case ClassName:
		return truncateName(value, maxLen)
	default:
		return value[:maxLen]
	}
}

// truncatePhone drops the extension first, then formatting, then keeps the
// trailing digits (the subscriber part carries the information).
func truncatePhone(phone string, maxLen int) string {
	phone = strings.TrimSpace(phoneExtRe.ReplaceAllString(phone, ""))
	if len(phone) <= maxLen {
		return phone
	}
	digits := phoneJunkRe.ReplaceAllString(phone, "")
	if len(digits) <= maxLen {
		return digits
	}
	if maxLen >= 10 {
		return digits[len(digits)-10:]
	}
	return digits[len(digits)-maxLen:]
}

// truncateEmail preserves the domain and trims the local part. When even the
// domain overflows, the tail of the domain (which carries the TLD) is kept
// behind a one-letter local part.
func truncateEmail(email string, maxLen int) string {
	local, domain, found := strings.Cut(email, "@")
	if !found || maxLen < 3 {
		return email[:maxLen]
	}
	if len(domain)+2 <= maxLen {
		budget := maxLen - len(domain) - 1
		if len(local) > budget {
			local = local[:budget]
		}
		return local + "@" + domain
	}
	return "a@" + domain[len(domain)-(maxLen-2):]
}

// truncateURL keeps scheme and host when they fit.
func truncateURL(url string, maxLen int) string {
	if m := urlSchemeRe.FindString(url); m != "" && len(m) <= maxLen {
		return m
	}
	return url[:maxLen]
}

// truncateAddress keeps capitalized words and digits, then accumulates whole
// words into the budget.
func truncateAddress(address string, maxLen int) string {
	words := strings.Fields(address)
	if len(words) > 1 {
		var important []string
		for _, w := range words {
			r := rune(w[0])
			if unicode.IsUpper(r) || unicode.IsDigit(r) {
				important = append(important, strings.TrimSuffix(w, ","))
			}
		}
		if joined := strings.Join(important, " "); joined != "" && len(joined) <= maxLen {
			return joined
		}
	}

	var sb strings.Builder
	for _, w := range words {
		need := len(w)
		if sb.Len() > 0 {
			need++
		}
		if sb.Len()+need > maxLen {
			break
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w)
	}
	if sb.Len() > 0 {
		return sb.String()
	}
	return address[:maxLen]
}

// truncateName collapses to first + last, then first alone, then a prefix.
func truncateName(name string, maxLen int) string {
	words := strings.Fields(name)
	if len(words) >= 2 {
		firstLast := words[0] + " " + words[len(words)-1]
		if len(firstLast) <= maxLen {
			return firstLast
		}
		if len(words[0]) <= maxLen {
			return words[0]
		}
	}
	return name[:maxLen]
}
