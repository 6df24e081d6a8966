package bridge

import (
	"strings"
	"unicode"
)

// allowedPunctuation is the punctuation, whitespace, and bracket set kept by
// the request sanitizer, covering both ASCII and common Chinese forms.
const allowedPunctuation = " ，。！？；：“”‘’、,.!?;:\"'-—～…\n\t()（）[]【】{}"

// CleanText drops every rune outside the synthesis allowlist: CJK
// ideographs, ASCII letters and digits, the common punctuation set, and any
// other non-control rune above ASCII. Offending runes are removed silently
// rather than rejecting the request. Runs of spaces collapse to one and the
// result is trimmed.
func CleanText(text string) string {
	var builder strings.Builder

	for _, char := range text {
		if allowedRune(char) {
			builder.WriteRune(char)
		}
	}

	cleaned := builder.String()
	for strings.Contains(cleaned, "  ") {
		cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	}

	return strings.TrimSpace(cleaned)
}

func allowedRune(char rune) bool {
	switch {
	case char >= 0x4E00 && char <= 0x9FFF:
		return true
	case char >= 'a' && char <= 'z', char >= 'A' && char <= 'Z', char >= '0' && char <= '9':
		return true
	case strings.ContainsRune(allowedPunctuation, char):
		return true
	case char > unicode.MaxASCII && !unicode.IsControl(char):
		return true
	default:
		return false
	}
}
