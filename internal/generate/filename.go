package generate

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	previewRunes     = 10
	fallbackBaseName = "audio"
)

// invalidFilenameRunes are rejected by at least one supported filesystem.
const invalidFilenameRunes = `<>:"/\|?*`

// sanitizeBaseName reduces segment text to a filesystem-safe fragment:
// filesystem-reserved runes, control runes, and whitespace are dropped,
// underscore runs collapse to one, and empty results fall back to a fixed
// name so a filename is always produced.
func sanitizeBaseName(text string) string {
	var builder strings.Builder

	lastUnderscore := false

	for _, char := range text {
		if strings.ContainsRune(invalidFilenameRunes, char) ||
			unicode.IsControl(char) || unicode.IsSpace(char) {
			continue
		}

		if char == '_' {
			if lastUnderscore {
				continue
			}

			lastUnderscore = true
		} else {
			lastUnderscore = false
		}

		builder.WriteRune(char)
	}

	cleaned := strings.Trim(builder.String(), "_")
	if cleaned == "" {
		return fallbackBaseName
	}

	return cleaned
}

// chunkFilename names one generated chunk so output directories stay
// readable and self-describing: segment index, run number, a short text
// preview, and the chunk number within the run.
func chunkFilename(segmentIndex, run int, text string, chunk int) string {
	preview := []rune(sanitizeBaseName(text))
	if len(preview) > previewRunes {
		preview = preview[:previewRunes]
	}

	return fmt.Sprintf("%d_%d_%s_%d.wav", segmentIndex, run, string(preview), chunk)
}
