package matrix

import (
	"strings"
	"unicode/utf8"
)

// splitMessage breaks text into chunks of at most limit bytes. It prefers to
// break at the last newline inside the window, falling back to the last space
// and finally to a hard cut, so Markdown structure survives where possible.
// The hard cut never lands inside a multibyte rune.
func splitMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	rest := text
	for len(rest) > limit {
		window := rest[:limit]

		cut := strings.LastIndexByte(window, '\n')
		if cut <= 0 {
			cut = strings.LastIndexByte(window, ' ')
		}
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(rest[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}

		chunks = append(chunks, strings.TrimRight(rest[:cut], "\n "))
		rest = strings.TrimLeft(rest[cut:], "\n ")
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}
