package handlers

import "strings"

// blockedWords is the redaction list applied by LogMessage. Matching is
// case-insensitive and whole-word.
var blockedWords = []string{
	"damn",
	"hell",
	"crap",
	"idiot",
	"stupid",
}

// Moderate replaces blocked words with asterisks and reports whether the
// text was altered. The returned text is what the client is authorized to
// send through the provider.
func Moderate(text string) (string, bool) {
	words := strings.Fields(text)
	hit := false
	for i, word := range words {
		trimmed := strings.ToLower(strings.Trim(word, ".,!?;:\"'"))
		for _, blocked := range blockedWords {
			if trimmed == blocked {
				words[i] = mask(word)
				hit = true
				break
			}
		}
	}
	if !hit {
		return text, false
	}
	return strings.Join(words, " "), true
}

func mask(word string) string {
	masked := []rune(word)
	for i, r := range masked {
		if r != '.' && r != ',' && r != '!' && r != '?' && r != ';' && r != ':' {
			masked[i] = '*'
		}
	}
	return string(masked)
}
