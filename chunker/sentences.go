package chunker

import (
	"strings"
	"unicode"
)

// abbreviations that end with a period but do not end a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"inc": true, "ltd": true, "co": true, "corp": true, "no": true,
	"fig": true, "sec": true, "art": true, "para": true, "approx": true,
	"e.g": true, "i.e": true, "u.s": true, "u.k": true,
}

// SplitSentences splits prose into sentences. Terminators are '.', '!', '?'
// followed by whitespace and an uppercase letter, digit or quote; known
// abbreviations and decimal numbers do not terminate.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 >= len(runes) {
			break
		}
		if r == '.' {
			if isDecimalPoint(runes, i) || isAbbreviation(runes, start, i) {
				continue
			}
		}
		// Require whitespace then a sentence-opening rune.
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) {
			continue
		}
		next := runes[j]
		if !unicode.IsUpper(next) && !unicode.IsDigit(next) &&
			next != '"' && next != '“' && next != '(' {
			continue
		}
		sent := strings.TrimSpace(string(runes[start : i+1]))
		if sent != "" {
			sentences = append(sentences, sent)
		}
		start = j
		i = j - 1
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isDecimalPoint(runes []rune, i int) bool {
	return i > 0 && i+1 < len(runes) &&
		unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1])
}

func isAbbreviation(runes []rune, start, i int) bool {
	// Walk back to the preceding word boundary.
	w := i
	for w > start && !unicode.IsSpace(runes[w-1]) {
		w--
	}
	word := strings.ToLower(strings.TrimSuffix(string(runes[w:i]), "."))
	if abbreviations[word] {
		return true
	}
	// Single-letter initials ("J. Smith").
	return len([]rune(word)) == 1 && unicode.IsLetter([]rune(word)[0])
}
