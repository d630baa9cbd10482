package transcript

import "strings"

// SplitSentences breaks text into sentences at '.', '!' and '?' followed by
// whitespace or end of input, and at line breaks. Runs of terminal
// punctuation ("?!", "...") stay with their sentence. Empty pieces are
// dropped and each sentence is trimmed.
func SplitSentences(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' || r == '\r' {
			flush()
			continue
		}
		cur.WriteRune(r)
		if !isTerminal(r) {
			continue
		}
		for i+1 < len(runes) && isTerminal(runes[i+1]) {
			i++
			cur.WriteRune(runes[i])
		}
		if i+1 == len(runes) || isSpace(runes[i+1]) {
			flush()
		}
	}
	flush()
	return out
}

func isTerminal(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }

// endsSentence reports whether s, ignoring trailing spaces and closing quotes,
// ends with terminal punctuation.
func endsSentence(s string) bool {
	s = strings.TrimRight(s, " \t\n\r\"'”’)")
	if s == "" {
		return false
	}
	return isTerminal(rune(s[len(s)-1]))
}
