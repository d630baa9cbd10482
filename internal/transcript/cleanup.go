package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultBoilerplateThreshold = 0.92
	maxRepeatN                  = 3
)

// DefaultBoilerplate lists phrases speech recognisers emit for silence or
// line noise on phone audio.
var DefaultBoilerplate = []string{
	"thank you for watching",
	"thanks for watching",
	"please subscribe",
	"like and subscribe",
	"subtitles by the amara.org community",
	"transcribed by",
	"you",
}

// CleanerOption is a functional option for configuring a [Cleaner].
type CleanerOption func(*Cleaner)

// WithBoilerplate replaces the boilerplate phrase list.
func WithBoilerplate(phrases []string) CleanerOption {
	return func(c *Cleaner) {
		c.boilerplate = normalisePhrases(phrases)
	}
}

// WithBoilerplateThreshold sets the minimum Jaro-Winkler similarity at which
// a whole utterance is treated as boilerplate. Default: 0.92.
func WithBoilerplateThreshold(threshold float64) CleanerOption {
	return func(c *Cleaner) {
		c.threshold = threshold
	}
}

// Cleaner removes recogniser artefacts from speech-to-text output. It is
// read-only after construction and safe for concurrent use.
type Cleaner struct {
	boilerplate []string
	threshold   float64
}

// NewCleaner returns a Cleaner using [DefaultBoilerplate] unless overridden.
func NewCleaner(opts ...CleanerOption) *Cleaner {
	c := &Cleaner{
		boilerplate: normalisePhrases(DefaultBoilerplate),
		threshold:   defaultBoilerplateThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Clean collapses stuttered n-grams, strips boilerplate phrases and collapses
// whitespace. It returns "" when nothing but boilerplate remains.
func (c *Cleaner) Clean(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	words = collapseRepeats(words)
	text = strings.Join(words, " ")

	if c.isBoilerplate(text) {
		return ""
	}
	text = c.stripPhrases(text)
	return strings.Join(strings.Fields(text), " ")
}

// isBoilerplate reports whether the whole utterance matches a boilerplate
// phrase exactly or within the fuzzy threshold.
func (c *Cleaner) isBoilerplate(text string) bool {
	norm := normalise(text)
	if norm == "" {
		return true
	}
	for _, p := range c.boilerplate {
		if norm == p {
			return true
		}
		// Single short words are only matched exactly.
		if len(p) < 8 {
			continue
		}
		if matchr.JaroWinkler(norm, p, false) >= c.threshold {
			return true
		}
	}
	return false
}

// stripPhrases removes embedded multi-word boilerplate phrases.
func (c *Cleaner) stripPhrases(text string) string {
	for _, p := range c.boilerplate {
		if !strings.Contains(p, " ") {
			continue
		}
		lower := strings.ToLower(text)
		if len(lower) != len(text) {
			continue
		}
		for {
			i := strings.Index(lower, p)
			if i < 0 {
				break
			}
			end := i + len(p)
			for end < len(text) && strings.ContainsRune(".,!?", rune(text[end])) {
				end++
			}
			text = text[:i] + text[end:]
			lower = lower[:i] + lower[end:]
		}
	}
	return text
}

// collapseRepeats removes immediately repeated n-grams of 1 to 3 tokens. The
// later copy is kept so trailing punctuation survives ("go go." -> "go.").
func collapseRepeats(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, w)
		for collapsed := true; collapsed; {
			collapsed = false
			for n := 1; n <= maxRepeatN && 2*n <= len(out); n++ {
				tail := out[len(out)-n:]
				prev := out[len(out)-2*n : len(out)-n]
				if !sameTokens(prev, tail) {
					continue
				}
				copy(prev, tail)
				out = out[:len(out)-n]
				collapsed = true
				break
			}
		}
	}
	return out
}

func sameTokens(a, b []string) bool {
	for i := range a {
		na, nb := normalise(a[i]), normalise(b[i])
		if na == "" || na != nb {
			return false
		}
	}
	return true
}

// normalise lowercases s and strips everything but letters, digits, single
// spaces and the dot.
func normalise(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' && b.Len() > 0:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return strings.TrimRight(b.String(), ".")
}

func normalisePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := normalise(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}
