// Package personalize rewrites call scripts to match a persona's tone.
//
// All functions are pure and deterministic. Rules run in a fixed order:
// formality, then emotion, then length.
package personalize

import (
	"regexp"
	"strings"
)

type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelConcise  Level = "concise"
)

// ToneProfile is the set of text-transform levels carried by a persona.
// Vocabulary is stored for display but currently drives no rewrite.
type ToneProfile struct {
	Formality  Level `json:"formality" yaml:"formality"`
	Emotion    Level `json:"emotion" yaml:"emotion"`
	Length     Level `json:"length" yaml:"length"`
	Vocabulary Level `json:"vocabulary" yaml:"vocabulary"`
}

type rule struct {
	re   *regexp.Regexp
	repl string
}

func literal(from, to string) rule {
	return rule{re: regexp.MustCompile(regexp.QuoteMeta(from)), repl: to}
}

func word(from, to string) rule {
	return rule{re: regexp.MustCompile(`\b` + regexp.QuoteMeta(from) + `\b`), repl: to}
}

var (
	raiseFormality = []rule{
		literal("I'm", "I am"),
		literal("don't", "do not"),
		literal("can't", "cannot"),
		literal("won't", "will not"),
		word("want to", "would like to"),
		word("ask that you", "respectfully request that you"),
	}

	lowerFormality = []rule{
		literal("I am calling", "I'm calling"),
		literal("I am a", "I'm a"),
		literal("do not", "don't"),
		literal("cannot", "can't"),
	}

	raiseEmotion = []rule{
		literal("I urge", "I strongly urge"),
		literal("support", "strongly support"),
		literal("important", "critically important"),
		literal("need", "desperately need"),
		literal(". ", "! "),
	}

	lowerEmotion = []rule{
		literal("strongly ", ""),
		literal("desperately ", ""),
		literal("!", "."),
	}

	concise = []rule{
		literal("I want to express my ", "I "),
		literal("I would like to ", "I "),
		word("very", ""),
		{re: regexp.MustCompile(`  +`), repl: " "},
	}
)

func apply(s string, rules []rule) string {
	for _, r := range rules {
		s = r.re.ReplaceAllLiteralString(s, r.repl)
	}
	return s
}

// Personalize applies the tone profile's rewrites to script.
// Unknown levels leave the text untouched for that dimension.
func Personalize(script string, p ToneProfile) string {
	out := script

	switch p.Formality {
	case LevelHigh:
		out = apply(out, raiseFormality)
	case LevelLow:
		out = apply(out, lowerFormality)
	}

	switch p.Emotion {
	case LevelHigh:
		out = apply(out, raiseEmotion)
	case LevelLow:
		out = apply(out, lowerEmotion)
	}

	if p.Length == LevelConcise {
		out = apply(out, concise)
	}
	return out
}

var placeholderRE = regexp.MustCompile(`\[([^\[\]]+)\]`)

// FillPlaceholders replaces every [KEY] token that has an entry in mapping.
// Substitution is single-pass: values are never re-scanned for tokens.
// Unmapped tokens are left verbatim.
func FillPlaceholders(script string, mapping map[string]string) string {
	if len(mapping) == 0 || !strings.Contains(script, "[") {
		return script
	}
	return placeholderRE.ReplaceAllStringFunc(script, func(tok string) string {
		key := tok[1 : len(tok)-1]
		if v, ok := mapping[key]; ok {
			return v
		}
		return tok
	})
}
