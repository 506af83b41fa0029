package transcribe

import (
	"fmt"
	"strings"

	"github.com/snarg/opd-scribe/internal/style"
)

// Languages is the spoken-language pair of the consultation. The recording
// mixes Source with Target; the note is written in Target. Region names the
// practice setting in the role framing ("an Indian ... OPD"); blank derives it
// from Source.
type Languages struct {
	Source string
	Target string
	Region string
}

// phraseHints are worked translation/inference examples for a source language.
type phraseHints struct {
	region      string
	translation string // "<source phrase>" -> "<clinical term>"
	inference   string // colloquial question and what it implies
}

var knownHints = map[string]phraseHints{
	"tamil": {
		region:      "Indian",
		translation: `"Nenju erichal" -> "Retrosternal burning sensation/Heartburn"`,
		inference:   `If the doctor asks "Sugar irukka?", infer they are asking about Diabetes Mellitus status.`,
	},
}

// Composer builds the instruction sent alongside the uploaded audio. Output
// depends only on the languages and the style, so identical inputs produce
// byte-identical instructions.
type Composer struct {
	langs Languages
}

// NewComposer creates a composer for the given language pair. Blank values
// fall back to Tamil/English.
func NewComposer(langs Languages) *Composer {
	if strings.TrimSpace(langs.Source) == "" {
		langs.Source = "Tamil"
	}
	if strings.TrimSpace(langs.Target) == "" {
		langs.Target = "English"
	}
	if strings.TrimSpace(langs.Region) == "" {
		langs.Region = knownHints[strings.ToLower(langs.Source)].region
	}
	return &Composer{langs: langs}
}

// Compose assembles, in order: role framing, task rules, format template,
// abbreviation policy and the worked example to mimic.
func (c *Composer) Compose(s style.Config) string {
	src, dst := c.langs.Source, c.langs.Target
	hints, known := knownHints[strings.ToLower(src)]

	var b strings.Builder

	fmt.Fprintf(&b, "Role: You are an expert Medical Scribe assisting %s in %s OPD.\n\n", s.DoctorName, setting(c.langs.Region, s.Specialty))
	fmt.Fprintf(&b, "Task: Listen to the audio (mixed %s/%s) and generate a clinical case sheet.\n\n", src, dst)

	b.WriteString("CRITICAL RULES:\n")
	fmt.Fprintf(&b, "1. **Translation:** Accurately translate %s medical descriptions to standard %s medical terminology", src, dst)
	if known {
		fmt.Fprintf(&b, " (e.g., %s)", hints.translation)
	}
	b.WriteString(".\n")
	b.WriteString("2. **Filtering:** Completely ignore small talk, greetings, or irrelevant personal chatter.\n")
	b.WriteString("3. **Inference:** ")
	if known {
		b.WriteString(hints.inference)
	} else {
		fmt.Fprintf(&b, "When the doctor asks a colloquial %s question about a condition, record it as the standard clinical finding it refers to.", src)
	}
	b.WriteString("\n\n")

	b.WriteString("FORMATTING REQUIREMENTS:\n")
	b.WriteString(strings.TrimSpace(s.FormatInstructions))
	b.WriteString("\n\n")

	b.WriteString("ABBREVIATION STYLE:\n")
	b.WriteString(strings.TrimSpace(s.Abbreviations))
	b.WriteString("\n\n")

	b.WriteString("STYLE REFERENCE (MIMIC THIS WRITING STYLE):\n")
	b.WriteString(strings.TrimSpace(s.ExampleCase))
	b.WriteString("\n")

	return b.String()
}

// setting renders "an Indian Cardiology" or "a Cardiology" with the right
// indefinite article.
func setting(region, specialty string) string {
	phrase := strings.TrimSpace(region + " " + specialty)
	article := "a"
	if phrase != "" && strings.ContainsRune("AEIOUaeiou", rune(phrase[0])) {
		article = "an"
	}
	return article + " " + phrase
}
