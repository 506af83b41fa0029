// Package style holds the doctor's case-note style preferences and the
// defaults that pre-fill the consultation form.
package style

import "strings"

// Config is the bundle of user-authored formatting preferences injected into
// the instruction sent to the analysis engine. It is built fresh for every
// submission from the current form values.
type Config struct {
	DoctorName         string `json:"doctor_name" yaml:"doctor_name"`
	Specialty          string `json:"specialty" yaml:"specialty"`
	FormatInstructions string `json:"format_instructions" yaml:"format_instructions"`
	Abbreviations      string `json:"abbreviations" yaml:"abbreviations"`
	ExampleCase        string `json:"example_case" yaml:"example_case"`
}

const (
	DefaultDoctorName = "Dr. [Your Name]"
	DefaultSpecialty  = "General Practice / OPD"

	DefaultFormatInstructions = `1. Chief Complaints (C/O) - with duration
2. History of Presenting Illness (HOPI) - Chronological order, Bullet points
3. Relevant Past History (Medical/Surgical)
4. Vitals (if mentioned)
5. Provisional Diagnosis
6. Plan / Medications`

	DefaultAbbreviations = "Use standard abbreviations (T2DM, HTN, CVD). Write 'od'/'bd' for dosages."

	DefaultExampleCase = `C/O:
- Fever x 3 days
- Cough with expectoration x 2 days

HOPI:
- Patient developed high grade fever 3 days back.
- Associated with generalized body pain.
- Cough started 2 days back, productive in nature, yellowish sputum.
- No h/o breathlessness or chest pain.
- No h/o similar illness in recent past.

Past Hx:
- K/c/o T2DM on OHA (Metformin).
- No drug allergies.

Rx:
- T. Paracetamol 650mg t.i.d x 3 days
- Warm saline gargle`
)

// Defaults returns the built-in style profile.
func Defaults() Config {
	return Config{
		DoctorName:         DefaultDoctorName,
		Specialty:          DefaultSpecialty,
		FormatInstructions: DefaultFormatInstructions,
		Abbreviations:      DefaultAbbreviations,
		ExampleCase:        DefaultExampleCase,
	}
}

// Merge returns c with every blank field filled from base.
func (c Config) Merge(base Config) Config {
	fill := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	}
	return Config{
		DoctorName:         fill(c.DoctorName, base.DoctorName),
		Specialty:          fill(c.Specialty, base.Specialty),
		FormatInstructions: fill(c.FormatInstructions, base.FormatInstructions),
		Abbreviations:      fill(c.Abbreviations, base.Abbreviations),
		ExampleCase:        fill(c.ExampleCase, base.ExampleCase),
	}
}

// Blank returns the names of fields that are empty after trimming.
// Empty fields are allowed but produce a weaker instruction.
func (c Config) Blank() []string {
	var out []string
	for _, f := range []struct{ name, v string }{
		{"doctor_name", c.DoctorName},
		{"specialty", c.Specialty},
		{"format_instructions", c.FormatInstructions},
		{"abbreviations", c.Abbreviations},
		{"example_case", c.ExampleCase},
	} {
		if strings.TrimSpace(f.v) == "" {
			out = append(out, f.name)
		}
	}
	return out
}
