package forms

import "strings"

// DefaultAdultCutoff is the birth date before which a participant is an
// adult at the event.
const DefaultAdultCutoff = "2008-07-25"

// Policy holds the event-specific rules the decoder applies. The defaults
// reproduce the rules of the registration statistics for the jamboree.
type Policy struct {
	// AdultCutoff is an ISO date; participants born before it get contact
	// details attached.
	AdultCutoff string
	// GroupedFormType marks a project as grouped when a form of this type is
	// present.
	GroupedFormType string

	SexSection   string
	FeeSection   string
	UnknownLabel string

	// CheckedOption is the boolean choice option that counts as yes.
	CheckedOption string
	YesLabel      string
	NoLabel       string

	// Free text is never collected from these sections or questions.
	ExcludedTextSections  []string
	ExcludedTextQuestions []string
	// NullTextValues are dropped (case-insensitive, trimmed).
	NullTextValues []string

	// ContactSection and ContactQuestion identify the group-level question
	// whose answer is the member number of the on-site responsible leader.
	ContactSection  string
	ContactQuestion string
}

// DefaultPolicy returns the jamboree decoding rules.
func DefaultPolicy() Policy {
	return Policy{
		AdultCutoff:     DefaultAdultCutoff,
		GroupedFormType: "group_member",
		SexSection:      "Kön",
		FeeSection:      "Avgift",
		UnknownLabel:    "Okänd",
		CheckedOption:   "checked",
		YesLabel:        "Ja",
		NoLabel:         "Nej",
		ExcludedTextSections: []string{
			"Hälsa",
		},
		ExcludedTextQuestions: []string{
			"Övriga önskemål på arbetsuppgifter",
			"Önskemål om personer att jobba tillsammans med:",
			"Om du har varit i kontakt med oss innan och förbokat vad du ska jobba med i Jamboreen, vem har du varit i kontakt med och inom vilket område ska du jobba?",
			"Vad är namnet på den nationella scoutorganisation som du tillhör?",
		},
		NullTextValues:  []string{"no", "none", "n/a", "na", "n/a`", "ingen", "-"},
		ContactSection:  "Ansvariga från kåren",
		ContactQuestion: "Ansvarig ledare på plats",
	}
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if strings.TrimSpace(p.AdultCutoff) == "" {
		p.AdultCutoff = d.AdultCutoff
	}
	if p.GroupedFormType == "" {
		p.GroupedFormType = d.GroupedFormType
	}
	if p.SexSection == "" {
		p.SexSection = d.SexSection
	}
	if p.FeeSection == "" {
		p.FeeSection = d.FeeSection
	}
	if p.UnknownLabel == "" {
		p.UnknownLabel = d.UnknownLabel
	}
	if p.CheckedOption == "" {
		p.CheckedOption = d.CheckedOption
	}
	if p.YesLabel == "" {
		p.YesLabel = d.YesLabel
	}
	if p.NoLabel == "" {
		p.NoLabel = d.NoLabel
	}
	if p.ExcludedTextSections == nil {
		p.ExcludedTextSections = d.ExcludedTextSections
	}
	if p.ExcludedTextQuestions == nil {
		p.ExcludedTextQuestions = d.ExcludedTextQuestions
	}
	if p.NullTextValues == nil {
		p.NullTextValues = d.NullTextValues
	}
	if p.ContactSection == "" {
		p.ContactSection = d.ContactSection
	}
	if p.ContactQuestion == "" {
		p.ContactQuestion = d.ContactQuestion
	}
	return p
}

func (p Policy) isAdult(born string) bool {
	born = strings.TrimSpace(born)
	return born != "" && born < p.AdultCutoff
}

func (p Policy) collectsText(sectionTitle, questionText string) bool {
	for _, s := range p.ExcludedTextSections {
		if s == sectionTitle {
			return false
		}
	}
	for _, q := range p.ExcludedTextQuestions {
		if q == questionText {
			return false
		}
	}
	return true
}

func (p Policy) isNullText(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return true
	}
	for _, n := range p.NullTextValues {
		if strings.EqualFold(value, n) {
			return true
		}
	}
	return false
}
