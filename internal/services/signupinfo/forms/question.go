package forms

import "encoding/json"

// QuestionType is the closed set of question kinds the decoder aggregates.
type QuestionType int

const (
	QuestionUnsupported QuestionType = iota
	QuestionBoolean
	QuestionChoice
	QuestionText
	QuestionNumber
)

// upstreamUnsupported is the type the registration API reports for question
// kinds it cannot export; those are skipped without logging.
const upstreamUnsupported = "other_unsupported_by_api"

// ParseQuestionType maps an upstream type name to a QuestionType. known is
// false for names the decoder has never seen; those map to
// QuestionUnsupported.
func ParseQuestionType(name string) (qt QuestionType, known bool) {
	switch name {
	case "boolean":
		return QuestionBoolean, true
	case "choice":
		return QuestionChoice, true
	case "text":
		return QuestionText, true
	case "number":
		return QuestionNumber, true
	case upstreamUnsupported:
		return QuestionUnsupported, true
	default:
		return QuestionUnsupported, false
	}
}

func (qt QuestionType) String() string {
	switch qt {
	case QuestionBoolean:
		return "boolean"
	case QuestionChoice:
		return "choice"
	case QuestionText:
		return "text"
	case QuestionNumber:
		return "number"
	default:
		return "unsupported"
	}
}

// MarshalJSON encodes the type by name.
func (qt QuestionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(qt.String())
}

// Question is one decoded question definition.
type Question struct {
	ID        int          `json:"id"`
	Text      string       `json:"text"`
	Type      QuestionType `json:"type"`
	SectionID int          `json:"section_id"`
	// Choices maps answer code to display label for choice and boolean
	// questions.
	Choices map[string]string `json:"choices,omitempty"`
}

// QuestionSection groups the questions of one form section.
type QuestionSection struct {
	ID        int              `json:"id"`
	Text      string           `json:"text"`
	Questions map[int]Question `json:"questions"`
}

// CloneSections returns a deep copy of a questions listing.
func CloneSections(sections map[int]*QuestionSection) map[int]*QuestionSection {
	out := make(map[int]*QuestionSection, len(sections))
	for id, section := range sections {
		questions := make(map[int]Question, len(section.Questions))
		for qid, q := range section.Questions {
			if q.Choices != nil {
				choices := make(map[string]string, len(q.Choices))
				for code, label := range q.Choices {
					choices[code] = label
				}
				q.Choices = choices
			}
			questions[qid] = q
		}
		out[id] = &QuestionSection{ID: section.ID, Text: section.Text, Questions: questions}
	}
	return out
}
