package forms

import (
	"sort"
	"strconv"
)

// RawProject bundles the upstream documents fetched for one project in one
// refresh round. It is discarded once decoded.
type RawProject struct {
	ProjectID    int
	ProjectName  string
	Participants ParticipantsDocument
	// Groups is nil when the project has no group support.
	Groups    GroupsDocument
	Questions QuestionsDocument
}

// ParticipantsDocument is the get/participants response.
type ParticipantsDocument struct {
	Participants Object[RawParticipant] `json:"participants"`
	Labels       Labels                 `json:"labels"`
}

// Labels maps the codes used in participant records to display labels.
type Labels struct {
	Sex        Object[string] `json:"sex"`
	ProjectFee Object[string] `json:"project_fee"`
}

// RawParticipant is one participant record as sent upstream.
type RawParticipant struct {
	MemberNo              ID                 `json:"member_no"`
	FirstName             string             `json:"first_name"`
	LastName              string             `json:"last_name"`
	DateOfBirth           string             `json:"date_of_birth"`
	Confirmed             Flag               `json:"confirmed"`
	Sex                   Code               `json:"sex"`
	FeeID                 Code               `json:"fee_id"`
	PrimaryEmail          string             `json:"primary_email"`
	ContactInfo           Object[Code]       `json:"contact_info"`
	PrimaryMembershipInfo *MembershipInfo    `json:"primary_membership_info"`
	GroupRegistrationInfo *GroupRegistration `json:"group_registration_info"`
	Questions             Answers            `json:"questions"`
}

// MembershipInfo is the participant's home scout group.
type MembershipInfo struct {
	GroupID ID `json:"group_id"`
}

// GroupRegistration is the group a participant was registered through.
type GroupRegistration struct {
	GroupID   ID     `json:"group_id"`
	GroupName string `json:"group_name"`
}

// GroupsDocument is the get/groups?flat=true response keyed by group id.
type GroupsDocument = Object[RawGroup]

// RawGroup is one group record with its group-level form answers.
type RawGroup struct {
	Name      string  `json:"name"`
	Questions Answers `json:"questions"`
}

// FormIndex is the get/questions response that enumerates the project forms.
type FormIndex struct {
	Forms Object[FormRef] `json:"forms"`
}

// FormRef points at one form's own endpoint.
type FormRef struct {
	ID          ID     `json:"id"`
	Title       string `json:"title"`
	EndpointURL string `json:"endpoint_url"`
}

// EndpointURLs returns the form endpoints in stable form order.
func (idx FormIndex) EndpointURLs() []string {
	urls := make([]string, 0, len(idx.Forms))
	for _, key := range idx.Forms.Keys() {
		if url := idx.Forms[key].EndpointURL; url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

// FormDocument is one form endpoint response.
type FormDocument struct {
	Form      FormInfo            `json:"form"`
	Sections  Object[SectionDef]  `json:"sections"`
	Questions Object[QuestionDef] `json:"questions"`
}

// FormInfo describes what a form collects, e.g. "participant" or
// "group_member".
type FormInfo struct {
	Type string `json:"type"`
}

// SectionDef is one form section.
type SectionDef struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
}

// QuestionDef is one question definition.
type QuestionDef struct {
	ID        ID                `json:"id"`
	Question  string            `json:"question"`
	Type      string            `json:"type"`
	SectionID ID                `json:"section_id"`
	Choices   Object[ChoiceDef] `json:"choices"`
}

// ChoiceDef is one selectable option, keyed in QuestionDef.Choices by the
// answer code that selects it.
type ChoiceDef struct {
	Value  Code   `json:"value"`
	Option string `json:"option"`
}

// QuestionsDocument is every form of a project merged into one document.
type QuestionsDocument struct {
	// Sections holds each form's section map under the form type.
	Sections map[string]Object[SectionDef]
	// Questions holds all question definitions by question id.
	Questions map[string]QuestionDef
}

// MergeForms combines form documents in order. A form type seen twice has its
// sections merged; a question id already present keeps its first definition.
func MergeForms(docs []FormDocument) QuestionsDocument {
	merged := QuestionsDocument{
		Sections:  map[string]Object[SectionDef]{},
		Questions: map[string]QuestionDef{},
	}
	for _, doc := range docs {
		sections, ok := merged.Sections[doc.Form.Type]
		if !ok {
			sections = Object[SectionDef]{}
			merged.Sections[doc.Form.Type] = sections
		}
		for key, section := range doc.Sections {
			if _, exists := sections[key]; !exists {
				sections[key] = section
			}
		}
		for key, question := range doc.Questions {
			if _, exists := merged.Questions[key]; !exists {
				merged.Questions[key] = question
			}
		}
	}
	return merged
}

// HasForm reports whether a form of the given type was merged.
func (q QuestionsDocument) HasForm(formType string) bool {
	_, ok := q.Sections[formType]
	return ok
}

// sectionTitles flattens all forms' sections into section id -> title.
func (q QuestionsDocument) sectionTitles() map[int]string {
	titles := map[int]string{}
	formTypes := make([]string, 0, len(q.Sections))
	for formType := range q.Sections {
		formTypes = append(formTypes, formType)
	}
	sort.Strings(formTypes)
	for _, formType := range formTypes {
		for _, key := range q.Sections[formType].Keys() {
			section := q.Sections[formType][key]
			id := int(section.ID)
			if id == 0 {
				id, _ = strconv.Atoi(key)
			}
			if _, ok := titles[id]; !ok {
				titles[id] = section.Title
			}
		}
	}
	return titles
}

// questionKeys returns the merged question ids in stable order.
func (q QuestionsDocument) questionKeys() []string {
	keys := make([]string, 0, len(q.Questions))
	for key := range q.Questions {
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a, aErr := strconv.Atoi(keys[i])
		b, bErr := strconv.Atoi(keys[j])
		switch {
		case aErr == nil && bErr == nil:
			if a != b {
				return a < b
			}
			return keys[i] < keys[j]
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
}
