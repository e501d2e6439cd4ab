// Package forms decodes the registration API documents of a project into the
// aggregated per-group statistics model. Decoding is pure and best-effort:
// records that do not fit are logged and skipped, never fatal.
package forms

import (
	"log"
	"strconv"
	"strings"
)

// Decoder turns RawProject documents into Projects.
type Decoder struct {
	policy Policy
	logf   func(string, ...any)
}

// NewDecoder creates a decoder. Zero policy fields take their defaults; a nil
// logf logs through the standard logger.
func NewDecoder(policy Policy, logf func(string, ...any)) *Decoder {
	if logf == nil {
		logf = log.Printf
	}
	return &Decoder{policy: policy.withDefaults(), logf: logf}
}

// Policy returns the effective decoding policy.
func (d *Decoder) Policy() Policy {
	return d.policy
}

// projectDecode carries the per-project state of one Decode call.
type projectDecode struct {
	*Decoder
	raw       RawProject
	grouped   bool
	titles    map[int]string
	questions map[string]decodedQuestion
	project   *Project
	// unknownTypes suppresses repeated logs for the same question type.
	unknownTypes map[string]bool
}

type decodedQuestion struct {
	def        QuestionDef
	qtype      QuestionType
	sectionKey string
	questionID string
}

// Decode builds the project model. Participants, answers and groups are
// visited in ascending id order so the output is identical for identical
// input.
func (d *Decoder) Decode(raw RawProject) *Project {
	pd := &projectDecode{
		Decoder:      d,
		raw:          raw,
		grouped:      raw.Questions.HasForm(d.policy.GroupedFormType),
		titles:       raw.Questions.sectionTitles(),
		questions:    map[string]decodedQuestion{},
		unknownTypes: map[string]bool{},
		project: &Project{
			ID:           raw.ProjectID,
			Name:         raw.ProjectName,
			Participants: map[int]Participant{},
			Questions:    map[int]*QuestionSection{},
			Groups:       map[int]*Group{},
		},
	}
	pd.indexQuestions()
	pd.foldParticipants()
	if pd.grouped {
		pd.foldGroupAnswers()
	}
	pd.resolveContacts()
	pd.project.GroupIDs = sortedGroupIDs(pd.project.Groups)
	return pd.project
}

func (pd *projectDecode) indexQuestions() {
	for _, key := range pd.raw.Questions.questionKeys() {
		def := pd.raw.Questions.Questions[key]
		qtype, known := ParseQuestionType(def.Type)
		if !known && !pd.unknownTypes[def.Type] {
			pd.unknownTypes[def.Type] = true
			pd.logf("project %d: unhandled question type %q", pd.raw.ProjectID, def.Type)
		}
		questionID := int(def.ID)
		if questionID == 0 {
			questionID, _ = strconv.Atoi(key)
		}
		sectionID := int(def.SectionID)
		pd.questions[key] = decodedQuestion{
			def:        def,
			qtype:      qtype,
			sectionKey: strconv.Itoa(sectionID),
			questionID: strconv.Itoa(questionID),
		}

		section, ok := pd.project.Questions[sectionID]
		if !ok {
			section = &QuestionSection{ID: sectionID, Text: pd.titles[sectionID], Questions: map[int]Question{}}
			pd.project.Questions[sectionID] = section
		}
		q := Question{ID: questionID, Text: def.Question, Type: qtype, SectionID: sectionID}
		if qtype == QuestionChoice || qtype == QuestionBoolean {
			q.Choices = map[string]string{}
			for code, choice := range def.Choices {
				q.Choices[code] = choice.Option
			}
		}
		section.Questions[questionID] = q
	}
}

func (pd *projectDecode) foldParticipants() {
	doc := pd.raw.Participants
	for _, key := range doc.Participants.Keys() {
		p := doc.Participants[key]
		if !p.Confirmed {
			continue
		}
		memberNo := int(p.MemberNo)
		groupID, groupName := pd.registrationGroup(memberNo, p)

		participant := Participant{
			MemberNo:          memberNo,
			Name:              strings.TrimSpace(p.FirstName + " " + p.LastName),
			Born:              p.DateOfBirth,
			RegistrationGroup: groupID,
			MemberGroup:       groupID,
		}
		if p.PrimaryMembershipInfo != nil {
			participant.MemberGroup = int(p.PrimaryMembershipInfo.GroupID)
		}
		if pd.policy.isAdult(p.DateOfBirth) {
			participant.Email = p.PrimaryEmail
			participant.Mobile = string(p.ContactInfo["1"])
		}
		pd.project.Participants[memberNo] = participant

		group, ok := pd.project.Groups[groupID]
		if !ok {
			group = newGroup(groupID, groupName, pd.policy)
			pd.project.Groups[groupID] = group
		}
		group.NumParticipants++
		pd.countLabel(group, pd.policy.SexSection, doc.Labels.Sex, string(p.Sex))
		pd.countLabel(group, pd.policy.FeeSection, doc.Labels.ProjectFee, string(p.FeeID))

		if len(p.Questions) == 0 {
			continue
		}
		group.IndividualAnswers[memberNo] = p.Questions
		for _, qkey := range p.Questions.Keys() {
			q, ok := pd.questions[qkey]
			if !ok {
				pd.logf("project %d: member %d answered unknown question %s", pd.raw.ProjectID, memberNo, qkey)
				continue
			}
			pd.foldAnswer(group, q, p.Questions[qkey])
		}
	}
}

// registrationGroup returns the group a participant is folded into. Flat
// projects have one implicit group 0 named after the project.
func (pd *projectDecode) registrationGroup(memberNo int, p RawParticipant) (int, string) {
	if !pd.grouped {
		return 0, pd.raw.ProjectName
	}
	if p.GroupRegistrationInfo == nil {
		pd.logf("project %d: member %d has no group registration, using group 0", pd.raw.ProjectID, memberNo)
		return 0, pd.raw.ProjectName
	}
	return int(p.GroupRegistrationInfo.GroupID), p.GroupRegistrationInfo.GroupName
}

func (pd *projectDecode) countLabel(group *Group, section string, labels Object[string], code string) {
	label, ok := labels[code]
	if !ok || label == "" {
		label = pd.policy.UnknownLabel
	}
	group.Aggregated.entry(section, label, KindCount).Count++
}

// foldAnswer folds one participant answer with the handler of its question
// type.
func (pd *projectDecode) foldAnswer(group *Group, q decodedQuestion, answer Answer) {
	switch q.qtype {
	case QuestionBoolean:
		pd.foldBoolean(group, q, answer)
	case QuestionChoice:
		pd.foldChoice(group, q, answer)
	case QuestionText:
		pd.foldText(group, q, answer)
	case QuestionNumber:
		pd.foldNumber(group, q, answer)
	case QuestionUnsupported:
	}
}

func (pd *projectDecode) foldBoolean(group *Group, q decodedQuestion, answer Answer) {
	if !pd.isChecked(q, answer) {
		return
	}
	group.Aggregated.entry(q.sectionKey, q.questionID, KindCount).Count++
}

func (pd *projectDecode) foldChoice(group *Group, q decodedQuestion, answer Answer) {
	agg := group.Aggregated.entry(q.sectionKey, q.questionID, KindCounter)
	for _, code := range answer.Values {
		if _, ok := q.def.Choices[code]; !ok {
			continue
		}
		agg.Counter[code]++
	}
}

func (pd *projectDecode) foldText(group *Group, q decodedQuestion, answer Answer) {
	if !pd.policy.collectsText(pd.titles[int(q.def.SectionID)], q.def.Question) {
		return
	}
	value := strings.TrimSpace(answer.Text())
	if pd.policy.isNullText(value) {
		return
	}
	agg := group.Aggregated.entry(q.sectionKey, q.questionID, KindTexts)
	agg.Texts = append(agg.Texts, value)
}

func (pd *projectDecode) foldNumber(group *Group, q decodedQuestion, answer Answer) {
	text := strings.TrimSpace(answer.Text())
	if text == "" {
		return
	}
	value, err := strconv.ParseFloat(strings.Replace(text, ",", ".", 1), 64)
	if err != nil {
		pd.logf("project %d: question %s has non-numeric answer %q", pd.raw.ProjectID, q.questionID, text)
		return
	}
	// A numeric zero is an empty answer; the string "0" is a real one.
	if value == 0 && !answer.quoted() {
		return
	}
	group.Aggregated.entry(q.sectionKey, q.questionID, KindSum).Sum += value
}

func (pd *projectDecode) isChecked(q decodedQuestion, answer Answer) bool {
	if len(answer.Values) == 0 {
		return false
	}
	choice, ok := q.def.Choices[answer.Values[0]]
	return ok && choice.Option == pd.policy.CheckedOption
}

// foldGroupAnswers stores each group's own form answers and mirrors them
// into the aggregates as single values, replacing any participant fold of
// the same question.
func (pd *projectDecode) foldGroupAnswers() {
	groups := pd.raw.Groups
	for _, key := range groups.Keys() {
		raw := groups[key]
		gid, err := strconv.Atoi(key)
		if err != nil {
			pd.logf("project %d: skipping group with non-numeric id %q", pd.raw.ProjectID, key)
			continue
		}
		group, ok := pd.project.Groups[gid]
		if !ok {
			group = newGroup(gid, raw.Name, pd.policy)
			pd.project.Groups[gid] = group
		}
		if len(raw.Questions) == 0 {
			continue
		}
		group.GroupAnswers = raw.Questions
		for _, qkey := range raw.Questions.Keys() {
			q, ok := pd.questions[qkey]
			if !ok {
				pd.logf("project %d: group %d answered unknown question %s", pd.raw.ProjectID, gid, qkey)
				continue
			}
			answer := raw.Questions[qkey]
			var value string
			switch q.qtype {
			case QuestionBoolean:
				value = pd.policy.NoLabel
				if pd.isChecked(q, answer) {
					value = pd.policy.YesLabel
				}
			case QuestionChoice:
				if len(answer.Values) == 0 {
					continue
				}
				choice, ok := q.def.Choices[answer.Values[0]]
				if !ok {
					continue
				}
				value = choice.Option
			default:
				value = answer.Text()
			}
			group.Aggregated.set(q.sectionKey, q.questionID, &Aggregate{Kind: KindValue, Value: value})
		}
	}
}

// resolveContacts links each group to its on-site responsible leader. A
// missing answer or an unknown member number leaves the contact unset.
func (pd *projectDecode) resolveContacts() {
	sectionKey, questionKey, ok := pd.contactQuestion()
	if !ok {
		return
	}
	for _, group := range pd.project.Groups {
		agg, ok := group.Aggregated.Get(sectionKey, questionKey)
		if !ok {
			continue
		}
		memberNo, ok := memberReference(agg)
		if !ok {
			continue
		}
		participant, ok := pd.project.Participants[memberNo]
		if !ok {
			pd.logf("project %d: group %d contact %d is not a participant", pd.raw.ProjectID, group.ID, memberNo)
			continue
		}
		contact := participant
		group.Contact = &contact
	}
}

func (pd *projectDecode) contactQuestion() (string, string, bool) {
	for _, key := range pd.raw.Questions.questionKeys() {
		q := pd.questions[key]
		if q.def.Question == pd.policy.ContactQuestion && pd.titles[int(q.def.SectionID)] == pd.policy.ContactSection {
			return q.sectionKey, q.questionID, true
		}
	}
	return "", "", false
}

func memberReference(agg *Aggregate) (int, bool) {
	switch agg.Kind {
	case KindValue:
		n, err := strconv.Atoi(strings.TrimSpace(agg.Value))
		return n, err == nil && n > 0
	case KindSum:
		return int(agg.Sum), agg.Sum > 0
	default:
		return 0, false
	}
}
