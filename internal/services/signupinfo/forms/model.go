package forms

import (
	"encoding/json"
	"sort"
	"strconv"
)

// AggregateKind selects which field of an Aggregate carries its value.
type AggregateKind int

const (
	// KindCount counts participants (fixed buckets, checked booleans).
	KindCount AggregateKind = iota
	// KindCounter counts answers per choice code.
	KindCounter
	// KindSum is a running sum of numeric answers.
	KindSum
	// KindTexts collects free-text answers.
	KindTexts
	// KindValue is a single group-level answer.
	KindValue
)

// Aggregate is the folded value of one question (or fixed bucket label)
// within a group.
type Aggregate struct {
	Kind    AggregateKind
	Count   int
	Counter map[string]int
	Sum     float64
	Texts   []string
	Value   string
}

// MarshalJSON encodes only the value selected by Kind: a number for counts
// and sums, an object for counters, a list for texts and a string for
// values.
func (a *Aggregate) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case KindCount:
		return json.Marshal(a.Count)
	case KindCounter:
		if a.Counter == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(a.Counter)
	case KindSum:
		return json.Marshal(a.Sum)
	case KindTexts:
		if a.Texts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Texts)
	default:
		return json.Marshal(a.Value)
	}
}

// Aggregates maps section key -> question key -> aggregate. Question
// sections are keyed by decimal section id and question id; the fixed sex
// and fee buckets are keyed by policy section name and label.
type Aggregates map[string]map[string]*Aggregate

// Get returns the aggregate stored under section and key.
func (a Aggregates) Get(section, key string) (*Aggregate, bool) {
	bucket, ok := a[section]
	if !ok {
		return nil, false
	}
	agg, ok := bucket[key]
	return agg, ok
}

func (a Aggregates) bucket(section string) map[string]*Aggregate {
	bucket, ok := a[section]
	if !ok {
		bucket = map[string]*Aggregate{}
		a[section] = bucket
	}
	return bucket
}

func (a Aggregates) entry(section, key string, kind AggregateKind) *Aggregate {
	bucket := a.bucket(section)
	agg, ok := bucket[key]
	if !ok {
		agg = &Aggregate{Kind: kind}
		if kind == KindCounter {
			agg.Counter = map[string]int{}
		}
		bucket[key] = agg
	}
	return agg
}

func (a Aggregates) set(section, key string, agg *Aggregate) {
	a.bucket(section)[key] = agg
}

// Clone returns a deep copy.
func (a Aggregates) Clone() Aggregates {
	if a == nil {
		return nil
	}
	out := make(Aggregates, len(a))
	for section, bucket := range a {
		copied := make(map[string]*Aggregate, len(bucket))
		for key, agg := range bucket {
			copied[key] = agg.clone()
		}
		out[section] = copied
	}
	return out
}

func (a *Aggregate) clone() *Aggregate {
	c := *a
	if a.Counter != nil {
		c.Counter = make(map[string]int, len(a.Counter))
		for code, n := range a.Counter {
			c.Counter[code] = n
		}
	}
	if a.Texts != nil {
		c.Texts = append([]string(nil), a.Texts...)
	}
	return &c
}

// Participant is one confirmed participant of a project.
type Participant struct {
	MemberNo          int    `json:"member_no"`
	Name              string `json:"name"`
	Born              string `json:"born"`
	RegistrationGroup int    `json:"registration_group"`
	MemberGroup       int    `json:"member_group"`
	// Email and Mobile are only set for adults.
	Email  string `json:"email,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

// Group is one registration group with its aggregated statistics.
type Group struct {
	ID                int             `json:"id"`
	Name              string          `json:"name"`
	NumParticipants   int             `json:"num_participants"`
	Aggregated        Aggregates      `json:"aggregated"`
	IndividualAnswers map[int]Answers `json:"individual_answers"`
	GroupAnswers      Answers         `json:"group_answers,omitempty"`
	// Contact is the on-site responsible leader, when resolvable.
	Contact *Participant `json:"contact,omitempty"`
}

func newGroup(id int, name string, policy Policy) *Group {
	g := &Group{
		ID:                id,
		Name:              name,
		Aggregated:        Aggregates{},
		IndividualAnswers: map[int]Answers{},
	}
	g.Aggregated.bucket(policy.SexSection)
	g.Aggregated.bucket(policy.FeeSection)
	return g
}

// Project is the decoded model of one project.
type Project struct {
	ID           int                      `json:"id"`
	Name         string                   `json:"name"`
	Participants map[int]Participant      `json:"participants"`
	Questions    map[int]*QuestionSection `json:"questions"`
	Groups       map[int]*Group           `json:"groups"`
	// GroupIDs lists the Groups keys in ascending order.
	GroupIDs []int `json:"-"`
}

// SortedGroups returns the groups ordered by group id.
func (p *Project) SortedGroups() []*Group {
	out := make([]*Group, 0, len(p.GroupIDs))
	for _, id := range p.GroupIDs {
		out = append(out, p.Groups[id])
	}
	return out
}

// GroupName returns the display name of a group id, or the id as text when
// the group is unknown.
func (p *Project) GroupName(id int) string {
	if g, ok := p.Groups[id]; ok {
		return g.Name
	}
	return strconv.Itoa(id)
}

func sortedGroupIDs(groups map[int]*Group) []int {
	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
