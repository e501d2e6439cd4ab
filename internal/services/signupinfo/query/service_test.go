package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/Scouterna/j26-signupinfo/internal/platform/errors"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/forms"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/projectcache"
	"github.com/google/uuid"
)

type fakeSnapshots struct {
	cache *projectcache.Cache

	mu         sync.Mutex
	ensureErr  error
	refreshErr error
	ensures    int
	refreshes  int
}

func (f *fakeSnapshots) EnsureFresh(context.Context) (*projectcache.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensures++
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	snap, _ := f.cache.Current()
	return snap, nil
}

func (f *fakeSnapshots) Refresh(context.Context) (*projectcache.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	snap, _ := f.cache.Current()
	return f.cache.Install(uuid.New(), []*forms.Project{snap.Projects[1], snap.Projects[2]}), nil
}

func (f *fakeSnapshots) Cache() *projectcache.Cache {
	return f.cache
}

func testGroup(id int, name string) *forms.Group {
	return &forms.Group{
		ID:                id,
		Name:              name,
		Aggregated:        forms.Aggregates{},
		IndividualAnswers: map[int]forms.Answers{},
	}
}

func testProject() *forms.Project {
	groups := map[int]*forms.Group{
		7: testGroup(7, "Örnarna"),
		8: testGroup(8, "Eagle Eyes"),
		9: testGroup(9, "älgarna"),
	}
	groups[7].NumParticipants = 2
	groups[7].IndividualAnswers[1001] = forms.Answers{"100": forms.NewAnswer("1")}
	groups[7].Aggregated["10"] = map[string]*forms.Aggregate{
		"100": {Kind: forms.KindCounter, Counter: map[string]int{"1": 1}},
	}

	participants := map[int]forms.Participant{
		1001: {MemberNo: 1001, Name: "Anna Ek", Born: "1990-01-02", RegistrationGroup: 7, MemberGroup: 77, Email: "anna@example.com"},
		1002: {MemberNo: 1002, Name: "Åsa Öberg", Born: "2012-05-05", RegistrationGroup: 99, MemberGroup: 99},
		1003: {MemberNo: 1003, Name: "Bo Al", Born: "2012-06-01", RegistrationGroup: 7, MemberGroup: 7},
		1004: {MemberNo: 1004, Name: "Cia Fri", Born: "2011-01-01", RegistrationGroup: 0, MemberGroup: 9},
	}
	for i := 0; i < 11; i++ {
		memberNo := 2000 + i
		participants[memberNo] = forms.Participant{MemberNo: memberNo, Name: fmt.Sprintf("Scout %d", i), Born: "2013-02-02", RegistrationGroup: 8, MemberGroup: 8}
		groups[8].NumParticipants++
	}

	return &forms.Project{
		ID:           1,
		Name:         "Jamboree",
		Participants: participants,
		Questions: map[int]*forms.QuestionSection{
			10: {ID: 10, Text: "Allmänt", Questions: map[int]forms.Question{100: {ID: 100, Text: "Foto", Type: forms.QuestionBoolean, SectionID: 10}}},
		},
		Groups:   groups,
		GroupIDs: []int{7, 8, 9},
	}
}

func newTestService(t *testing.T) (*Service, *fakeSnapshots, *[]string) {
	t.Helper()
	cache := projectcache.New(time.Hour, nil)
	cache.Install(uuid.New(), []*forms.Project{testProject(), {ID: 2, Name: "Funktionärer", Groups: map[int]*forms.Group{}}})
	snapshots := &fakeSnapshots{cache: cache}
	var logs []string
	service, err := NewService(Config{
		Snapshots: snapshots,
		Logf: func(format string, args ...any) {
			logs = append(logs, fmt.Sprintf(format, args...))
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, snapshots, &logs
}

func TestProjects(t *testing.T) {
	service, snapshots, _ := newTestService(t)

	projects, err := service.Projects(context.Background())
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	if len(projects) != 2 || projects[0] != (ProjectInfo{ID: 1, Name: "Jamboree"}) || projects[1].ID != 2 {
		t.Fatalf("projects = %+v", projects)
	}
	if snapshots.ensures != 1 {
		t.Fatalf("freshness checks = %d, want 1", snapshots.ensures)
	}
}

func TestOperationsRequireFreshCache(t *testing.T) {
	service, snapshots, _ := newTestService(t)
	snapshots.ensureErr = apperrors.New(apperrors.CodeUnavailable, "project cache is not loaded")
	ctx := context.Background()

	calls := map[string]func() error{
		"projects":   func() error { _, err := service.Projects(ctx); return err },
		"questions":  func() error { _, err := service.ProjectQuestions(ctx, 1); return err },
		"groups":     func() error { _, err := service.ProjectGroups(ctx, 1); return err },
		"responses":  func() error { _, err := service.GroupResponses(ctx, 1, nil); return err },
		"individual": func() error { _, err := service.IndividualResponses(ctx, 1, 1001); return err },
		"search":     func() error { _, err := service.SearchMembers(ctx, 1, SearchCriteria{Name: "anna"}); return err },
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("%s: err = %v, want unavailable", name, err)
		}
	}
	if snapshots.ensures != len(calls) {
		t.Fatalf("freshness checks = %d, want %d", snapshots.ensures, len(calls))
	}
}

func TestUnknownProjectIsNotFound(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.ProjectQuestions(context.Background(), 404)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if !apperrors.CodeOf(err).Expected() {
		t.Fatal("not found is not an expected outcome")
	}
}

func TestProjectQuestions(t *testing.T) {
	service, _, _ := newTestService(t)

	questions, err := service.ProjectQuestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("project questions: %v", err)
	}
	if questions[10].Questions[100].Text != "Foto" {
		t.Fatalf("questions = %+v", questions)
	}
}

func TestResultsDoNotShareSnapshotState(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	questions, err := service.ProjectQuestions(ctx, 1)
	if err != nil {
		t.Fatalf("project questions: %v", err)
	}
	questions[10].Text = "changed"
	delete(questions[10].Questions, 100)
	delete(questions, 10)

	stats, err := service.GroupResponses(ctx, 1, []int{7})
	if err != nil {
		t.Fatalf("group responses: %v", err)
	}
	stats[0].Stats["10"]["100"].Counter["1"] = 99
	delete(stats[0].Stats, "10")

	questions, err = service.ProjectQuestions(ctx, 1)
	if err != nil {
		t.Fatalf("project questions: %v", err)
	}
	if section, ok := questions[10]; !ok || section.Text != "Allmänt" || len(section.Questions) != 1 {
		t.Fatalf("questions = %+v, want unchanged section 10", questions)
	}
	stats, err = service.GroupResponses(ctx, 1, []int{7})
	if err != nil {
		t.Fatalf("group responses: %v", err)
	}
	agg, ok := stats[0].Stats.Get("10", "100")
	if !ok || agg.Counter["1"] != 1 {
		t.Fatalf("aggregate = %+v, want counter 1", agg)
	}
}

func TestProjectGroupsSortedByName(t *testing.T) {
	service, _, _ := newTestService(t)

	groups, err := service.ProjectGroups(context.Background(), 1)
	if err != nil {
		t.Fatalf("project groups: %v", err)
	}
	var names []string
	for _, g := range groups {
		names = append(names, g.Name)
	}
	if got := strings.Join(names, ","); got != "Eagle Eyes,älgarna,Örnarna" {
		t.Fatalf("groups = %s", got)
	}
}

func TestGroupResponses(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	all, err := service.GroupResponses(ctx, 1, nil)
	if err != nil {
		t.Fatalf("group responses: %v", err)
	}
	if len(all) != 3 || all[0].ID != 7 || all[2].ID != 9 {
		t.Fatalf("all groups = %+v", all)
	}

	some, err := service.GroupResponses(ctx, 1, []int{8, 7, 8})
	if err != nil {
		t.Fatalf("group responses: %v", err)
	}
	if len(some) != 2 || some[0].ID != 7 || some[1].ID != 8 || some[1].NumParticipants != 11 {
		t.Fatalf("groups = %+v", some)
	}

	if _, err := service.GroupResponses(ctx, 1, []int{7, 404}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found for partial match", err)
	}
}

func TestIndividualResponses(t *testing.T) {
	service, _, logs := newTestService(t)
	ctx := context.Background()

	answers, err := service.IndividualResponses(ctx, 1, 1001)
	if err != nil {
		t.Fatalf("individual responses: %v", err)
	}
	if answers["100"].Text() != "1" {
		t.Fatalf("answers = %+v", answers)
	}

	if _, err := service.IndividualResponses(ctx, 1, 5555); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if len(*logs) != 0 {
		t.Fatalf("unknown member logged %q", *logs)
	}

	// Dangling group and missing answers are integrity conditions.
	for _, memberNo := range []int{1002, 1003} {
		_, err := service.IndividualResponses(ctx, 1, memberNo)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("member %d: err = %v, want not found", memberNo, err)
		}
		if !errors.Is(err, apperrors.New(apperrors.CodeDataIntegrity, "")) {
			t.Fatalf("member %d: err = %v, want data integrity cause", memberNo, err)
		}
	}
	if len(*logs) != 2 || !strings.Contains((*logs)[0], "data integrity") {
		t.Fatalf("logs = %q, want two integrity lines", *logs)
	}
}

func TestSearchMembers(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		criteria SearchCriteria
		want     []int
	}{
		{name: "name substring", criteria: SearchCriteria{Name: "ANNA"}, want: []int{1001}},
		{name: "unicode fold", criteria: SearchCriteria{Name: "åsa ö"}, want: []int{1002}},
		{name: "born prefix", criteria: SearchCriteria{Born: "2012-0"}, want: []int{1002, 1003}},
		{name: "troop", criteria: SearchCriteria{Troop: "ÖRN"}, want: []int{1001, 1003}},
		{name: "troop via member group", criteria: SearchCriteria{Troop: "ÄLG"}, want: []int{1004}},
		{name: "combined", criteria: SearchCriteria{Born: "2012", Troop: "örn"}, want: []int{1003}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members, err := service.SearchMembers(ctx, 1, tt.criteria)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			var got []int
			for _, m := range members {
				got = append(got, m.MemberNo)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Fatalf("members = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchMembersResolvesGroupNames(t *testing.T) {
	service, _, _ := newTestService(t)

	members, err := service.SearchMembers(context.Background(), 1, SearchCriteria{Name: "anna"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	anna := members[0]
	if anna.RegistrationGroup != "Örnarna" || anna.MemberGroup != "77" || anna.Email != "anna@example.com" {
		t.Fatalf("member = %+v", anna)
	}
}

func TestSearchMembersOutcomes(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.SearchMembers(ctx, 1, SearchCriteria{Troop: "eagle"})
	if !errors.Is(err, ErrTooManyMatches) {
		t.Fatalf("err = %v, want too many matches", err)
	}
	_, err = service.SearchMembers(ctx, 1, SearchCriteria{Name: "nobody"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	_, err = service.SearchMembers(ctx, 1, SearchCriteria{Name: "  "})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}

func TestSearchLimitIsConfigurable(t *testing.T) {
	cache := projectcache.New(time.Hour, nil)
	cache.Install(uuid.New(), []*forms.Project{testProject()})
	service, err := NewService(Config{Snapshots: &fakeSnapshots{cache: cache}, SearchLimit: 20})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	members, err := service.SearchMembers(context.Background(), 1, SearchCriteria{Troop: "eagle"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(members) != 11 {
		t.Fatalf("members = %d, want 11", len(members))
	}
}

func TestRefreshAndStatus(t *testing.T) {
	service, snapshots, _ := newTestService(t)
	before := service.Status()

	status, err := service.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snapshots.refreshes != 1 || status.Round == before.Round || !status.Loaded {
		t.Fatalf("status = %+v, before %+v", status, before)
	}

	snapshots.refreshErr = apperrors.New(apperrors.CodeUpstreamFetch, "refresh project cache")
	status, err = service.Refresh(context.Background())
	if apperrors.CodeOf(err) != apperrors.CodeUpstreamFetch {
		t.Fatalf("err = %v, want upstream fetch", err)
	}
	if !status.Loaded {
		t.Fatal("failed refresh unloaded the cache")
	}
}

func TestNewServiceRequiresSnapshots(t *testing.T) {
	if _, err := NewService(Config{}); err == nil {
		t.Fatal("expected error")
	}
}
