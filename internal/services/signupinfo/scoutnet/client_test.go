package scoutnet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/forms"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/storage"
)

type fakeUpstream struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	calls    map[string]int
	statuses map[string]int
	bodies   map[string]string
	// formsGate, when set, blocks form responses until closed.
	formsGate chan struct{}
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{t: t, calls: map[string]int{}, statuses: map[string]int{}, bodies: map[string]string{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)

	f.bodies["/questions"] = fmt.Sprintf(`{"forms": {
		"1": {"id": 1, "endpoint_url": "%[1]s/form/1?key=formkey"},
		"2": {"id": 2, "endpoint_url": "%[1]s/form/2?key=formkey"}
	}}`, f.server.URL)
	f.bodies["/participants"] = `{"participants": {"5": {"member_no": 5, "confirmed": 1}}, "labels": {"sex": [], "project_fee": []}}`
	f.bodies["/groups"] = `{"7": {"name": "Örnarna", "questions": []}}`
	f.bodies["/form/1"] = `{"form": {"type": "participant"}, "sections": {"1": {"id": 1, "title": "A"}}, "questions": {"10": {"id": 10, "question": "Q1", "type": "text", "section_id": 1}}}`
	f.bodies["/form/2"] = `{"form": {"type": "group_member"}, "sections": {"2": {"id": 2, "title": "B"}}, "questions": {"20": {"id": 20, "question": "Q2", "type": "text", "section_id": 2}}}`
	return f
}

func (f *fakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	status := f.statuses[r.URL.Path]
	body := f.bodies[r.URL.Path]
	gate := f.formsGate
	f.mu.Unlock()

	if gate != nil && strings.HasPrefix(r.URL.Path, "/form/") {
		<-gate
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if body == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (f *fakeUpstream) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeUpstream) client() *Client {
	return NewClient(ClientConfig{BaseURL: f.server.URL, RequestTimeout: 2 * time.Second, Logf: func(string, ...any) {}})
}

var groupedProject = Project{ID: 42, Name: "Jamboree", MemberKey: "mk", QuestionKey: "qk", GroupKey: "gk"}

func TestFetchProjectGrouped(t *testing.T) {
	upstream := newFakeUpstream(t)

	raw, err := upstream.client().FetchProject(context.Background(), groupedProject)
	if err != nil {
		t.Fatalf("fetch project: %v", err)
	}
	if raw.ProjectID != 42 || raw.ProjectName != "Jamboree" {
		t.Fatalf("project = %d %q", raw.ProjectID, raw.ProjectName)
	}
	if len(raw.Participants.Participants) != 1 {
		t.Fatalf("participants = %d, want 1", len(raw.Participants.Participants))
	}
	if raw.Groups["7"].Name != "Örnarna" {
		t.Fatalf("groups = %+v", raw.Groups)
	}
	if len(raw.Questions.Questions) != 2 || !raw.Questions.HasForm("group_member") {
		t.Fatalf("questions = %+v", raw.Questions)
	}
	for _, path := range []string{"/questions", "/participants", "/groups", "/form/1", "/form/2"} {
		if got := upstream.callCount(path); got != 1 {
			t.Fatalf("calls %s = %d, want 1", path, got)
		}
	}
}

func TestFetchProjectWithoutGroupKeySkipsGroups(t *testing.T) {
	upstream := newFakeUpstream(t)
	project := groupedProject
	project.GroupKey = ""

	raw, err := upstream.client().FetchProject(context.Background(), project)
	if err != nil {
		t.Fatalf("fetch project: %v", err)
	}
	if raw.Groups != nil {
		t.Fatalf("groups = %+v, want nil", raw.Groups)
	}
	if got := upstream.callCount("/groups"); got != 0 {
		t.Fatalf("groups calls = %d, want 0", got)
	}
}

func TestFetchProjectOverlapsParticipantsWithForms(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.formsGate = make(chan struct{})
	client := upstream.client()

	done := make(chan error, 1)
	go func() {
		_, err := client.FetchProject(context.Background(), groupedProject)
		done <- err
	}()

	// Participants and groups complete while the form fetches are held.
	deadline := time.Now().Add(2 * time.Second)
	for upstream.callCount("/participants") == 0 || upstream.callCount("/groups") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("participants and groups were not fetched while forms were pending")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(upstream.formsGate)
	if err := <-done; err != nil {
		t.Fatalf("fetch project: %v", err)
	}
}

func TestFetchProjectFailsOnUpstreamStatus(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.statuses["/form/2"] = http.StatusForbidden

	_, err := upstream.client().FetchProject(context.Background(), groupedProject)

	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if upstreamErr.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", upstreamErr.StatusCode)
	}
	if strings.Contains(err.Error(), "formkey") {
		t.Fatalf("error leaks api key: %v", err)
	}
}

func TestFetchProjectAcceptsObjectAnswers(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.bodies["/form/1"] = `{"form": {"type": "participant"}, "sections": {"1": {"id": 1, "title": "A"}}, "questions": {
		"10": {"id": 10, "question": "Q1", "type": "text", "section_id": 1},
		"11": {"id": 11, "question": "Bilaga", "type": "other_unsupported_by_api", "section_id": 1}}}`
	upstream.bodies["/participants"] = `{"participants": {"5": {"member_no": 5, "confirmed": 1,
		"group_registration_info": {"group_id": 7, "group_name": "Örnarna"},
		"questions": {"10": "Hej", "11": {"file": "a.pdf"}}}}, "labels": {"sex": [], "project_fee": []}}`
	upstream.bodies["/groups"] = `{"7": {"name": "Örnarna", "questions": {"20": {"nested": [1, 2]}}}}`

	raw, err := upstream.client().FetchProject(context.Background(), groupedProject)
	if err != nil {
		t.Fatalf("fetch project: %v", err)
	}

	project := forms.NewDecoder(forms.Policy{}, func(string, ...any) {}).Decode(raw)
	group, ok := project.Groups[7]
	if !ok || group.NumParticipants != 1 {
		t.Fatalf("group 7 = %+v, want one participant", group)
	}
	if agg, ok := group.Aggregated.Get("1", "10"); !ok || len(agg.Texts) != 1 || agg.Texts[0] != "Hej" {
		t.Fatalf("text aggregate = %+v, want Hej", agg)
	}
	if _, ok := group.Aggregated.Get("1", "11"); ok {
		t.Fatal("unsupported object answer was aggregated")
	}
}

func TestGetFailsOnInvalidJSON(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.bodies["/participants"] = `{"participants": `

	_, err := upstream.client().FetchProject(context.Background(), groupedProject)

	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if upstreamErr.StatusCode != 0 || upstreamErr.Cause == nil {
		t.Fatalf("upstream error = %+v, want decode cause", upstreamErr)
	}
}

func TestGetTimesOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })
	client := NewClient(ClientConfig{BaseURL: server.URL, RequestTimeout: 50 * time.Millisecond})

	var target map[string]any
	err := client.Get(context.Background(), server.URL+"/slow?key=secret", &target)

	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("error leaks api key: %v", err)
	}
}

func TestFetchAllKeepsProjectOrder(t *testing.T) {
	upstream := newFakeUpstream(t)
	second := groupedProject
	second.ID = 7
	second.Name = "Funktionärer"
	second.GroupKey = ""

	raws, err := upstream.client().FetchAll(context.Background(), []Project{groupedProject, second})
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(raws) != 2 || raws[0].ProjectID != 42 || raws[1].ProjectID != 7 {
		t.Fatalf("projects = %+v", raws)
	}
}

func TestFetchAllFailsWhenAnyProjectFails(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.statuses["/groups"] = http.StatusInternalServerError
	flat := groupedProject
	flat.ID = 7
	flat.GroupKey = ""

	if _, err := upstream.client().FetchAll(context.Background(), []Project{flat, groupedProject}); err == nil {
		t.Fatal("expected error when one project fails")
	}
}

type memoryCache struct {
	mu        sync.Mutex
	responses map[string]storage.CachedResponse
}

func (m *memoryCache) GetResponse(_ context.Context, key string) (storage.CachedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	response, ok := m.responses[key]
	if !ok {
		return storage.CachedResponse{}, storage.ErrNotFound
	}
	return response, nil
}

func (m *memoryCache) PutResponse(_ context.Context, response storage.CachedResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[response.Key] = response
	return nil
}

func TestDevCacheBypassesNetwork(t *testing.T) {
	upstream := newFakeUpstream(t)
	cache := &memoryCache{responses: map[string]storage.CachedResponse{}}
	client := NewClient(ClientConfig{BaseURL: upstream.server.URL, ResponseCache: cache})

	for i := 0; i < 2; i++ {
		if _, err := client.FetchProject(context.Background(), groupedProject); err != nil {
			t.Fatalf("fetch project run %d: %v", i, err)
		}
	}
	if got := upstream.callCount("/participants"); got != 1 {
		t.Fatalf("participants calls = %d, want 1", got)
	}
	key := CacheKey(client.ParticipantsURL(groupedProject))
	response, ok := cache.responses[key]
	if !ok {
		t.Fatalf("no cached response under %s", key)
	}
	if strings.Contains(string(response.Body), "mk") || strings.Contains(response.Key, "mk") {
		t.Fatal("cached entry carries the api key")
	}
}

func TestCacheKey(t *testing.T) {
	key := CacheKey("https://example.com/a?key=1")
	if len(key) != 16 {
		t.Fatalf("key length = %d, want 16", len(key))
	}
	if key == CacheKey("https://example.com/a?key=2") {
		t.Fatal("different urls share a key")
	}
	if key != CacheKey("https://example.com/a?key=1") {
		t.Fatal("key is not stable")
	}
}

func TestRedactURL(t *testing.T) {
	got := RedactURL("https://example.com/get/participants?id=1&key=secret")
	if strings.Contains(got, "secret") || !strings.Contains(got, "key=REDACTED") {
		t.Fatalf("redacted = %q", got)
	}
	if got := RedactURL("https://example.com/x?id=1"); got != "https://example.com/x?id=1" {
		t.Fatalf("redacted = %q, want unchanged", got)
	}
}

func TestEndpointURLs(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "https://api.example/get/"})

	tests := map[string]string{
		client.QuestionsURL(groupedProject):    "https://api.example/get/questions?id=42&key=qk",
		client.ParticipantsURL(groupedProject): "https://api.example/get/participants?id=42&key=mk",
		client.GroupsURL(groupedProject):       "https://api.example/get/groups?flat=true&id=42&key=gk",
	}
	for got, want := range tests {
		if got != want {
			t.Fatalf("url = %q, want %q", got, want)
		}
	}
}
