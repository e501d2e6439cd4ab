// Package query exposes read-only accessors over the project cache. Every
// operation first makes sure the cache is fresh.
package query

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/Scouterna/j26-signupinfo/internal/platform/errors"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/forms"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/projectcache"
	"golang.org/x/text/cases"
)

// DefaultSearchLimit caps member search results.
const DefaultSearchLimit = 10

var (
	// ErrNotFound matches any absent project, group or member.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "not found")
	// ErrTooManyMatches matches a member search exceeding the limit.
	ErrTooManyMatches = apperrors.New(apperrors.CodeTooManyMatches, "too many matches")
	// ErrInvalidArgument matches malformed requests.
	ErrInvalidArgument = apperrors.New(apperrors.CodeInvalidArgument, "invalid argument")
	// ErrUnavailable matches a cache that has never loaded.
	ErrUnavailable = apperrors.New(apperrors.CodeUnavailable, "unavailable")
)

// Snapshots provides fresh cache snapshots.
type Snapshots interface {
	EnsureFresh(ctx context.Context) (*projectcache.Snapshot, error)
	Refresh(ctx context.Context) (*projectcache.Snapshot, error)
	Cache() *projectcache.Cache
}

// Config configures a Service.
type Config struct {
	Snapshots   Snapshots
	SearchLimit int
	Logf        func(string, ...any)
}

// Service answers read queries from the current snapshot.
type Service struct {
	snapshots   Snapshots
	searchLimit int
	logf        func(string, ...any)
}

// NewService builds a query service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Snapshots == nil {
		return nil, fmt.Errorf("snapshots are required")
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Service{snapshots: cfg.Snapshots, searchLimit: cfg.SearchLimit, logf: cfg.Logf}, nil
}

// ProjectInfo identifies one project.
type ProjectInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GroupRef identifies one group of a project.
type GroupRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GroupStats is the aggregated view of one group.
type GroupStats struct {
	ID              int              `json:"id"`
	Name            string           `json:"name"`
	NumParticipants int              `json:"num_participants"`
	Stats           forms.Aggregates `json:"stats"`
}

// Member is one member search hit with group ids resolved to names.
type Member struct {
	MemberNo          int    `json:"member_no"`
	Name              string `json:"name"`
	Born              string `json:"born"`
	RegistrationGroup string `json:"registration_group"`
	MemberGroup       string `json:"member_group"`
	Email             string `json:"email,omitempty"`
	Mobile            string `json:"mobile,omitempty"`
}

// SearchCriteria filters a member search. Empty fields match everything.
type SearchCriteria struct {
	// Name is a case-insensitive substring of the participant name.
	Name string `json:"name,omitempty"`
	// Born is a prefix of the ISO birth date, e.g. "2012" or "2012-05".
	Born string `json:"born,omitempty"`
	// Troop is a case-insensitive substring of the group name.
	Troop string `json:"troop,omitempty"`
}

func (c SearchCriteria) empty() bool {
	return strings.TrimSpace(c.Name) == "" && strings.TrimSpace(c.Born) == "" && strings.TrimSpace(c.Troop) == ""
}

// fresh is the guard every read operation starts with.
func (s *Service) fresh(ctx context.Context) (*projectcache.Snapshot, error) {
	snap, err := s.snapshots.EnsureFresh(ctx)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Service) project(ctx context.Context, projectID int) (*forms.Project, error) {
	snap, err := s.fresh(ctx)
	if err != nil {
		return nil, err
	}
	project, ok := snap.Project(projectID)
	if !ok {
		return nil, notFound("project not found", "project_id", projectID)
	}
	return project, nil
}

// Projects lists the cached projects by id.
func (s *Service) Projects(ctx context.Context) ([]ProjectInfo, error) {
	snap, err := s.fresh(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectInfo, 0, len(snap.ProjectIDs))
	for _, id := range snap.ProjectIDs {
		out = append(out, ProjectInfo{ID: id, Name: snap.Projects[id].Name})
	}
	return out, nil
}

// ProjectQuestions returns a copy of a project's questions grouped by
// section id.
func (s *Service) ProjectQuestions(ctx context.Context, projectID int) (map[int]*forms.QuestionSection, error) {
	project, err := s.project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return forms.CloneSections(project.Questions), nil
}

// ProjectGroups lists a project's groups ordered by name.
func (s *Service) ProjectGroups(ctx context.Context, projectID int) ([]GroupRef, error) {
	project, err := s.project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]GroupRef, 0, len(project.GroupIDs))
	for _, group := range project.SortedGroups() {
		out = append(out, GroupRef{ID: group.ID, Name: group.Name})
	}
	fold := cases.Fold()
	sort.SliceStable(out, func(i, j int) bool {
		return fold.String(out[i].Name) < fold.String(out[j].Name)
	})
	return out, nil
}

// GroupResponses returns copies of the aggregated stats of the requested
// groups in id order. No ids means every group. Any unknown id fails the whole call.
func (s *Service) GroupResponses(ctx context.Context, projectID int, groupIDs []int) ([]GroupStats, error) {
	project, err := s.project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	wanted := make(map[int]bool, len(groupIDs))
	for _, id := range groupIDs {
		if _, ok := project.Groups[id]; !ok {
			return nil, notFound("group not found", "group_id", id)
		}
		wanted[id] = true
	}

	out := make([]GroupStats, 0, len(project.GroupIDs))
	for _, group := range project.SortedGroups() {
		if len(wanted) > 0 && !wanted[group.ID] {
			continue
		}
		out = append(out, GroupStats{
			ID:              group.ID,
			Name:            group.Name,
			NumParticipants: group.NumParticipants,
			Stats:           group.Aggregated.Clone(),
		})
	}
	return out, nil
}

// IndividualResponses returns one participant's raw answers. A participant
// whose registration group or answers cannot be found is a data-integrity
// condition: it is logged and reported as not found.
func (s *Service) IndividualResponses(ctx context.Context, projectID, memberNo int) (forms.Answers, error) {
	project, err := s.project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	participant, ok := project.Participants[memberNo]
	if !ok {
		return nil, notFound("member not found", "member_no", memberNo)
	}
	group, ok := project.Groups[participant.RegistrationGroup]
	if !ok {
		return nil, s.integrityNotFound(memberNo, fmt.Sprintf("project %d member %d references missing group %d", projectID, memberNo, participant.RegistrationGroup))
	}
	answers, ok := group.IndividualAnswers[memberNo]
	if !ok {
		return nil, s.integrityNotFound(memberNo, fmt.Sprintf("project %d member %d has no answers in group %d", projectID, memberNo, group.ID))
	}
	return answers, nil
}

// SearchMembers finds participants matching all non-empty criteria, ordered
// by member number. No hits is not found; more hits than the search limit is
// reported separately so callers can ask for a narrower search.
func (s *Service) SearchMembers(ctx context.Context, projectID int, criteria SearchCriteria) ([]Member, error) {
	if criteria.empty() {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "at least one search criterion is required")
	}
	project, err := s.project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	name := fold.String(strings.TrimSpace(criteria.Name))
	born := strings.TrimSpace(criteria.Born)
	troop := fold.String(strings.TrimSpace(criteria.Troop))

	memberNos := make([]int, 0, len(project.Participants))
	for memberNo := range project.Participants {
		memberNos = append(memberNos, memberNo)
	}
	sort.Ints(memberNos)

	var out []Member
	for _, memberNo := range memberNos {
		p := project.Participants[memberNo]
		if name != "" && !strings.Contains(fold.String(p.Name), name) {
			continue
		}
		if born != "" && !strings.HasPrefix(p.Born, born) {
			continue
		}
		if troop != "" {
			groupID := p.RegistrationGroup
			if groupID == 0 {
				groupID = p.MemberGroup
			}
			group, ok := project.Groups[groupID]
			if !ok || !strings.Contains(fold.String(group.Name), troop) {
				continue
			}
		}
		out = append(out, Member{
			MemberNo:          p.MemberNo,
			Name:              p.Name,
			Born:              p.Born,
			RegistrationGroup: project.GroupName(p.RegistrationGroup),
			MemberGroup:       project.GroupName(p.MemberGroup),
			Email:             p.Email,
			Mobile:            p.Mobile,
		})
	}

	switch {
	case len(out) == 0:
		return nil, apperrors.New(apperrors.CodeNotFound, "no matching members")
	case len(out) > s.searchLimit:
		return nil, apperrors.WithMetadata(apperrors.CodeTooManyMatches, "too many matching members", map[string]string{
			"matches": strconv.Itoa(len(out)),
			"limit":   strconv.Itoa(s.searchLimit),
		})
	}
	return out, nil
}

// Refresh reloads the cache now, outside the staleness schedule.
func (s *Service) Refresh(ctx context.Context) (projectcache.Status, error) {
	_, err := s.snapshots.Refresh(ctx)
	return s.snapshots.Cache().Status(), err
}

// Status reports the cache state without triggering a refresh.
func (s *Service) Status() projectcache.Status {
	return s.snapshots.Cache().Status()
}

func notFound(message, key string, id int) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, message, map[string]string{key: strconv.Itoa(id)})
}

// integrityNotFound logs a broken cross-reference and reports the member as
// not found, keeping the integrity error as the cause.
func (s *Service) integrityNotFound(memberNo int, detail string) error {
	s.logf("data integrity: %s", detail)
	err := apperrors.WithMetadata(apperrors.CodeNotFound, "member answers not found", map[string]string{"member_no": strconv.Itoa(memberNo)})
	err.Cause = apperrors.New(apperrors.CodeDataIntegrity, detail)
	return err
}
