package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minigame-engine/internal/config"
	"github.com/minigame-engine/internal/domain"
)

func newTestChallengeService(roster *fakeRoster, cache *fakeStandingsCache, at time.Time) *ChallengeService {
	s := &ChallengeService{
		roster: roster,
		cfg:    &config.StandingsConfig{DefaultLimit: 2, MaxLimit: 3},
		logger: testLogger(),
		now:    func() time.Time { return at },
		newID:  (&idSequence{prefix: "ch"}).next,
	}
	if cache != nil {
		s.standings = cache
	}
	return s
}

func TestCreateChallengeSuccess(t *testing.T) {
	roster := newFakeRoster()
	service := newTestChallengeService(roster, nil, testWindowStart)

	challenge, err := service.Create(context.Background(), "founder", domain.CreateChallengeRequest{
		Name:     "Spring Shape-Up",
		StartsAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   testChallengeEnd,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if challenge.ID != "ch-1" {
		t.Fatalf("expected ch-1, got %s", challenge.ID)
	}
	if challenge.CreatedBy != "founder" {
		t.Fatalf("expected created_by founder, got %s", challenge.CreatedBy)
	}
	if _, ok := roster.challenges["ch-1"]; !ok {
		t.Fatal("expected challenge persisted")
	}
	if len(roster.joined) != 1 || roster.joined[0] != "ch-1|founder" {
		t.Fatalf("expected founder seated, got %+v", roster.joined)
	}
}

func TestCreateChallengeValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		actor   string
		req     domain.CreateChallengeRequest
		wantErr error
	}{
		{
			name:    "missing actor",
			req:     domain.CreateChallengeRequest{Name: "x", StartsAt: testWindowStart, EndsAt: testChallengeEnd},
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "empty name",
			actor:   "founder",
			req:     domain.CreateChallengeRequest{StartsAt: testWindowStart, EndsAt: testChallengeEnd},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "missing window",
			actor:   "founder",
			req:     domain.CreateChallengeRequest{Name: "x"},
			wantErr: domain.ErrInvalidWindow,
		},
		{
			name:    "flipped window",
			actor:   "founder",
			req:     domain.CreateChallengeRequest{Name: "x", StartsAt: testChallengeEnd, EndsAt: testWindowStart},
			wantErr: domain.ErrInvalidWindow,
		},
	}

	roster := newFakeRoster()
	service := newTestChallengeService(roster, nil, testWindowStart)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(context.Background(), tt.actor, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
	if len(roster.challenges) != 0 {
		t.Fatalf("expected nothing persisted, got %d challenges", len(roster.challenges))
	}
}

func TestJoinChallenge(t *testing.T) {
	roster := newFakeRoster()
	seedChallenge(roster, "c1", nil)
	service := newTestChallengeService(roster, nil, testWindowStart)

	if err := service.Join(context.Background(), "c1", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roster.joined) != 1 || roster.joined[0] != "c1|alice" {
		t.Fatalf("expected alice seated, got %+v", roster.joined)
	}

	if err := service.Join(context.Background(), "ghost", "alice"); !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
	if err := service.Join(context.Background(), "c1", ""); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestLeaderboardServedFromCache(t *testing.T) {
	roster := newFakeRoster()
	seedChallenge(roster, "c1", nil)
	roster.standingsErr = errors.New("store must not be read on a warm cache")

	cache := newFakeStandingsCache()
	cache.topN["c1"] = []domain.Standing{
		{UserID: "alice", Points: 100, Rank: 1},
		{UserID: "bob", Points: 80, Rank: 2},
	}
	cache.count = 10

	service := newTestChallengeService(roster, cache, testWindowStart)

	entries, count, err := service.Leaderboard(context.Background(), "c1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 || entries[0].UserID != "alice" {
		t.Fatalf("expected cached entries, got %+v", entries)
	}
	if count != 10 {
		t.Fatalf("expected count 10, got %d", count)
	}
}

func TestLeaderboardColdCacheFallsBack(t *testing.T) {
	roster := newFakeRoster()
	seedChallenge(roster, "c1", fourUserStandings())
	cache := newFakeStandingsCache()
	service := newTestChallengeService(roster, cache, testWindowStart)

	entries, count, err := service.Leaderboard(context.Background(), "c1", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Rank != 1 || entries[2].Rank != 3 {
		t.Fatalf("expected ranks assigned, got %+v", entries)
	}
	if count != 4 {
		t.Fatalf("expected count 4, got %d", count)
	}

	rewarmed, ok := cache.replaced["c1"]
	if !ok {
		t.Fatal("expected cache rewarmed from the store")
	}
	if len(rewarmed) != 4 || rewarmed["alice"] != 100 {
		t.Fatalf("expected full totals rewarmed, got %+v", rewarmed)
	}
}

func TestLeaderboardClampsLimit(t *testing.T) {
	roster := newFakeRoster()
	seedChallenge(roster, "c1", fourUserStandings())
	service := newTestChallengeService(roster, nil, testWindowStart)

	entries, count, err := service.Leaderboard(context.Background(), "c1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected default limit 2, got %d entries", len(entries))
	}
	if count != 4 {
		t.Fatalf("expected count 4, got %d", count)
	}

	entries, _, err = service.Leaderboard(context.Background(), "c1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected max limit 3, got %d entries", len(entries))
	}
}

func TestAddAdminRequiresAdmin(t *testing.T) {
	roster := newFakeRoster()
	seedChallenge(roster, "c1", nil)
	roster.admins["admin|c1"] = true
	service := newTestChallengeService(roster, nil, testWindowStart)

	if err := service.AddAdmin(context.Background(), "stranger", "c1", "bob"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := service.AddAdmin(context.Background(), "admin", "c1", "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roster.addedAdmins) != 1 || roster.addedAdmins[0] != "c1|bob" {
		t.Fatalf("expected bob promoted, got %+v", roster.addedAdmins)
	}
}

func TestMemberStanding(t *testing.T) {
	roster := newFakeRoster()
	seedChallenge(roster, "c1", fourUserStandings())
	cache := newFakeStandingsCache()
	cache.member = &domain.Standing{UserID: "bob", Points: 80, Rank: 2}
	service := newTestChallengeService(roster, cache, testWindowStart)

	standing, err := service.MemberStanding(context.Background(), "c1", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if standing.Rank != 2 || standing.Points != 80 {
		t.Fatalf("expected rank 2 with 80 points, got %+v", standing)
	}

	// A cache miss falls back to the authoritative standings
	cache.member = nil
	standing, err = service.MemberStanding(context.Background(), "c1", "carol")
	if err != nil {
		t.Fatalf("unexpected error on fallback: %v", err)
	}
	if standing.Rank != 3 || standing.Points != 60 {
		t.Fatalf("expected rank 3 with 60 points from fallback, got %+v", standing)
	}

	if _, err := service.MemberStanding(context.Background(), "c1", "ghost"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestRegisterUser(t *testing.T) {
	roster := newFakeRoster()
	service := newTestChallengeService(roster, nil, testWindowStart)

	user, err := service.RegisterUser(context.Background(), domain.User{ID: "alice", Username: "alice_runs"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !user.CreatedAt.Equal(testWindowStart) {
		t.Fatalf("expected created_at defaulted, got %v", user.CreatedAt)
	}
	if len(roster.users) != 1 {
		t.Fatalf("expected user persisted, got %d", len(roster.users))
	}

	if _, err := service.RegisterUser(context.Background(), domain.User{ID: "nameless"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
