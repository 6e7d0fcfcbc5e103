package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minigame-engine/internal/domain"
)

func newTestActivityService(ledger *fakeLedger, roster *fakeRoster, cache *fakeStandingsCache, hub *spyHub, at time.Time) *ActivityService {
	s := &ActivityService{
		ledger: ledger,
		roster: roster,
		logger: testLogger(),
		now:    func() time.Time { return at },
		newID:  (&idSequence{prefix: "act"}).next,
	}
	if cache != nil {
		s.standings = cache
	}
	if hub != nil {
		s.hub = hub
	}
	return s
}

func TestSubmitActivitySuccess(t *testing.T) {
	ledger := newFakeLedger()
	roster := newFakeRoster()
	seedChallenge(roster, "c1", nil)
	cache := newFakeStandingsCache()
	hub := &spyHub{}
	now := testWindowStart.Add(time.Hour)
	service := newTestActivityService(ledger, roster, cache, hub, now)

	activity, err := service.Submit(context.Background(), domain.ActivitySubmission{
		ChallengeID: "c1",
		UserID:      "alice",
		Points:      30,
		Description: "5k morning run",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if activity.ID != "act-1" {
		t.Fatalf("expected act-1, got %s", activity.ID)
	}
	if activity.Source != domain.SourceMember {
		t.Fatalf("expected member source, got %s", activity.Source)
	}
	if !activity.LoggedDate.Equal(now) {
		t.Fatalf("expected logged_date defaulted to now, got %v", activity.LoggedDate)
	}
	if len(ledger.activities) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(ledger.activities))
	}
	if len(cache.increments) != 1 || cache.increments[0].delta != 30 {
		t.Fatalf("expected cache increment of 30, got %+v", cache.increments)
	}
	if len(hub.scoreUpdates) != 1 || hub.scoreUpdates[0].Points != 30 {
		t.Fatalf("expected score update with total 30, got %+v", hub.scoreUpdates)
	}

	// A second submission broadcasts the new running total
	if _, err := service.Submit(context.Background(), domain.ActivitySubmission{
		ChallengeID: "c1", UserID: "alice", Points: 20,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hub.scoreUpdates[1].Points != 50 {
		t.Fatalf("expected running total 50, got %d", hub.scoreUpdates[1].Points)
	}
}

func TestSubmitActivityValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		sub     domain.ActivitySubmission
		wantErr error
	}{
		{"missing challenge", domain.ActivitySubmission{UserID: "alice", Points: 10}, domain.ErrInvalidRequest},
		{"missing user", domain.ActivitySubmission{ChallengeID: "c1", Points: 10}, domain.ErrInvalidRequest},
		{"zero points", domain.ActivitySubmission{ChallengeID: "c1", UserID: "alice"}, domain.ErrInvalidRequest},
		{"negative points", domain.ActivitySubmission{ChallengeID: "c1", UserID: "alice", Points: -5}, domain.ErrInvalidRequest},
		{"unknown challenge", domain.ActivitySubmission{ChallengeID: "ghost", UserID: "alice", Points: 10}, domain.ErrChallengeNotFound},
	}

	ledger := newFakeLedger()
	roster := newFakeRoster()
	seedChallenge(roster, "c1", nil)
	service := newTestActivityService(ledger, roster, nil, nil, testWindowStart)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Submit(context.Background(), tt.sub)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
	if len(ledger.activities) != 0 {
		t.Fatalf("expected nothing recorded, got %d entries", len(ledger.activities))
	}
}

func TestSubmitBatchContinuesOnFailure(t *testing.T) {
	ledger := newFakeLedger()
	roster := newFakeRoster()
	seedChallenge(roster, "c1", nil)
	service := newTestActivityService(ledger, roster, nil, nil, testWindowStart)

	err := service.SubmitBatch(context.Background(), []domain.ActivitySubmission{
		{ChallengeID: "c1", UserID: "alice", Points: 10},
		{ChallengeID: "c1", UserID: "bob"},
		{ChallengeID: "c1", UserID: "carol", Points: 25},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ledger.activities) != 2 {
		t.Fatalf("expected the valid submissions recorded, got %d", len(ledger.activities))
	}
}
