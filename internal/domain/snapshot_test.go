package domain

import (
	"testing"
	"time"
)

func TestBuildSnapshotOrdersByPointsDescending(t *testing.T) {
	takenAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	standings := []Standing{
		{UserID: "u3", Points: 60},
		{UserID: "u1", Points: 100},
		{UserID: "u4", Points: 40},
		{UserID: "u2", Points: 80},
	}

	snap := BuildSnapshot("ch1", takenAt, standings)

	want := []string{"u1", "u2", "u3", "u4"}
	if snap.Size() != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), snap.Size())
	}
	for i, id := range want {
		if snap.Entries[i].UserID != id {
			t.Errorf("entry %d: expected %s, got %s", i, id, snap.Entries[i].UserID)
		}
		if snap.Entries[i].Rank != i+1 {
			t.Errorf("entry %d: expected rank %d, got %d", i, i+1, snap.Entries[i].Rank)
		}
	}
}

func TestBuildSnapshotTieBreaks(t *testing.T) {
	takenAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	early := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	late := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		standings []Standing
		wantOrder []string
	}{
		{
			name: "tied points broken by join time",
			standings: []Standing{
				{UserID: "u2", Points: 50, JoinedAt: late},
				{UserID: "u1", Points: 50, JoinedAt: early},
			},
			wantOrder: []string{"u1", "u2"},
		},
		{
			name: "tied points and join time broken by user id",
			standings: []Standing{
				{UserID: "ub", Points: 50, JoinedAt: early},
				{UserID: "ua", Points: 50, JoinedAt: early},
			},
			wantOrder: []string{"ua", "ub"},
		},
		{
			name: "higher points win regardless of join time",
			standings: []Standing{
				{UserID: "u1", Points: 10, JoinedAt: early},
				{UserID: "u2", Points: 20, JoinedAt: late},
			},
			wantOrder: []string{"u2", "u1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := BuildSnapshot("ch1", takenAt, tt.standings)
			for i, id := range tt.wantOrder {
				if snap.Entries[i].UserID != id {
					t.Errorf("entry %d: expected %s, got %s", i, id, snap.Entries[i].UserID)
				}
			}
		})
	}
}

func TestBuildSnapshotIsDeterministic(t *testing.T) {
	takenAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	joined := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	a := []Standing{
		{UserID: "u1", Points: 30, JoinedAt: joined},
		{UserID: "u2", Points: 30, JoinedAt: joined},
		{UserID: "u3", Points: 70, JoinedAt: joined},
	}
	b := []Standing{a[2], a[0], a[1]}

	snapA := BuildSnapshot("ch1", takenAt, a)
	snapB := BuildSnapshot("ch1", takenAt, b)

	if snapA.Size() != snapB.Size() {
		t.Fatalf("expected equal sizes, got %d and %d", snapA.Size(), snapB.Size())
	}
	for i := range snapA.Entries {
		if snapA.Entries[i].UserID != snapB.Entries[i].UserID {
			t.Errorf("entry %d: order differs: %s vs %s", i, snapA.Entries[i].UserID, snapB.Entries[i].UserID)
		}
	}
}

func TestBuildSnapshotDoesNotMutateInput(t *testing.T) {
	takenAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	standings := []Standing{
		{UserID: "u1", Points: 10},
		{UserID: "u2", Points: 20},
	}

	BuildSnapshot("ch1", takenAt, standings)

	if standings[0].UserID != "u1" || standings[1].UserID != "u2" {
		t.Error("expected input slice to be left untouched")
	}
	if standings[0].Rank != 0 {
		t.Errorf("expected input ranks untouched, got %d", standings[0].Rank)
	}
}

func TestSnapshotRank(t *testing.T) {
	takenAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	snap := BuildSnapshot("ch1", takenAt, []Standing{
		{UserID: "u1", Points: 100},
		{UserID: "u2", Points: 50},
	})

	if got := snap.Rank("u1"); got != 1 {
		t.Errorf("expected rank 1, got %d", got)
	}
	if got := snap.Rank("u2"); got != 2 {
		t.Errorf("expected rank 2, got %d", got)
	}
	if got := snap.Rank("stranger"); got != 0 {
		t.Errorf("expected rank 0 for unknown user, got %d", got)
	}
}
