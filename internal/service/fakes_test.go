package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minigame-engine/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// idSequence hands out deterministic IDs: seq-1, seq-2, ...
type idSequence struct {
	prefix string
	n      int
}

func (s *idSequence) next() string {
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

type fakeGameStore struct {
	games        map[string]domain.MiniGame
	participants map[string][]domain.MiniGameParticipant

	createErr   error
	updateErr   error
	activateErr error
	settleErr   error

	deletedID   string
	settled     []domain.MiniGameParticipant
	transitions []string
}

func newFakeGameStore() *fakeGameStore {
	return &fakeGameStore{
		games:        make(map[string]domain.MiniGame),
		participants: make(map[string][]domain.MiniGameParticipant),
	}
}

func (f *fakeGameStore) CreateGame(ctx context.Context, game domain.MiniGame) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.games[game.ID] = game
	return nil
}

func (f *fakeGameStore) GetGame(ctx context.Context, gameID string) (*domain.MiniGame, error) {
	game, ok := f.games[gameID]
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	return &game, nil
}

func (f *fakeGameStore) ListGamesByChallenge(ctx context.Context, challengeID string) ([]domain.MiniGame, error) {
	var games []domain.MiniGame
	for _, g := range f.games {
		if g.ChallengeID == challengeID {
			games = append(games, g)
		}
	}
	return games, nil
}

func (f *fakeGameStore) UpdateGame(ctx context.Context, game domain.MiniGame) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.games[game.ID]; !ok {
		return domain.ErrInvalidState
	}
	f.games[game.ID] = game
	return nil
}

func (f *fakeGameStore) DeleteGame(ctx context.Context, gameID string) error {
	f.deletedID = gameID
	delete(f.games, gameID)
	return nil
}

func (f *fakeGameStore) TransitionStatus(ctx context.Context, gameID string, from, to domain.GameStatus) error {
	game, ok := f.games[gameID]
	if !ok {
		return domain.ErrGameNotFound
	}
	if game.Status != from {
		return domain.ErrInvalidState
	}
	game.Status = to
	f.games[gameID] = game
	f.transitions = append(f.transitions, string(from)+">"+string(to))
	return nil
}

func (f *fakeGameStore) ActivateGame(ctx context.Context, gameID string, participants []domain.MiniGameParticipant) error {
	if f.activateErr != nil {
		return f.activateErr
	}
	game, ok := f.games[gameID]
	if !ok {
		return domain.ErrGameNotFound
	}
	if game.Status != domain.GameStatusDraft {
		return domain.ErrInvalidState
	}
	game.Status = domain.GameStatusActive
	f.games[gameID] = game
	f.participants[gameID] = participants
	return nil
}

func (f *fakeGameStore) ListParticipants(ctx context.Context, gameID string) ([]domain.MiniGameParticipant, error) {
	out := make([]domain.MiniGameParticipant, len(f.participants[gameID]))
	copy(out, f.participants[gameID])
	return out, nil
}

func (f *fakeGameStore) SettleParticipant(ctx context.Context, p domain.MiniGameParticipant) error {
	if f.settleErr != nil {
		return f.settleErr
	}
	for i, existing := range f.participants[p.GameID] {
		if existing.UserID != p.UserID {
			continue
		}
		if existing.Settled() {
			return domain.ErrInvalidState
		}
		f.participants[p.GameID][i] = p
		f.settled = append(f.settled, p)
		return nil
	}
	return domain.ErrParticipantNotFound
}

func (f *fakeGameStore) ListDueToStart(ctx context.Context, now time.Time) ([]domain.MiniGame, error) {
	var due []domain.MiniGame
	for _, g := range f.games {
		if g.Status == domain.GameStatusDraft && !g.StartsAt.After(now) {
			due = append(due, g)
		}
	}
	return due, nil
}

func (f *fakeGameStore) ListDueToEnd(ctx context.Context, now time.Time) ([]domain.MiniGame, error) {
	var due []domain.MiniGame
	for _, g := range f.games {
		if g.Status == domain.GameStatusCalculating {
			due = append(due, g)
			continue
		}
		if g.Status == domain.GameStatusActive && !g.EndsAt.After(now) {
			due = append(due, g)
		}
	}
	return due, nil
}

type fakeLedger struct {
	activities []domain.Activity
	totals     map[string]int64

	ensureErr    error
	recordErr    error
	appendErrFor map[string]error

	appended []domain.Activity
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		totals:       make(map[string]int64),
		appendErrFor: make(map[string]error),
	}
}

// seed records a member activity without going through RecordActivity
func (f *fakeLedger) seed(challengeID, userID string, points int64, loggedDate time.Time) {
	f.activities = append(f.activities, domain.Activity{
		ChallengeID: challengeID,
		UserID:      userID,
		Points:      points,
		Source:      domain.SourceMember,
		LoggedDate:  loggedDate,
	})
	f.totals[challengeID+"|"+userID] += points
}

func (f *fakeLedger) EnsureBonusType(ctx context.Context, challengeID, newID string) (string, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	return "type-bonus", nil
}

func (f *fakeLedger) RecordActivity(ctx context.Context, activity domain.Activity) (int64, error) {
	if f.recordErr != nil {
		return 0, f.recordErr
	}
	f.activities = append(f.activities, activity)
	key := activity.ChallengeID + "|" + activity.UserID
	f.totals[key] += activity.Points
	return f.totals[key], nil
}

func (f *fakeLedger) AppendBonus(ctx context.Context, activity domain.Activity) (int64, error) {
	if err := f.appendErrFor[activity.UserID]; err != nil {
		return 0, err
	}
	for _, a := range f.activities {
		if a.DedupKey != "" && a.DedupKey == activity.DedupKey {
			return 0, domain.ErrAlreadyAwarded
		}
	}
	f.activities = append(f.activities, activity)
	f.appended = append(f.appended, activity)
	key := activity.ChallengeID + "|" + activity.UserID
	f.totals[key] += activity.Points
	return f.totals[key], nil
}

func (f *fakeLedger) FindActivityByDedupKey(ctx context.Context, dedupKey string) (*domain.Activity, error) {
	for _, a := range f.activities {
		if a.DedupKey == dedupKey {
			found := a
			return &found, nil
		}
	}
	return nil, domain.ErrActivityNotFound
}

func (f *fakeLedger) SumPointsInWindow(ctx context.Context, challengeID, userID string, start, end time.Time, exclude domain.ActivitySource) (int64, error) {
	var sum int64
	for _, a := range f.activities {
		if a.ChallengeID != challengeID || a.UserID != userID || a.Source == exclude {
			continue
		}
		if a.LoggedDate.Before(start) || !a.LoggedDate.Before(end) {
			continue
		}
		sum += a.Points
	}
	return sum, nil
}

func (f *fakeLedger) dailyTotals(challengeID, userID string, keep func(time.Time) bool, exclude domain.ActivitySource) map[string]int64 {
	days := make(map[string]int64)
	for _, a := range f.activities {
		if a.ChallengeID != challengeID || a.UserID != userID || a.Source == exclude {
			continue
		}
		if !keep(a.LoggedDate) {
			continue
		}
		days[a.LoggedDate.Format("2006-01-02")] += a.Points
	}
	return days
}

func maxDay(days map[string]int64) int64 {
	var best int64
	for _, total := range days {
		if total > best {
			best = total
		}
	}
	return best
}

func (f *fakeLedger) MaxDailyPointsBefore(ctx context.Context, challengeID, userID string, cutoff time.Time, exclude domain.ActivitySource) (int64, error) {
	keep := func(d time.Time) bool { return d.Before(cutoff) }
	return maxDay(f.dailyTotals(challengeID, userID, keep, exclude)), nil
}

func (f *fakeLedger) MaxDailyPointsInWindow(ctx context.Context, challengeID, userID string, start, end time.Time, exclude domain.ActivitySource) (int64, error) {
	keep := func(d time.Time) bool { return !d.Before(start) && d.Before(end) }
	return maxDay(f.dailyTotals(challengeID, userID, keep, exclude)), nil
}

type fakeRoster struct {
	challenges map[string]domain.Challenge
	standings  map[string][]domain.Standing
	admins     map[string]bool

	createErr    error
	joinErr      error
	standingsErr error
	adminErr     error

	joined      []string
	users       []domain.User
	addedAdmins []string
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{
		challenges: make(map[string]domain.Challenge),
		standings:  make(map[string][]domain.Standing),
		admins:     make(map[string]bool),
	}
}

func (f *fakeRoster) CreateChallenge(ctx context.Context, challenge domain.Challenge) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.challenges[challenge.ID] = challenge
	return nil
}

func (f *fakeRoster) GetChallenge(ctx context.Context, challengeID string) (*domain.Challenge, error) {
	c, ok := f.challenges[challengeID]
	if !ok {
		return nil, domain.ErrChallengeNotFound
	}
	return &c, nil
}

func (f *fakeRoster) JoinChallenge(ctx context.Context, challengeID, userID string, joinedAt time.Time) error {
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joined = append(f.joined, challengeID+"|"+userID)
	return nil
}

func (f *fakeRoster) Standings(ctx context.Context, challengeID string) ([]domain.Standing, error) {
	if f.standingsErr != nil {
		return nil, f.standingsErr
	}
	return f.standings[challengeID], nil
}

func (f *fakeRoster) Totals(ctx context.Context, challengeID string) (map[string]int64, error) {
	totals := make(map[string]int64)
	for _, s := range f.standings[challengeID] {
		totals[s.UserID] = s.Points
	}
	return totals, nil
}

func (f *fakeRoster) IsChallengeAdmin(ctx context.Context, userID, challengeID string) (bool, error) {
	if f.adminErr != nil {
		return false, f.adminErr
	}
	return f.admins[userID+"|"+challengeID], nil
}

func (f *fakeRoster) UpsertUser(ctx context.Context, user domain.User) error {
	f.users = append(f.users, user)
	return nil
}

func (f *fakeRoster) AddChallengeAdmin(ctx context.Context, challengeID, userID string) error {
	f.addedAdmins = append(f.addedAdmins, challengeID+"|"+userID)
	f.admins[userID+"|"+challengeID] = true
	return nil
}

type scoreIncrement struct {
	challengeID string
	userID      string
	delta       int64
}

type fakeStandingsCache struct {
	topN   map[string][]domain.Standing
	member *domain.Standing
	count  int64

	topNErr   error
	memberErr error
	incrErr   error

	increments []scoreIncrement
	replaced   map[string]map[string]int64
}

func newFakeStandingsCache() *fakeStandingsCache {
	return &fakeStandingsCache{
		topN:     make(map[string][]domain.Standing),
		replaced: make(map[string]map[string]int64),
	}
}

func (f *fakeStandingsCache) IncrementScore(ctx context.Context, challengeID, userID string, delta int64) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.increments = append(f.increments, scoreIncrement{challengeID, userID, delta})
	return delta, nil
}

func (f *fakeStandingsCache) ReplaceAll(ctx context.Context, challengeID string, totals map[string]int64) error {
	f.replaced[challengeID] = totals
	return nil
}

func (f *fakeStandingsCache) TopN(ctx context.Context, challengeID string, n int) ([]domain.Standing, error) {
	if f.topNErr != nil {
		return nil, f.topNErr
	}
	entries := f.topN[challengeID]
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (f *fakeStandingsCache) MemberStanding(ctx context.Context, challengeID, userID string) (*domain.Standing, error) {
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	if f.member == nil {
		return nil, domain.ErrParticipantNotFound
	}
	return f.member, nil
}

func (f *fakeStandingsCache) Count(ctx context.Context, challengeID string) (int64, error) {
	return f.count, nil
}

type spyHub struct {
	scoreUpdates []domain.Standing
	events       []domain.GameEvent
}

func (h *spyHub) BroadcastScoreUpdate(challengeID string, standing domain.Standing) {
	h.scoreUpdates = append(h.scoreUpdates, standing)
}

func (h *spyHub) BroadcastStandings(challengeID string, standings []domain.Standing) {}

func (h *spyHub) BroadcastGameEvent(event domain.GameEvent) {
	h.events = append(h.events, event)
}

// newTestGameService wires a MiniGameService over fakes with a fixed clock
// and deterministic IDs
func newTestGameService(store *fakeGameStore, ledger *fakeLedger, roster *fakeRoster, hub *spyHub, at time.Time) *MiniGameService {
	logger := testLogger()
	ids := &idSequence{prefix: "id"}
	clock := func() time.Time { return at }

	svc := &MiniGameService{
		store:  store,
		ledger: ledger,
		roster: roster,
		awarder: &BonusAwarder{
			store:  store,
			ledger: ledger,
			logger: logger,
			now:    clock,
			newID:  ids.next,
		},
		logger: logger,
		now:    clock,
		newID:  ids.next,
	}
	if hub != nil {
		svc.hub = hub
	}
	return svc
}
