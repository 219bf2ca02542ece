package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/soulscore/internal/emotion"
	"github.com/MikeSquared-Agency/soulscore/internal/reputation"
	"github.com/MikeSquared-Agency/soulscore/internal/store"
)

type memRepo struct {
	mu        sync.Mutex
	states    map[uuid.UUID]reputation.State
	obs       map[uuid.UUID]emotion.Trajectory
	history   map[uuid.UUID][]reputation.Point
	saveErr   error
	appendErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		states:  make(map[uuid.UUID]reputation.State),
		obs:     make(map[uuid.UUID]emotion.Trajectory),
		history: make(map[uuid.UUID][]reputation.Point),
	}
}

// Update holds the repo lock for the whole callback and only applies the
// staged writes when fn succeeds, like a locked transaction.
func (m *memRepo) Update(_ context.Context, id uuid.UUID, fn func(store.Scope) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc := &memScope{repo: m, id: id}
	if err := fn(sc); err != nil {
		return err
	}
	m.obs[id] = append(m.obs[id], sc.obs...)
	if sc.state != nil {
		m.states[id] = sc.state.Clone()
		m.history[id] = append([]reputation.Point{{Score: sc.state.OverallScore, At: sc.state.LastUpdated}}, m.history[id]...)
	}
	return nil
}

func (m *memRepo) GetReputation(_ context.Context, id uuid.UUID) (reputation.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return reputation.State{}, store.ErrNotFound
	}
	return st.Clone(), nil
}

func (m *memRepo) ReputationHistory(_ context.Context, id uuid.UUID, limit int) ([]reputation.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.history[id]
	if len(h) > limit {
		h = h[:limit]
	}
	return h, nil
}

type memScope struct {
	repo  *memRepo
	id    uuid.UUID
	state *reputation.State
	obs   emotion.Trajectory
}

func (s *memScope) GetReputation(context.Context) (reputation.State, error) {
	if s.state != nil {
		return s.state.Clone(), nil
	}
	st, ok := s.repo.states[s.id]
	if !ok {
		return reputation.State{}, store.ErrNotFound
	}
	return st.Clone(), nil
}

func (s *memScope) RecentObservations(_ context.Context, limit int) (emotion.Trajectory, error) {
	all := append(append(emotion.Trajectory(nil), s.repo.obs[s.id]...), s.obs...)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *memScope) SaveReputation(_ context.Context, st reputation.State) error {
	if s.repo.saveErr != nil {
		return s.repo.saveErr
	}
	c := st.Clone()
	s.state = &c
	return nil
}

func (s *memScope) AppendObservation(_ context.Context, obs emotion.Observation) error {
	if s.repo.appendErr != nil {
		return s.repo.appendErr
	}
	s.obs = append(s.obs, obs)
	return nil
}

type memSnapshots struct {
	mu   sync.Mutex
	puts int
	err  error
}

func (s *memSnapshots) Put(context.Context, uuid.UUID, reputation.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	return s.err
}

func newTestLedger(t *testing.T, repo Repository, snap Snapshotter) *Ledger {
	t.Helper()
	engine, err := reputation.NewEngine(reputation.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return New(repo, engine, snap, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApply_CreatesStateOnFirstActivity(t *testing.T) {
	repo := newMemRepo()
	snap := &memSnapshots{}
	l := newTestLedger(t, repo, snap)
	id := uuid.New()

	st, err := l.Apply(context.Background(), id, reputation.Activity{
		CategoryScores: map[string]float64{reputation.CreativeOutputQuality: 0.9},
	}, 500)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// New state is created at now, so zero elapsed keeps the neutral prior.
	if st.CategoryScores[reputation.CreativeOutputQuality] != 0.5 {
		t.Errorf("expected neutral prior 0.5, got %f", st.CategoryScores[reputation.CreativeOutputQuality])
	}
	stored, err := l.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.LastUpdated != 500 {
		t.Errorf("expected stored last_updated 500, got %d", stored.LastUpdated)
	}
	if snap.puts != 1 {
		t.Errorf("expected 1 snapshot write, got %d", snap.puts)
	}

	history, _ := l.History(context.Background(), id, 10)
	if len(history) != 1 {
		t.Errorf("expected 1 history point, got %d", len(history))
	}
}

func TestApply_RejectedActivityLeavesStoreUntouched(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(t, repo, nil)
	id := uuid.New()
	ctx := context.Background()

	if _, err := l.Apply(ctx, id, reputation.Activity{CategoryScores: map[string]float64{reputation.TemporalStability: 0.4}}, 1000); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	_, err := l.Apply(ctx, id, reputation.Activity{CategoryScores: map[string]float64{reputation.TemporalStability: 0.4}}, 900)
	if !errors.Is(err, reputation.ErrNonMonotonicTime) {
		t.Fatalf("expected ErrNonMonotonicTime, got %v", err)
	}
	_, err = l.Apply(ctx, id, reputation.Activity{}, 2000)
	if !errors.Is(err, reputation.ErrEmptyActivity) {
		t.Fatalf("expected ErrEmptyActivity, got %v", err)
	}

	st, _ := l.Get(ctx, id)
	if st.LastUpdated != 1000 {
		t.Errorf("failed updates advanced last_updated to %d", st.LastUpdated)
	}
	if len(repo.history[id]) != 1 {
		t.Errorf("expected 1 history point, got %d", len(repo.history[id]))
	}
}

func TestApply_SaveErrorPropagates(t *testing.T) {
	repo := newMemRepo()
	repo.saveErr = errors.New("disk full")
	snap := &memSnapshots{}
	l := newTestLedger(t, repo, snap)

	_, err := l.Apply(context.Background(), uuid.New(), reputation.Activity{
		CategoryScores: map[string]float64{reputation.CommunityEngagement: 1},
	}, 1)
	if err == nil || !errors.Is(err, repo.saveErr) {
		t.Fatalf("expected wrapped save error, got %v", err)
	}
	if snap.puts != 0 {
		t.Errorf("snapshot written despite failed save")
	}
}

func TestApply_SnapshotErrorIsNotFatal(t *testing.T) {
	l := newTestLedger(t, newMemRepo(), &memSnapshots{err: errors.New("redis down")})

	_, err := l.Apply(context.Background(), uuid.New(), reputation.Activity{
		CategoryScores: map[string]float64{reputation.CommunityEngagement: 1},
	}, 1)
	if err != nil {
		t.Fatalf("snapshot failure should not fail the update: %v", err)
	}
}

func TestApply_SerializesPerIdentity(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(t, repo, nil)
	id := uuid.New()
	other := uuid.New()

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := l.Apply(context.Background(), id, reputation.Activity{
				CategoryScores: map[string]float64{fmt.Sprintf("cat_%d", i): 1},
			}, 10)
			if err != nil {
				t.Errorf("Apply %d: %v", i, err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if _, err := l.Apply(context.Background(), other, reputation.Activity{
				CategoryScores: map[string]float64{reputation.CreativeOutputQuality: 1},
			}, 10); err != nil {
				t.Errorf("Apply other %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	st, _ := l.Get(context.Background(), id)
	if len(st.CategoryScores) != writers {
		t.Errorf("lost updates: expected %d categories, got %d", writers, len(st.CategoryScores))
	}
	if n := l.locks.size(); n != 0 {
		t.Errorf("expected lock table to drain, %d entries left", n)
	}
}

func TestRecordObservation(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(t, repo, nil)
	id := uuid.New()
	ctx := context.Background()

	steady := []emotion.Observation{
		{Valence: 0.4, Arousal: 0.2, Dominance: 0.1, Timestamp: 100},
		{Valence: 0.4, Arousal: 0.2, Dominance: 0.1, Timestamp: 200},
	}
	var last EmotionalUpdate
	for _, obs := range steady {
		u, err := l.RecordObservation(ctx, id, obs)
		if err != nil {
			t.Fatalf("RecordObservation: %v", err)
		}
		last = u
	}

	if last.Summary.Count != 2 || last.Summary.Trend != emotion.Stable {
		t.Errorf("unexpected summary %+v", last.Summary)
	}
	if last.Summary.VarianceComplexity != 0 {
		t.Errorf("expected zero variance, got %f", last.Summary.VarianceComplexity)
	}
	// prior 0.5 blended toward 1.0 over 100s of a 7 day half-life
	got := last.State.CategoryScores[reputation.EmotionalConsistency]
	if got <= 0.5 || got >= 0.51 {
		t.Errorf("emotional_consistency = %f, want slightly above 0.5", got)
	}
	if math.Abs(last.State.OverallScore-0.25*got*0.8) > 1e-9 {
		t.Errorf("overall = %f, want %f", last.State.OverallScore, 0.25*got*0.8)
	}
	if len(repo.obs[id]) != 2 {
		t.Errorf("expected 2 stored observations, got %d", len(repo.obs[id]))
	}
}

func TestRecordObservation_RejectsWithoutWriting(t *testing.T) {
	repo := newMemRepo()
	l := newTestLedger(t, repo, nil)
	id := uuid.New()
	ctx := context.Background()

	if _, err := l.RecordObservation(ctx, id, emotion.Observation{Valence: 1.5}); !errors.Is(err, emotion.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}

	if _, err := l.RecordObservation(ctx, id, emotion.Observation{Timestamp: 500}); err != nil {
		t.Fatalf("RecordObservation: %v", err)
	}
	_, err := l.RecordObservation(ctx, id, emotion.Observation{Timestamp: 400})
	if !errors.Is(err, reputation.ErrNonMonotonicTime) {
		t.Fatalf("expected ErrNonMonotonicTime, got %v", err)
	}
	if len(repo.obs[id]) != 1 {
		t.Errorf("rejected observation was stored: %d observations", len(repo.obs[id]))
	}
}

func TestRecordObservation_StoreFailureWritesNothing(t *testing.T) {
	tests := []struct {
		name      string
		saveErr   error
		appendErr error
	}{
		{"save fails", errors.New("db down"), nil},
		{"append fails", nil, errors.New("db down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			repo.saveErr, repo.appendErr = tt.saveErr, tt.appendErr
			snap := &memSnapshots{}
			l := newTestLedger(t, repo, snap)
			id := uuid.New()

			_, err := l.RecordObservation(context.Background(), id, emotion.Observation{Valence: 0.2, Timestamp: 10})
			if err == nil {
				t.Fatal("expected store error")
			}
			if n := len(repo.obs[id]); n != 0 {
				t.Errorf("expected no stored observations, got %d", n)
			}
			if _, ok := repo.states[id]; ok {
				t.Error("expected no stored state")
			}
			if snap.puts != 0 {
				t.Errorf("snapshot written for failed update")
			}
		})
	}
}

func TestApply_SerializesAcrossLedgers(t *testing.T) {
	repo := newMemRepo()
	replicas := []*Ledger{newTestLedger(t, repo, nil), newTestLedger(t, repo, nil)}
	id := uuid.New()

	const writers = 40
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l := replicas[i%len(replicas)]
			if _, err := l.Apply(context.Background(), id, reputation.Activity{
				CategoryScores: map[string]float64{fmt.Sprintf("cat_%d", i): 1},
			}, 10); err != nil {
				t.Errorf("Apply %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	st, _ := replicas[0].Get(context.Background(), id)
	if len(st.CategoryScores) != writers {
		t.Errorf("lost updates: expected %d categories, got %d", writers, len(st.CategoryScores))
	}
	if st.Interactions != writers {
		t.Errorf("expected %d interactions, got %d", writers, st.Interactions)
	}
}

func TestIsValidation(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("wrap: %w", reputation.ErrInvalidRange), true},
		{reputation.ErrEmptyActivity, true},
		{reputation.ErrNonMonotonicTime, true},
		{reputation.ErrUnknownCategory, true},
		{emotion.ErrInvalidRange, true},
		{fmt.Errorf("save reputation: %w", errors.New("connection reset")), false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := IsValidation(tt.err); got != tt.want {
			t.Errorf("IsValidation(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
