package fcsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type fakeLocker struct {
	held     map[string]bool
	obtained []string
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (l *fakeLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.held[key] {
		return nil, ErrRunInFlight
	}
	l.held[key] = true
	l.obtained = append(l.obtained, key)
	return func() {
		l.held[key] = false
		l.released = append(l.released, key)
	}, nil
}

func newTestScheduler(locker Locker) (*Scheduler, *fakeRunStore) {
	rec := &fakeReconciler{result: &Result{FinalSuccess: true, Processed: 1}}
	fetch := &fakeFetcher{pages: map[int]*Page{
		1: {Kind: KindFacility, Items: []json.RawMessage{[]byte(`{}`)}, PageNumber: 1, TotalPages: 1},
	}}
	worker, _, runs := newTestWorker(fetch, rec, windowDaily)
	return &Scheduler{Worker: worker, Locker: locker}, runs
}

func TestTriggerKindRunsUnderTheLock(t *testing.T) {
	locker := newFakeLocker()
	s, runs := newTestScheduler(locker)

	summary, err := s.TriggerKind(context.Background(), KindFacility, nil, "manual")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(locker.obtained) != 1 || locker.obtained[0] != "fcsync:run:facility" {
		t.Fatalf("expected the per-kind lock key, got %v", locker.obtained)
	}
	if len(locker.released) != 1 {
		t.Fatal("the lock must be released after the run")
	}
	if len(runs.runs) != 1 {
		t.Fatalf("expected one run row, got %d", len(runs.runs))
	}
}

func TestTriggerKindRejectsConcurrentRun(t *testing.T) {
	locker := newFakeLocker()
	locker.held["fcsync:run:facility"] = true
	s, runs := newTestScheduler(locker)

	_, err := s.TriggerKind(context.Background(), KindFacility, nil, "manual")
	if !errors.Is(err, ErrRunInFlight) {
		t.Fatalf("expected ErrRunInFlight, got %v", err)
	}
	if len(runs.runs) != 0 {
		t.Fatal("a rejected trigger must not create a run row")
	}
}

func TestTriggerKindReleasesLockOnFailure(t *testing.T) {
	locker := newFakeLocker()
	rec := &fakeReconciler{}
	fetch := &fakeFetcher{err: errors.New("unreachable")}
	worker, _, _ := newTestWorker(fetch, rec, windowDaily)
	s := &Scheduler{Worker: worker, Locker: locker}

	_, err := s.TriggerKind(context.Background(), KindFacility, nil, "manual")
	if err == nil {
		t.Fatal("expected the run failure back")
	}
	if len(locker.released) != 1 {
		t.Fatal("the lock must be released even when the run fails")
	}
}

func TestTriggerKindHonorsKindGate(t *testing.T) {
	t.Setenv("FC_SYNC_KINDS", "product,cmm")
	locker := newFakeLocker()
	s, _ := newTestScheduler(locker)

	_, err := s.TriggerKind(context.Background(), KindFacility, nil, "manual")
	if !errors.Is(err, ErrKindDisabled) {
		t.Fatalf("expected ErrKindDisabled, got %v", err)
	}
	if len(locker.obtained) != 0 {
		t.Fatal("a disabled kind must not even touch the lock")
	}
}
