package maintenance

import (
	"context"
	"errors"
	"testing"

	"github.com/turnengine/engine/internal/history"
)

type fakeHistoryStore struct {
	trimCalls    []int
	trimErr      error
	appendCalled bool
}

func (f *fakeHistoryStore) Append(context.Context, string, string, int) error {
	f.appendCalled = true
	return nil
}

func (f *fakeHistoryStore) Tail(context.Context, int) ([]history.Record, error) { return nil, nil }

func (f *fakeHistoryStore) Trim(_ context.Context, maxTurns int) error {
	f.trimCalls = append(f.trimCalls, maxTurns)
	return f.trimErr
}

func (f *fakeHistoryStore) Close() error { return nil }

var _ history.Store = (*fakeHistoryStore)(nil)

func TestNewSchedulerRejectsInvalidCron(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{HistoryTrimCron: "not a cron expression"}, &fakeHistoryStore{}, nil, nil)
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestNewSchedulerRejectsSnapshotScheduleWithoutSnapshotter(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{WorldSnapshotCron: "@daily"}, &fakeHistoryStore{}, nil, nil)
	if err == nil {
		t.Fatal("expected error when snapshot schedule set without a snapshotter")
	}
}

func TestRunHistoryTrimCallsTrimNotAppend(t *testing.T) {
	store := &fakeHistoryStore{}
	s, err := NewScheduler(SchedulerConfig{HistoryTrimCron: "@daily", HistoryMaxTurns: 20}, store, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.runHistoryTrim(20)
	if len(store.trimCalls) != 1 || store.trimCalls[0] != 20 {
		t.Errorf("trimCalls = %v, want [20]", store.trimCalls)
	}
	if store.appendCalled {
		t.Error("runHistoryTrim must not append new records")
	}
}

func TestRunHistoryTrimErrorWithoutLoggerDoesNotPanic(t *testing.T) {
	store := &fakeHistoryStore{trimErr: errors.New("boom")}
	s, err := NewScheduler(SchedulerConfig{}, store, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.runHistoryTrim(10)
}
