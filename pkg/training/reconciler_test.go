package training

import (
	"context"
	"errors"
	"testing"
)

type fakeReconcilerStore struct {
	terminal            bool
	failTerminalizeOnce bool
	terminalized        []Callback
	progressed          []Callback
	deliveries          []Callback
}

func (f *fakeReconcilerStore) UpdateProgress(ctx context.Context, cb Callback) error {
	f.progressed = append(f.progressed, cb)
	return nil
}

func (f *fakeReconcilerStore) Terminalize(ctx context.Context, cb Callback) (bool, error) {
	if f.failTerminalizeOnce {
		f.failTerminalizeOnce = false
		return false, errors.New("connection reset")
	}
	if f.terminal {
		return false, nil
	}
	f.terminal = true
	f.terminalized = append(f.terminalized, cb)
	return true, nil
}

func (f *fakeReconcilerStore) RecordDelivery(ctx context.Context, cb Callback) error {
	f.deliveries = append(f.deliveries, cb)
	return nil
}

type fakeDeduper struct {
	seen map[string]bool
}

func (f *fakeDeduper) MarkSeen(ctx context.Context, deliveryID string) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[deliveryID] {
		return false, nil
	}
	f.seen[deliveryID] = true
	return true, nil
}

func (f *fakeDeduper) Forget(ctx context.Context, deliveryID string) error {
	delete(f.seen, deliveryID)
	return nil
}

type fakePublisher struct {
	events []map[string]interface{}
}

func (f *fakePublisher) PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error {
	f.events = append(f.events, data)
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func newTestReconciler(store *fakeReconcilerStore, ledger *fakeLedger, objects *fakeStore, deduper *fakeDeduper, publisher *fakePublisher) *Reconciler {
	return NewReconciler(store, ledger, objects, deduper, publisher, "training-data")
}

func succeededCallback() Callback {
	return Callback{
		DeliveryID:   "msg_1",
		UserID:       "user-1",
		ModelName:    "My Headshots",
		FileName:     "archive.zip",
		TrainingID:   "train_abc123",
		Status:       "succeeded",
		TrainingTime: floatPtr(523),
		Version:      "aivisio/user-1_model:abc123",
	}
}

func TestReconcilerSucceededConsumesReservation(t *testing.T) {
	store := &fakeReconcilerStore{}
	ledger := &fakeLedger{balance: 0}
	objects := &fakeStore{}
	publisher := &fakePublisher{}
	r := newTestReconciler(store, ledger, objects, &fakeDeduper{}, publisher)

	if err := r.Process(context.Background(), succeededCallback()); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if len(store.terminalized) != 1 {
		t.Fatalf("expected one terminal transition, got %d", len(store.terminalized))
	}
	cb := store.terminalized[0]
	if cb.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", cb.Status)
	}
	if cb.TrainingTime == nil || *cb.TrainingTime != 523 {
		t.Fatalf("expected training time 523, got %v", cb.TrainingTime)
	}
	if cb.Version != "abc123" {
		t.Fatalf("expected version suffix abc123, got %q", cb.Version)
	}
	if ledger.refunds != 0 {
		t.Fatalf("success must not refund, got %d refunds", ledger.refunds)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one notification event, got %d", len(publisher.events))
	}
	if len(objects.removed) == 0 {
		t.Fatal("expected staged data cleanup")
	}
}

func TestReconcilerFailedRefundsOnce(t *testing.T) {
	store := &fakeReconcilerStore{}
	ledger := &fakeLedger{balance: 0}
	objects := &fakeStore{}
	publisher := &fakePublisher{}
	r := newTestReconciler(store, ledger, objects, &fakeDeduper{}, publisher)

	cb := succeededCallback()
	cb.Status = "failed"
	cb.TrainingTime = nil
	cb.Version = ""

	if err := r.Process(context.Background(), cb); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if ledger.refunds != 1 || ledger.balance != 1 {
		t.Fatalf("expected exactly one refund, got refunds=%d balance=%d", ledger.refunds, ledger.balance)
	}
	if len(objects.removed) == 0 {
		t.Fatal("expected staged data cleanup on failure")
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one notification event, got %d", len(publisher.events))
	}
}

func TestReconcilerCanceledRefunds(t *testing.T) {
	store := &fakeReconcilerStore{}
	ledger := &fakeLedger{balance: 0}
	r := newTestReconciler(store, ledger, &fakeStore{}, &fakeDeduper{}, &fakePublisher{})

	cb := succeededCallback()
	cb.Status = "cancelled" // provider spelling
	if err := r.Process(context.Background(), cb); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if len(store.terminalized) != 1 || store.terminalized[0].Status != StatusCanceled {
		t.Fatalf("expected canceled transition, got %+v", store.terminalized)
	}
	if ledger.refunds != 1 {
		t.Fatalf("expected refund on cancellation, got %d", ledger.refunds)
	}
}

func TestReconcilerReplayIsNoop(t *testing.T) {
	store := &fakeReconcilerStore{}
	ledger := &fakeLedger{balance: 0}
	publisher := &fakePublisher{}
	deduper := &fakeDeduper{}
	r := newTestReconciler(store, ledger, &fakeStore{}, deduper, publisher)

	cb := succeededCallback()
	cb.Status = "failed"

	if err := r.Process(context.Background(), cb); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := r.Process(context.Background(), cb); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if ledger.refunds != 1 {
		t.Fatalf("replay must not double-refund, got %d refunds", ledger.refunds)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("replay must not double-notify, got %d events", len(publisher.events))
	}
}

func TestReconcilerRetryAfterTransientErrorReconciles(t *testing.T) {
	store := &fakeReconcilerStore{failTerminalizeOnce: true}
	ledger := &fakeLedger{balance: 0}
	publisher := &fakePublisher{}
	deduper := &fakeDeduper{}
	r := newTestReconciler(store, ledger, &fakeStore{}, deduper, publisher)

	cb := succeededCallback()
	cb.Status = "failed"

	if err := r.Process(context.Background(), cb); err == nil {
		t.Fatal("expected the transient store error to surface")
	}

	// The provider redelivers the same delivery id after a 5xx.
	if err := r.Process(context.Background(), cb); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if len(store.terminalized) != 1 {
		t.Fatalf("retry must complete the terminal transition, got %d", len(store.terminalized))
	}
	if ledger.refunds != 1 {
		t.Fatalf("retry must perform the refund, got %d refunds", ledger.refunds)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one notification event, got %d", len(publisher.events))
	}
}

func TestReconcilerSkipsAlreadyTerminalRows(t *testing.T) {
	store := &fakeReconcilerStore{terminal: true}
	ledger := &fakeLedger{balance: 0}
	publisher := &fakePublisher{}
	r := newTestReconciler(store, ledger, &fakeStore{}, &fakeDeduper{}, publisher)

	cb := succeededCallback()
	cb.Status = "failed"
	cb.DeliveryID = "msg_other" // fresh delivery id, same job

	if err := r.Process(context.Background(), cb); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if ledger.refunds != 0 {
		t.Fatal("terminal row must not be refunded again")
	}
	if len(publisher.events) != 0 {
		t.Fatal("terminal row must not be re-notified")
	}
}

func TestReconcilerIntermediateStatus(t *testing.T) {
	store := &fakeReconcilerStore{}
	ledger := &fakeLedger{balance: 0}
	r := newTestReconciler(store, ledger, &fakeStore{}, &fakeDeduper{}, &fakePublisher{})

	cb := succeededCallback()
	cb.Status = "processing"
	if err := r.Process(context.Background(), cb); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if len(store.progressed) != 1 {
		t.Fatalf("expected progress update, got %d", len(store.progressed))
	}
	if len(store.terminalized) != 0 {
		t.Fatal("intermediate status must not terminalize")
	}
	if ledger.refunds != 0 {
		t.Fatal("intermediate status must not refund")
	}
}

func TestReconcilerCleansBothKeyShapes(t *testing.T) {
	store := &fakeReconcilerStore{}
	objects := &fakeStore{}
	r := newTestReconciler(store, &fakeLedger{}, objects, &fakeDeduper{}, &fakePublisher{})

	if err := r.Process(context.Background(), succeededCallback()); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	want := map[string]bool{"user-1/archive.zip": true, "archive.zip": true}
	for _, key := range objects.removed {
		delete(want, key)
	}
	if len(want) != 0 {
		t.Fatalf("missing cleanup keys: %v (removed %v)", want, objects.removed)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]string{
		"succeeded":  StatusSucceeded,
		"failed":     StatusFailed,
		"canceled":   StatusCanceled,
		"cancelled":  StatusCanceled,
		"starting":   StatusStarting,
		"processing": StatusProcessing,
		"queued":     StatusProcessing,
	}
	for in, want := range cases {
		if got := normalizeStatus(in); got != want {
			t.Errorf("normalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVersionSuffix(t *testing.T) {
	if got := versionSuffix("owner/name:abc123"); got != "abc123" {
		t.Fatalf("expected abc123, got %q", got)
	}
	if got := versionSuffix("bare"); got != "bare" {
		t.Fatalf("expected bare, got %q", got)
	}
}
