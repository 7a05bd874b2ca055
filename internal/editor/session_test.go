package editor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdpreview/internal/model"
	"mdpreview/internal/render"
)

type saveReply struct {
	res SaveResult
	err error
}

func saveAsync(s *Session, trigger Trigger) <-chan saveReply {
	ch := make(chan saveReply, 1)
	go func() {
		res, err := s.Save(context.Background(), trigger)
		ch <- saveReply{res, err}
	}()
	return ch
}

func waitReply(t *testing.T, ch <-chan saveReply) saveReply {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("save did not return")
		return saveReply{}
	}
}

func TestLoadNewDocumentUsesTemplate(t *testing.T) {
	st := newFakeStore()
	s := newTestSession(st, newFakeClock(), true)

	require.NoError(t, s.Load(context.Background(), model.NewDocumentID, "u1"))

	snap := s.Snapshot()
	assert.Equal(t, StarterTemplate, snap.Text)
	assert.Equal(t, model.DefaultTitle, snap.Title)
	assert.Equal(t, LoadLoaded, snap.LoadStatus)
	assert.False(t, snap.Dirty)
	assert.False(t, snap.Persisted())
	gets, _, _ := st.counts()
	assert.Zero(t, gets)
}

func TestLoadWithoutUserRequiresAuthAndNeverFetches(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "secret")
	s := newTestSession(st, newFakeClock(), true)

	err := s.Load(context.Background(), "doc-1", "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuthRequired))
	assert.True(t, RequiresNavigation(err))

	gets, _, _ := st.counts()
	assert.Zero(t, gets)
	assert.Equal(t, StarterTemplate, s.Snapshot().Text)
}

func TestLoadForeignDocumentIsDeniedWithoutLeakingContent(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u2", "someone else's words")
	s := newTestSession(st, newFakeClock(), true)

	err := s.Load(context.Background(), "doc-1", "u1")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindPermissionDenied))
	assert.Equal(t, "Document not found or you do not have access to it.", UserMessage(err))

	snap := s.Snapshot()
	assert.NotContains(t, snap.Text, "someone else's words")
	assert.Equal(t, model.NewDocumentID, snap.DocumentID)
	assert.Equal(t, LoadFailed, snap.LoadStatus)

	// A save after a denied load must never target the foreign document.
	require.True(t, s.Edit("mine"))
	res, err := s.Save(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEqual(t, "doc-1", res.DocumentID)

	got, err := st.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "someone else's words", got.Content)
}

func TestLoadMissingDocumentSharesDeniedMessage(t *testing.T) {
	st := newFakeStore()
	s := newTestSession(st, newFakeClock(), true)

	err := s.Load(context.Background(), "nope", "u1")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
	assert.Equal(t, "Document not found or you do not have access to it.", UserMessage(err))
}

func TestLoadStoreErrorIsLoadFailed(t *testing.T) {
	st := newFakeStore()
	st.getErr = errors.New("disk on fire")
	s := newTestSession(st, newFakeClock(), true)

	err := s.Load(context.Background(), "doc-1", "u1")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindLoadFailed))
	assert.False(t, RequiresNavigation(err))
	assert.Equal(t, "Failed to load document.", UserMessage(err))
	assert.NotContains(t, UserMessage(err), "disk on fire")
}

func TestLoadSameKeyIsAttemptedOnce(t *testing.T) {
	st := newFakeStore()
	st.getErr = errors.New("flaky")
	s := newTestSession(st, newFakeClock(), true)
	ctx := context.Background()

	require.Error(t, s.Load(ctx, "doc-1", "u1"))
	require.NoError(t, s.Load(ctx, "doc-1", "u1"))
	gets, _, _ := st.counts()
	assert.Equal(t, 1, gets)

	st.mu.Lock()
	st.getErr = nil
	st.mu.Unlock()
	seedDoc(st, "doc-1", "u1", "hello")

	// A new user for the same document is a new key.
	require.Error(t, s.Load(ctx, "doc-1", "u2"))
	require.NoError(t, s.Load(ctx, "doc-1", "u1"))
	gets, _, _ = st.counts()
	assert.Equal(t, 3, gets)
	assert.Equal(t, "hello", s.Snapshot().Text)
}

func TestLoadKey(t *testing.T) {
	assert.Equal(t, "doc-1-u1", LoadKey("doc-1", "u1"))
	assert.Equal(t, "doc-1-anonymous", LoadKey("doc-1", " "))
	assert.Equal(t, "new-anonymous", LoadKey("", ""))
}

func TestEditMarksDirtyAndIgnoresIdenticalText(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "same")
	s := newTestSession(st, newFakeClock(), false)
	require.NoError(t, s.Load(context.Background(), "doc-1", "u1"))

	rev := s.Snapshot().Revision
	require.True(t, s.Edit("same"))
	assert.False(t, s.Snapshot().Dirty)
	assert.Equal(t, rev, s.Snapshot().Revision)

	require.True(t, s.Edit("changed"))
	snap := s.Snapshot()
	assert.True(t, snap.Dirty)
	assert.Equal(t, "Unsaved changes", snap.StatusLabel())

	require.True(t, s.SetTitle("  report.MD "))
	assert.Equal(t, "report", s.Snapshot().Title)
	assert.Equal(t, "report.md", s.Snapshot().FileName())
}

func TestSaveCreatesOnceThenUpdates(t *testing.T) {
	st := newFakeStore()
	s := newTestSession(st, newFakeClock(), true)
	ctx := context.Background()
	require.NoError(t, s.Load(ctx, model.NewDocumentID, "u1"))

	require.True(t, s.Edit("# Draft"))
	res, err := s.Save(ctx, TriggerManual)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "doc-1", res.DocumentID)
	assert.Equal(t, "doc-1", s.Snapshot().DocumentID)
	assert.False(t, s.Snapshot().Dirty)

	require.True(t, s.Edit("# Draft 2"))
	res, err = s.Save(ctx, TriggerManual)
	require.NoError(t, err)
	assert.False(t, res.Created)

	_, creates, updates := st.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, updates)
	assert.Equal(t, "# Draft 2", *st.lastUpdate().Content)
}

func TestSaveTwiceWithoutEditsIsIdempotent(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "v0")
	s := newTestSession(st, newFakeClock(), false)
	ctx := context.Background()
	require.NoError(t, s.Load(ctx, "doc-1", "u1"))
	require.True(t, s.Edit("v1"))

	_, err := s.Save(ctx, TriggerManual)
	require.NoError(t, err)
	first, _ := st.Get(ctx, "doc-1")
	_, err = s.Save(ctx, TriggerManual)
	require.NoError(t, err)
	second, _ := st.Get(ctx, "doc-1")

	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, first.Title, second.Title)
	assert.False(t, s.Snapshot().Dirty)
}

func TestManualSaveWithoutUserRequiresAuth(t *testing.T) {
	st := newFakeStore()
	s := newTestSession(st, newFakeClock(), true)
	rec := &recorder{}
	s.Subscribe(rec.record)
	require.NoError(t, s.Load(context.Background(), model.NewDocumentID, ""))
	require.True(t, s.Edit("anonymous draft"))
	rec.reset()

	_, err := s.Save(context.Background(), TriggerManual)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuthRequired))
	assert.Equal(t, "Please log in to save documents.", UserMessage(err))
	assert.Equal(t, []EventKind{EventSaveFailed}, rec.kinds())

	res, err := s.Save(context.Background(), TriggerAuto)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	_, creates, updates := st.counts()
	assert.Zero(t, creates)
	assert.Zero(t, updates)
}

func TestSaveEmitsSavingThenSaved(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "a")
	s := newTestSession(st, newFakeClock(), false)
	rec := &recorder{}
	cancel := s.Subscribe(rec.record)
	require.NoError(t, s.Load(context.Background(), "doc-1", "u1"))
	require.True(t, s.Edit("b"))
	rec.reset()

	_, err := s.Save(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventSaving, EventSaved}, rec.kinds())
	assert.Equal(t, "Saved", s.Snapshot().StatusLabel())

	cancel()
	rec.reset()
	require.True(t, s.Edit("c"))
	assert.Empty(t, rec.kinds())
}

func TestSaveFailureKeepsBufferDirtyAndBacksUp(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "a")
	clk := newFakeClock()
	backups := &backupRecorder{}
	s := NewSession(st, Options{AutoSave: true, Delay: 3 * time.Second, Ceiling: 30 * time.Second, Clock: clk, Backup: backups.save})
	ctx := context.Background()
	require.NoError(t, s.Load(ctx, "doc-1", "u1"))
	require.True(t, s.Edit("unsaved work"))

	st.mu.Lock()
	st.saveErr = errors.New("network down")
	st.mu.Unlock()

	_, err := s.Save(ctx, TriggerManual)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindSaveFailed))
	assert.Equal(t, "Failed to save document.", UserMessage(err))

	snap := s.Snapshot()
	assert.True(t, snap.Dirty)
	assert.Equal(t, SaveFailed, snap.SaveStatus)
	assert.Equal(t, "Save failed", snap.StatusLabel())
	assert.Equal(t, "unsaved work", snap.Text)

	calls := backups.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "doc-1", calls[0].documentID)
	assert.Equal(t, "unsaved work", calls[0].content)

	// The next quiet period retries.
	debounce, _ := s.PendingTimers()
	assert.True(t, debounce)
	st.mu.Lock()
	st.saveErr = nil
	st.mu.Unlock()
	clk.Advance(3 * time.Second)

	_, _, updates := st.counts()
	assert.Equal(t, 1, updates)
	assert.False(t, s.Snapshot().Dirty)
}

func TestConcurrentSavesCoalesceIntoOneFollowUp(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "a")
	s := newTestSession(st, newFakeClock(), false)
	ctx := context.Background()
	require.NoError(t, s.Load(ctx, "doc-1", "u1"))
	require.True(t, s.Edit("first"))

	entered, release := st.hold()
	defer release()
	first := saveAsync(s, TriggerManual)
	<-entered

	require.True(t, s.Edit("second"))
	for i := 0; i < 3; i++ {
		res, err := s.Save(ctx, TriggerManual)
		require.NoError(t, err)
		assert.True(t, res.Coalesced)
	}
	release()

	r := waitReply(t, first)
	require.NoError(t, r.err)

	_, _, updates := st.counts()
	assert.Equal(t, 2, updates)
	assert.Equal(t, "second", *st.lastUpdate().Content)
	assert.False(t, s.Snapshot().Dirty)
}

func TestCoalescedSaveWithoutChangesDoesNotRepeat(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "a")
	s := newTestSession(st, newFakeClock(), false)
	require.NoError(t, s.Load(context.Background(), "doc-1", "u1"))
	require.True(t, s.Edit("b"))

	entered, release := st.hold()
	defer release()
	first := saveAsync(s, TriggerManual)
	<-entered
	res, err := s.Save(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.True(t, res.Coalesced)
	release()
	require.NoError(t, waitReply(t, first).err)

	_, _, updates := st.counts()
	assert.Equal(t, 1, updates)
}

func TestManualSaveCancelsPendingDebounce(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "a")
	clk := newFakeClock()
	s := newTestSession(st, clk, true)
	require.NoError(t, s.Load(context.Background(), "doc-1", "u1"))
	require.True(t, s.Edit("b"))

	debounce, _ := s.PendingTimers()
	require.True(t, debounce)

	_, err := s.Save(context.Background(), TriggerManual)
	require.NoError(t, err)
	debounce, _ = s.PendingTimers()
	assert.False(t, debounce)

	clk.Advance(10 * time.Second)
	_, _, updates := st.counts()
	assert.Equal(t, 1, updates)
	assert.Equal(t, TriggerManual, s.Snapshot().LastTrigger)
}

func TestAutoSaveWaitsForQuietPeriod(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "")
	clk := newFakeClock()
	s := newTestSession(st, clk, true)
	require.NoError(t, s.Load(context.Background(), "doc-1", "u1"))

	for i, text := range []string{"h", "he", "hel", "hell", "hello"} {
		if i > 0 {
			clk.Advance(time.Second)
		}
		require.True(t, s.Edit(text))
	}
	clk.Advance(2900 * time.Millisecond)
	_, _, updates := st.counts()
	assert.Zero(t, updates)

	clk.Advance(200 * time.Millisecond)
	_, _, updates = st.counts()
	assert.Equal(t, 1, updates)
	assert.Equal(t, "hello", *st.lastUpdate().Content)
	assert.Equal(t, TriggerAuto, s.Snapshot().LastTrigger)

	clk.Advance(time.Minute)
	_, _, updates = st.counts()
	assert.Equal(t, 1, updates)
}

func TestWatchdogBoundsStalenessDuringContinuousTyping(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "")
	clk := newFakeClock()
	s := newTestSession(st, clk, true)
	require.NoError(t, s.Load(context.Background(), "doc-1", "u1"))

	// An edit every 2s never lets the 3s debounce fire.
	for i := 1; i <= 20; i++ {
		clk.Advance(2 * time.Second)
		require.True(t, s.Edit(string(rune('a'+i))))
		if i == 14 {
			_, _, updates := st.counts()
			assert.Zero(t, updates, "no save before the 30s ceiling")
		}
	}
	_, _, updates := st.counts()
	assert.Equal(t, 1, updates, "watchdog saved once at the ceiling")

	clk.Advance(3 * time.Second)
	_, _, updates = st.counts()
	assert.Equal(t, 2, updates, "debounce saved after typing stopped")
	assert.False(t, s.Snapshot().Dirty)
}

func TestAutoSaveNeverCreatesNewDocuments(t *testing.T) {
	st := newFakeStore()
	clk := newFakeClock()
	s := newTestSession(st, clk, true)
	require.NoError(t, s.Load(context.Background(), model.NewDocumentID, "u1"))

	require.True(t, s.Edit("# not yet saved"))
	debounce, watchdog := s.PendingTimers()
	assert.False(t, debounce)
	assert.False(t, watchdog)

	clk.Advance(2 * time.Minute)
	res, err := s.Save(context.Background(), TriggerAuto)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	_, creates, _ := st.counts()
	assert.Zero(t, creates)
	assert.True(t, s.Snapshot().Dirty)
}

func TestAutoSaveDisabled(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "a")
	clk := newFakeClock()
	s := newTestSession(st, clk, true)
	require.NoError(t, s.Load(context.Background(), "doc-1", "u1"))
	require.True(t, s.Edit("b"))

	s.SetAutoSave(false)
	debounce, watchdog := s.PendingTimers()
	assert.False(t, debounce)
	assert.False(t, watchdog)
	clk.Advance(time.Minute)
	_, _, updates := st.counts()
	assert.Zero(t, updates)

	// Manual save still works.
	_, err := s.Save(context.Background(), TriggerManual)
	require.NoError(t, err)
	_, _, updates = st.counts()
	assert.Equal(t, 1, updates)

	// Re-enabling with a dirty buffer arms the debounce again.
	require.True(t, s.Edit("c"))
	s.SetAutoSave(true)
	clk.Advance(3 * time.Second)
	_, _, updates = st.counts()
	assert.Equal(t, 2, updates)
}

func TestSetDelayAppliesToNextEdit(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "a")
	clk := newFakeClock()
	s := newTestSession(st, clk, true)
	require.NoError(t, s.Load(context.Background(), "doc-1", "u1"))

	s.SetDelay(500 * time.Millisecond)
	require.True(t, s.Edit("b"))
	clk.Advance(500 * time.Millisecond)
	_, _, updates := st.counts()
	assert.Equal(t, 1, updates)
}

func TestCloseCancelsTimersAndBacksUpDirtyBuffer(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "a")
	clk := newFakeClock()
	backups := &backupRecorder{}
	s := NewSession(st, Options{AutoSave: true, Clock: clk, Backup: backups.save})
	rec := &recorder{}
	s.Subscribe(rec.record)
	require.NoError(t, s.Load(context.Background(), "doc-1", "u1"))
	require.True(t, s.Edit("pending"))

	s.Close()
	assert.True(t, s.Closed())
	debounce, watchdog := s.PendingTimers()
	assert.False(t, debounce)
	assert.False(t, watchdog)
	kinds := rec.kinds()
	assert.Equal(t, EventClosed, kinds[len(kinds)-1])

	clk.Advance(time.Hour)
	_, _, updates := st.counts()
	assert.Zero(t, updates)
	require.Len(t, backups.all(), 1)
	assert.Equal(t, "pending", backups.all()[0].content)

	assert.False(t, s.Edit("after close"))
	_, err := s.Save(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Load(context.Background(), "doc-1", "u2"), ErrClosed)
}

func TestCloseDiscardsInFlightSaveResult(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "a")
	s := newTestSession(st, newFakeClock(), false)
	require.NoError(t, s.Load(context.Background(), "doc-1", "u1"))
	require.True(t, s.Edit("b"))

	entered, release := st.hold()
	defer release()
	pending := saveAsync(s, TriggerManual)
	<-entered
	s.Close()
	release()

	r := waitReply(t, pending)
	assert.ErrorIs(t, r.err, ErrClosed)
	snap := s.Snapshot()
	assert.Equal(t, SaveSaving, snap.SaveStatus)
	assert.True(t, snap.Dirty)
}

func TestLoadSupersedesInFlightSave(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "one")
	seedDoc(st, "doc-2", "u1", "two")
	s := newTestSession(st, newFakeClock(), false)
	ctx := context.Background()
	require.NoError(t, s.Load(ctx, "doc-1", "u1"))
	require.True(t, s.Edit("one edited"))

	entered, release := st.hold()
	defer release()
	pending := saveAsync(s, TriggerManual)
	<-entered
	require.NoError(t, s.Load(ctx, "doc-2", "u1"))
	release()

	r := waitReply(t, pending)
	assert.ErrorIs(t, r.err, ErrSuperseded)
	snap := s.Snapshot()
	assert.Equal(t, "doc-2", snap.DocumentID)
	assert.Equal(t, "two", snap.Text)
	assert.False(t, snap.Dirty)
}

func TestNewDocumentCreatedThenAutoSaved(t *testing.T) {
	st := newFakeStore()
	clk := newFakeClock()
	s := newTestSession(st, clk, true)
	ctx := context.Background()
	require.NoError(t, s.Load(ctx, model.NewDocumentID, "u1"))

	res, err := s.Save(ctx, TriggerManual)
	require.NoError(t, err)
	require.True(t, res.Created)
	id := s.Snapshot().DocumentID
	require.False(t, model.IsNewDocumentID(id))

	require.True(t, s.Edit("# Hi"))
	clk.Advance(3 * time.Second)

	_, creates, updates := st.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, updates)
	assert.Equal(t, "# Hi", *st.lastUpdate().Content)
	assert.False(t, s.Snapshot().Dirty)

	doc, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "# Hi", doc.Content)
	assert.Contains(t, render.HTML(doc.Content), "<h1>Hi</h1>")
}

func TestEditDuringFirstCreateIsAutoSavedAfterQuietPeriod(t *testing.T) {
	st := newFakeStore()
	clk := newFakeClock()
	s := newTestSession(st, clk, true)
	require.NoError(t, s.Load(context.Background(), model.NewDocumentID, "u1"))
	require.True(t, s.Edit("draft"))

	entered, release := st.hold()
	defer release()
	pending := saveAsync(s, TriggerManual)
	<-entered
	require.True(t, s.Edit("draft, continued"))
	release()

	r := waitReply(t, pending)
	require.NoError(t, r.err)
	require.True(t, r.res.Created)
	assert.True(t, s.Snapshot().Dirty)
	debounce, _ := s.PendingTimers()
	assert.True(t, debounce)

	clk.Advance(3 * time.Second)
	_, creates, updates := st.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, updates)
	assert.Equal(t, "draft, continued", *st.lastUpdate().Content)
	assert.False(t, s.Snapshot().Dirty)
}

func TestFailingStoreIsNotCalledPerKeystroke(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "a")
	clk := newFakeClock()
	s := newTestSession(st, clk, true)
	require.NoError(t, s.Load(context.Background(), "doc-1", "u1"))
	st.failSaves(errors.New("network down"))

	require.True(t, s.Edit("b"))
	clk.Advance(31 * time.Second)
	require.Equal(t, SaveFailed, s.Snapshot().SaveStatus)

	before := st.attemptCount()
	for _, text := range []string{"b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8", "b9", "b10"} {
		require.True(t, s.Edit(text))
		clk.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, before, st.attemptCount())

	clk.Advance(3 * time.Second)
	assert.Equal(t, before+1, st.attemptCount())
}

func TestManualSaveCoalescedIntoFailingAutoSaveStillRuns(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-1", "u1", "a")
	s := newTestSession(st, newFakeClock(), true)
	ctx := context.Background()
	require.NoError(t, s.Load(ctx, "doc-1", "u1"))
	require.True(t, s.Edit("b"))
	rec := &recorder{}
	s.Subscribe(rec.record)
	st.failSaves(errors.New("network down"))

	entered, release := st.hold()
	defer release()
	auto := saveAsync(s, TriggerAuto)
	<-entered
	res, err := s.Save(ctx, TriggerManual)
	require.NoError(t, err)
	assert.True(t, res.Coalesced)
	release()

	r := waitReply(t, auto)
	assert.True(t, IsKind(r.err, KindSaveFailed))
	assert.Equal(t, 2, st.attemptCount())
	assert.True(t, rec.has(EventSaveFailed, TriggerManual))
	assert.True(t, s.Snapshot().Dirty)
}

func TestLoadBacksUpDirtyBufferItReplaces(t *testing.T) {
	st := newFakeStore()
	seedDoc(st, "doc-9", "u1", "other")
	backups := &backupRecorder{}
	s := NewSession(st, Options{AutoSave: true, Delay: 3 * time.Second, Ceiling: 30 * time.Second, Clock: newFakeClock(), Backup: backups.save})
	ctx := context.Background()
	require.NoError(t, s.Load(ctx, model.NewDocumentID, "u1"))
	require.True(t, s.Edit("unsaved draft"))

	res, err := s.Save(ctx, TriggerAuto)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	require.NoError(t, s.Load(ctx, "doc-9", "u1"))
	assert.Equal(t, "other", s.Snapshot().Text)
	calls := backups.all()
	require.Len(t, calls, 1)
	assert.Equal(t, model.NewDocumentID, calls[0].documentID)
	assert.Equal(t, "unsaved draft", calls[0].content)

	// A clean buffer is replaced silently.
	require.NoError(t, s.Load(ctx, model.NewDocumentID, "u1"))
	assert.Len(t, backups.all(), 1)
}

func TestViewModeChanges(t *testing.T) {
	s := newTestSession(newFakeStore(), newFakeClock(), true)
	assert.Equal(t, ViewSplit, s.Snapshot().ViewMode)

	rec := &recorder{}
	s.Subscribe(rec.record)
	s.SetViewMode(ViewPreview)
	s.SetViewMode(ViewPreview)
	assert.Equal(t, ViewPreview, s.Snapshot().ViewMode)
	assert.Equal(t, []EventKind{EventChanged}, rec.kinds())

	mode, err := ParseViewMode(" Editor ")
	require.NoError(t, err)
	assert.Equal(t, ViewEditor, mode)
	_, err = ParseViewMode("sideways")
	assert.Error(t, err)
}
