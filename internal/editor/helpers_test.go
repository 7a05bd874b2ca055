package editor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mdpreview/internal/model"
	"mdpreview/internal/store"
)

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock fires timers synchronously from Advance, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{c: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].seq < due[j].seq
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]model.Document
	nextID  int
	creates []model.Document
	updates []model.DocumentPatch
	gets    int
	// attempts counts Create and Update calls, failed ones included.
	attempts int

	getErr    error
	saveErr   error
	holdSaves bool
	entered   chan struct{}
	release   chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]model.Document{}}
}

func (f *fakeStore) put(d model.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[d.ID] = d
}

// hold makes the next Create/Update block until the returned func is called.
func (f *fakeStore) hold() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdSaves = true
	f.entered = make(chan struct{}, 1)
	f.release = make(chan struct{})
	rel := f.release
	var once sync.Once
	return f.entered, func() { once.Do(func() { close(rel) }) }
}

func (f *fakeStore) maybeBlock() {
	f.mu.Lock()
	if !f.holdSaves {
		f.mu.Unlock()
		return
	}
	f.holdSaves = false
	entered, release := f.entered, f.release
	f.mu.Unlock()
	entered <- struct{}{}
	<-release
}

func (f *fakeStore) Create(ctx context.Context, ownerID, title, content string) (model.Document, error) {
	f.maybeBlock()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.saveErr != nil {
		return model.Document{}, f.saveErr
	}
	f.nextID++
	d := model.Document{ID: fmt.Sprintf("doc-%d", f.nextID), Title: model.TitleFromFileName(title), Content: content, OwnerID: ownerID}
	f.docs[d.ID] = d
	f.creates = append(f.creates, d)
	return d, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return model.Document{}, f.getErr
	}
	d, ok := f.docs[id]
	if !ok {
		return model.Document{}, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	return d, nil
}

func (f *fakeStore) Update(ctx context.Context, id string, patch model.DocumentPatch) (model.Document, error) {
	f.maybeBlock()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.saveErr != nil {
		return model.Document{}, f.saveErr
	}
	d, ok := f.docs[id]
	if !ok {
		return model.Document{}, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	if patch.Title != nil {
		d.Title = *patch.Title
	}
	if patch.Content != nil {
		d.Content = *patch.Content
	}
	f.docs[id] = d
	f.updates = append(f.updates, patch)
	return d, nil
}

func (f *fakeStore) counts() (gets, creates, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, len(f.creates), len(f.updates)
}

func (f *fakeStore) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeStore) failSaves(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

func (f *fakeStore) lastUpdate() model.DocumentPatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return model.DocumentPatch{}
	}
	return f.updates[len(f.updates)-1]
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) has(kind EventKind, trigger Trigger) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind && ev.Trigger == trigger {
			return true
		}
	}
	return false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type backupCall struct {
	documentID string
	fileName   string
	content    string
}

type backupRecorder struct {
	mu    sync.Mutex
	calls []backupCall
}

func (b *backupRecorder) save(documentID, fileName, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, backupCall{documentID, fileName, content})
	return nil
}

func (b *backupRecorder) all() []backupCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backupCall(nil), b.calls...)
}

func newTestSession(st *fakeStore, clk *fakeClock, autoSave bool) *Session {
	return NewSession(st, Options{
		AutoSave: autoSave,
		Delay:    3 * time.Second,
		Ceiling:  30 * time.Second,
		Clock:    clk,
	})
}

func seedDoc(st *fakeStore, id, owner, content string) {
	st.put(model.Document{ID: id, Title: "notes", Content: content, OwnerID: owner})
}
