// Package draft keeps the in-progress marketplace listing of a user and
// mirrors it into the KV store after a quiet period.
package draft

import (
	"context"
	"errors"
	"sync"
	"time"

	"bridgeme/internal/kv"
	"bridgeme/internal/logger"
)

const DefaultDebounce = time.Second

// Draft is the listing form. Price stays a string because it is whatever
// the seller typed so far.
type Draft struct {
	Title       string   `json:"title"`
	Price       string   `json:"price"`
	Category    string   `json:"category"`
	Condition   string   `json:"condition"`
	Description string   `json:"desc"`
	Images      []string `json:"images"`
	Video       string   `json:"video,omitempty"`
}

func Defaults() Draft {
	return Draft{Category: "Handmade", Condition: "New", Images: []string{}}
}

// Empty ignores category and condition: those always have a value.
func (d Draft) Empty() bool {
	return d.Title == "" && d.Price == "" && d.Description == "" && len(d.Images) == 0 && d.Video == ""
}

func (d Draft) textOnly() Draft {
	d.Images = []string{}
	d.Video = ""
	return d
}

// Autosaver owns the draft of one user.
type Autosaver struct {
	store    kv.Store
	userID   string
	debounce time.Duration
	now      func() time.Time

	mu        sync.Mutex
	current   Draft
	dirty     bool
	closed    bool
	timer     *time.Timer
	gen       int
	lastSaved time.Time

	// counts scheduled flushes that have not returned yet
	pending sync.WaitGroup
}

func New(store kv.Store, userID string, debounce time.Duration) *Autosaver {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Autosaver{
		store:    store,
		userID:   userID,
		debounce: debounce,
		now:      time.Now,
		current:  Defaults(),
	}
}

// Load reads the stored draft. Fields missing from the stored copy keep
// their defaults.
func (a *Autosaver) Load(ctx context.Context) (Draft, error) {
	var stored Draft
	found, err := kv.Load(ctx, a.store, kv.DocDraft, a.userID, &stored)
	if err != nil {
		return Defaults(), err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	d := Defaults()
	if found {
		if stored.Title != "" {
			d.Title = stored.Title
		}
		if stored.Price != "" {
			d.Price = stored.Price
		}
		if stored.Category != "" {
			d.Category = stored.Category
		}
		if stored.Condition != "" {
			d.Condition = stored.Condition
		}
		if stored.Description != "" {
			d.Description = stored.Description
		}
		if len(stored.Images) > 0 {
			d.Images = stored.Images
		}
		d.Video = stored.Video
		a.lastSaved = a.now()
	}
	a.current = d
	a.dirty = false
	return d, nil
}

// Current returns the latest draft handed to Update.
func (a *Autosaver) Current() Draft {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Update records the new form state and restarts the quiet period.
func (a *Autosaver) Update(d Draft) {
	if d.Images == nil {
		d.Images = []string{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = d
	a.dirty = true
	if a.closed {
		return
	}
	a.stopTimerLocked()
	a.gen++
	gen := a.gen
	a.pending.Add(1)
	a.timer = time.AfterFunc(a.debounce, func() { a.fire(gen) })
}

func (a *Autosaver) fire(gen int) {
	defer a.pending.Done()
	a.mu.Lock()
	defer a.mu.Unlock()
	// a newer Update superseded this timer while it waited for the lock
	if gen != a.gen {
		return
	}
	a.timer = nil
	if !a.dirty {
		return
	}
	a.persistLocked(context.Background())
}

// stopTimerLocked cancels a scheduled flush that has not started yet.
func (a *Autosaver) stopTimerLocked() {
	if a.timer != nil && a.timer.Stop() {
		a.pending.Done()
	}
	a.timer = nil
}

// Flush writes the current draft now. It reports whether something was saved.
func (a *Autosaver) Flush(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTimerLocked()
	return a.persistLocked(ctx)
}

// Close stops the debounce timer and writes the latest state synchronously.
func (a *Autosaver) Close(ctx context.Context) {
	a.mu.Lock()
	a.closed = true
	a.stopTimerLocked()
	a.mu.Unlock()

	a.pending.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dirty {
		a.persistLocked(ctx)
	}
}

// Clear resets the form to its defaults and forgets the stored copy.
func (a *Autosaver) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTimerLocked()
	a.current = Defaults()
	a.dirty = false
	a.lastSaved = time.Time{}
	return kv.Remove(ctx, a.store, kv.DocDraft, a.userID)
}

// LastSaved is zero when nothing is stored.
func (a *Autosaver) LastSaved() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSaved
}

func (a *Autosaver) persistLocked(ctx context.Context) bool {
	a.dirty = false
	d := a.current
	if d.Empty() {
		if err := kv.Remove(ctx, a.store, kv.DocDraft, a.userID); err != nil {
			logger.Warn().Err(err).Str("user_id", a.userID).Msg("draft remove failed")
		}
		a.lastSaved = time.Time{}
		return false
	}

	err := kv.Save(ctx, a.store, kv.DocDraft, a.userID, d)
	if errors.Is(err, kv.ErrQuotaExceeded) {
		logger.Warn().Str("user_id", a.userID).Msg("draft over quota, saving text only")
		err = kv.Save(ctx, a.store, kv.DocDraft, a.userID, d.textOnly())
	}
	if err != nil {
		logger.Error().Err(err).Str("user_id", a.userID).Msg("Failed to save draft")
		a.lastSaved = time.Time{}
		return false
	}
	a.lastSaved = a.now()
	return true
}
