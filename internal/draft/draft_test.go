package draft

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bridgeme/internal/kv"
	myMiddleware "bridgeme/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingStore struct {
	kv.Store
	mu   sync.Mutex
	sets int
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.Store.Set(ctx, key, value)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func stored(t *testing.T, s kv.Store) (Draft, bool) {
	t.Helper()
	var d Draft
	found, err := kv.Load(context.Background(), s, kv.DocDraft, "u1", &d)
	require.NoError(t, err)
	return d, found
}

func TestLoadDefaults(t *testing.T) {
	a := New(kv.NewMemoryStore(), "u1", time.Hour)
	d, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Handmade", d.Category)
	assert.Equal(t, "New", d.Condition)
	assert.True(t, d.Empty())
	assert.True(t, a.LastSaved().IsZero())
}

func TestLoadStoredKeepsDefaultsForMissingFields(t *testing.T) {
	s := kv.NewMemoryStore()
	require.NoError(t, kv.Save(context.Background(), s, kv.DocDraft, "u1", Draft{Title: "Quilt", Price: "40"}))

	a := New(s, "u1", time.Hour)
	d, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Quilt", d.Title)
	assert.Equal(t, "40", d.Price)
	assert.Equal(t, "Handmade", d.Category)
	assert.False(t, a.LastSaved().IsZero())
}

func TestReloadRestoresEveryField(t *testing.T) {
	ctx := context.Background()
	s := kv.NewMemoryStore()
	want := Draft{
		Title:       "Hand-thrown teapot",
		Price:       "32.50",
		Category:    "Home",
		Condition:   "Used - Like New",
		Description: "Glazed stoneware, holds four cups.",
		Images:      []string{"data:image/png;base64,iVBORw0KGgo=", "https://img/teapot-2.jpg"},
		Video:       "https://video/teapot.mp4",
	}

	a := New(s, "u1", time.Hour)
	_, err := a.Load(ctx)
	require.NoError(t, err)
	a.Update(want)
	require.True(t, a.Flush(ctx))

	fresh := New(s, "u1", time.Hour)
	got, err := fresh.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want, fresh.Current())
	assert.False(t, fresh.LastSaved().IsZero())
	fresh.Close(ctx)
}

func TestUpdateIsDebounced(t *testing.T) {
	s := &countingStore{Store: kv.NewMemoryStore()}
	a := New(s, "u1", 50*time.Millisecond)

	a.Update(Draft{Title: "Q"})
	a.Update(Draft{Title: "Qu"})
	a.Update(Draft{Title: "Quilt", Price: "40"})

	_, found := stored(t, s)
	assert.False(t, found, "nothing written before the quiet period")

	require.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 5*time.Millisecond)
	d, found := stored(t, s)
	require.True(t, found)
	assert.Equal(t, "Quilt", d.Title)
	assert.False(t, a.LastSaved().IsZero())

	a.Close(context.Background())
	assert.Equal(t, 1, s.count())
}

func TestCloseFlushesPendingChange(t *testing.T) {
	s := kv.NewMemoryStore()
	a := New(s, "u1", time.Hour)
	a.Update(Draft{Title: "Rocking chair"})

	a.Close(context.Background())

	d, found := stored(t, s)
	require.True(t, found)
	assert.Equal(t, "Rocking chair", d.Title)

	// updates after close are kept in memory only
	a.Update(Draft{Title: "Other"})
	d, _ = stored(t, s)
	assert.Equal(t, "Rocking chair", d.Title)
}

func TestEmptyDraftRemovesKey(t *testing.T) {
	s := kv.NewMemoryStore()
	a := New(s, "u1", time.Hour)
	a.Update(Draft{Title: "Vase"})
	assert.True(t, a.Flush(context.Background()))

	a.Update(Draft{Category: "Art", Condition: "Used"})
	assert.False(t, a.Flush(context.Background()))

	_, found := stored(t, s)
	assert.False(t, found)
	assert.True(t, a.LastSaved().IsZero())
	a.Close(context.Background())
}

func TestQuotaFallsBackToText(t *testing.T) {
	s := kv.WithQuota(kv.NewMemoryStore(), 300)
	a := New(s, "u1", time.Hour)
	a.Update(Draft{
		Title:  "Painting",
		Price:  "120",
		Images: []string{"data:image/png;base64," + strings.Repeat("A", 400)},
		Video:  "https://video.example/v.mp4",
	})
	assert.True(t, a.Flush(context.Background()))

	d, found := stored(t, s)
	require.True(t, found)
	assert.Equal(t, "Painting", d.Title)
	assert.Empty(t, d.Images)
	assert.Empty(t, d.Video)
	// the form itself still has the image
	assert.Len(t, a.Current().Images, 1)
	a.Close(context.Background())
}

func TestQuotaGivesUpWhenTextTooLarge(t *testing.T) {
	s := kv.WithQuota(kv.NewMemoryStore(), 10)
	a := New(s, "u1", time.Hour)
	a.Update(Draft{Title: strings.Repeat("x", 50)})
	assert.False(t, a.Flush(context.Background()))
	_, found := stored(t, s)
	assert.False(t, found)
	assert.True(t, a.LastSaved().IsZero())
	a.Close(context.Background())
}

func TestClear(t *testing.T) {
	s := kv.NewMemoryStore()
	a := New(s, "u1", time.Hour)
	a.Update(Draft{Title: "Lamp", Category: "Decor"})
	a.Flush(context.Background())

	a.Update(Draft{Title: "Lamp 2"})
	require.NoError(t, a.Clear(context.Background()))

	assert.Equal(t, Defaults(), a.Current())
	_, found := stored(t, s)
	assert.False(t, found)

	// the pending write was cancelled
	a.Close(context.Background())
	_, found = stored(t, s)
	assert.False(t, found)
}

func TestManagerAndHandler(t *testing.T) {
	s := kv.NewMemoryStore()
	m := NewManager(s, time.Hour)
	defer m.Close(context.Background())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(myMiddleware.WithUser(r.Context(), "u1", "kenji")))
		})
	})
	NewHandler(m).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/draft", strings.NewReader(`{"title":"Teapot","price":"15"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lastSaved":null`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/draft/flush", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"lastSaved":null`)

	d, found := stored(t, s)
	require.True(t, found)
	assert.Equal(t, "Teapot", d.Title)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/draft", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/draft", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, found = stored(t, s)
	assert.False(t, found)
}
