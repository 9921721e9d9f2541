package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	myMiddleware "bridgeme/internal/middleware"
	"bridgeme/internal/user"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func board() []RequestPost {
	return []RequestPost{
		{ID: "r1", UserID: "u1", Category: user.SkillTech, Title: "Help setting up Zoom on iPad", Description: "I want to call my daughter.", PostedAt: now.Add(-2 * time.Hour)},
		{ID: "r2", UserID: "u3", Category: user.SkillLanguage, Title: "Conversational English Practice", Description: "Someone patient to practice with.", PostedAt: now.Add(-5 * time.Hour)},
		{ID: "r3", UserID: "u2", Category: user.SkillCooking, Title: "Authentic Miso Soup", Description: "Teach me the real deal!", PostedAt: now.Add(-24 * time.Hour)},
		{ID: "r4", UserID: "ghost", Category: user.SkillCounseling, Title: "Need a listening ear", Description: "College applications.", PostedAt: now.Add(-30 * time.Minute)},
	}
}

func newService() *Service {
	dir := user.NewMemoryRepository([]user.Profile{{ID: "u1", Name: "Kenji Tanaka"}, {ID: "u2", Name: "Sarah Jenkins"}, {ID: "u3", Name: "Maria Rossi"}})
	s := NewService(NewMemoryRepository(board()), dir, func() string { return "x1" })
	s.now = func() time.Time { return now }
	return s
}

func TestHighlight(t *testing.T) {
	assert.Equal(t, []Segment{{Text: "Help with "}, {Text: "iPad", Match: true}, {Text: " and "}, {Text: "IPAD", Match: true}},
		Highlight("Help with iPad and IPAD", "ipad"))
	assert.Equal(t, []Segment{{Text: "plain"}}, Highlight("plain", "  "))
}

func TestBrowse(t *testing.T) {
	s := newService()
	ctx := context.Background()

	all, err := s.Browse(ctx, "All", "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "r4", all[0].ID)
	assert.Equal(t, "30 minutes ago", all[0].CreatedAt)
	assert.Nil(t, all[0].Poster, "unknown posters are left out")
	assert.Equal(t, "Kenji Tanaka", all[1].Poster.Name)

	cooking, err := s.Browse(ctx, string(user.SkillCooking), "")
	require.NoError(t, err)
	require.Len(t, cooking, 1)
	assert.Equal(t, "r3", cooking[0].ID)

	found, err := s.Browse(ctx, "", "ZOOM")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "r1", found[0].ID)
	assert.Contains(t, found[0].TitleHL, Segment{Text: "Zoom", Match: true})

	none, err := s.Browse(ctx, string(user.SkillTech), "miso")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPost(t *testing.T) {
	s := newService()
	ctx := context.Background()

	_, err := s.Post(ctx, "u2", PostInput{Category: "Astrology", Title: "x", Description: "y"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	l, err := s.Post(ctx, "u2", PostInput{Category: "cooking", Title: " Bread ", Description: "Sourdough basics", ExchangeOffer: "Phone help"})
	require.NoError(t, err)
	assert.Equal(t, "r_x1", l.ID)
	assert.Equal(t, user.SkillCooking, l.Category)
	assert.Equal(t, "Bread", l.Title)
	assert.Equal(t, "Sarah Jenkins", l.Poster.Name)

	got, err := s.Get(ctx, "r_x1")
	require.NoError(t, err)
	assert.Equal(t, "Sourdough basics", got.Description)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestHandler(t *testing.T) {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(myMiddleware.WithUser(r.Context(), "u2", "sarah")))
		})
	})
	NewHandler(newService()).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests?q=miso", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"r3"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader(`{"category":"Tech Support"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostgresList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + requestColumns + " FROM requests")).
		WillReturnRows(sqlmock.NewRows(strings.Split(requestColumns, ", ")).
			AddRow("r1", "u1", "Tech Support", "Zoom", "iPad", "Japanese", now))

	posts, err := NewRepository(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, user.SkillTech, posts[0].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}
