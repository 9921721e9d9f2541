// Package exchange is the community board of skill requests: who needs
// help with what, and what they offer in return.
package exchange

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"bridgeme/internal/user"

	"github.com/dustin/go-humanize"
)

var (
	ErrRequestNotFound = errors.New("request not found")
	ErrInvalidRequest  = errors.New("request needs a title, a description and a valid category")
)

type RequestPost struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Category      user.Skill `json:"category"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	ExchangeOffer string     `json:"exchangeOffer"`
	PostedAt      time.Time  `json:"postedAt"`
	CreatedAt     string     `json:"createdAt"`
}

// Segment is a piece of text, flagged when it matched the search query.
type Segment struct {
	Text  string `json:"text"`
	Match bool   `json:"match,omitempty"`
}

// Listing is a request as shown on the board, with its poster so a chat can
// be started from it.
type Listing struct {
	RequestPost
	Poster  *user.Profile `json:"poster,omitempty"`
	TitleHL []Segment     `json:"titleHighlight,omitempty"`
	DescHL  []Segment     `json:"descriptionHighlight,omitempty"`
}

type Repository interface {
	List(ctx context.Context) ([]RequestPost, error)
	Get(ctx context.Context, id string) (*RequestPost, error)
	Create(ctx context.Context, p RequestPost) error
}

// Highlight splits text around case-insensitive occurrences of query.
func Highlight(text, query string) []Segment {
	q := strings.TrimSpace(query)
	if q == "" {
		return []Segment{{Text: text}}
	}
	lower, lq := strings.ToLower(text), strings.ToLower(q)
	var out []Segment
	for {
		i := strings.Index(lower, lq)
		if i < 0 {
			break
		}
		if i > 0 {
			out = append(out, Segment{Text: text[:i]})
		}
		out = append(out, Segment{Text: text[i : i+len(lq)], Match: true})
		text, lower = text[i+len(lq):], lower[i+len(lq):]
	}
	if text != "" {
		out = append(out, Segment{Text: text})
	}
	return out
}

type Service struct {
	repo      Repository
	directory user.Directory
	now       func() time.Time
	newID     func() string
}

func NewService(repo Repository, directory user.Directory, newID func() string) *Service {
	return &Service{repo: repo, directory: directory, now: time.Now, newID: newID}
}

// Browse filters by category ("" or "All" for every category) and by a
// free-text query over title and description. Newest first.
func (s *Service) Browse(ctx context.Context, category, query string) ([]Listing, error) {
	posts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Listing, 0, len(posts))
	for _, p := range posts {
		if category != "" && category != "All" && string(p.Category) != category {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Title), q) && !strings.Contains(strings.ToLower(p.Description), q) {
			continue
		}
		l, err := s.listing(ctx, p)
		if err != nil {
			return nil, err
		}
		if q != "" {
			l.TitleHL = Highlight(p.Title, query)
			l.DescHL = Highlight(p.Description, query)
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PostedAt.After(out[j].PostedAt) })
	return out, nil
}

func (s *Service) listing(ctx context.Context, p RequestPost) (Listing, error) {
	p.CreatedAt = humanize.RelTime(p.PostedAt, s.now(), "ago", "from now")
	l := Listing{RequestPost: p}
	if s.directory == nil {
		return l, nil
	}
	poster, err := s.directory.Get(ctx, p.UserID)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return Listing{}, err
	}
	l.Poster = poster
	return l, nil
}

func (s *Service) Get(ctx context.Context, id string) (Listing, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	return s.listing(ctx, *p)
}

type PostInput struct {
	Category      string `json:"category"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	ExchangeOffer string `json:"exchangeOffer"`
}

// Post adds a request for help from userID.
func (s *Service) Post(ctx context.Context, userID string, in PostInput) (Listing, error) {
	cat, ok := user.ParseSkill(in.Category)
	title, desc := strings.TrimSpace(in.Title), strings.TrimSpace(in.Description)
	if !ok || title == "" || desc == "" {
		return Listing{}, ErrInvalidRequest
	}
	p := RequestPost{
		ID:            "r_" + s.newID(),
		UserID:        userID,
		Category:      cat,
		Title:         title,
		Description:   desc,
		ExchangeOffer: strings.TrimSpace(in.ExchangeOffer),
		PostedAt:      s.now(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return Listing{}, err
	}
	return s.listing(ctx, p)
}

type MemoryRepository struct {
	mu    sync.RWMutex
	posts []RequestPost
}

func NewMemoryRepository(posts []RequestPost) *MemoryRepository {
	return &MemoryRepository{posts: append([]RequestPost(nil), posts...)}
}

func (m *MemoryRepository) List(_ context.Context) ([]RequestPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestPost(nil), m.posts...), nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*RequestPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.posts {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrRequestNotFound
}

func (m *MemoryRepository) Create(_ context.Context, p RequestPost) error {
	m.mu.Lock()
	m.posts = append(m.posts, p)
	m.mu.Unlock()
	return nil
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const requestColumns = "id, user_id, category, title, description, exchange_offer, posted_at"

func scan(s interface{ Scan(...any) error }) (*RequestPost, error) {
	var (
		p   RequestPost
		cat string
	)
	if err := s.Scan(&p.ID, &p.UserID, &cat, &p.Title, &p.Description, &p.ExchangeOffer, &p.PostedAt); err != nil {
		return nil, err
	}
	p.Category = user.Skill(cat)
	return &p, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]RequestPost, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+requestColumns+" FROM requests ORDER BY posted_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RequestPost
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*RequestPost, error) {
	p, err := scan(r.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	return p, err
}

func (r *PostgresRepository) Create(ctx context.Context, p RequestPost) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO requests ("+requestColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING",
		p.ID, p.UserID, string(p.Category), p.Title, p.Description, p.ExchangeOffer, p.PostedAt)
	return err
}
