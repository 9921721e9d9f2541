package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

// Accounts stores login credentials.
type Accounts interface {
	CreateUser(ctx context.Context, a *Account) (*Account, error)
	GetUserByUsername(ctx context.Context, username string) (*Account, error)
}

// Directory is the read side of the community: who can be browsed, matched
// and chatted with.
type Directory interface {
	Get(ctx context.Context, id string) (*Profile, error)
	List(ctx context.Context) ([]Profile, error)
	Search(ctx context.Context, query string) ([]Profile, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, a *Account) (*Account, error) {
	query := "INSERT INTO users (id, username, password) VALUES ($1, $2, $3) ON CONFLICT (username) DO NOTHING"

	res, err := r.db.ExecContext(ctx, query, a.ID, a.Username, a.Password)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrUsernameTaken
	}
	return a, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*Account, error) {
	a := &Account{}
	query := "SELECT id, username, password FROM users WHERE username = $1"

	err := r.db.QueryRowContext(ctx, query, username).Scan(&a.ID, &a.Username, &a.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

const profileColumns = "id, name, age, role, location, avatar, bio, offers, needs, is_premium"

func (r *Repository) Get(ctx context.Context, id string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = $1", id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *Repository) List(ctx context.Context) ([]Profile, error) {
	return r.query(ctx, "SELECT "+profileColumns+" FROM profiles ORDER BY id")
}

func (r *Repository) Search(ctx context.Context, query string) ([]Profile, error) {
	// We limit to 10 to keep it fast
	return r.query(ctx, "SELECT "+profileColumns+" FROM profiles WHERE name ILIKE $1 OR bio ILIKE $1 ORDER BY id LIMIT 10", "%"+query+"%")
}

// UpsertProfile is used by the seeder and by members publishing their profile.
func (r *Repository) UpsertProfile(ctx context.Context, p Profile) error {
	offers, _ := json.Marshal(p.Offers)
	needs, _ := json.Marshal(p.Needs)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, age = EXCLUDED.age, role = EXCLUDED.role,
			location = EXCLUDED.location, avatar = EXCLUDED.avatar, bio = EXCLUDED.bio,
			offers = EXCLUDED.offers, needs = EXCLUDED.needs, is_premium = EXCLUDED.is_premium`,
		p.ID, p.Name, p.Age, string(p.Role), p.Location, p.Avatar, p.Bio, string(offers), string(needs), p.IsPremium)
	return err
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]Profile, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (*Profile, error) {
	var (
		p             Profile
		role          string
		offers, needs string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Age, &role, &p.Location, &p.Avatar, &p.Bio, &offers, &needs, &p.IsPremium); err != nil {
		return nil, err
	}
	p.Role = Generation(role)
	if err := json.Unmarshal([]byte(offers), &p.Offers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(needs), &p.Needs); err != nil {
		return nil, err
	}
	return &p, nil
}

// MemoryRepository backs the directory with a fixed community, used when no
// database is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	profiles []Profile
	accounts map[string]*Account
}

func NewMemoryRepository(profiles []Profile) *MemoryRepository {
	return &MemoryRepository{
		profiles: append([]Profile(nil), profiles...),
		accounts: make(map[string]*Account),
	}
}

func (m *MemoryRepository) CreateUser(_ context.Context, a *Account) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.Username]; ok {
		return nil, ErrUsernameTaken
	}
	cp := *a
	m.accounts[a.Username] = &cp
	return a, nil
}

func (m *MemoryRepository) GetUserByUsername(_ context.Context, username string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.profiles {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) List(_ context.Context) ([]Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Profile(nil), m.profiles...), nil
}

func (m *MemoryRepository) Search(_ context.Context, query string) ([]Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(query)
	var out []Profile
	for _, p := range m.profiles {
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Bio), q) {
			out = append(out, p)
		}
		if len(out) == 10 {
			break
		}
	}
	return out, nil
}
