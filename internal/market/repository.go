package market

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrItemNotFound     = errors.New("item not found")
	ErrDuplicateItem    = errors.New("an item with this id already exists")
	ErrPurchaseNotFound = errors.New("purchase not found")
)

type ItemRepository interface {
	ListItems(ctx context.Context) ([]Item, error)
	GetItem(ctx context.Context, id string) (*Item, error)
	// CreateItem returns ErrDuplicateItem when the id is taken.
	CreateItem(ctx context.Context, it Item) error
	// MarkSold returns ErrItemSold when the item was sold already.
	MarkSold(ctx context.Context, id string) error
	// AdjustLikes adds delta and clamps at zero. It returns the new count.
	AdjustLikes(ctx context.Context, id string, delta int) (int, error)
}

// PurchaseRepository is append-only. Purchases with an empty buyer are
// demo history shown to everyone.
type PurchaseRepository interface {
	// Sell marks every purchased item sold and records the purchases, all or
	// nothing. An item already sold fails the whole sale with ErrItemSold.
	Sell(ctx context.Context, ps []Purchase) error
	AddPurchases(ctx context.Context, ps []Purchase) error
	Purchases(ctx context.Context, buyerID string) ([]Purchase, error)
}

type ReviewRepository interface {
	AddReview(ctx context.Context, r Review) error
	Reviews(ctx context.Context, sellerID string) ([]Review, error)
}

// PostgresRepository implements all three repositories on one connection.
type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const itemColumns = "id, seller_id, title, description, price, images, video_url, category, condition, likes, is_sold, listed_at"

func (r *PostgresRepository) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+itemColumns+" FROM items ORDER BY listed_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetItem(ctx context.Context, id string) (*Item, error) {
	it, err := scanItem(r.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	return it, err
}

func (r *PostgresRepository) CreateItem(ctx context.Context, it Item) error {
	images, err := json.Marshal(it.Images)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		it.ID, it.SellerID, it.Title, it.Description, it.Price, string(images), it.VideoURL,
		string(it.Category), string(it.Condition), it.Likes, it.IsSold, it.ListedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrDuplicateItem
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func markSold(ctx context.Context, q querier, id string) error {
	res, err := q.ExecContext(ctx, "UPDATE items SET is_sold = TRUE WHERE id = $1 AND NOT is_sold", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)", id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrItemNotFound
	}
	return fmt.Errorf("%w: %s", ErrItemSold, id)
}

func (r *PostgresRepository) MarkSold(ctx context.Context, id string) error {
	return markSold(ctx, r.db, id)
}

func (r *PostgresRepository) Sell(ctx context.Context, ps []Purchase) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range ps {
		if err := markSold(ctx, tx, p.ItemID); err != nil {
			return err
		}
		if err := insertPurchase(ctx, tx, p, ""); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertPurchase(ctx context.Context, tx *sql.Tx, p Purchase, onConflict string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO purchases (id, buyer_id, item_id, seller_id, title, price, image, purchase_date, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`+onConflict,
		p.ID, p.BuyerID, p.ItemID, p.SellerID, p.Title, p.Price, p.Image, p.PurchaseDate, p.PaymentMethod)
	return err
}

func (r *PostgresRepository) AdjustLikes(ctx context.Context, id string, delta int) (int, error) {
	var likes int
	err := r.db.QueryRowContext(ctx,
		"UPDATE items SET likes = GREATEST(likes + $2, 0) WHERE id = $1 RETURNING likes", id, delta).Scan(&likes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrItemNotFound
	}
	return likes, err
}

func (r *PostgresRepository) AddPurchases(ctx context.Context, ps []Purchase) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range ps {
		if err := insertPurchase(ctx, tx, p, " ON CONFLICT (id) DO NOTHING"); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresRepository) Purchases(ctx context.Context, buyerID string) ([]Purchase, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, buyer_id, item_id, seller_id, title, price, image, purchase_date, payment_method
		FROM purchases WHERE buyer_id = $1 OR buyer_id = '' ORDER BY purchase_date DESC`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.BuyerID, &p.ItemID, &p.SellerID, &p.Title, &p.Price, &p.Image, &p.PurchaseDate, &p.PaymentMethod); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AddReview(ctx context.Context, rv Review) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews (id, seller_id, author_id, item_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
		rv.ID, rv.SellerID, rv.AuthorID, rv.ItemID, rv.Rating, rv.Comment, rv.CreatedAt)
	return err
}

func (r *PostgresRepository) Reviews(ctx context.Context, sellerID string) ([]Review, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, seller_id, author_id, item_id, rating, comment, created_at
		FROM reviews WHERE seller_id = $1 ORDER BY created_at DESC`, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.ID, &rv.SellerID, &rv.AuthorID, &rv.ItemID, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*Item, error) {
	var (
		it                  Item
		images              string
		category, condition string
	)
	err := s.Scan(&it.ID, &it.SellerID, &it.Title, &it.Description, &it.Price, &images, &it.VideoURL,
		&category, &condition, &it.Likes, &it.IsSold, &it.ListedAt)
	if err != nil {
		return nil, err
	}
	it.Category = Category(category)
	it.Condition = Condition(condition)
	if err := json.Unmarshal([]byte(images), &it.Images); err != nil {
		return nil, err
	}
	return &it, nil
}

// MemoryRepository keeps the catalog in process, used without a database.
type MemoryRepository struct {
	mu        sync.RWMutex
	items     []Item
	purchases []Purchase
	reviews   []Review
}

func NewMemoryRepository(items []Item, purchases []Purchase, reviews []Review) *MemoryRepository {
	m := &MemoryRepository{
		items:     make([]Item, 0, len(items)),
		purchases: append([]Purchase(nil), purchases...),
		reviews:   append([]Review(nil), reviews...),
	}
	for _, it := range items {
		m.items = append(m.items, cloneItem(it))
	}
	return m
}

func cloneItem(it Item) Item {
	it.Images = append([]string(nil), it.Images...)
	return it
}

func (m *MemoryRepository) ListItems(_ context.Context) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Item, len(m.items))
	for i, it := range m.items {
		out[i] = cloneItem(it)
	}
	return out, nil
}

func (m *MemoryRepository) find(id string) int {
	for i := range m.items {
		if m.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *MemoryRepository) GetItem(_ context.Context, id string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.find(id)
	if i < 0 {
		return nil, ErrItemNotFound
	}
	it := cloneItem(m.items[i])
	return &it, nil
}

// CreateItem puts new listings in front, like the catalog page does.
func (m *MemoryRepository) CreateItem(_ context.Context, it Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.find(it.ID) >= 0 {
		return ErrDuplicateItem
	}
	m.items = append([]Item{cloneItem(it)}, m.items...)
	return nil
}

func (m *MemoryRepository) MarkSold(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markSoldLocked(id)
}

func (m *MemoryRepository) markSoldLocked(id string) error {
	i := m.find(id)
	if i < 0 {
		return ErrItemNotFound
	}
	if m.items[i].IsSold {
		return fmt.Errorf("%w: %s", ErrItemSold, id)
	}
	m.items[i].IsSold = true
	return nil
}

func (m *MemoryRepository) Sell(_ context.Context, ps []Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ps {
		i := m.find(p.ItemID)
		if i < 0 {
			return ErrItemNotFound
		}
		if m.items[i].IsSold {
			return fmt.Errorf("%w: %s", ErrItemSold, p.ItemID)
		}
	}
	for _, p := range ps {
		m.markSoldLocked(p.ItemID)
	}
	m.purchases = append(m.purchases, ps...)
	return nil
}

func (m *MemoryRepository) AdjustLikes(_ context.Context, id string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(id)
	if i < 0 {
		return 0, ErrItemNotFound
	}
	m.items[i].Likes = max(0, m.items[i].Likes+delta)
	return m.items[i].Likes, nil
}

// AddPurchases skips ids it already holds.
func (m *MemoryRepository) AddPurchases(_ context.Context, ps []Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool, len(m.purchases))
	for _, p := range m.purchases {
		seen[p.ID] = true
	}
	for _, p := range ps {
		if !seen[p.ID] {
			seen[p.ID] = true
			m.purchases = append(m.purchases, p)
		}
	}
	return nil
}

func (m *MemoryRepository) Purchases(_ context.Context, buyerID string) ([]Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Purchase
	for _, p := range m.purchases {
		if p.BuyerID == buyerID || p.BuyerID == "" {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PurchaseDate.After(out[j].PurchaseDate) })
	return out, nil
}

func (m *MemoryRepository) AddReview(_ context.Context, r Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews = append(m.reviews, r)
	return nil
}

func (m *MemoryRepository) Reviews(_ context.Context, sellerID string) ([]Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Review
	for _, r := range m.reviews {
		if r.SellerID == sellerID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
