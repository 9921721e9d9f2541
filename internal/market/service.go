package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"bridgeme/internal/ai"
	"bridgeme/internal/apperr"
	"bridgeme/internal/draft"
	"bridgeme/internal/kv"
	"bridgeme/internal/logger"
	"bridgeme/internal/media"
	"bridgeme/internal/metrics"
	"bridgeme/internal/user"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	MaxListingImages = 5
	recentLimit      = 4
	ReportAck        = "Thank you for your report. We will investigate this item."
)

var (
	ErrItemSold        = errors.New("item is already sold")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrMissingShipping = errors.New("shipping name, address, city and zip are required")
	ErrInvalidPayment  = errors.New("invalid payment details")
	ErrNoSavedCard     = errors.New("no saved card on file")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrTooManyImages   = errors.New("you can only upload a maximum of 5 images")
	ErrInvalidListing  = errors.New("listing needs a title and a valid price")
	ErrNeedImage       = errors.New("upload at least one image first to serve as a reference")
	ErrNeedDetails     = errors.New("fill in the title and description first")
)

type Options struct {
	Items     ItemRepository
	Purchases PurchaseRepository
	Reviews   ReviewRepository
	Directory user.Directory
	Docs      kv.Store
	Drafts    *draft.Manager
	Media     media.ObjectStore
	AI        ai.Service
}

type Service struct {
	opts  Options
	now   func() time.Time
	newID func() string

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	recent map[string][]string
}

func NewService(opts Options) *Service {
	if opts.Docs == nil {
		opts.Docs = kv.NewMemoryStore()
	}
	if opts.AI == nil {
		opts.AI = ai.Disabled{}
	}
	if opts.Drafts == nil {
		opts.Drafts = draft.NewManager(opts.Docs, draft.DefaultDebounce)
	}
	return &Service{
		opts:   opts,
		now:    time.Now,
		newID:  uuid.NewString,
		locks:  make(map[string]*sync.Mutex),
		recent: make(map[string][]string),
	}
}

// userLock serialises read-modify-write of one user's documents.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func toAppErr(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		return err
	}
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrMissingShipping), errors.Is(err, ErrInvalidPayment),
		errors.Is(err, ErrInvalidRating), errors.Is(err, ErrTooManyImages), errors.Is(err, ErrInvalidListing),
		errors.Is(err, ErrNeedImage), errors.Is(err, ErrNeedDetails),
		errors.Is(err, media.ErrNotImage), errors.Is(err, media.ErrNotDataURL), errors.Is(err, media.ErrTooLarge):
		code = http.StatusBadRequest
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrPurchaseNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrItemSold), errors.Is(err, ErrNoSavedCard), errors.Is(err, ErrDuplicateItem):
		code = http.StatusConflict
	default:
		return err
	}
	return apperr.Wrap(code, err.Error(), err)
}

func (s *Service) present(it Item) Item {
	it.CreatedAt = RelativeTime(it.ListedAt, s.now())
	if it.Images == nil {
		it.Images = []string{}
	}
	return it
}

func matches(it Item, q Query) bool {
	if q.Category != "" && q.Category != "All" && string(it.Category) != q.Category {
		return false
	}
	if q.Condition != "" && q.Condition != "All" && string(it.Condition) != q.Condition {
		return false
	}
	needle := strings.ToLower(q.Search)
	return strings.Contains(strings.ToLower(it.Title), needle) || strings.Contains(strings.ToLower(it.Description), needle)
}

// Browse filters and orders the catalog. Unknown sort keys mean newest first.
func (s *Service) Browse(ctx context.Context, q Query) ([]Item, error) {
	all, err := s.opts.Items.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(all))
	for _, it := range all {
		if matches(it, q) {
			out = append(out, s.present(it))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		switch q.Sort {
		case PriceAsc:
			return out[i].Price < out[j].Price
		case PriceDesc:
			return out[i].Price > out[j].Price
		default:
			return out[i].ListedAt.After(out[j].ListedAt)
		}
	})
	return out, nil
}

func (s *Service) item(ctx context.Context, id string) (*Item, error) {
	it, err := s.opts.Items.GetItem(ctx, id)
	if err != nil {
		return nil, toAppErr(err)
	}
	return it, nil
}

// View returns one item and puts it at the front of the viewer's recently
// viewed list.
func (s *Service) View(ctx context.Context, userID, itemID string) (Item, error) {
	it, err := s.item(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	s.mu.Lock()
	ids := []string{itemID}
	for _, id := range s.recent[userID] {
		if id != itemID && len(ids) < recentLimit {
			ids = append(ids, id)
		}
	}
	s.recent[userID] = ids
	s.mu.Unlock()
	return s.present(*it), nil
}

func (s *Service) RecentlyViewed(ctx context.Context, userID string) ([]Item, error) {
	s.mu.Lock()
	ids := append([]string(nil), s.recent[userID]...)
	s.mu.Unlock()
	return s.itemsByID(ctx, ids)
}

// itemsByID skips ids that no longer resolve.
func (s *Service) itemsByID(ctx context.Context, ids []string) ([]Item, error) {
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		it, err := s.opts.Items.GetItem(ctx, id)
		if errors.Is(err, ErrItemNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s.present(*it))
	}
	return out, nil
}

func (s *Service) favoriteIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if _, err := kv.Load(ctx, s.opts.Docs, kv.DocFavorites, userID, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Service) Favorites(ctx context.Context, userID string) ([]Item, error) {
	ids, err := s.favoriteIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.itemsByID(ctx, ids)
}

// ToggleLike flips the favorite flag and returns the updated item.
func (s *Service) ToggleLike(ctx context.Context, userID, itemID string) (Item, bool, error) {
	it, err := s.item(ctx, itemID)
	if err != nil {
		return Item{}, false, err
	}
	if it.IsSold {
		return Item{}, false, toAppErr(ErrItemSold)
	}

	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	ids, err := s.favoriteIDs(ctx, userID)
	if err != nil {
		return Item{}, false, err
	}
	liked := true
	delta := 1
	kept := ids[:0:0]
	for _, id := range ids {
		if id == itemID {
			liked, delta = false, -1
			continue
		}
		kept = append(kept, id)
	}
	if liked {
		kept = append(kept, itemID)
	}
	if err := kv.Save(ctx, s.opts.Docs, kv.DocFavorites, userID, kept); err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("Failed to save favorites")
		return Item{}, false, err
	}
	if it.Likes, err = s.opts.Items.AdjustLikes(ctx, itemID, delta); err != nil {
		return Item{}, false, toAppErr(err)
	}
	return s.present(*it), liked, nil
}

func (s *Service) cartItems(ctx context.Context, userID string) ([]Item, error) {
	var items []Item
	if _, err := kv.Load(ctx, s.opts.Docs, kv.DocCart, userID, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) saveCart(ctx context.Context, userID string, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	if err := kv.Save(ctx, s.opts.Docs, kv.DocCart, userID, items); err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("Failed to save cart items")
		return err
	}
	return nil
}

func cartOf(items []Item) Cart {
	c := Cart{Items: items}
	if c.Items == nil {
		c.Items = []Item{}
	}
	for _, it := range items {
		c.Total += it.Price
	}
	return c
}

func (s *Service) Cart(ctx context.Context, userID string) (Cart, error) {
	items, err := s.cartItems(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	return cartOf(items), nil
}

// AddToCart is idempotent per item id.
func (s *Service) AddToCart(ctx context.Context, userID, itemID string) (Cart, error) {
	it, err := s.item(ctx, itemID)
	if err != nil {
		return Cart{}, err
	}
	if it.IsSold {
		return Cart{}, toAppErr(ErrItemSold)
	}

	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	items, err := s.cartItems(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	for _, c := range items {
		if c.ID == itemID {
			return cartOf(items), nil
		}
	}
	items = append(items, s.present(*it))
	if err := s.saveCart(ctx, userID, items); err != nil {
		return Cart{}, err
	}
	return cartOf(items), nil
}

func (s *Service) RemoveFromCart(ctx context.Context, userID, itemID string) (Cart, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	items, err := s.cartItems(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	kept := items[:0]
	for _, c := range items {
		if c.ID != itemID {
			kept = append(kept, c)
		}
	}
	if err := s.saveCart(ctx, userID, kept); err != nil {
		return Cart{}, err
	}
	return cartOf(kept), nil
}

func (s *Service) SavedCard(ctx context.Context, userID string) (*SavedCard, error) {
	var c SavedCard
	found, err := kv.Load(ctx, s.opts.Docs, kv.DocSavedCard, userID, &c)
	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

// FirstTimeBuyer is true until the user has both a purchase and a saved card.
func (s *Service) FirstTimeBuyer(ctx context.Context, userID string) (bool, error) {
	ps, err := s.Purchases(ctx, userID)
	if err != nil {
		return false, err
	}
	card, err := s.SavedCard(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(ps) == 0 || card == nil, nil
}

func (req CheckoutRequest) validate() error {
	sh := req.Shipping
	if strings.TrimSpace(sh.Name) == "" || strings.TrimSpace(sh.Address) == "" ||
		strings.TrimSpace(sh.City) == "" || strings.TrimSpace(sh.Zip) == "" {
		return ErrMissingShipping
	}
	switch req.Method {
	case PayPal, PaySavedCard:
		return nil
	case PayCard:
		c := req.Card
		n := len(digits(c.Number))
		exp := FormatExpiry(c.Expiry)
		cvc := len(digits(c.CVC))
		if strings.TrimSpace(c.Name) == "" || n < 12 || n > 16 || len(exp) != 5 || cvc < 3 || cvc > 4 {
			return ErrInvalidPayment
		}
		return nil
	}
	return ErrInvalidPayment
}

// Checkout turns the cart into purchases, marks every item sold and empties
// the cart. Nothing is written when validation fails.
func (s *Service) Checkout(ctx context.Context, userID string, req CheckoutRequest) ([]Purchase, error) {
	if err := req.validate(); err != nil {
		return nil, toAppErr(err)
	}

	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	cart, err := s.cartItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cart) == 0 {
		return nil, toAppErr(ErrEmptyCart)
	}

	var (
		label string
		save  *SavedCard
	)
	switch req.Method {
	case PayPal:
		label = "PayPal"
	case PaySavedCard:
		card, err := s.SavedCard(ctx, userID)
		if err != nil {
			return nil, err
		}
		if card == nil {
			return nil, toAppErr(ErrNoSavedCard)
		}
		label = fmt.Sprintf("Saved %s ending in %s", card.Brand, card.Last4)
	default:
		num := digits(req.Card.Number)
		last4 := num[len(num)-4:]
		label = "Credit Card ending in " + last4
		if req.SaveCard {
			save = &SavedCard{Brand: "Card", Last4: last4}
		}
	}

	// The cart holds snapshots. Checking the catalog first gives a friendly
	// message; Sell below is what actually guards against a concurrent buyer.
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range cart {
		g.Go(func() error {
			it, err := s.item(gctx, c.ID)
			if err != nil {
				return err
			}
			if it.IsSold {
				return apperr.Wrap(http.StatusConflict, fmt.Sprintf("%q is already sold", it.Title), ErrItemSold)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	purchases := make([]Purchase, 0, len(cart))
	for _, c := range cart {
		p := Purchase{
			ID:            s.newID(),
			BuyerID:       userID,
			ItemID:        c.ID,
			SellerID:      c.SellerID,
			Title:         c.Title,
			Price:         c.Price,
			PurchaseDate:  now,
			PaymentMethod: label,
		}
		if len(c.Images) > 0 {
			p.Image = c.Images[0]
		}
		purchases = append(purchases, p)
	}
	if err := s.opts.Purchases.Sell(ctx, purchases); err != nil {
		return nil, toAppErr(err)
	}
	if err := s.saveCart(ctx, userID, nil); err != nil {
		return nil, err
	}
	if save != nil {
		if err := kv.Save(ctx, s.opts.Docs, kv.DocSavedCard, userID, *save); err != nil {
			logger.Error().Err(err).Str("user_id", userID).Msg("Failed to save card")
		}
	}

	metrics.Checkouts.Inc()
	logger.Info().Str("user_id", userID).Int("items", len(purchases)).Str("payment", label).Msg("checkout completed")
	return purchases, nil
}

func (s *Service) Purchases(ctx context.Context, userID string) ([]Purchase, error) {
	ps, err := s.opts.Purchases.Purchases(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ps == nil {
		ps = []Purchase{}
	}
	return ps, nil
}

// Review rates the seller of one of the user's purchases.
func (s *Service) Review(ctx context.Context, userID string, in ReviewInput) (Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return Review{}, toAppErr(ErrInvalidRating)
	}
	ps, err := s.Purchases(ctx, userID)
	if err != nil {
		return Review{}, err
	}
	var target *Purchase
	for i := range ps {
		if ps[i].ID == in.PurchaseID {
			target = &ps[i]
			break
		}
	}
	if target == nil {
		return Review{}, toAppErr(ErrPurchaseNotFound)
	}
	rv := Review{
		ID:        s.newID(),
		SellerID:  target.SellerID,
		AuthorID:  userID,
		ItemID:    target.ItemID,
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: s.now(),
	}
	if err := s.opts.Reviews.AddReview(ctx, rv); err != nil {
		return Review{}, err
	}
	return rv, nil
}

// Seller summarises a seller's reviews. A seller is trusted when premium or
// when at least three reviews average 4.5 or better.
func (s *Service) Seller(ctx context.Context, sellerID string) (SellerSummary, error) {
	reviews, err := s.opts.Reviews.Reviews(ctx, sellerID)
	if err != nil {
		return SellerSummary{}, err
	}
	sum := SellerSummary{SellerID: sellerID, Reviews: reviews}
	if sum.Reviews == nil {
		sum.Reviews = []Review{}
	}
	if len(reviews) > 0 {
		total := 0
		for _, r := range reviews {
			total += r.Rating
		}
		sum.Average = float64(total) / float64(len(reviews))
	}

	premium := false
	if s.opts.Directory != nil {
		p, err := s.opts.Directory.Get(ctx, sellerID)
		switch {
		case err == nil:
			sum.Name = p.Name
			premium = p.IsPremium
		case !errors.Is(err, user.ErrNotFound):
			return SellerSummary{}, err
		}
	}
	sum.Trusted = premium || (len(reviews) >= 3 && sum.Average >= 4.5)
	return sum, nil
}

// AttachImages adds uploaded images to the user's draft. Files that are not
// images are skipped and counted.
func (s *Service) AttachImages(ctx context.Context, userID string, images []string) (draft.Draft, int, error) {
	a, err := s.opts.Drafts.For(ctx, userID)
	if err != nil {
		return draft.Draft{}, 0, err
	}
	d := a.Current()
	if len(d.Images)+len(images) > MaxListingImages {
		return d, 0, toAppErr(ErrTooManyImages)
	}
	skipped := 0
	for _, img := range images {
		if _, err := media.ValidateImageUpload(img); err != nil {
			skipped++
			continue
		}
		d.Images = append(d.Images, img)
	}
	a.Update(d)
	return d, skipped, nil
}

// GenerateVideo asks the AI service for a showcase clip of the draft and
// stores the result on it.
func (s *Service) GenerateVideo(ctx context.Context, userID string) (draft.Draft, error) {
	a, err := s.opts.Drafts.For(ctx, userID)
	if err != nil {
		return draft.Draft{}, err
	}
	d := a.Current()
	if len(d.Images) == 0 {
		return d, toAppErr(ErrNeedImage)
	}
	if d.Title == "" || d.Description == "" {
		return d, toAppErr(ErrNeedDetails)
	}
	uri, err := s.opts.AI.GenerateShowcaseVideo(ctx, d.Images[0], d.Title, d.Description)
	if err != nil {
		return d, apperr.Unavailable("Could not generate video. Please try again or select a valid API key.", err)
	}
	// the form may have changed while the video was rendering
	d = a.Current()
	d.Video = uri
	a.Update(d)
	return d, nil
}

func (s *Service) uploadListingImage(ctx context.Context, userID, itemID string, n int, img string) (string, error) {
	if !strings.HasPrefix(img, "data:") {
		return img, nil
	}
	d, err := media.ValidateImageUpload(img)
	if err != nil {
		return "", err
	}
	if s.opts.Media == nil {
		return img, nil
	}
	ext := d.MIMEType[strings.LastIndex(d.MIMEType, "/")+1:]
	url, err := s.opts.Media.Put(ctx, fmt.Sprintf("listings/%s/%s-%d.%s", userID, itemID, n, ext), d.MIMEType, d.Data)
	if err != nil {
		return "", apperr.Unavailable("Could not upload file. Please try again.", err)
	}
	return url, nil
}

// CreateListing publishes a draft as a new catalog item.
func (s *Service) CreateListing(ctx context.Context, userID string, d draft.Draft) (Item, error) {
	title := strings.TrimSpace(d.Title)
	price, err := strconv.ParseFloat(strings.TrimSpace(d.Price), 64)
	if title == "" || err != nil || price < 0 {
		return Item{}, toAppErr(ErrInvalidListing)
	}
	if len(d.Images) > MaxListingImages {
		return Item{}, toAppErr(ErrTooManyImages)
	}
	cat := Category(d.Category)
	if !cat.Valid() {
		cat = Handmade
	}
	cond := Condition(d.Condition)
	if !cond.Valid() {
		cond = CondNew
	}

	now := s.now()
	it := Item{
		ID:          fmt.Sprintf("new_%d_%s", now.UnixMilli(), s.newID()),
		SellerID:    userID,
		Title:       title,
		Description: d.Description,
		Price:       price,
		VideoURL:    d.Video,
		Category:    cat,
		Condition:   cond,
		ListedAt:    now,
	}
	for i, img := range d.Images {
		url, err := s.uploadListingImage(ctx, userID, it.ID, i, img)
		if err != nil {
			return Item{}, toAppErr(err)
		}
		it.Images = append(it.Images, url)
	}
	if len(it.Images) == 0 {
		it.Images = []string{fmt.Sprintf("https://picsum.photos/400/400?random=%d", now.UnixMilli())}
	}
	if err := s.opts.Items.CreateItem(ctx, it); err != nil {
		return Item{}, toAppErr(err)
	}
	logger.Info().Str("user_id", userID).Str("item_id", it.ID).Msg("item listed")
	return s.present(it), nil
}

// PublishDraft lists the user's current draft and clears it.
func (s *Service) PublishDraft(ctx context.Context, userID string) (Item, error) {
	a, err := s.opts.Drafts.For(ctx, userID)
	if err != nil {
		return Item{}, err
	}
	it, err := s.CreateListing(ctx, userID, a.Current())
	if err != nil {
		return Item{}, err
	}
	if err := a.Clear(ctx); err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("draft clear failed")
	}
	return it, nil
}

func (s *Service) Report(ctx context.Context, userID, itemID string) (string, error) {
	if _, err := s.item(ctx, itemID); err != nil {
		return "", err
	}
	logger.Warn().Str("user_id", userID).Str("item_id", itemID).Msg("item reported")
	return ReportAck, nil
}
