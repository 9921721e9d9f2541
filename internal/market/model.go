package market

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type Category string

const (
	Handmade Category = "Handmade"
	Vintage  Category = "Vintage"
	Tech     Category = "Tech"
	Art      Category = "Art"
	Home     Category = "Home"
	Other    Category = "Other"
)

var Categories = []Category{Handmade, Vintage, Tech, Art, Home, Other}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

type Condition string

const (
	CondNew     Condition = "New"
	CondLikeNew Condition = "Used - Like New"
	CondGood    Condition = "Used - Good"
	CondFair    Condition = "Used - Fair"
)

var Conditions = []Condition{CondNew, CondLikeNew, CondGood, CondFair}

func (c Condition) Valid() bool {
	for _, v := range Conditions {
		if v == c {
			return true
		}
	}
	return false
}

type Item struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"sellerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Images      []string  `json:"images"`
	VideoURL    string    `json:"videoUrl,omitempty"`
	Category    Category  `json:"category"`
	Condition   Condition `json:"condition"`
	Likes       int       `json:"likes"`
	IsSold      bool      `json:"isSold"`
	ListedAt    time.Time `json:"listedAt"`
	// CreatedAt is the human form of ListedAt, filled on the way out.
	CreatedAt string `json:"createdAt"`
}

type Purchase struct {
	ID            string    `json:"id"`
	BuyerID       string    `json:"-"`
	ItemID        string    `json:"itemId"`
	SellerID      string    `json:"sellerId"`
	Title         string    `json:"title"`
	Price         float64   `json:"price"`
	Image         string    `json:"image"`
	PurchaseDate  time.Time `json:"purchaseDate"`
	PaymentMethod string    `json:"paymentMethod"`
}

type Review struct {
	ID        string    `json:"id"`
	SellerID  string    `json:"sellerId"`
	AuthorID  string    `json:"authorId"`
	ItemID    string    `json:"itemId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// SavedCard is all that is kept of a card: never the number.
type SavedCard struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

type Cart struct {
	Items []Item  `json:"items"`
	Total float64 `json:"total"`
}

type Sort string

const (
	Newest    Sort = "newest"
	PriceAsc  Sort = "price_asc"
	PriceDesc Sort = "price_desc"
)

// Query filters the catalog. Empty or "All" means no filter.
type Query struct {
	Category  string
	Condition string
	Search    string
	Sort      Sort
}

type Shipping struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
}

type PaymentMethod string

const (
	PayCard      PaymentMethod = "card"
	PayPal       PaymentMethod = "paypal"
	PaySavedCard PaymentMethod = "saved"
)

type CardInput struct {
	Name   string `json:"name"`
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVC    string `json:"cvc"`
}

type CheckoutRequest struct {
	Shipping Shipping      `json:"shipping"`
	Method   PaymentMethod `json:"method"`
	Card     CardInput     `json:"card"`
	SaveCard bool          `json:"saveCard"`
}

type ReviewInput struct {
	PurchaseID string `json:"purchaseId"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
}

type SellerSummary struct {
	SellerID string   `json:"sellerId"`
	Name     string   `json:"name"`
	Reviews  []Review `json:"reviews"`
	Average  float64  `json:"average"`
	Trusted  bool     `json:"trusted"`
}

var nonDigit = regexp.MustCompile(`\D`)

// FormatCardNumber keeps the first 16 digits, grouped by four.
func FormatCardNumber(s string) string {
	d := nonDigit.ReplaceAllString(s, "")
	if len(d) > 16 {
		d = d[:16]
	}
	var b strings.Builder
	for i, r := range d {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatExpiry turns up to four digits into MM/YY.
func FormatExpiry(s string) string {
	d := nonDigit.ReplaceAllString(s, "")
	if len(d) > 4 {
		d = d[:4]
	}
	if len(d) >= 3 {
		return d[:2] + "/" + d[2:]
	}
	return d
}

func digits(s string) string { return nonDigit.ReplaceAllString(s, "") }

var firstNumber = regexp.MustCompile(`\d+`)

// ParseRelativeTime turns "2 hours ago" style strings into a point in time.
// Unknown shapes are treated as old.
func ParseRelativeTime(s string, now time.Time) time.Time {
	str := strings.ToLower(strings.TrimSpace(s))
	if str == "just now" || str == "now" {
		return now
	}
	n := 0
	if m := firstNumber.FindString(str); m != "" {
		n, _ = strconv.Atoi(m)
	} else if strings.HasPrefix(str, "a ") || strings.HasPrefix(str, "an ") {
		n = 1
	}
	d := time.Duration(n)
	switch {
	case strings.Contains(str, "minute"):
		return now.Add(-d * time.Minute)
	case strings.Contains(str, "hour"):
		return now.Add(-d * time.Hour)
	case strings.Contains(str, "day"):
		return now.Add(-d * 24 * time.Hour)
	case strings.Contains(str, "week"):
		return now.Add(-d * 7 * 24 * time.Hour)
	case strings.Contains(str, "month"):
		return now.Add(-d * 30 * 24 * time.Hour)
	case strings.Contains(str, "year"):
		return now.Add(-d * 365 * 24 * time.Hour)
	}
	return now.Add(-1_000_000 * time.Second)
}

// RelativeTime is the inverse of ParseRelativeTime for display.
func RelativeTime(t, now time.Time) string {
	if now.Sub(t) < time.Minute {
		return "Just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
