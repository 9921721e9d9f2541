// Package seed holds the demo community: members, their requests, catalog
// items, purchase history, reviews and call logs.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bridgeme/internal/call"
	"bridgeme/internal/chat"
	"bridgeme/internal/exchange"
	"bridgeme/internal/logger"
	"bridgeme/internal/market"
	"bridgeme/internal/user"
)

const day = 24 * time.Hour

func Users() []user.Profile {
	return []user.Profile{
		{
			ID: "u1", Name: "Kenji Tanaka", Age: 72, Role: user.Boomer, Location: "Kyoto, Japan",
			Avatar:    "https://picsum.photos/200/200?random=1",
			Offers:    []user.Skill{user.SkillLanguage, user.SkillCulture, user.SkillCooking},
			Needs:     []user.Skill{user.SkillTech},
			Bio:       "Retired history teacher. I love sharing stories about old Kyoto and making Soba. Need help with my new smartphone.",
			IsPremium: true,
		},
		{
			ID: "u2", Name: "Sarah Jenkins", Age: 22, Role: user.GenZ, Location: "Austin, USA",
			Avatar: "https://picsum.photos/200/200?random=2",
			Offers: []user.Skill{user.SkillTech, user.SkillCareer},
			Needs:  []user.Skill{user.SkillCooking, user.SkillLanguage},
			Bio:    "CS Student. I can fix any computer issue! Looking to learn authentic Japanese cooking.",
		},
		{
			ID: "u3", Name: "Maria Rossi", Age: 65, Role: user.Boomer, Location: "Rome, Italy",
			Avatar: "https://picsum.photos/200/200?random=3",
			Offers: []user.Skill{user.SkillCooking, user.SkillReligion, user.SkillCounseling},
			Needs:  []user.Skill{user.SkillTech, user.SkillLanguage},
			Bio:    "Grandmother of 4. I make the best Lasagna. Want to learn English to speak with my grandkids in London.",
		},
		{
			ID: "u4", Name: "David Chen", Age: 19, Role: user.GenZ, Location: "Toronto, Canada",
			Avatar:    "https://picsum.photos/200/200?random=4",
			Offers:    []user.Skill{user.SkillTech, user.SkillLanguage},
			Needs:     []user.Skill{user.SkillCulture, user.SkillLife},
			Bio:       "Aspiring travel vlogger. Tech savvy. Want to learn about traditional Chinese festivals.",
			IsPremium: true,
		},
	}
}

func Requests(now time.Time) []exchange.RequestPost {
	return []exchange.RequestPost{
		{
			ID: "r1", UserID: "u1", Category: user.SkillTech,
			Title:         "Help setting up Zoom on iPad",
			Description:   "I want to call my daughter but I cannot figure out the account settings.",
			ExchangeOffer: "I can teach you basic Japanese phrases.",
			PostedAt:      market.ParseRelativeTime("2 hours ago", now),
		},
		{
			ID: "r2", UserID: "u3", Category: user.SkillLanguage,
			Title:         "Conversational English Practice",
			Description:   "Looking for someone patient to practice basic English conversation.",
			ExchangeOffer: "I will share my family secret pasta sauce recipe.",
			PostedAt:      market.ParseRelativeTime("5 hours ago", now),
		},
		{
			ID: "r3", UserID: "u2", Category: user.SkillCooking,
			Title:         "Authentic Miso Soup",
			Description:   "Grocery store packets are boring. Teach me the real deal!",
			ExchangeOffer: "I can optimize your PC or help with social media.",
			PostedAt:      market.ParseRelativeTime("1 day ago", now),
		},
		{
			ID: "r4", UserID: "u4", Category: user.SkillCounseling,
			Title:         "Need a listening ear",
			Description:   "Feeling overwhelmed with college applications. Looking for general life advice and counseling from someone experienced.",
			ExchangeOffer: "I can teach you how to use TikTok or Instagram.",
			PostedAt:      market.ParseRelativeTime("30 minutes ago", now),
		},
	}
}

func unsplash(id string) string {
	return fmt.Sprintf("https://images.unsplash.com/photo-%s?auto=format&fit=crop&q=80&w=400", id)
}

func Items(now time.Time) []market.Item {
	return []market.Item{
		{
			ID: "i1", SellerID: "u1", Title: "Hand-Carved Kokeshi Doll",
			Description: "Authentic vintage wooden doll from the 1980s. Signed by the artisan in Naruko. A beautiful piece of traditional Japanese folk art.",
			Price:       45,
			Images:      []string{unsplash("1543166548-c89b7b719463"), unsplash("1616789069699-2a93910c64d4")},
			Category:    market.Vintage, Condition: market.CondGood, Likes: 12,
			ListedAt: market.ParseRelativeTime("2 days ago", now),
		},
		{
			ID: "i2", SellerID: "u3", Title: "Nonna's Hand-Knit Wool Scarf",
			Description: "Made with premium merino wool. Warm, soft, and durable. Perfect for winter. Color: Burgundy.",
			Price:       35,
			Images:      []string{unsplash("1520903920243-00d872a2d1c9"), unsplash("1606296763486-42d87e029c78")},
			Category:    market.Handmade, Condition: market.CondNew, Likes: 28,
			ListedAt: market.ParseRelativeTime("1 day ago", now),
		},
		{
			ID: "i3", SellerID: "u4", Title: "Wireless Noise Cancelling Headphones",
			Description: "Barely used. Great sound quality. I upgraded to a newer model so I don't need these anymore.",
			Price:       80,
			Images:      []string{unsplash("1505740420928-5e560c06d30e")},
			Category:    market.Tech, Condition: market.CondLikeNew, Likes: 5, IsSold: true,
			ListedAt: market.ParseRelativeTime("5 hours ago", now),
		},
		{
			ID: "i4", SellerID: "u1", Title: "Ceramic Tea Set (Matcha Bowl)",
			Description: "Hand-thrown pottery bowl for tea ceremonies. Glazed with a traditional shino glaze.",
			Price:       55,
			Images:      []string{unsplash("1536638421372-c6c748281358"), unsplash("1628264567215-442875b22986"), unsplash("1616365922378-d56b063e0018")},
			Category:    market.Home, Condition: market.CondNew, Likes: 19,
			ListedAt: market.ParseRelativeTime("3 days ago", now),
		},
		{
			ID: "i5", SellerID: "u2", Title: "Custom Digital Pet Portrait",
			Description: "I will draw your cat or dog in a cute cartoon style! Digital delivery within 48 hours.",
			Price:       25,
			Images:      []string{unsplash("1581833971358-2c8b550f87b3")},
			Category:    market.Art, Condition: market.CondNew, Likes: 42,
			ListedAt: market.ParseRelativeTime("1 week ago", now),
		},
		{
			ID: "i6", SellerID: "u3", Title: "Vintage 35mm Film Camera",
			Description: "Classic SLR camera. Fully mechanical. Includes 50mm lens. Great condition for its age.",
			Price:       150,
			Images:      []string{unsplash("1526170375885-4d8ecf77b99f"), unsplash("1495707902641-75cac588d2e9")},
			Category:    market.Vintage, Condition: market.CondFair, Likes: 67,
			ListedAt: market.ParseRelativeTime("12 hours ago", now),
		},
	}
}

// Purchases have no buyer: they are demo history every member sees.
func Purchases(now time.Time) []market.Purchase {
	return []market.Purchase{
		{
			ID: "p1", ItemID: "i99", SellerID: "u3", Title: "Handmade Pasta Maker", Price: 40,
			Image:         unsplash("1556910103-1c02745a30bf"),
			PurchaseDate:  now.Add(-5 * day),
			PaymentMethod: "Credit Card ending in 4242",
		},
		{
			ID: "p2", ItemID: "i98", SellerID: "u4", Title: "Vintage Vinyl Records (Jazz)", Price: 65,
			Image:         unsplash("1603048588665-791ca8aea617"),
			PurchaseDate:  now.Add(-20 * day),
			PaymentMethod: "PayPal",
		},
	}
}

func Reviews(now time.Time) []market.Review {
	return []market.Review{
		{
			ID: "rev1", SellerID: "u3", AuthorID: "u2", ItemID: "i99", Rating: 5,
			Comment:   "The pasta maker works perfectly! Maria even sent a recipe card along with it. Amazing seller.",
			CreatedAt: now.Add(-4 * day),
		},
		{
			ID: "rev2", SellerID: "u1", AuthorID: "u4", ItemID: "i1", Rating: 5,
			Comment:   "Beautiful craftsmanship. It looks exactly like the photos.",
			CreatedAt: now.Add(-10 * day),
		},
		{
			ID: "rev3", SellerID: "u3", AuthorID: "u1", ItemID: "i2", Rating: 4,
			Comment:   "Very warm scarf, but the color was slightly darker than I expected. Still love it though!",
			CreatedAt: now.Add(-30 * day),
		},
	}
}

func CallLogs(now time.Time) []chat.CallLog {
	return []chat.CallLog{
		{ID: "c1", ParticipantID: "u1", Timestamp: now.Add(-2 * day), Duration: "15:30", Medium: call.Video, Outcome: call.Completed, Direction: call.Outgoing},
		{ID: "c2", ParticipantID: "u1", Timestamp: now.Add(-5 * day), Duration: "00:00", Medium: call.Video, Outcome: call.Missed, Direction: call.Incoming},
		{ID: "c3", ParticipantID: "u2", Timestamp: now.Add(-time.Hour), Duration: "45:12", Medium: call.Video, Outcome: call.Completed, Direction: call.Incoming},
	}
}

// Targets are the writers Load fills. Any of them may be nil.
type Targets struct {
	Profiles interface {
		UpsertProfile(ctx context.Context, p user.Profile) error
	}
	Items     market.ItemRepository
	Purchases market.PurchaseRepository
	Reviews   market.ReviewRepository
	Requests  exchange.Repository
	Calls     chat.Repository
}

// Load writes the demo community into persistent repositories. Every write
// is keyed by id, so running it again is harmless.
func Load(ctx context.Context, t Targets, now time.Time) error {
	if t.Profiles != nil {
		for _, p := range Users() {
			if err := t.Profiles.UpsertProfile(ctx, p); err != nil {
				return fmt.Errorf("seed profile %s: %w", p.ID, err)
			}
		}
	}
	if t.Items != nil {
		for _, it := range Items(now) {
			if err := t.Items.CreateItem(ctx, it); err != nil && !errors.Is(err, market.ErrDuplicateItem) {
				return fmt.Errorf("seed item %s: %w", it.ID, err)
			}
		}
	}
	if t.Purchases != nil {
		if err := t.Purchases.AddPurchases(ctx, Purchases(now)); err != nil {
			return fmt.Errorf("seed purchases: %w", err)
		}
	}
	if t.Reviews != nil {
		for _, r := range Reviews(now) {
			if err := t.Reviews.AddReview(ctx, r); err != nil {
				return fmt.Errorf("seed review %s: %w", r.ID, err)
			}
		}
	}
	if t.Requests != nil {
		for _, r := range Requests(now) {
			if err := t.Requests.Create(ctx, r); err != nil {
				return fmt.Errorf("seed request %s: %w", r.ID, err)
			}
		}
	}
	if t.Calls != nil {
		for _, l := range CallLogs(now) {
			if err := t.Calls.SaveCallLog(ctx, "", l); err != nil {
				return fmt.Errorf("seed call log %s: %w", l.ID, err)
			}
		}
	}
	logger.Info().Msg("✅ Demo community seeded")
	return nil
}
