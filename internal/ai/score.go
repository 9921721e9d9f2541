package ai

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"bridgeme/internal/user"
)

var skillKeywords = map[user.Skill][]string{
	user.SkillTech:       {"tech", "phone", "computer", "laptop", "ipad", "tablet", "zoom", "internet", "smartphone", "email", "wifi"},
	user.SkillLanguage:   {"language", "english", "japanese", "spanish", "french", "italian", "chinese", "speak", "phrases", "conversation"},
	user.SkillCooking:    {"cook", "recipe", "food", "soup", "pasta", "bake", "kitchen", "soba", "lasagna", "miso"},
	user.SkillCulture:    {"culture", "cultural", "tradition", "festival", "history", "customs"},
	user.SkillReligion:   {"religion", "faith", "spiritual", "church", "temple", "prayer"},
	user.SkillCareer:     {"career", "job", "resume", "interview", "college", "work"},
	user.SkillLife:       {"budget", "garden", "sew", "repair", "driving"},
	user.SkillCounseling: {"counsel", "advice", "listen", "overwhelmed", "stress", "lonely"},
}

// NeededSkills extracts skill categories mentioned in a free-text need.
func NeededSkills(need string) []user.Skill {
	text := strings.ToLower(need)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []user.Skill
	for _, sk := range user.Skills {
		if strings.Contains(text, strings.ToLower(string(sk))) || mentions(words, skillKeywords[sk]) {
			out = append(out, sk)
		}
	}
	return out
}

func mentions(words, keywords []string) bool {
	for _, kw := range keywords {
		for _, w := range words {
			if strings.HasPrefix(w, kw) {
				return true
			}
		}
	}
	return false
}

// Score ranks a candidate for a seeker. Offering a needed skill dominates;
// a wider generation gap and a two-way exchange add to it.
func Score(seeker *user.Profile, needs []user.Skill, c user.Profile) int {
	score := 0
	for _, n := range needs {
		for _, o := range c.Offers {
			if o == n {
				score += 10
			}
		}
	}
	if seeker != nil {
		if seeker.Role.Valid() && c.Role.Valid() {
			gap := seeker.Role.Rank() - c.Role.Rank()
			if gap < 0 {
				gap = -gap
			}
			score += gap * 2
		}
		if c.ID != seeker.ID && seeker.OffersAny(c.Needs) {
			score += 3
		}
	}
	return score
}

// BestCandidate returns the highest scoring candidate other than the seeker.
func BestCandidate(req MatchRequest) (user.Profile, bool) {
	needs := NeededSkills(req.Need)
	type scored struct {
		p     user.Profile
		score int
	}
	var all []scored
	for _, c := range req.Candidates {
		if req.Seeker != nil && c.ID == req.Seeker.ID {
			continue
		}
		all = append(all, scored{c, Score(req.Seeker, needs, c)})
	}
	if len(all) == 0 {
		return user.Profile{}, false
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	return all[0].p, true
}

func localReason(p user.Profile, needs []user.Skill) string {
	var offered []string
	for _, n := range needs {
		for _, o := range p.Offers {
			if o == n {
				offered = append(offered, string(o))
			}
		}
	}
	if len(offered) == 0 {
		return fmt.Sprintf("%s (%s) is an active member who enjoys sharing with other generations.", p.Name, p.Role)
	}
	return fmt.Sprintf("%s (%s) offers %s, which is exactly what you are looking for.", p.Name, p.Role, strings.Join(offered, " and "))
}
