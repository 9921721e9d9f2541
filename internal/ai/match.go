package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bridgeme/internal/user"

	"google.golang.org/genai"
)

type candidateView struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Role   user.Generation `json:"role"`
	Offers []user.Skill    `json:"offers"`
	Needs  []user.Skill    `json:"needs"`
	Bio    string          `json:"bio"`
}

func matchPrompt(req MatchRequest) (string, error) {
	views := make([]candidateView, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		views = append(views, candidateView{ID: c.ID, Name: c.Name, Role: c.Role, Offers: c.Offers, Needs: c.Needs, Bio: c.Bio})
	}
	db, err := json.Marshal(views)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Act as an advanced matchmaking algorithm for 'BridgeMe', an intergenerational skill-sharing app.\n\n")
	fmt.Fprintf(&b, "My Profile (The User):\n- Bio: %q\n- Needs Help With: %q\n", req.Bio, req.Need)
	if req.Seeker != nil && req.Seeker.Role.Valid() {
		fmt.Fprintf(&b, "- Generation: %s\n", req.Seeker.Role)
	}
	fmt.Fprintf(&b, "\nCandidate Database (Existing Users):\n%s\n\n", db)
	b.WriteString(`GOAL: Find the PERFECT connection.

CRITERIA:
1. SKILL MATCH: The match MUST offer what I need.
2. GENERATION GAP: Ideally connect different generations (e.g. Gen Z <-> Boomer) for cultural exchange.
3. PERSONALITY: Bio should suggest compatibility.

INSTRUCTIONS:
- First, check the Candidate Database. If a user fits the criteria well (>80% match), return their profile JSON exactly as is (maintaining their ID).
- If NO existing candidate is a good match, GENERATE a new fictional user profile that perfectly satisfies the criteria.
- Provide a 'reason' string explaining clearly WHY this person is a good match.

Return ONLY the JSON object with keys 'match' (UserProfile) and 'reason' (string).
Use standard enum values for roles (Gen Z, Millennial, Gen X, Boomer, Silent Gen) and skills.`)
	return b.String(), nil
}

func matchSchema() *genai.Schema {
	roles := make([]string, 0, len(user.Generations))
	for _, g := range user.Generations {
		roles = append(roles, string(g))
	}
	skills := make([]string, 0, len(user.Skills))
	for _, s := range user.Skills {
		skills = append(skills, string(s))
	}
	skillList := &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString, Enum: skills}}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"match": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"id":        {Type: genai.TypeString},
					"name":      {Type: genai.TypeString},
					"age":       {Type: genai.TypeInteger},
					"role":      {Type: genai.TypeString, Enum: roles},
					"location":  {Type: genai.TypeString},
					"avatar":    {Type: genai.TypeString},
					"offers":    skillList,
					"needs":     skillList,
					"bio":       {Type: genai.TypeString},
					"isPremium": {Type: genai.TypeBoolean},
				},
			},
			"reason": {Type: genai.TypeString},
		},
		Required: []string{"match", "reason"},
	}
}

type matchResponse struct {
	Match  user.Profile `json:"match"`
	Reason string       `json:"reason"`
}

func (g *Gemini) SmartMatch(ctx context.Context, req MatchRequest) (m *Match, err error) {
	defer func() { observe("smart_match", err) }()

	prompt, err := matchPrompt(req)
	if err != nil {
		return nil, err
	}
	resp, err := g.models.GenerateContent(ctx, g.cfg.TextModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   matchSchema(),
	})
	if err != nil {
		return nil, err
	}
	text := resp.Text()
	if text == "" {
		return nil, ErrEmptyResult
	}
	var out matchResponse
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("decode match: %w", err)
	}
	return reconcile(req, out), nil
}

// reconcile maps the model's answer back onto the directory. A pick that
// names a stored member is replaced by the stored profile; a synthesized one
// is normalized. An existing pick that offers none of the needed skills
// loses to the best local candidate when that one does.
func reconcile(req MatchRequest, out matchResponse) *Match {
	needs := NeededSkills(req.Need)
	for _, c := range req.Candidates {
		if c.ID != out.Match.ID || c.ID == "" {
			continue
		}
		if len(needs) > 0 && !c.OffersAny(needs) {
			if best, ok := BestCandidate(req); ok && best.OffersAny(needs) {
				return &Match{Profile: best, Reason: localReason(best, needs), Existing: true}
			}
		}
		return &Match{Profile: c, Reason: out.Reason, Existing: true}
	}

	p := out.Match
	p.ID = "ai_" + strings.TrimPrefix(p.ID, "ai_")
	if p.ID == "ai_" {
		p.ID = fmt.Sprintf("ai_%d", len(req.Candidates)+1)
	}
	if len(p.Avatar) < 10 || user.IsPlaceholderAvatar(p.Avatar) {
		p.Avatar = user.PlaceholderAvatar()
	}
	if !p.Role.Valid() {
		p.Role = user.Boomer
	}
	var offers []user.Skill
	for _, s := range p.Offers {
		if sk, ok := user.ParseSkill(string(s)); ok {
			offers = append(offers, sk)
		}
	}
	p.Offers = offers
	reason := out.Reason
	if reason == "" {
		reason = localReason(p, needs)
	}
	return &Match{Profile: p, Reason: reason}
}
