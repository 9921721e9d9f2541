package user

import "strings"

// Generation is the role tag shown next to a member's name.
type Generation string

const (
	GenZ       Generation = "Gen Z"
	Millennial Generation = "Millennial"
	GenX       Generation = "Gen X"
	Boomer     Generation = "Boomer"
	Silent     Generation = "Silent Gen"
)

var Generations = []Generation{GenZ, Millennial, GenX, Boomer, Silent}

// Rank orders generations from youngest (0) to oldest. Unknown is -1.
func (g Generation) Rank() int {
	for i, v := range Generations {
		if v == g {
			return i
		}
	}
	return -1
}

func (g Generation) Valid() bool { return g.Rank() >= 0 }

type Skill string

const (
	SkillTech       Skill = "Tech Support"
	SkillLanguage   Skill = "Language"
	SkillCooking    Skill = "Cooking"
	SkillCulture    Skill = "Cultural Advice"
	SkillReligion   Skill = "Religion"
	SkillCareer     Skill = "Career Advice"
	SkillLife       Skill = "Life Skills"
	SkillCounseling Skill = "General Counseling"
)

var Skills = []Skill{SkillTech, SkillLanguage, SkillCooking, SkillCulture, SkillReligion, SkillCareer, SkillLife, SkillCounseling}

// ParseSkill matches a category name case-insensitively.
func ParseSkill(s string) (Skill, bool) {
	for _, sk := range Skills {
		if strings.EqualFold(string(sk), strings.TrimSpace(s)) {
			return sk, true
		}
	}
	return "", false
}

// Profile is a community member. Profiles of other members are read-only;
// the local member edits theirs through Service.SaveProfile.
type Profile struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email,omitempty"`
	Age       int        `json:"age,omitempty"`
	Role      Generation `json:"role"`
	Location  string     `json:"location"`
	Avatar    string     `json:"avatar"`
	Offers    []Skill    `json:"offers"`
	Needs     []Skill    `json:"needs"`
	Bio       string     `json:"bio"`
	IsPremium bool       `json:"isPremium,omitempty"`
}

func (p Profile) OffersAny(skills []Skill) bool {
	for _, o := range p.Offers {
		for _, s := range skills {
			if o == s {
				return true
			}
		}
	}
	return false
}

// Account holds login credentials. Password is the bcrypt hash.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          string `json:"id"`
	Username    string `json:"username"`
}

// ProfileInput is the editable part of the local profile form.
type ProfileInput struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     Generation `json:"role"`
	Location string     `json:"location"`
	Bio      string     `json:"bio"`
	Avatar   string     `json:"avatar"`
	Offers   []Skill    `json:"offers"`
	Needs    []Skill    `json:"needs"`
}
