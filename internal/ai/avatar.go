package ai

import (
	"errors"
	"fmt"
	"strings"
)

// AvatarOptions are the avatar studio selections. Only Description is
// required; every other field is optional and must come from its list.
type AvatarOptions struct {
	Description string `json:"prompt"`
	Style       string `json:"style,omitempty"`
	Mood        string `json:"mood,omitempty"`
	Palette     string `json:"palette,omitempty"`
	Hair        string `json:"hairStyle,omitempty"`
	Clothing    string `json:"clothing,omitempty"`
	Accessory   string `json:"accessory,omitempty"`
	Refinement  string `json:"refinement,omitempty"`
}

var (
	AvatarStyles      = []string{"Cartoon", "Realistic", "3D Render", "Pixel Art", "Watercolor", "Anime", "Cyberpunk", "Oil Painting", "Sketch", "Retro", "Pop Art", "Minimalist"}
	AvatarMoods       = []string{"Cheerful", "Serious", "Mysterious", "Energetic", "Calm", "Whimsical", "Dark", "Peaceful", "Dramatic", "Playful"}
	AvatarPalettes    = []string{"Vibrant", "Pastel", "Dark", "Monochrome", "Warm", "Cool", "Neon", "Earth Tones", "High Contrast", "Muted"}
	AvatarHairStyles  = []string{"Short", "Long", "Curly", "Bald", "Mohawk", "Bob", "Spiky", "Wavy", "Ponytail", "Braids"}
	AvatarClothing    = []string{"Casual", "Formal", "Futuristic", "Vintage", "Streetwear", "Business", "Fantasy Armor", "Hoodie", "T-Shirt", "Suit"}
	AvatarAccessories = []string{"Glasses", "Sunglasses", "Hat", "Headphones", "Jewelry", "Scarf", "Mask", "Piercings", "Bandana", "None"}
)

var ErrEmptyAvatarPrompt = errors.New("describe your avatar first")

func checkOption(field, v string, allowed []string) error {
	if v == "" {
		return nil
	}
	for _, a := range allowed {
		if a == v {
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q", field, v)
}

// Prompt composes the final image prompt in the order the studio shows the
// options.
func (o AvatarOptions) Prompt() (string, error) {
	desc := strings.TrimSpace(o.Description)
	if desc == "" {
		return "", ErrEmptyAvatarPrompt
	}
	for _, c := range []struct {
		field, value string
		allowed      []string
	}{
		{"style", o.Style, AvatarStyles},
		{"mood", o.Mood, AvatarMoods},
		{"palette", o.Palette, AvatarPalettes},
		{"hair style", o.Hair, AvatarHairStyles},
		{"clothing", o.Clothing, AvatarClothing},
		{"accessory", o.Accessory, AvatarAccessories},
	} {
		if err := checkOption(c.field, c.value, c.allowed); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	b.WriteString(desc)
	if o.Style != "" {
		fmt.Fprintf(&b, ", %s style", o.Style)
	}
	if o.Mood != "" {
		fmt.Fprintf(&b, ", %s mood", o.Mood)
	}
	if o.Palette != "" {
		fmt.Fprintf(&b, ", %s color palette", o.Palette)
	}
	if o.Hair != "" {
		fmt.Fprintf(&b, ", %s hair", o.Hair)
	}
	if o.Clothing != "" {
		fmt.Fprintf(&b, ", wearing %s", o.Clothing)
	}
	if o.Accessory != "" && o.Accessory != "None" {
		fmt.Fprintf(&b, ", with %s", o.Accessory)
	}
	if r := strings.TrimSpace(o.Refinement); r != "" {
		fmt.Fprintf(&b, ". Refinements: %s", r)
	}
	return b.String(), nil
}
