package tabletop

import (
	"math"
	"strings"
)

// Token is a positioned marker on the map. X and Y are the token's centre
// in map space, so its position is independent of any viewer's pan or zoom.
type Token struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Image string  `json:"image,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

// Contains reports whether the map-space point p lies on the token.
func (t Token) Contains(p Point) bool {
	return math.Hypot(p.X-t.X, p.Y-t.Y) <= t.Size/2
}

// ViewState is the authoritative snapshot of the table, stored as a
// singleton document per campaign. Token order is z-order (last on top).
type ViewState struct {
	BackgroundImage *string `json:"backgroundImage"`
	Tokens          []Token `json:"tokens"`
	Revision        int64   `json:"revision"`
}

// Clone returns a deep copy.
func (v ViewState) Clone() ViewState {
	out := ViewState{Revision: v.Revision}
	if v.BackgroundImage != nil {
		bg := *v.BackgroundImage
		out.BackgroundImage = &bg
	}
	out.Tokens = make([]Token, len(v.Tokens))
	copy(out.Tokens, v.Tokens)
	return out
}

// Equal reports deep equality, treating nil and empty token lists alike.
func (v ViewState) Equal(o ViewState) bool {
	if v.Revision != o.Revision {
		return false
	}
	switch {
	case v.BackgroundImage == nil && o.BackgroundImage == nil:
	case v.BackgroundImage == nil || o.BackgroundImage == nil:
		return false
	case *v.BackgroundImage != *o.BackgroundImage:
		return false
	}
	if len(v.Tokens) != len(o.Tokens) {
		return false
	}
	for i := range v.Tokens {
		if v.Tokens[i] != o.Tokens[i] {
			return false
		}
	}
	return true
}

// indexOf returns the position of the token with id, or -1.
func (v *ViewState) indexOf(id string) int {
	for i := range v.Tokens {
		if v.Tokens[i].ID == id {
			return i
		}
	}
	return -1
}

// Token returns the token with id.
func (v ViewState) Token(id string) (Token, bool) {
	if i := v.indexOf(id); i >= 0 {
		return v.Tokens[i], true
	}
	return Token{}, false
}

// TokenPatch carries the fields of an update; nil fields are left alone.
type TokenPatch struct {
	Label *string  `json:"label,omitempty"`
	Image *string  `json:"image,omitempty"`
	Color *string  `json:"color,omitempty"`
	Size  *float64 `json:"size,omitempty"`
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
}

func (p TokenPatch) apply(t *Token) {
	if p.Label != nil {
		t.Label = normalizeLabel(*p.Label)
	}
	if p.Image != nil {
		t.Image = *p.Image
	}
	if p.Color != nil && *p.Color != "" {
		t.Color = *p.Color
	}
	if p.Size != nil && *p.Size > 0 {
		t.Size = *p.Size
	}
	if p.X != nil {
		t.X = *p.X
	}
	if p.Y != nil {
		t.Y = *p.Y
	}
}

// TokenSpec describes a token to create. Zero fields take the table's
// defaults; Position nil places the token at DefaultPosition.
type TokenSpec struct {
	Label    string  `json:"label"`
	Image    string  `json:"image,omitempty"`
	Color    string  `json:"color,omitempty"`
	Size     float64 `json:"size,omitempty"`
	Position *Point  `json:"position,omitempty"`
}

// DefaultPosition is where tokens land when no position is given.
var DefaultPosition = Point{X: 50, Y: 50}

// maxLabelRunes is the conventional label length.
const maxLabelRunes = 3

// normalizeLabel trims a label to maxLabelRunes runes; an empty label
// becomes "?".
func normalizeLabel(label string) string {
	r := []rune(strings.TrimSpace(label))
	if len(r) == 0 {
		return "?"
	}
	if len(r) > maxLabelRunes {
		r = r[:maxLabelRunes]
	}
	return string(r)
}
