// Package maps is the server-side authoring surface of the shared tactical
// view. Every request runs against one game-master table: the current view
// state is pulled, mutated and published back to the campaign-state
// document, from which every viewer pulls.
package maps

import "github.com/keyxmakerx/tabletop/internal/tabletop"

// Preset is a stock background the game master can pick instead of
// uploading one.
type Preset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// presets is the stock background gallery.
var presets = []Preset{
	{ID: "wh", Name: "Armazém / Celeiro", Description: "Amplo espaço com caixas e feno.", URL: "https://images.unsplash.com/photo-1590644365607-1c5a38fc43e0?auto=format&fit=crop&q=80&w=1000"},
	{ID: "cab", Name: "Cabana Abandonada", Description: "Interior de madeira em ruínas.", URL: "https://images.unsplash.com/photo-1518773553398-650c184e0bb3?auto=format&fit=crop&q=80&w=1000"},
	{ID: "rit", Name: "Arena Ritualística", Description: "Solo de terra com símbolos.", URL: "https://images.unsplash.com/photo-1542259681-d4cd79803027?auto=format&fit=crop&q=80&w=1000"},
	{ID: "morg", Name: "Morgue / Laboratório", Description: "Piso xadrez e macas frias.", URL: "https://images.unsplash.com/photo-1519494026892-80bbd2d6fd0d?auto=format&fit=crop&q=80&w=1000"},
	{ID: "man", Name: "Mansão (Salão)", Description: "Piso de madeira nobre e tapetes.", URL: "https://images.unsplash.com/photo-1600585154340-be6161a56a0c?auto=format&fit=crop&q=80&w=1000"},
	{ID: "dorm", Name: "Dormitórios", Description: "Camas militares enfileiradas.", URL: "https://images.unsplash.com/photo-1555854877-bab0e564b8d5?auto=format&fit=crop&q=80&w=1000"},
	{ID: "apt", Name: "Apartamento", Description: "Residência padrão com mobília.", URL: "https://images.unsplash.com/photo-1502672260266-1c1ef2d93688?auto=format&fit=crop&q=80&w=1000"},
	{ID: "apt_b", Name: "Cena de Crime", Description: "Apartamento com marcas de sangue.", URL: "https://images.unsplash.com/photo-1605218427368-35b861266205?auto=format&fit=crop&q=80&w=1000"},
	{ID: "off", Name: "Escritório Tático", Description: "Mesas, computadores e arquivos.", URL: "https://images.unsplash.com/photo-1497366216548-37526070297c?auto=format&fit=crop&q=80&w=1000"},
}

// --- Request DTOs ---

// CreateTokenRequest is the body of POST /api/v1/map/tokens. X and Y are map
// coordinates; when either is missing the token lands at the default spot.
type CreateTokenRequest struct {
	Label string   `json:"label"`
	Image string   `json:"image"`
	Color string   `json:"color"`
	Size  float64  `json:"size"`
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
}

// spec converts the request into a token spec.
func (r CreateTokenRequest) spec() tabletop.TokenSpec {
	spec := tabletop.TokenSpec{Label: r.Label, Image: r.Image, Color: r.Color, Size: r.Size}
	if r.X != nil && r.Y != nil {
		spec.Position = &tabletop.Point{X: *r.X, Y: *r.Y}
	}
	return spec
}

// BackgroundRequest is the body of PUT /api/v1/map/background. A null or
// empty image clears the background.
type BackgroundRequest struct {
	Image *string `json:"image"`
}
