// Package agents manages character sheets ("agents"). Sheets are stored as
// documents in the agents collection using the same JSON field names the
// table client and backups use, and are saved through a debounced
// autosaver while a player edits them.
package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Classes.
const (
	ClassFighter    = "Combatente"
	ClassSpecialist = "Especialista"
	ClassOccultist  = "Ocultista"
)

// classColors are the token colors used when a sheet is spawned on the map.
var classColors = map[string]string{
	ClassFighter:    "#ef4444",
	ClassSpecialist: "#3b82f6",
	ClassOccultist:  "#a855f7",
}

// neutralColor is used for sheets with an unknown class.
const neutralColor = "#71717a"

// ClassColor returns the token color for class.
func ClassColor(class string) string {
	if c, ok := classColors[class]; ok {
		return c
	}
	return neutralColor
}

// ValidClass reports whether class is one of the known classes.
func ValidClass(class string) bool {
	_, ok := classColors[class]
	return ok
}

// Attributes are the five core attributes.
type Attributes struct {
	Agility   int `json:"agi"`
	Strength  int `json:"for"`
	Intellect int `json:"int"`
	Presence  int `json:"pre"`
	Vigor     int `json:"vig"`
}

// Status holds the current and maximum resource pools.
type Status struct {
	HPCurrent     int `json:"pvAtual"`
	HPMax         int `json:"pvMax"`
	SanityCurrent int `json:"sanAtual"`
	SanityMax     int `json:"sanMax"`
	EffortCurrent int `json:"peAtual"`
	EffortMax     int `json:"peMax"`
}

// Skill is one trained skill line.
type Skill struct {
	Name     string `json:"nome"`
	Training string `json:"treinamento"`
	Bonus    int    `json:"bonus"`
}

// BodyPart tracks localized damage against the part's limit.
type BodyPart struct {
	Damage int    `json:"dano"`
	Limit  int    `json:"limite"`
	Injury string `json:"lesao"`
}

// Oblique is the localized damage sheet.
type Oblique struct {
	Head     BodyPart `json:"cabeca"`
	Torso    BodyPart `json:"torco"`
	LeftArm  BodyPart `json:"bracoEsq"`
	RightArm BodyPart `json:"bracoDir"`
	LeftLeg  BodyPart `json:"pernaEsq"`
	RightLeg BodyPart `json:"pernaDir"`
}

// Resistances are damage reductions per damage type.
type Resistances struct {
	Physical    int `json:"fisica"`
	Ballistic   int `json:"balistica"`
	Cutting     int `json:"corte"`
	Impact      int `json:"impacto"`
	Piercing    int `json:"perfuracao"`
	Electricity int `json:"eletricidade"`
	Fire        int `json:"fogo"`
	Cold        int `json:"frio"`
	Chemical    int `json:"quimico"`
	Mental      int `json:"mental"`
	Blood       int `json:"sangue"`
	Death       int `json:"morte"`
	Energy      int `json:"energia"`
	Knowledge   int `json:"conhecimento"`
	Fear        int `json:"medo"`
}

// Attack is one attack line.
type Attack struct {
	Name     string `json:"nome"`
	Test     string `json:"teste"`
	Damage   string `json:"dano"`
	Critical string `json:"critico"`
	Range    string `json:"alcance"`
	Special  string `json:"especial"`
}

// Ability is one ability or ritual.
type Ability struct {
	Name        string `json:"nome"`
	Cost        string `json:"custo"`
	Page        string `json:"pagina,omitempty"`
	Description string `json:"descricao"`
}

// Agent is a character sheet.
type Agent struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId,omitempty"`
	Name    string `json:"nome"`
	Origin  string `json:"origem"`
	Class   string `json:"classe"`
	Trail   string `json:"trilha"`
	NEX     int    `json:"nex"`
	Rank    string `json:"patente"`

	Attributes Attributes `json:"atributos"`
	Status     Status     `json:"status"`
	Skills     []Skill    `json:"pericias"`

	Defense    int    `json:"defesa"`
	Protection string `json:"protecao"`
	Movement   string `json:"deslocamento"`

	Attacks   []Attack  `json:"ataques"`
	Abilities []Ability `json:"habilidades"`

	Inventory   string      `json:"inventario"`
	Details     string      `json:"detalhes"`
	Image       string      `json:"imagem,omitempty"`
	Oblique     Oblique     `json:"obliquo"`
	Resistances Resistances `json:"resistencias"`
}

// NewDefaultAgent returns the blank sheet template.
func NewDefaultAgent(id string) *Agent {
	return &Agent{
		ID:         id,
		Name:       "AGENTE DESCONHECIDO",
		Origin:     "Desconhecida",
		Class:      ClassFighter,
		Trail:      "Nenhuma",
		NEX:        5,
		Rank:       "Recruta",
		Attributes: Attributes{Agility: 1, Strength: 1, Intellect: 1, Presence: 1, Vigor: 1},
		Status: Status{
			HPCurrent: 20, HPMax: 20,
			SanityCurrent: 12, SanityMax: 12,
			EffortCurrent: 2, EffortMax: 2,
		},
		Skills:    []Skill{},
		Attacks:   []Attack{},
		Abilities: []Ability{},
		Oblique: Oblique{
			Head:     BodyPart{Limit: 10},
			Torso:    BodyPart{Limit: 25},
			LeftArm:  BodyPart{Limit: 12},
			RightArm: BodyPart{Limit: 12},
			LeftLeg:  BodyPart{Limit: 15},
			RightLeg: BodyPart{Limit: 15},
		},
	}
}

// SetDefaults resets a to the template so decoding a stored sheet fills
// blocks that older sheets lack.
func (a *Agent) SetDefaults() {
	*a = *NewDefaultAgent(a.ID)
}

// Normalize decodes a possibly partial sheet over the template.
func Normalize(data json.RawMessage) (*Agent, error) {
	a := NewDefaultAgent("")
	if err := a.Merge(data); err != nil {
		return nil, err
	}
	return a, nil
}

// Merge overlays the fields present in data onto a. Nested blocks merge
// field by field; lists are replaced.
func (a *Agent) Merge(data json.RawMessage) error {
	if err := json.Unmarshal(data, a); err != nil {
		return fmt.Errorf("decoding agent: %w", err)
	}
	if a.Skills == nil {
		a.Skills = []Skill{}
	}
	if a.Attacks == nil {
		a.Attacks = []Attack{}
	}
	if a.Abilities == nil {
		a.Abilities = []Ability{}
	}
	return nil
}

// Clone returns a deep copy.
func (a *Agent) Clone() *Agent {
	out := *a
	out.Skills = append([]Skill(nil), a.Skills...)
	out.Attacks = append([]Attack(nil), a.Attacks...)
	out.Abilities = append([]Ability(nil), a.Abilities...)
	if out.Skills == nil {
		out.Skills = []Skill{}
	}
	if out.Attacks == nil {
		out.Attacks = []Attack{}
	}
	if out.Abilities == nil {
		out.Abilities = []Ability{}
	}
	return &out
}

// TokenLabel is the short label of the sheet's map token.
func (a *Agent) TokenLabel() string {
	return strings.ToUpper(strings.TrimSpace(a.Name))
}
