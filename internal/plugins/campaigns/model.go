// Package campaigns manages the single active campaign: its description,
// cover image and the roster of players at the table. The campaign lives
// in the campaign document collection under the same singleton key as the
// shared map view, and ending it clears both.
package campaigns

import "time"

// Player status values.
const (
	StatusOnline  = "Online"
	StatusOffline = "Offline"
)

// Campaign is the running game. ID is the access code players use to join.
type Campaign struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Master        string    `json:"master"`
	Players       []Player  `json:"players"`
	CreatedAt     time.Time `json:"created_at"`
	CampaignImage string    `json:"campaign_image,omitempty"`
}

// Player is one roster entry.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Class    string `json:"class,omitempty"`
	IsMaster bool   `json:"is_master"`
	Status   string `json:"status"`
}

// player returns the roster entry for userID.
func (c *Campaign) player(userID string) (int, bool) {
	for i := range c.Players {
		if c.Players[i].ID == userID {
			return i, true
		}
	}
	return -1, false
}

// --- Request DTOs ---

// StartRequest is the body of POST /api/v1/campaign.
type StartRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateRequest is the body of PUT /api/v1/campaign. Nil fields are kept;
// an empty CampaignImage removes the cover.
type UpdateRequest struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	CampaignImage *string `json:"campaign_image"`
}

// JoinRequest is the body of POST /api/v1/campaign/join.
type JoinRequest struct {
	AccessCode string `json:"access_code"`
	Class      string `json:"class"`
}
