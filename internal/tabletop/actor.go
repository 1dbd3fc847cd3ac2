// Package tabletop implements the shared tactical view: a pan/zoom viewport
// over a background image, positioned tokens, and the publish/pull protocol
// that keeps every viewer's copy in step with the one authoritative view
// state held in the document store.
//
// A Table is one viewer's session. Exactly one role (the game master) may
// author and publish; everyone else pulls. Tables are safe for concurrent
// use: pointer events, subscription-driven pulls and publishes may arrive on
// different goroutines.
package tabletop

import (
	"errors"
	"strings"
)

// Role is a user's permission level at the table. Higher values include
// every permission of the lower ones.
type Role int

const (
	// RoleNone is an anonymous or unknown user.
	RoleNone Role = 0

	// RolePlayer may view and pull the map, and move tokens locally.
	RolePlayer Role = 1

	// RoleMaster may author and publish the map.
	RoleMaster Role = 2
)

// RoleFromString converts a stored role string ("admin", "player") to a Role.
func RoleFromString(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "master":
		return RoleMaster
	case "player":
		return RolePlayer
	default:
		return RoleNone
	}
}

// String returns the stored representation of the role.
func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "admin"
	case RolePlayer:
		return "player"
	default:
		return "none"
	}
}

// Actor is whoever is driving a Table.
type Actor struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

// ErrNotPrivileged is returned when a non-privileged actor attempts to
// author the map.
var ErrNotPrivileged = errors.New("only the game master may change the map")

// CanPublishMap is the single authorization check for map authorship:
// creating, editing, deleting tokens, changing the background and
// publishing the view state.
func CanPublishMap(a Actor) bool {
	return a.Role >= RoleMaster
}
