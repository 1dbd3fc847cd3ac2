// Package dice rolls dice for the table: plain N-dice-of-S-sides rolls with
// a flat modifier, and the attribute test, which keeps the best of N d20 or,
// with no dice in the attribute, the worst of two. Every roll is recorded in
// the roller's capped, most-recent-first history.
package dice

import (
	"errors"
	"math/rand"
	"slices"
	"time"
)

// Sentinel errors for invalid requests.
var (
	ErrInvalidDiceSpec = errors.New("dice count and sides must be positive")
	ErrTooManyDice     = errors.New("too many dice in one roll")
)

// MaxDice bounds the number of dice in one roll.
const MaxDice = 100

// testSides is the die used by attribute tests.
const testSides = 20

// StandardSides are the dice the table offers.
var StandardSides = []int{4, 6, 8, 10, 12, 20, 100}

// IsStandard reports whether sides is one of StandardSides.
func IsStandard(sides int) bool {
	return slices.Contains(StandardSides, sides)
}

// RollRequest asks for Count dice of Sides sides plus Modifier.
type RollRequest struct {
	Count    int `json:"count"`
	Sides    int `json:"sides"`
	Modifier int `json:"modifier"`
}

// AttributeRequest asks for an attribute test with Dice d20 (the attribute
// value) plus Modifier (the skill bonus).
type AttributeRequest struct {
	Dice     int `json:"dice"`
	Modifier int `json:"modifier"`
}

// Result is one recorded roll. Final already includes Modifier.
type Result struct {
	DiceType        int   `json:"diceType"`
	Rolls           []int `json:"rolls"`
	Final           int   `json:"final"`
	Modifier        int   `json:"modifier"`
	Timestamp       int64 `json:"timestamp"`
	IsAttributeRoll bool  `json:"isAttributeRoll,omitempty"`
}

// Roll rolls req.Count dice of req.Sides sides. Final is the sum of the dice
// plus the modifier.
func Roll(rng *rand.Rand, req RollRequest, now time.Time) (Result, error) {
	if req.Count <= 0 || req.Sides <= 0 {
		return Result{}, ErrInvalidDiceSpec
	}
	if req.Count > MaxDice {
		return Result{}, ErrTooManyDice
	}

	rolls := make([]int, req.Count)
	sum := 0
	for i := range rolls {
		rolls[i] = rollDie(rng, req.Sides)
		sum += rolls[i]
	}
	return Result{
		DiceType:  req.Sides,
		Rolls:     rolls,
		Final:     sum + req.Modifier,
		Modifier:  req.Modifier,
		Timestamp: now.UnixMilli(),
	}, nil
}

// AttributeTest rolls an attribute test. With Dice > 0 it rolls that many
// d20 and keeps the highest; with Dice <= 0 it rolls two d20 and keeps the
// lowest. Final is the kept die plus the modifier.
func AttributeTest(rng *rand.Rand, req AttributeRequest, now time.Time) (Result, error) {
	if req.Dice > MaxDice {
		return Result{}, ErrTooManyDice
	}

	var rolls []int
	var kept int
	if req.Dice > 0 {
		rolls = make([]int, req.Dice)
		for i := range rolls {
			rolls[i] = rollDie(rng, testSides)
		}
		kept = slices.Max(rolls)
	} else {
		rolls = []int{rollDie(rng, testSides), rollDie(rng, testSides)}
		kept = slices.Min(rolls)
	}
	return Result{
		DiceType:        testSides,
		Rolls:           rolls,
		Final:           kept + req.Modifier,
		Modifier:        req.Modifier,
		Timestamp:       now.UnixMilli(),
		IsAttributeRoll: true,
	}, nil
}

// rollDie rolls a single die with the provided number of sides.
func rollDie(rng *rand.Rand, sides int) int {
	return rng.Intn(sides) + 1
}
