package dice

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/keyxmakerx/tabletop/internal/apperror"
)

// DiceService rolls dice and keeps each roller's history.
type DiceService interface {
	Roll(ctx context.Context, userID string, req RollRequest) (Result, error)
	Test(ctx context.Context, userID string, req AttributeRequest) (Result, error)
	History(ctx context.Context, userID string) ([]Result, error)
	ClearHistory(ctx context.Context, userID string) error
}

type diceService struct {
	history History
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDiceService creates a dice service. rng may be nil for a time-seeded
// source.
func NewDiceService(history History, rng *rand.Rand) DiceService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &diceService{history: history, rng: rng, now: time.Now}
}

// Roll rolls standard dice and records the result.
func (s *diceService) Roll(ctx context.Context, userID string, req RollRequest) (Result, error) {
	if !IsStandard(req.Sides) {
		return Result{}, apperror.NewValidation("unsupported die")
	}
	s.mu.Lock()
	res, err := Roll(s.rng, req, s.now())
	s.mu.Unlock()
	if err != nil {
		return Result{}, toAppError(err)
	}
	s.record(ctx, userID, res)
	return res, nil
}

// Test rolls an attribute test and records the result.
func (s *diceService) Test(ctx context.Context, userID string, req AttributeRequest) (Result, error) {
	s.mu.Lock()
	res, err := AttributeTest(s.rng, req, s.now())
	s.mu.Unlock()
	if err != nil {
		return Result{}, toAppError(err)
	}
	s.record(ctx, userID, res)
	return res, nil
}

// History returns the roller's recent results, newest first.
func (s *diceService) History(ctx context.Context, userID string) ([]Result, error) {
	out, err := s.history.List(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return out, nil
}

// ClearHistory forgets the roller's results.
func (s *diceService) ClearHistory(ctx context.Context, userID string) error {
	if err := s.history.Clear(ctx, userID); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

// record appends to the history. A history failure never loses the roll
// itself; it is logged and the result still returned.
func (s *diceService) record(ctx context.Context, userID string, res Result) {
	if err := s.history.Push(ctx, userID, res); err != nil {
		slog.Warn("failed to record dice roll",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

func toAppError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidDiceSpec), errors.Is(err, ErrTooManyDice):
		return apperror.NewValidation(err.Error())
	default:
		return apperror.NewInternal(err)
	}
}
