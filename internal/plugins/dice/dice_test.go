package dice

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/tabletop/internal/apperror"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func TestRoll_SumPlusModifier(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		res, err := Roll(rng, RollRequest{Count: 3, Sides: 6, Modifier: 2}, fixedNow)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Rolls) != 3 || res.DiceType != 6 {
			t.Fatalf("unexpected result shape: %+v", res)
		}
		sum := 0
		for _, r := range res.Rolls {
			if r < 1 || r > 6 {
				t.Fatalf("die out of range: %d", r)
			}
			sum += r
		}
		if res.Final != sum+2 {
			t.Fatalf("final %d, want %d", res.Final, sum+2)
		}
		if res.IsAttributeRoll || res.Timestamp != fixedNow.UnixMilli() {
			t.Fatalf("unexpected metadata: %+v", res)
		}
	}
}

func TestRoll_Deterministic(t *testing.T) {
	a, _ := Roll(rand.New(rand.NewSource(42)), RollRequest{Count: 5, Sides: 20}, fixedNow)
	b, _ := Roll(rand.New(rand.NewSource(42)), RollRequest{Count: 5, Sides: 20}, fixedNow)
	if !slices.Equal(a.Rolls, b.Rolls) {
		t.Errorf("same seed gave %v and %v", a.Rolls, b.Rolls)
	}
}

func TestRoll_Invalid(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := Roll(rng, RollRequest{Count: 0, Sides: 6}, fixedNow); !errors.Is(err, ErrInvalidDiceSpec) {
		t.Errorf("expected ErrInvalidDiceSpec, got %v", err)
	}
	if _, err := Roll(rng, RollRequest{Count: 1, Sides: 0}, fixedNow); !errors.Is(err, ErrInvalidDiceSpec) {
		t.Errorf("expected ErrInvalidDiceSpec, got %v", err)
	}
	if _, err := Roll(rng, RollRequest{Count: MaxDice + 1, Sides: 6}, fixedNow); !errors.Is(err, ErrTooManyDice) {
		t.Errorf("expected ErrTooManyDice, got %v", err)
	}
}

func TestAttributeTest_KeepsHighest(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		res, err := AttributeTest(rng, AttributeRequest{Dice: 3, Modifier: 5}, fixedNow)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Rolls) != 3 || res.DiceType != 20 || !res.IsAttributeRoll {
			t.Fatalf("unexpected result: %+v", res)
		}
		if res.Final != slices.Max(res.Rolls)+5 {
			t.Fatalf("final %d, want max(%v)+5", res.Final, res.Rolls)
		}
	}
}

func TestAttributeTest_NoDiceKeepsLowestOfTwo(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for _, n := range []int{0, -1, -3} {
		res, err := AttributeTest(rng, AttributeRequest{Dice: n, Modifier: -1}, fixedNow)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Rolls) != 2 {
			t.Fatalf("expected two dice for %d, got %v", n, res.Rolls)
		}
		if res.Final != slices.Min(res.Rolls)-1 {
			t.Fatalf("final %d, want min(%v)-1", res.Final, res.Rolls)
		}
	}
}

func TestMemoryHistory_CappedMostRecentFirst(t *testing.T) {
	h := NewMemoryHistory(3)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_ = h.Push(ctx, "u1", Result{Final: i})
	}
	_ = h.Push(ctx, "u2", Result{Final: 99})

	got, _ := h.List(ctx, "u1")
	finals := []int{}
	for _, r := range got {
		finals = append(finals, r.Final)
	}
	if !slices.Equal(finals, []int{5, 4, 3}) {
		t.Errorf("history = %v, want [5 4 3]", finals)
	}

	_ = h.Clear(ctx, "u1")
	if got, _ := h.List(ctx, "u1"); len(got) != 0 {
		t.Error("expected cleared history")
	}
	if got, _ := h.List(ctx, "u2"); len(got) != 1 {
		t.Error("clearing one user touched another")
	}
}

func TestRedisHistory_CappedMostRecentFirst(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := NewRedisHistory(client, 2)
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		if err := h.Push(ctx, "u1", Result{Final: i, Rolls: []int{i}}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	got, err := h.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Final != 4 || got[1].Final != 3 {
		t.Errorf("unexpected history %+v", got)
	}
	if n, _ := client.LLen(ctx, historyKey("u1")).Result(); n != 2 {
		t.Errorf("expected list trimmed to 2, got %d", n)
	}

	if err := h.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if mr.Exists(historyKey("u1")) {
		t.Error("expected history key removed")
	}
}

// failingHistory always errors.
type failingHistory struct{ MemoryHistory }

func (f *failingHistory) Push(context.Context, string, Result) error {
	return errors.New("redis down")
}

func TestService_RollRecordsHistory(t *testing.T) {
	svc := NewDiceService(NewMemoryHistory(50), rand.New(rand.NewSource(1)))
	ctx := context.Background()

	rolled, err := svc.Roll(ctx, "u1", RollRequest{Count: 2, Sides: 20})
	if err != nil {
		t.Fatalf("Roll: %v", err)
	}
	tested, err := svc.Test(ctx, "u1", AttributeRequest{Dice: 2})
	if err != nil {
		t.Fatalf("Test: %v", err)
	}

	got, _ := svc.History(ctx, "u1")
	if len(got) != 2 || !got[0].IsAttributeRoll || got[1].Final != rolled.Final || got[0].Final != tested.Final {
		t.Errorf("unexpected history %+v", got)
	}
}

func TestService_RejectsNonStandardDie(t *testing.T) {
	svc := NewDiceService(NewMemoryHistory(50), nil)
	_, err := svc.Roll(context.Background(), "u1", RollRequest{Count: 1, Sides: 7})
	if !apperror.Is(err, http.StatusUnprocessableEntity) {
		t.Errorf("expected validation error, got %v", err)
	}
	_, err = svc.Roll(context.Background(), "u1", RollRequest{Count: 0, Sides: 6})
	if !apperror.Is(err, http.StatusUnprocessableEntity) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_HistoryFailureKeepsRoll(t *testing.T) {
	svc := NewDiceService(&failingHistory{}, rand.New(rand.NewSource(1)))
	res, err := svc.Roll(context.Background(), "u1", RollRequest{Count: 1, Sides: 100})
	if err != nil {
		t.Fatalf("expected roll despite history failure, got %v", err)
	}
	if res.Rolls[0] < 1 || res.Rolls[0] > 100 {
		t.Errorf("die out of range: %d", res.Rolls[0])
	}
}
