package models

import "testing"

func TestStatusValid(t *testing.T) {
	for _, s := range []OrderStatus{StatusPending, StatusProcessing, StatusRetrying, StatusCompleted, StatusFailed, StatusCancelled} {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if OrderStatus("shipped").Valid() {
		t.Fatal("unknown status should be invalid")
	}
}

func TestLegalTransitions(t *testing.T) {
	legal := []struct{ from, to OrderStatus }{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusCancelled},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusRetrying},
		{StatusProcessing, StatusCancelled},
		{StatusRetrying, StatusProcessing},
		{StatusRetrying, StatusFailed},
		{StatusFailed, StatusRetrying},
	}
	for _, c := range legal {
		if !c.from.CanTransition(c.to) {
			t.Fatalf("%s -> %s should be legal", c.from, c.to)
		}
	}

	illegal := []struct{ from, to OrderStatus }{
		{StatusPending, StatusCompleted}, // no skipping
		{StatusCompleted, StatusProcessing},
		{StatusCompleted, StatusCancelled},
		{StatusCancelled, StatusPending},
		{StatusFailed, StatusProcessing},
		{StatusRetrying, StatusCancelled},
	}
	for _, c := range illegal {
		if c.from.CanTransition(c.to) {
			t.Fatalf("%s -> %s should be illegal", c.from, c.to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Fatal("completed and cancelled are terminal")
	}
	for _, s := range []OrderStatus{StatusPending, StatusProcessing, StatusRetrying, StatusFailed} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestOrderClone(t *testing.T) {
	o := &Order{ID: "1", Symbol: "BTC-USD", Status: StatusPending}
	c := o.Clone()
	c.Status = StatusProcessing
	if o.Status != StatusPending {
		t.Fatal("mutating clone changed original")
	}
}

func TestAlertRuleMatches(t *testing.T) {
	cases := []struct {
		cond  AlertCondition
		thr   float64
		value float64
		want  bool
	}{
		{ConditionAbove, 500, 600, true},
		{ConditionAbove, 500, 500, false},
		{ConditionBelow, 10, 5, true},
		{ConditionBelow, 10, 10, false},
		{ConditionEquals, 1, 1, true},
		{ConditionEquals, 1, 2, false},
	}
	for _, c := range cases {
		r := AlertRule{Condition: c.cond, Threshold: c.thr}
		if got := r.Matches(c.value); got != c.want {
			t.Fatalf("%s %g vs %g: got %v, want %v", c.cond, c.value, c.thr, got, c.want)
		}
	}
}
