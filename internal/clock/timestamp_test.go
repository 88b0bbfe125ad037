package clock

import "testing"

func TestEngine_FromServerTime_WrapAround(t *testing.T) {
	e := &Engine{current: Timestamp{Months: 3, Milliseconds: 0xFFFF_FFF0}}

	got := e.FromServerTime(0xFFFF_FFFF)
	want := Timestamp{Months: 3, Milliseconds: 0xFFFF_FFFF}
	if got != want {
		t.Errorf("FromServerTime(0xFFFFFFFF): got %v, want %v", got, want)
	}

	got = e.FromServerTime(0x0000_0005)
	want = Timestamp{Months: 4, Milliseconds: 0x0000_0005}
	if got != want {
		t.Errorf("FromServerTime(5): got %v, want %v", got, want)
	}

	got = e.FromClientTime(0xFFFF_FFFE)
	want = Timestamp{Months: 3, Milliseconds: 0xFFFF_FFFE}
	if got != want {
		t.Errorf("FromClientTime(0xFFFFFFFE): got %v, want %v", got, want)
	}
}

func TestEngine_FromServerTime_NoOverflowWhenAdvancing(t *testing.T) {
	e := NewEngine()
	e.FromServerTime(100)
	got := e.FromServerTime(200)
	want := Timestamp{Months: 0, Milliseconds: 200}
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEngine_FromClientTime_OtherSideOfBoundary(t *testing.T) {
	e := &Engine{current: Timestamp{Months: 10, Milliseconds: 100}}

	got := e.FromClientTime(0xFFFF_FFF0)
	want := Timestamp{Months: 9, Milliseconds: 0xFFFF_FFF0}
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTimestamp_Compare(t *testing.T) {
	cases := []struct {
		a, b Timestamp
		want int
	}{
		{Timestamp{0, 0}, Timestamp{0, 0}, 0},
		{Timestamp{0, 5}, Timestamp{0, 10}, -1},
		{Timestamp{1, 0}, Timestamp{0, 0xFFFF_FFFF}, 1},
		{Timestamp{0, 10}, Timestamp{0, 5}, 1},
	}
	for _, c := range cases {
		if got := c.a.Compare(c.b); got != c.want {
			t.Errorf("Compare(%v, %v): got %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestTimestamp_Before(t *testing.T) {
	if !(Timestamp{0, 1}).Before(Timestamp{0, 2}) {
		t.Errorf("expected {0,1} before {0,2}")
	}
	if (Timestamp{0, 2}).Before(Timestamp{0, 2}) {
		t.Errorf("expected equal timestamps not Before each other")
	}
}
