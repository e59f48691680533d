package interval

import "testing"

func TestReflexiveMergeability(t *testing.T) {
	rs := []Interval{New(0, 0), New(1, 5), New(100, 200)}
	for _, r := range rs {
		if !r.Mergeable(r) {
			t.Errorf("%v should be mergeable with itself", r)
		}

		if u := r.Union(r); u != r {
			t.Errorf("%v union itself = %v, want %v", r, u, r)
		}
	}
}

func TestAdjacencyUnionSize(t *testing.T) {
	a := New(0, 9)
	b := New(10, 19)

	if !a.Adjacent(b) {
		t.Fatalf("%v and %v should be adjacent", a, b)
	}

	u := a.Union(b)
	if got, want := u.Size(), a.Size()+b.Size(); got != want {
		t.Errorf("union size = %d, want %d", got, want)
	}
}

func TestGapLaw(t *testing.T) {
	a := New(0, 9)
	b := New(20, 29)

	if a.Mergeable(b) {
		t.Fatalf("%v and %v should not be mergeable", a, b)
	}

	g := a.Gap(b)
	span := a.Union(Interval{Start: a.Start, End: b.End})

	if got, want := a.Size()+g.Size()+b.Size(), span.Size(); got != want {
		t.Errorf("gap law violated: %d != %d", got, want)
	}
}

func TestSize(t *testing.T) {
	tests := []struct {
		r    Interval
		want int64
	}{
		{New(1, 5), 5},
		{New(0, 0), 1},
		{Interval{Start: 5, End: 1}, 0},
		{Interval{Start: -1, End: 5}, 0},
	}

	for _, tc := range tests {
		if got := tc.r.Size(); got != tc.want {
			t.Errorf("%v.Size() = %d, want %d", tc.r, got, tc.want)
		}
	}
}

func TestIntersectsAndMergeable(t *testing.T) {
	a := New(0, 10)
	b := New(5, 15)
	c := New(20, 30)

	if !a.Intersects(b) {
		t.Error("a and b should intersect")
	}

	if a.Intersects(c) {
		t.Error("a and c should not intersect")
	}

	if a.Mergeable(c) {
		t.Error("a and c should not be mergeable (not adjacent either)")
	}
}

func TestUnionOfNonMergeableReturnsInvalid(t *testing.T) {
	a := New(0, 5)
	b := New(20, 25)

	u := a.Union(b)
	if u.Valid() {
		t.Errorf("Union of non-mergeable intervals should be invalid, got %v", u)
	}
}

func TestGapOfMergeableReturnsInvalid(t *testing.T) {
	a := New(0, 10)
	b := New(5, 20)

	g := a.Gap(b)
	if g.Valid() {
		t.Errorf("Gap of mergeable intervals should be invalid, got %v", g)
	}
}
