package layout

import (
	"errors"
	"slices"
	"testing"

	"github.com/collagist/collagist/backend-go/internal/geometry"
)

func square(size float64) geometry.Polygon {
	return geometry.Polygon{{X: 0, Y: 0}, {X: 0, Y: size}, {X: size, Y: size}, {X: size, Y: 0}}
}

func order(e *Engine) []string {
	var ids []string
	for _, p := range e.Snapshot() {
		ids = append(ids, p.ID)
	}
	return ids
}

func shapes(ids ...string) map[string]geometry.Polygon {
	m := make(map[string]geometry.Polygon, len(ids))
	for _, id := range ids {
		m[id] = square(100)
	}
	return m
}

func active(id string, x, y float64) Entry {
	return Entry{ID: id, Active: true, Position: geometry.Pt(x, y)}
}

func TestReorderForwardPastOverlap(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		id      string
		dir     Direction
		want    []string
		wantIdx int
	}{
		{
			name:    "forward past overlapping neighbour",
			entries: []Entry{active("a", 0, 0), active("b", 50, 50)},
			id:      "a", dir: Forward,
			want: []string{"b", "a"}, wantIdx: 1,
		},
		{
			name:    "forward with nothing overlapping",
			entries: []Entry{active("a", 0, 0), active("b", 500, 500)},
			id:      "a", dir: Forward,
			want: []string{"a", "b"}, wantIdx: 0,
		},
		{
			name:    "forward skips non-overlapping images",
			entries: []Entry{active("a", 0, 0), active("far", 900, 900), active("b", 50, 50), active("c", 60, 60)},
			id:      "a", dir: Forward,
			want: []string{"far", "b", "a", "c"}, wantIdx: 2,
		},
		{
			name:    "forward ignores inactive overlap",
			entries: []Entry{active("a", 0, 0), {ID: "ghost", Position: geometry.Pt(10, 10)}, active("b", 50, 50)},
			id:      "a", dir: Forward,
			want: []string{"ghost", "b", "a"}, wantIdx: 2,
		},
		{
			name:    "back below overlapping neighbour",
			entries: []Entry{active("a", 0, 0), active("far", 900, 900), active("b", 50, 50)},
			id:      "b", dir: Back,
			want: []string{"b", "a", "far"}, wantIdx: 0,
		},
		{
			name:    "back at bottom",
			entries: []Entry{active("a", 0, 0), active("b", 50, 50)},
			id:      "a", dir: Back,
			want: []string{"a", "b"}, wantIdx: 0,
		},
		{
			name:    "top stays top",
			entries: []Entry{active("a", 0, 0), active("b", 50, 50)},
			id:      "b", dir: Forward,
			want: []string{"a", "b"}, wantIdx: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, e := range tt.entries {
				ids = append(ids, e.ID)
			}
			e := New(tt.entries, shapes(ids...))

			got, err := e.Reorder(tt.id, tt.dir)
			if err != nil {
				t.Fatalf("Reorder() error = %v", err)
			}
			if got != tt.wantIdx {
				t.Errorf("Reorder() = %d, want %d", got, tt.wantIdx)
			}
			if o := order(e); !slices.Equal(o, tt.want) {
				t.Errorf("stack = %v, want %v", o, tt.want)
			}
		})
	}
}

func TestReorderForwardTwiceIsStable(t *testing.T) {
	e := New([]Entry{active("a", 0, 0), active("b", 50, 50), active("c", 700, 0)}, shapes("a", "b", "c"))

	if _, err := e.Reorder("a", Forward); err != nil {
		t.Fatal(err)
	}
	first := order(e)

	var events []Event
	e.observers = append(e.observers, func(ev Event) { events = append(events, ev) })
	if _, err := e.Reorder("a", Forward); err != nil {
		t.Fatal(err)
	}
	if second := order(e); !slices.Equal(first, second) {
		t.Errorf("second Reorder changed stack: %v -> %v", first, second)
	}
	if len(events) != 0 {
		t.Errorf("second Reorder emitted %v", events)
	}
}

func TestReorderRejectsInactiveAndUnknown(t *testing.T) {
	e := New([]Entry{{ID: "a"}, active("b", 0, 0)}, shapes("a", "b"))

	if _, err := e.Reorder("a", Forward); !errors.Is(err, ErrInactive) {
		t.Errorf("Reorder(inactive) error = %v, want ErrInactive", err)
	}
	if _, err := e.Reorder("nope", Back); !errors.Is(err, ErrNotFound) {
		t.Errorf("Reorder(unknown) error = %v, want ErrNotFound", err)
	}
	if o := order(e); !slices.Equal(o, []string{"a", "b"}) {
		t.Errorf("stack = %v, want unchanged", o)
	}
}

func TestToggleActive(t *testing.T) {
	var events []Event
	e := New(
		[]Entry{active("a", 0, 0), {ID: "c", Position: geometry.Pt(20, 20)}, active("b", 50, 50)},
		shapes("a", "b", "c"),
		WithObserver(func(ev Event) { events = append(events, ev) }),
	)

	changed, err := e.ToggleActive("c", true)
	if err != nil || !changed {
		t.Fatalf("ToggleActive(c, true) = %v, %v", changed, err)
	}
	if o := order(e); !slices.Equal(o, []string{"a", "b", "c"}) {
		t.Errorf("stack = %v, want c on top", o)
	}
	c, _ := e.Get("c")
	if !c.Active || c.Index != 2 || c.Bounds.X != 20 || c.Bounds.Y != 20 {
		t.Errorf("Get(c) = %+v", c)
	}

	changed, err = e.ToggleActive("c", true)
	if err != nil || changed {
		t.Errorf("second activation = %v, %v, want no-op", changed, err)
	}

	changed, err = e.ToggleActive("a", false)
	if err != nil || !changed {
		t.Fatalf("ToggleActive(a, false) = %v, %v", changed, err)
	}
	if o := order(e); !slices.Equal(o, []string{"a", "b", "c"}) {
		t.Errorf("deactivation moved the entry: %v", o)
	}

	want := []Event{
		{Kind: EventActivated, ImageID: "c", Index: 2, From: 1},
		{Kind: EventDeselected, ImageID: "a", Index: 0, From: 0},
	}
	if !slices.Equal(events, want) {
		t.Errorf("events = %+v, want %+v", events, want)
	}

	if _, err := e.ToggleActive("zzz", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("ToggleActive(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestReactivationRestoresTransform(t *testing.T) {
	e := New([]Entry{active("a", 0, 0)}, shapes("a"))
	if err := e.Move("a", geometry.Pt(40, 70)); err != nil {
		t.Fatal(err)
	}
	if err := e.Rotate("a", 90); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ToggleActive("a", false); err != nil {
		t.Fatal(err)
	}
	if err := e.Move("a", geometry.Pt(1, 1)); !errors.Is(err, ErrInactive) {
		t.Errorf("Move(inactive) error = %v, want ErrInactive", err)
	}
	if _, err := e.ToggleActive("a", true); err != nil {
		t.Fatal(err)
	}
	p, _ := e.Get("a")
	if p.Position != geometry.Pt(40, 70) || p.Rotation != 90 {
		t.Errorf("restored placement = %+v", p)
	}
}

func TestMoveAndRotateRecomputeWorld(t *testing.T) {
	e := New([]Entry{active("a", 0, 0)}, map[string]geometry.Polygon{
		"a": {{X: 0, Y: 0}, {X: 0, Y: 50}, {X: 100, Y: 50}, {X: 100, Y: 0}},
	})

	if err := e.Move("a", geometry.Pt(10, 20)); err != nil {
		t.Fatal(err)
	}
	p, _ := e.Get("a")
	if p.Bounds != (geometry.Rect{X: 10, Y: 20, Width: 100, Height: 50}) {
		t.Errorf("Bounds after Move = %+v", p.Bounds)
	}

	if err := e.Rotate("a", 90); err != nil {
		t.Fatal(err)
	}
	p, _ = e.Get("a")
	got := geometry.BoundingBox(p.Polygon)
	if got != p.Bounds {
		t.Errorf("Bounds %+v does not match polygon %+v", p.Bounds, got)
	}
	if w, h := p.Bounds.Width, p.Bounds.Height; w < 49.999 || w > 50.001 || h < 99.999 || h > 100.001 {
		t.Errorf("rotated Bounds = %+v, want 50x100", p.Bounds)
	}
	for i, v := range p.Polygon {
		mv := p.Matrix.Apply(geometry.Polygon{{X: 0, Y: 0}, {X: 0, Y: 50}, {X: 100, Y: 50}, {X: 100, Y: 0}}[i])
		if dx, dy := mv.X-v.X, mv.Y-v.Y; dx*dx+dy*dy > 1e-12 {
			t.Errorf("Matrix maps vertex %d to %+v, polygon has %+v", i, mv, v)
		}
	}
}

func TestDeleteAll(t *testing.T) {
	var kinds []EventKind
	e := New(
		[]Entry{active("a", 0, 0), {ID: "b"}, active("c", 5, 5)},
		shapes("a", "b", "c"),
		WithObserver(func(ev Event) { kinds = append(kinds, ev.Kind) }),
	)

	if n := e.DeleteAll(); n != 2 {
		t.Errorf("DeleteAll() = %d, want 2", n)
	}
	for _, p := range e.Snapshot() {
		if p.Active {
			t.Errorf("%s still active", p.ID)
		}
	}
	if o := order(e); !slices.Equal(o, []string{"a", "b", "c"}) {
		t.Errorf("stack = %v, want order retained", o)
	}
	want := []EventKind{EventDeselected, EventDeselected, EventCleared}
	if !slices.Equal(kinds, want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}

	if n := e.DeleteAll(); n != 0 {
		t.Errorf("second DeleteAll() = %d, want 0", n)
	}
	if len(kinds) != len(want) {
		t.Errorf("clearing an empty board emitted %v", kinds[len(want):])
	}
}

func TestHitTestRotated(t *testing.T) {
	e := New([]Entry{active("a", 0, 0)}, shapes("a"))
	if err := e.Rotate("a", 45); err != nil {
		t.Fatal(err)
	}

	hits := []struct {
		x, y float64
		ok   bool
	}{
		{50, 50, true},
		{50, -10, true},  // above the unrotated square, inside the diamond
		{5, 5, false},    // inside the unrotated square, outside the diamond
		{118, 50, true},  // near the right tip
		{122, 50, false}, // past the right tip
	}
	for _, h := range hits {
		if _, ok := e.HitTest(h.x, h.y); ok != h.ok {
			t.Errorf("HitTest(%v, %v) = %v, want %v", h.x, h.y, ok, h.ok)
		}
	}
}

func TestOverlappingAndHitTest(t *testing.T) {
	e := New(
		[]Entry{active("a", 0, 0), active("b", 50, 50), active("c", 500, 500), {ID: "d", Position: geometry.Pt(10, 10)}, active("noshape", 0, 0)},
		shapes("a", "b", "c", "d"),
	)

	tests := []struct {
		id   string
		want []string
	}{
		{"a", []string{"b"}},
		{"b", []string{"a"}},
		{"c", nil},
		{"d", nil},
		{"noshape", nil},
	}
	for _, tt := range tests {
		t.Run("overlapping "+tt.id, func(t *testing.T) {
			got, err := e.Overlapping(tt.id)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Overlapping(%s) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}

	hits := []struct {
		x, y float64
		want string
		ok   bool
	}{
		{75, 75, "b", true},
		{25, 25, "a", true},
		{550, 550, "c", true},
		{300, 300, "", false},
	}
	for _, h := range hits {
		got, ok := e.HitTest(h.x, h.y)
		if got != h.want || ok != h.ok {
			t.Errorf("HitTest(%v, %v) = %q, %v, want %q, %v", h.x, h.y, got, ok, h.want, h.ok)
		}
	}
}

func TestNewKeepsFirstDuplicateAndSetShape(t *testing.T) {
	e := New([]Entry{active("a", 1, 1), active("b", 300, 0), active("a", 9, 9)}, nil)
	if e.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", e.Len())
	}
	p, _ := e.Get("a")
	if p.Position != geometry.Pt(1, 1) {
		t.Errorf("duplicate overwrote first entry: %+v", p)
	}

	if ids, _ := e.Overlapping("a"); len(ids) != 0 {
		t.Errorf("shapeless images overlap: %v", ids)
	}
	if err := e.SetShape("a", square(400)); err != nil {
		t.Fatal(err)
	}
	if err := e.SetShape("b", square(10)); err != nil {
		t.Fatal(err)
	}
	if ids, _ := e.Overlapping("a"); !slices.Equal(ids, []string{"b"}) {
		t.Errorf("Overlapping(a) after SetShape = %v, want [b]", ids)
	}
	if err := e.SetShape("x", square(1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetShape(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"forward": Forward, "back": Back, "backward": Back} {
		if got, ok := ParseDirection(in); !ok || got != want {
			t.Errorf("ParseDirection(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseDirection("up"); ok {
		t.Error("ParseDirection(up) should fail")
	}
}
