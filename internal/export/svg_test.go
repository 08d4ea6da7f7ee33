package export

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/collagist/collagist/backend-go/internal/geometry"
	"github.com/collagist/collagist/backend-go/internal/layout"
	"github.com/collagist/collagist/backend-go/internal/silhouette"
)

type stubSilhouettes map[string]*silhouette.Data

func (s stubSilhouettes) Get(ctx context.Context, id string) (*silhouette.Data, error) {
	d, ok := s[id]
	if !ok {
		return nil, errors.New("no silhouette")
	}
	return d, nil
}

func squareData(id string) *silhouette.Data {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.NRGBA{R: 200, A: 255})
		}
	}
	return &silhouette.Data{
		ID:       id,
		Width:    10,
		Height:   10,
		Boundary: []image.Point{{0, 0}, {0, 9}, {9, 9}, {9, 0}},
		Polygon:  geometry.Polygon{{X: 0, Y: 0}, {X: 0, Y: 9}, {X: 9, Y: 9}, {X: 9, Y: 0}},
		Image:    img,
	}
}

func TestRender(t *testing.T) {
	sil := stubSilhouettes{"a": squareData("a"), "b": squareData("b")}
	board := Board{
		Background: "#102030",
		Placements: []layout.Placement{
			{ID: "a", Index: 0, Active: true, Bounds: geometry.Rect{X: 5, Y: 5, Width: 9, Height: 9}, Matrix: geometry.Translate(5, 5)},
			{ID: "hidden", Index: 1, Active: false, Matrix: geometry.Identity()},
			{ID: "missing", Index: 2, Active: true, Bounds: geometry.Rect{Width: 9, Height: 9}, Matrix: geometry.Identity()},
			{ID: "b", Index: 3, Active: true, Bounds: geometry.Rect{X: 20, Y: 30, Width: 9, Height: 9}, Matrix: geometry.Translate(20, 30)},
		},
	}

	var sb strings.Builder
	if err := Render(context.Background(), &sb, board, sil); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		`width="29" height="39" viewBox="0 0 29 39"`,
		`fill="#102030"`,
		`<g data-image="a" transform="matrix(1 0 0 1 5 5)">`,
		`<clipPath id="clip-0"><polygon points="0,0 0,9 9,9 9,0"/></clipPath>`,
		`clip-path="url(#clip-3)"`,
		`data:image/png;base64,`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "hidden") || strings.Contains(out, `data-image="missing"`) {
		t.Errorf("inactive or unresolved images should not be drawn:\n%s", out)
	}
	if strings.Index(out, `data-image="a"`) > strings.Index(out, `data-image="b"`) {
		t.Error("images should be drawn bottom first")
	}
}

func TestCanvas(t *testing.T) {
	tests := []struct {
		name string
		b    Board
		want geometry.Rect
	}{
		{"empty board", Board{}, geometry.Rect{Width: 1, Height: 1}},
		{"negative position", Board{Placements: []layout.Placement{
			{Active: true, Bounds: geometry.Rect{X: -10.5, Y: 4, Width: 20, Height: 6}},
		}}, geometry.Rect{X: -11, Y: 0, Width: 21, Height: 10}},
		{"inactive ignored", Board{Placements: []layout.Placement{
			{Active: false, Bounds: geometry.Rect{X: 100, Y: 100, Width: 20, Height: 20}},
		}}, geometry.Rect{Width: 1, Height: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.Canvas(); got != tt.want {
				t.Errorf("Canvas() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
