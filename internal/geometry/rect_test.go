package geometry

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Rect
		want Rect
	}{
		{"already normal", Rect{X: 10, Y: 20, W: 30, H: 40}, Rect{X: 10, Y: 20, W: 30, H: 40}},
		{"negative width", Rect{X: 50, Y: 20, W: -30, H: 40}, Rect{X: 20, Y: 20, W: 30, H: 40}},
		{"negative height", Rect{X: 10, Y: 60, W: 30, H: -40}, Rect{X: 10, Y: 20, W: 30, H: 40}},
		{"both negative", Rect{X: 100, Y: 100, W: -60, H: -50}, Rect{X: 40, Y: 50, W: 60, H: 50}},
		{"zero extent", Rect{X: 5, Y: 5}, Rect{X: 5, Y: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestMapDisplayToBacking(t *testing.T) {
	display := RectF{X: 100, Y: 50, Width: 400, Height: 300}
	backing := Size{W: 1600, H: 600}

	tests := []struct {
		name string
		in   PointF
		want Point
	}{
		{"origin", PointF{X: 100, Y: 50}, Point{X: 0, Y: 0}},
		{"independent scales", PointF{X: 200, Y: 200}, Point{X: 400, Y: 300}},
		{"fractional floors", PointF{X: 100.3, Y: 50.4}, Point{X: 1, Y: 0}},
		{"far corner", PointF{X: 500, Y: 350}, Point{X: 1600, Y: 600}},
		{"outside left", PointF{X: 90, Y: 50}, Point{X: -40, Y: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapDisplayToBacking(tt.in, display, backing))
		})
	}
}

func TestMapDisplayToBacking_DegenerateDisplay(t *testing.T) {
	got := MapDisplayToBacking(PointF{X: 10, Y: 10}, RectF{Width: 0, Height: 100}, Size{W: 100, H: 100})
	assert.Equal(t, Point{}, got)
}

func TestClampToBounds(t *testing.T) {
	bounds := Size{W: 100, H: 80}

	tests := []struct {
		name string
		in   Rect
		want Rect
	}{
		{"inside", Rect{X: 10, Y: 10, W: 20, H: 20}, Rect{X: 10, Y: 10, W: 20, H: 20}},
		{"overflows right and bottom", Rect{X: 90, Y: 70, W: 50, H: 50}, Rect{X: 90, Y: 70, W: 10, H: 10}},
		{"negative origin keeps overlap", Rect{X: -20, Y: -10, W: 50, H: 30}, Rect{X: 0, Y: 0, W: 30, H: 20}},
		{"larger than canvas", Rect{X: -5, Y: -5, W: 500, H: 500}, Rect{X: 0, Y: 0, W: 100, H: 80}},
		{"entirely right", Rect{X: 150, Y: 10, W: 20, H: 20}, Rect{X: 99, Y: 10, W: 1, H: 20}},
		{"entirely left", Rect{X: -50, Y: 10, W: 20, H: 20}, Rect{X: 0, Y: 10, W: 1, H: 20}},
		{"zero extent grows to one", Rect{X: 10, Y: 10}, Rect{X: 10, Y: 10, W: 1, H: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampToBounds(tt.in, bounds)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got.X, 0)
			assert.GreaterOrEqual(t, got.Y, 0)
			assert.LessOrEqual(t, got.X+got.W, bounds.W)
			assert.LessOrEqual(t, got.Y+got.H, bounds.H)
		})
	}
}

func TestClampToBounds_EmptyCanvas(t *testing.T) {
	assert.Equal(t, Rect{}, ClampToBounds(Rect{X: 1, Y: 1, W: 5, H: 5}, Size{}))
}

func TestRectPredicates(t *testing.T) {
	assert.True(t, Rect{W: 40, H: 40}.Confirmable())
	assert.True(t, Rect{X: 100, Y: 100, W: -40, H: -45}.Confirmable())
	assert.False(t, Rect{W: 39, H: 200}.Confirmable())

	assert.True(t, Rect{W: 10, H: 10}.Croppable())
	assert.False(t, Rect{W: 10, H: 9}.Croppable())

	assert.True(t, Rect{W: 0, H: 10}.Empty())
	assert.False(t, Rect{W: 1, H: 1}.Empty())
}

func TestImageRectRoundTrip(t *testing.T) {
	r := Rect{X: 30, Y: 40, W: -10, H: 20}
	ir := r.ImageRect()
	assert.Equal(t, image.Rect(20, 40, 30, 60), ir)
	assert.Equal(t, Normalize(r), FromImageRect(ir))
}

func TestIntersect(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 50, H: 50}
	assert.Equal(t, Rect{X: 25, Y: 30, W: 25, H: 20}, Intersect(a, Rect{X: 25, Y: 30, W: 100, H: 100}))
	assert.Equal(t, Rect{}, Intersect(a, Rect{X: 60, Y: 60, W: 10, H: 10}))
}

func TestParseRect(t *testing.T) {
	r, err := ParseRect("10, 20,30,40")
	assert.NoError(t, err)
	assert.Equal(t, Rect{X: 10, Y: 20, W: 30, H: 40}, r)

	r, err = ParseRect("50,60,-30,-40")
	assert.NoError(t, err)
	assert.Equal(t, Rect{X: 20, Y: 20, W: 30, H: 40}, r)

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "1,2,0,4", "1,2,3,4,5"} {
		_, err := ParseRect(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseSelection(t *testing.T) {
	r, err := ParseSelection("80,80,-40,-40")
	assert.NoError(t, err)
	assert.Equal(t, Rect{X: 40, Y: 40, W: 40, H: 40}, r)

	for _, small := range []string{"0,0,20,20", "0,0,39,200", "0,0,200,39"} {
		_, err := ParseSelection(small)
		assert.ErrorIs(t, err, ErrSelectionTooSmall, small)
	}
	_, err = ParseSelection("1,2,3")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSelectionTooSmall)
}
