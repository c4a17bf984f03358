package roi

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
)

func whiteImage(w, h int) image.Image {
	return imaging.New(w, h, color.White)
}

func armed(t *testing.T) (*Selector, *int) {
	t.Helper()
	frames := 0
	s := NewSelector(func(frame *image.NRGBA) {
		require.NotNil(t, frame)
		frames++
	})
	s.Load(whiteImage(200, 150))
	s.Enable(true)
	return s, &frames
}

func TestSelector_InitialState(t *testing.T) {
	s := NewSelector(nil)
	assert.Equal(t, StateIdle, s.State())
	assert.False(t, s.Loaded())
	assert.Nil(t, s.Frame())

	_, ok := s.Snapshot()
	assert.False(t, ok)
}

func TestSelector_IgnoresPointerWhenIdle(t *testing.T) {
	s := NewSelector(nil)
	s.Load(whiteImage(100, 100))

	assert.Equal(t, OutcomeIgnored, s.PointerDown(geometry.Point{X: 1, Y: 1}))
	assert.Equal(t, OutcomeIgnored, s.PointerMove(geometry.Point{X: 90, Y: 90}))
	assert.Equal(t, OutcomeIgnored, s.PointerUp())
	assert.Equal(t, StateIdle, s.State())
}

func TestSelector_IgnoresPointerWithoutImage(t *testing.T) {
	s := NewSelector(nil)
	s.Enable(true)
	assert.Equal(t, OutcomeIgnored, s.PointerDown(geometry.Point{X: 1, Y: 1}))
	assert.Equal(t, StateArmed, s.State())
}

func TestSelector_CommitsReverseDrag(t *testing.T) {
	s, frames := armed(t)
	base := *frames

	assert.Equal(t, OutcomeUpdated, s.PointerDown(geometry.Point{X: 150, Y: 120}))
	assert.Equal(t, StateDragging, s.State())
	assert.Equal(t, OutcomeUpdated, s.PointerMove(geometry.Point{X: 100, Y: 100}))
	assert.Equal(t, OutcomeUpdated, s.PointerMove(geometry.Point{X: 50, Y: 20}))

	_, ok := s.Snapshot()
	assert.False(t, ok, "drag in progress is not committed")

	assert.Equal(t, OutcomeCommitted, s.PointerUp())
	assert.Equal(t, StateArmed, s.State())

	r, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, geometry.Rect{X: 50, Y: 20, W: 100, H: 100}, r)
	assert.Equal(t, base+4, *frames)
}

func TestSelector_DiscardsSmallDrag(t *testing.T) {
	tests := []struct {
		name string
		end  geometry.Point
	}{
		{"narrow", geometry.Point{X: 39, Y: 100}},
		{"short", geometry.Point{X: 100, Y: 39}},
		{"click", geometry.Point{X: 0, Y: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := armed(t)
			s.PointerDown(geometry.Point{})
			s.PointerMove(tt.end)
			assert.Equal(t, OutcomeTooSmall, s.PointerUp())

			_, ok := s.Snapshot()
			assert.False(t, ok)
		})
	}
}

func TestSelector_ExactThresholdCommits(t *testing.T) {
	s, _ := armed(t)
	s.PointerDown(geometry.Point{X: 10, Y: 10})
	s.PointerMove(geometry.Point{X: 50, Y: 50})
	assert.Equal(t, OutcomeCommitted, s.PointerUp())
}

func TestSelector_Clear(t *testing.T) {
	s, _ := armed(t)
	assert.Equal(t, OutcomeIgnored, s.Clear())

	s.PointerDown(geometry.Point{X: 0, Y: 0})
	s.PointerMove(geometry.Point{X: 60, Y: 60})
	s.PointerUp()

	assert.Equal(t, OutcomeCleared, s.Clear())
	_, ok := s.Snapshot()
	assert.False(t, ok)
	assert.Equal(t, StateArmed, s.State())
}

func TestSelector_ClearDuringDragKeepsDragging(t *testing.T) {
	s, _ := armed(t)
	s.PointerDown(geometry.Point{X: 0, Y: 0})
	s.PointerMove(geometry.Point{X: 20, Y: 20})

	assert.Equal(t, OutcomeCleared, s.Clear())
	assert.Equal(t, StateDragging, s.State())

	s.PointerMove(geometry.Point{X: 80, Y: 80})
	assert.Equal(t, OutcomeCommitted, s.PointerUp())
	r, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, geometry.Rect{W: 80, H: 80}, r)
}

func TestSelector_LoadClearsSelection(t *testing.T) {
	s, _ := armed(t)
	s.PointerDown(geometry.Point{X: 0, Y: 0})
	s.PointerMove(geometry.Point{X: 60, Y: 60})
	s.PointerUp()

	s.Load(whiteImage(300, 300))
	_, ok := s.Snapshot()
	assert.False(t, ok)
	assert.Equal(t, StateArmed, s.State())
	assert.Equal(t, 300, s.Base().Bounds().Dx())
}

func TestSelector_DisableAbandonsDrag(t *testing.T) {
	s, _ := armed(t)
	s.PointerDown(geometry.Point{X: 0, Y: 0})
	s.PointerMove(geometry.Point{X: 60, Y: 60})

	s.Enable(false)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, OutcomeIgnored, s.PointerUp())
	_, ok := s.Snapshot()
	assert.False(t, ok)
}

func TestSelector_DisableKeepsCommitted(t *testing.T) {
	s, _ := armed(t)
	s.PointerDown(geometry.Point{X: 0, Y: 0})
	s.PointerMove(geometry.Point{X: 60, Y: 60})
	s.PointerUp()

	s.Enable(false)
	_, ok := s.Snapshot()
	assert.True(t, ok)
}

func TestSelector_DisableDuringRedragDropsSelection(t *testing.T) {
	s, _ := armed(t)
	s.PointerDown(geometry.Point{X: 0, Y: 0})
	s.PointerMove(geometry.Point{X: 60, Y: 60})
	require.Equal(t, OutcomeCommitted, s.PointerUp())

	s.PointerDown(geometry.Point{X: 100, Y: 100})
	s.Enable(false)
	_, ok := s.Snapshot()
	assert.False(t, ok, "the new drag replaced the committed rectangle")
	assert.Equal(t, StateIdle, s.State())
}

func TestSelector_Reset(t *testing.T) {
	s, _ := armed(t)
	s.PointerDown(geometry.Point{X: 0, Y: 0})
	s.PointerMove(geometry.Point{X: 60, Y: 60})
	s.PointerUp()

	s.Reset()
	assert.Equal(t, StateIdle, s.State())
	assert.False(t, s.Loaded())
	_, ok := s.Snapshot()
	assert.False(t, ok)
}

func TestSelector_SnapshotIsACopy(t *testing.T) {
	s, _ := armed(t)
	s.PointerDown(geometry.Point{X: 0, Y: 0})
	s.PointerMove(geometry.Point{X: 60, Y: 60})
	s.PointerUp()

	r, _ := s.Snapshot()
	r.W = 1

	again, _ := s.Snapshot()
	assert.Equal(t, 60, again.W)
}
