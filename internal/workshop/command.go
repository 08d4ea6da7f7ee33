package workshop

import (
	"context"
	"errors"
	"fmt"

	"github.com/collagist/collagist/backend-go/internal/geometry"
	"github.com/collagist/collagist/backend-go/internal/layout"
)

// ErrInvalidCommand is returned for commands with a bad type or arguments.
var ErrInvalidCommand = errors.New("invalid command")

// Command types accepted by Apply.
const (
	CmdActivate   = "image.activate"
	CmdDeactivate = "image.deactivate"
	CmdMove       = "image.move"
	CmdRotate     = "image.rotate"
	CmdReorder    = "image.reorder"
	CmdClear      = "workshop.clear"
	CmdBackground = "workshop.background"
)

// Command is one board mutation as submitted by a client.
type Command struct {
	Type      string   `json:"type"`
	ImageID   string   `json:"imageId,omitempty"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Degrees   *float64 `json:"degrees,omitempty"`
	Direction string   `json:"direction,omitempty"`
	Color     string   `json:"color,omitempty"`
}

// Result reports the outcome of Apply.
type Result struct {
	Index   *int  `json:"index,omitempty"`
	Cleared *int  `json:"cleared,omitempty"`
	State   State `json:"state"`
}

// Apply validates cmd and runs the matching Session mutation.
func (s *Session) Apply(ctx context.Context, cmd Command) (*Result, error) {
	var res Result

	switch cmd.Type {
	case CmdActivate, CmdDeactivate, CmdMove, CmdRotate, CmdReorder:
		if cmd.ImageID == "" {
			return nil, fmt.Errorf("%w: %s needs imageId", ErrInvalidCommand, cmd.Type)
		}
	}

	var err error
	switch cmd.Type {
	case CmdActivate:
		err = s.Activate(ctx, cmd.ImageID)
	case CmdDeactivate:
		err = s.Deactivate(ctx, cmd.ImageID)
	case CmdMove:
		if cmd.X == nil || cmd.Y == nil {
			return nil, fmt.Errorf("%w: %s needs x and y", ErrInvalidCommand, cmd.Type)
		}
		err = s.Move(ctx, cmd.ImageID, geometry.Pt(*cmd.X, *cmd.Y))
	case CmdRotate:
		if cmd.Degrees == nil {
			return nil, fmt.Errorf("%w: %s needs degrees", ErrInvalidCommand, cmd.Type)
		}
		err = s.Rotate(ctx, cmd.ImageID, *cmd.Degrees)
	case CmdReorder:
		dir, ok := layout.ParseDirection(cmd.Direction)
		if !ok {
			return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidCommand, cmd.Direction)
		}
		var idx int
		idx, err = s.Reorder(ctx, cmd.ImageID, dir)
		res.Index = &idx
	case CmdClear:
		var n int
		n, err = s.Clear(ctx)
		res.Cleared = &n
	case CmdBackground:
		err = s.SetBackground(ctx, cmd.Color)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, cmd.Type)
	}
	if err != nil {
		return nil, err
	}

	res.State = s.State()
	return &res, nil
}
