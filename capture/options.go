package capture

import (
	"fmt"
	"time"
)

// Direction places annotation text relative to its box.
type Direction string

const (
	DirectionTop    Direction = "top"
	DirectionRight  Direction = "right"
	DirectionBottom Direction = "bottom"
	DirectionLeft   Direction = "left"
)

// Color is an annotation text color from the fixed palette.
type Color string

const (
	ColorRed    Color = "red"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorOrange Color = "orange"
	ColorPurple Color = "purple"
	ColorBlack  Color = "black"
	ColorWhite  Color = "white"
)

// DefaultPaddingPixel is the annotation padding when none is given.
const DefaultPaddingPixel = 4

// CaptureOptions tunes a single Capture call. The zero value is valid.
type CaptureOptions struct {
	// ParentKey nests the capture under an already recorded key.
	// Empty appends to the root sequence.
	ParentKey string

	// Wait delays the screenshot so transient UI states can settle.
	Wait time.Duration

	// ClickSelector, when set, is located after the upload: its bounding
	// box is stored as the capture's annotation, then it is clicked.
	ClickSelector string

	// AnnotationText is drawn next to the box, verbatim.
	AnnotationText string

	// PaddingPixel around the box. Nil means DefaultPaddingPixel; use
	// Padding(0) for none.
	PaddingPixel *int

	// Direction of the text. Default: DirectionBottom.
	Direction Direction

	// TextColor of the text. Default: ColorRed.
	TextColor Color
}

// Padding returns a PaddingPixel value.
func Padding(px int) *int { return &px }

func (o CaptureOptions) withDefaults() CaptureOptions {
	if o.PaddingPixel == nil {
		o.PaddingPixel = Padding(DefaultPaddingPixel)
	}
	if o.Direction == "" {
		o.Direction = DirectionBottom
	}
	if o.TextColor == "" {
		o.TextColor = ColorRed
	}
	return o
}

func (o CaptureOptions) validate() error {
	switch o.Direction {
	case DirectionTop, DirectionRight, DirectionBottom, DirectionLeft:
	default:
		return fmt.Errorf("%w: direction %q", ErrInvalidOptions, o.Direction)
	}
	switch o.TextColor {
	case ColorRed, ColorBlue, ColorGreen, ColorOrange, ColorPurple, ColorBlack, ColorWhite:
	default:
		return fmt.Errorf("%w: text color %q", ErrInvalidOptions, o.TextColor)
	}
	if *o.PaddingPixel < 0 {
		return fmt.Errorf("%w: negative padding %d", ErrInvalidOptions, *o.PaddingPixel)
	}
	if o.Wait < 0 {
		return fmt.Errorf("%w: negative wait %v", ErrInvalidOptions, o.Wait)
	}
	return nil
}
