package steering

import (
	"fmt"

	"github.com/pkg/errors"
)

// LayerKind names one operation of the regression network.
type LayerKind string

const (
	// Normalize computes pixel*Scale + Offset. It has no parameters to learn.
	Normalize LayerKind = "normalize"
	// Crop removes Top rows and Bottom rows from every image.
	Crop LayerKind = "crop"
	// Conv2D is a convolution with Filters output channels and a square Kernel.
	Conv2D LayerKind = "conv2d"
	// MaxPool takes the maximum over non-overlapping Window x Window tiles.
	MaxPool LayerKind = "maxpool"
	// Flatten collapses everything but the batch axis.
	Flatten LayerKind = "flatten"
	// Dense is a fully connected layer with Units outputs.
	Dense LayerKind = "dense"
)

// Padding of a convolution.
type Padding string

const (
	// Valid keeps only positions where the kernel fits entirely.
	Valid Padding = "valid"
	// Same pads so the output keeps the input's spatial size.
	Same Padding = "same"
)

// Activation applied after a Conv2D or Dense layer.
type Activation string

const (
	Linear Activation = ""
	ReLU   Activation = "relu"
)

// LayerSpec declares one layer. Only the fields relevant to Kind are used.
type LayerSpec struct {
	Kind LayerKind

	Scale  float64 `json:",omitempty"`
	Offset float64 `json:",omitempty"`

	Top    int `json:",omitempty"`
	Bottom int `json:",omitempty"`

	Filters int     `json:",omitempty"`
	Kernel  int     `json:",omitempty"`
	Padding Padding `json:",omitempty"`

	Window int `json:",omitempty"`

	Units int `json:",omitempty"`

	Activation Activation `json:",omitempty"`
}

func (l LayerSpec) String() string {
	switch l.Kind {
	case Normalize:
		return fmt.Sprintf("normalize(x*%g%+g)", l.Scale, l.Offset)
	case Crop:
		return fmt.Sprintf("crop(top=%d, bottom=%d)", l.Top, l.Bottom)
	case Conv2D:
		return fmt.Sprintf("conv2d(%d, %dx%d, %s, %s)", l.Filters, l.Kernel, l.Kernel, l.Padding, activationName(l.Activation))
	case MaxPool:
		return fmt.Sprintf("maxpool(%dx%d)", l.Window, l.Window)
	case Flatten:
		return "flatten"
	case Dense:
		return fmt.Sprintf("dense(%d, %s)", l.Units, activationName(l.Activation))
	}
	return string(l.Kind)
}

func activationName(a Activation) string {
	if a == Linear {
		return "linear"
	}
	return string(a)
}

func conv(filters, kernel int, padding Padding) LayerSpec {
	return LayerSpec{Kind: Conv2D, Filters: filters, Kernel: kernel, Padding: padding, Activation: ReLU}
}

func pool() LayerSpec {
	return LayerSpec{Kind: MaxPool, Window: 2}
}

func dense(units int, act Activation) LayerSpec {
	return LayerSpec{Kind: Dense, Units: units, Activation: act}
}

func normalize() LayerSpec {
	return LayerSpec{Kind: Normalize, Scale: 1.0 / 255.0, Offset: -0.5}
}

// Architecture is the steering network for 160x320x3 camera frames:
// normalization, a 70/25 row crop, five conv+pool stages and a dense funnel
// down to one linear output.
func Architecture() []LayerSpec {
	return []LayerSpec{
		normalize(),
		{Kind: Crop, Top: 70, Bottom: 25},
		conv(24, 5, Valid), pool(),
		conv(36, 5, Valid), pool(),
		conv(48, 5, Valid), pool(),
		conv(64, 3, Same), pool(),
		conv(64, 3, Same), pool(),
		{Kind: Flatten},
		dense(1164, ReLU),
		dense(100, ReLU),
		dense(50, ReLU),
		dense(10, ReLU),
		dense(1, Linear),
	}
}

// SmallArchitecture has the same layer sequence in miniature, for frames of
// SmallInputShape. It trains in well under a second on the CPU backend.
func SmallArchitecture() []LayerSpec {
	return []LayerSpec{
		normalize(),
		{Kind: Crop, Top: 4, Bottom: 2},
		conv(4, 3, Valid), pool(),
		conv(8, 3, Same), pool(),
		{Kind: Flatten},
		dense(16, ReLU),
		dense(1, Linear),
	}
}

// Shape is the per-example shape of a tensor: height, width, channels for
// images, a single dimension once flattened.
type Shape []int

// InputShape is the frame shape Architecture expects.
var InputShape = Shape{160, 320, 3}

// SmallInputShape is the frame shape SmallArchitecture expects.
var SmallInputShape = Shape{16, 32, 3}

// Size is the number of elements of the shape.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// InferShapes checks that layers can be applied to input and returns the
// per-example output shape of every layer. The network must end in a single
// scalar.
func InferShapes(layers []LayerSpec, input Shape) ([]Shape, error) {
	if len(input) != 3 {
		return nil, errors.Errorf("input shape %v is not height x width x channels", input)
	}
	shapes := make([]Shape, len(layers))
	cur := append(Shape(nil), input...)
	for i, l := range layers {
		next, err := layerOutput(l, cur)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d (%s) on input %v", i, l, cur)
		}
		shapes[i] = next
		cur = next
	}
	if !cur.Equal(Shape{1}) {
		return nil, errors.Errorf("network output shape is %v, want [1]", cur)
	}
	return shapes, nil
}

func layerOutput(l LayerSpec, in Shape) (Shape, error) {
	image := len(in) == 3
	switch l.Kind {
	case Normalize:
		if l.Scale == 0 {
			return nil, errors.New("zero scale")
		}
		return in, nil
	case Crop:
		if !image {
			return nil, errors.New("crop needs an image input")
		}
		if l.Top < 0 || l.Bottom < 0 || l.Top+l.Bottom >= in[0] {
			return nil, errors.Errorf("cannot crop %d+%d rows from %d", l.Top, l.Bottom, in[0])
		}
		return Shape{in[0] - l.Top - l.Bottom, in[1], in[2]}, nil
	case Conv2D:
		if !image {
			return nil, errors.New("convolution needs an image input")
		}
		if l.Filters < 1 || l.Kernel < 1 {
			return nil, errors.Errorf("invalid filters=%d kernel=%d", l.Filters, l.Kernel)
		}
		switch l.Padding {
		case Same:
			return Shape{in[0], in[1], l.Filters}, nil
		case Valid, "":
			h, w := in[0]-l.Kernel+1, in[1]-l.Kernel+1
			if h < 1 || w < 1 {
				return nil, errors.Errorf("kernel %d larger than %dx%d", l.Kernel, in[0], in[1])
			}
			return Shape{h, w, l.Filters}, nil
		}
		return nil, errors.Errorf("unknown padding %q", l.Padding)
	case MaxPool:
		if !image {
			return nil, errors.New("pooling needs an image input")
		}
		if l.Window < 1 {
			return nil, errors.Errorf("invalid window %d", l.Window)
		}
		h, w := in[0]/l.Window, in[1]/l.Window
		if h < 1 || w < 1 {
			return nil, errors.Errorf("window %d larger than %dx%d", l.Window, in[0], in[1])
		}
		return Shape{h, w, in[2]}, nil
	case Flatten:
		return Shape{in.Size()}, nil
	case Dense:
		if len(in) != 1 {
			return nil, errors.New("dense needs a flattened input")
		}
		if l.Units < 1 {
			return nil, errors.Errorf("invalid units %d", l.Units)
		}
		return Shape{l.Units}, nil
	}
	return nil, errors.Errorf("unknown layer kind %q", l.Kind)
}
