package steering

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/pkg/errors"
)

// buildGraph applies the layer descriptors to a batch of images shaped
// [batch, height, width, channels] (float32, 0..255) and returns the
// predictions shaped [batch, 1]. Every layer gets its own variable scope, so
// the same descriptors always map to the same variable names.
//
// gomlx reports graph construction errors by panicking; so does this.
func buildGraph(ctx *context.Context, specs []LayerSpec, images *graph.Node) *graph.Node {
	outputs := layerOutputs(ctx, specs, images)
	return outputs[len(outputs)-1]
}

// layerOutputs returns the output of every layer, in order.
func layerOutputs(ctx *context.Context, specs []LayerSpec, images *graph.Node) []*graph.Node {
	outputs := make([]*graph.Node, 0, len(specs))
	x := images
	for i, l := range specs {
		scope := ctx.In(fmt.Sprintf("%02d_%s", i, l.Kind))
		switch l.Kind {
		case Normalize:
			x = graph.AddScalar(graph.MulScalar(x, l.Scale), l.Offset)
		case Crop:
			x = cropRows(x, l.Top, l.Bottom)
		case Conv2D:
			x = activate(conv2D(scope, x, l.Filters, l.Kernel, l.Padding), l.Activation)
		case MaxPool:
			x = maxPool2D(x, l.Window)
		case Flatten:
			dims := x.Shape().Dimensions
			size := 1
			for _, d := range dims[1:] {
				size *= d
			}
			x = graph.Reshape(x, dims[0], size)
		case Dense:
			x = activate(layers.Dense(scope, x, true, l.Units), l.Activation)
		default:
			panic(errors.Errorf("unknown layer kind %q", l.Kind))
		}
		outputs = append(outputs, x)
	}
	return outputs
}

func activate(x *graph.Node, a Activation) *graph.Node {
	switch a {
	case ReLU:
		return activations.Relu(x)
	case Linear:
		return x
	}
	panic(errors.Errorf("unknown activation %q", a))
}
