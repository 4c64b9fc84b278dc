package steering

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// The spatial layers below move pixels with Gather, whose gradient is a
// ScatterSum, and pad with Concatenate. The simplego backend implements
// neither Pad, Reverse nor SelectAndScatterMax, which the gradients of
// graph.Slice, layers.Convolution and graph.MaxPool need.
//
// Images are [batch, height, width, channels]. Internally the spatial axes
// are moved to the front, so a single Gather can index (row, column) pairs.

func spatialMajor(x *graph.Node) *graph.Node { return graph.TransposeAllAxes(x, 1, 2, 0, 3) }

func batchMajor(x *graph.Node) *graph.Node { return graph.TransposeAllAxes(x, 2, 0, 1, 3) }

func indexConst(g *graph.Graph, flat []int32, dims ...int) *graph.Node {
	return graph.Reshape(graph.Const(g, flat), dims...)
}

// cropRows drops the top and bottom rows of x.
func cropRows(x *graph.Node, top, bottom int) *graph.Node {
	height := x.Shape().Dimensions[1]
	rows := make([]int32, 0, height-top-bottom)
	for r := top; r < height-bottom; r++ {
		rows = append(rows, int32(r))
	}
	idx := indexConst(x.Graph(), rows, len(rows), 1)
	return batchMajor(graph.Gather(spatialMajor(x), idx, true))
}

// padAxis zero-pads axis of x with before and after entries.
func padAxis(x *graph.Node, axis, before, after int) *graph.Node {
	zeros := func(n int) *graph.Node {
		shape := x.Shape().Clone()
		shape.Dimensions[axis] = n
		return graph.Zeros(x.Graph(), shape)
	}
	parts := make([]*graph.Node, 0, 3)
	if before > 0 {
		parts = append(parts, zeros(before))
	}
	parts = append(parts, x)
	if after > 0 {
		parts = append(parts, zeros(after))
	}
	if len(parts) == 1 {
		return x
	}
	return graph.Concatenate(parts, axis)
}

// windowIndices returns the (row, column) of input pixel (i+dy, j+dx) for
// every output position (i, j), shaped [height, width, 2].
func windowIndices(g *graph.Graph, height, width, dy, dx int) *graph.Node {
	flat := make([]int32, 0, height*width*2)
	for i := 0; i < height; i++ {
		for j := 0; j < width; j++ {
			flat = append(flat, int32(i+dy), int32(j+dx))
		}
	}
	return indexConst(g, flat, height, width, 2)
}

// conv2D is a stride 1 convolution with a [kernel, kernel, channels,
// filters] weight variable and one bias per filter. It sums, over the kernel
// offsets, the input shifted by that offset times the kernel tap at it.
func conv2D(ctx *context.Context, x *graph.Node, filters, kernel int, padding Padding) *graph.Node {
	g := x.Graph()
	channels := x.Shape().Dimensions[3]
	xs := spatialMajor(x)
	if padding == Same {
		before := (kernel - 1) / 2
		after := kernel - 1 - before
		xs = padAxis(padAxis(xs, 0, before, after), 1, before, after)
	}
	height := xs.Shape().Dimensions[0] - kernel + 1
	width := xs.Shape().Dimensions[1] - kernel + 1

	ctx = ctx.In("conv")
	weights := ctx.VariableWithShape("weights", shapes.Make(x.DType(), kernel, kernel, channels, filters)).ValueGraph(g)
	taps := graph.Reshape(weights, kernel*kernel, channels, filters)
	var out *graph.Node
	for dy := 0; dy < kernel; dy++ {
		for dx := 0; dx < kernel; dx++ {
			shifted := graph.Gather(xs, windowIndices(g, height, width, dy, dx), true)
			tap := graph.Gather(taps, indexConst(g, []int32{int32(dy*kernel + dx)}, 1))
			term := graph.Einsum("hwbc,cf->bhwf", shifted, tap)
			if out == nil {
				out = term
			} else {
				out = graph.Add(out, term)
			}
		}
	}
	bias := ctx.VariableWithShape("biases", shapes.Make(x.DType(), filters)).ValueGraph(g)
	return graph.Add(out, graph.Reshape(bias, 1, 1, 1, filters))
}

// maxPool2D keeps the maximum of every non-overlapping window x window
// block. Trailing rows and columns that do not fill a block are dropped.
func maxPool2D(x *graph.Node, window int) *graph.Node {
	dims := x.Shape().Dimensions
	height, width := dims[1]/window, dims[2]/window
	flat := make([]int32, 0, height*width*window*window*2)
	for i := 0; i < height; i++ {
		for a := 0; a < window; a++ {
			for j := 0; j < width; j++ {
				for b := 0; b < window; b++ {
					flat = append(flat, int32(i*window+a), int32(j*window+b))
				}
			}
		}
	}
	idx := indexConst(x.Graph(), flat, height, window, width, window, 2)
	// [height, window, width, window, batch, channels]
	blocks := graph.Gather(spatialMajor(x), idx, true)
	return batchMajor(graph.ReduceMax(blocks, 1, 3))
}
