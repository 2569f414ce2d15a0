package tensor

import (
	"fmt"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/parallel"
)

// ConvertLayout produces a new tensor with the target layout. Only the
// NCHW<->NHWC pair is structurally supported; every other combination
// returns ErrUnsupportedConversion. The source is never modified.
func ConvertLayout(t *Tensor, target Layout) (*Tensor, error) {
	if t == nil {
		return nil, errdefs.InvalidArgumentf("nil tensor")
	}
	if t.layout == target {
		return t.Clone(), nil
	}

	switch {
	case t.layout == LayoutNCHW && target == LayoutNHWC:
		return permuteChannels(t, target, true)
	case t.layout == LayoutNHWC && target == LayoutNCHW:
		return permuteChannels(t, target, false)
	default:
		return nil, fmt.Errorf("%w: %s to %s", errdefs.ErrUnsupportedConversion, t.layout, target)
	}
}

// permuteChannels moves the channel dimension between positions 1 and 3 of
// a 4-D tensor. toLast selects NCHW->NHWC; otherwise NHWC->NCHW.
func permuteChannels(t *Tensor, target Layout, toLast bool) (*Tensor, error) {
	if len(t.shape) != 4 {
		return nil, errdefs.InvalidArgumentf(
			"layout conversion requires a 4-D tensor, got shape %v", t.shape)
	}

	var n, c, h, w int
	var newShape Shape
	if toLast {
		n, c, h, w = t.shape[0], t.shape[1], t.shape[2], t.shape[3]
		newShape = Shape{n, h, w, c}
	} else {
		n, h, w, c = t.shape[0], t.shape[1], t.shape[2], t.shape[3]
		newShape = Shape{n, c, h, w}
	}

	out, err := New(t.name, t.dtype, newShape, target)
	if err != nil {
		return nil, err
	}

	elem := t.dtype.Size()
	src := t.buf.data
	dst := out.buf.data

	// Element-wise copy indexed by (n, c, h, w) on both sides. Planes
	// are independent, so they fan out across workers.
	parallel.For(n*c, parallel.Config{MinBatch: 8}, func(p int) {
		in, ic := p/c, p%c
		for ih := 0; ih < h; ih++ {
			for iw := 0; iw < w; iw++ {
				chwIdx := ((in*c+ic)*h+ih)*w + iw
				hwcIdx := ((in*h+ih)*w+iw)*c + ic
				srcIdx, dstIdx := chwIdx, hwcIdx
				if !toLast {
					srcIdx, dstIdx = hwcIdx, chwIdx
				}
				copy(dst[dstIdx*elem:(dstIdx+1)*elem], src[srcIdx*elem:(srcIdx+1)*elem])
			}
		}
	})

	return out, nil
}
