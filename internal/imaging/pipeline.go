package imaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ironsheep/imgengine/internal/fault"
	"github.com/ironsheep/imgengine/internal/pixel"
)

// Pipeline is an ordered list of operations applied one after another.
//
// A Pipeline holds no per-run state and may be run concurrently on different
// buffers. Operations that keep buffers of their own (Composite) implement
// io.Closer; Close releases them once the pipeline is no longer needed.
type Pipeline struct {
	ops []Operation
}

// NewPipeline returns a pipeline running ops in order.
func NewPipeline(ops ...Operation) *Pipeline {
	return &Pipeline{ops: append([]Operation(nil), ops...)}
}

// Len returns the number of steps.
func (p *Pipeline) Len() int { return len(p.ops) }

// Ops returns a copy of the step list.
func (p *Pipeline) Ops() []Operation { return append([]Operation(nil), p.ops...) }

// Prepend returns a new pipeline with op in front of p's steps. The new
// pipeline shares p's operations, so only one of them should be closed.
func (p *Pipeline) Prepend(op Operation) *Pipeline {
	return &Pipeline{ops: append([]Operation{op}, p.ops...)}
}

// String lists the step names, e.g. "resize -> blur".
func (p *Pipeline) String() string {
	names := make([]string, len(p.ops))
	for i, op := range p.ops {
		names[i] = op.Name()
	}
	return strings.Join(names, " -> ")
}

// Run applies every step to src and returns the final buffer.
//
// Parameters:
//   - ctx: Checked before each step; a cancelled context stops the run with a
//     Cancelled error.
//   - src: The input. Run never releases it. If src is exclusive, steps may
//     modify it in place and the result may be src itself.
//   - pool: Source of intermediate and output buffers. Nil allocates
//     unpooled memory.
//
// Returns:
//   - *pixel.Buffer: The result, owned by the caller. When it is not src the
//     caller must release both.
//   - error: The first failing step's error, wrapped with the step index and
//     name. Intermediates are released before returning.
//
// Each step is validated immediately before it runs, against the layout the
// previous step produced.
func (p *Pipeline) Run(ctx context.Context, src *pixel.Buffer, pool *pixel.Pool) (*pixel.Buffer, error) {
	cur := src
	var held *pixel.Buffer
	defer pixel.ReleaseOnPanic(&held)
	for i, op := range p.ops {
		out, err := Apply(ctx, op, cur, pool)
		if err != nil {
			if cur != src {
				cur.Release()
			}
			return nil, fault.Wrap(err, fmt.Sprintf("step %d (%s)", i, op.Name()), fault.ClassTransform, fault.InvalidParameters)
		}
		if out != cur && cur != src {
			cur.Release()
		}
		cur = out
		if cur != src {
			held = cur
		}
	}
	held = nil
	return cur, nil
}

// Close releases resources held by the operations.
func (p *Pipeline) Close() error {
	var errs []error
	for _, op := range p.ops {
		if c, ok := op.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
