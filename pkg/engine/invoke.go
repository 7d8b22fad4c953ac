package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sanonone/edgelite/pkg/edge"
	"github.com/sanonone/edgelite/pkg/gateway"
	"github.com/sanonone/edgelite/pkg/metrics"
	"github.com/sanonone/edgelite/pkg/path"
)

// ErrStepLimit aborts a run that executed more instructions than allowed.
var ErrStepLimit = errors.New("instruction step limit exceeded")

// Codes read from the node passed to dc_ns / dc_nt.
const (
	codeCode       = "$code"
	codeSourceCode = "$source_code"
	codeTargetCode = "$target_code"
)

// invokeResult is what one instruction tells the loop: move by jump, or
// stop with ret.
type invokeResult interface {
	invokeResult()
}

type jump int

type ret string

func (jump) invokeResult() {}
func (ret) invokeResult()  {}

// Interpreter executes programs against one session.
type Interpreter struct {
	gw       *gateway.Gateway
	resolver *path.Resolver
	renderer Renderer
	maxSteps int
	logger   *slog.Logger
}

// NewInterpreter returns an interpreter writing through gw.
func NewInterpreter(gw *gateway.Gateway, resolver *path.Resolver, renderer Renderer, maxSteps int, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{gw: gw, resolver: resolver, renderer: renderer, maxSteps: maxSteps, logger: logger}
}

type run struct {
	*Interpreter
	root     string
	lastDump string
}

// Run executes prog with root as the run root. It returns the value of the
// first return instruction, or the last dump output (empty if none) when
// execution runs past the end.
func (in *Interpreter) Run(ctx context.Context, root string, prog Program) (string, error) {
	r := &run{Interpreter: in, root: root}
	pos, steps := 0, 0
	for pos >= 0 && pos < len(prog) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		steps++
		if in.maxSteps > 0 && steps > in.maxSteps {
			return "", fmt.Errorf("%w: %d", ErrStepLimit, in.maxSteps)
		}

		res, err := r.step(ctx, prog[pos])
		if err != nil {
			return "", fmt.Errorf("inc %d %s: %w", pos, prog[pos].Inc, err)
		}
		switch res := res.(type) {
		case ret:
			return string(res), nil
		case jump:
			pos += int(res)
		}
	}
	return r.lastDump, nil
}

func (r *run) operand(ctx context.Context, s string) (string, error) {
	if !path.IsPath(s) {
		return s, nil
	}
	return r.resolver.ResolveString(ctx, s, r.root)
}

func (r *run) step(ctx context.Context, ins instruction) (invokeResult, error) {
	source, err := r.operand(ctx, ins.Source)
	if err != nil {
		return nil, err
	}
	target, err := r.operand(ctx, ins.Target)
	if err != nil {
		return nil, err
	}
	op := ins.op
	if op == opUnresolved {
		code, err := r.operand(ctx, ins.Code)
		if err != nil {
			return nil, err
		}
		if op, err = ParseOpcode(code); err != nil {
			return nil, err
		}
	}

	metrics.InstructionsTotal.WithLabelValues(op.String()).Inc()
	r.logger.Debug("invoke", "op", op.String(), "root", r.root, "source", source, "target", target)

	switch op {
	case OpReturn:
		return ret(target), nil
	case OpDump:
		text, err := r.renderer.Render(ctx, r.gw, target)
		if err != nil {
			return nil, err
		}
		r.lastDump = text
	case OpAsign:
		_, err = r.gw.SetTarget(ctx, r.root, edge.Variable(source), target)
	case OpDelete:
		err = r.gw.Delete(ctx, target)
	case OpDeleteCode:
		err = r.gw.DeleteCode(ctx, target)
	case OpDeleteCodeWithoutSource:
		err = r.conditionalDelete(ctx, target, codeSourceCode, r.gw.DeleteCodeWithoutSource)
	case OpDeleteCodeWithoutTarget:
		err = r.conditionalDelete(ctx, target, codeTargetCode, r.gw.DeleteCodeWithoutTarget)
	case OpSet:
		_, err = r.gw.SetTarget(ctx, r.root, source, target)
	case OpAppend:
		_, err = r.gw.AppendTarget(ctx, r.root, source, target)
	default:
		return nil, fmt.Errorf("%w %d", ErrUnknownOpcode, op)
	}
	if err != nil {
		return nil, err
	}
	return jump(1), nil
}

// conditionalDelete reads the code to delete and the neighbor code from
// node, then runs del with both.
func (r *run) conditionalDelete(ctx context.Context, node, neighborCode string, del func(context.Context, string, string) error) error {
	code, err := r.resolver.GetTargetAnyway(ctx, node, codeCode)
	if err != nil {
		return err
	}
	neighbor, err := r.resolver.GetTargetAnyway(ctx, node, neighborCode)
	if err != nil {
		return err
	}
	return del(ctx, code, neighbor)
}
