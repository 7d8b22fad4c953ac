package engine

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/sanonone/edgelite/pkg/path"
)

// Inc is one instruction: Code names the opcode, Source and Target are its
// operands. Any of the three may be a path expression, resolved against
// the run root before dispatch.
type Inc struct {
	Source string `json:"source" yaml:"source"`
	Code   string `json:"code" yaml:"code"`
	Target string `json:"target" yaml:"target"`
}

func (i Inc) String() string {
	return fmt.Sprintf("{%s %s %s}", i.Source, i.Code, i.Target)
}

// Opcode is the closed set of instructions the interpreter understands.
type Opcode int

const (
	opUnresolved Opcode = iota
	OpReturn
	OpDump
	OpAsign
	OpDelete
	OpDeleteCode
	OpDeleteCodeWithoutSource
	OpDeleteCodeWithoutTarget
	OpSet
	OpAppend
)

var opcodeNames = map[string]Opcode{
	"return": OpReturn,
	"dump":   OpDump,
	"asign":  OpAsign,
	"delete": OpDelete,
	"dc":     OpDeleteCode,
	"dc_ns":  OpDeleteCodeWithoutSource,
	"dc_nt":  OpDeleteCodeWithoutTarget,
	"set":    OpSet,
	"append": OpAppend,
}

var opcodeStrings = [...]string{
	opUnresolved:              "unresolved",
	OpReturn:                  "return",
	OpDump:                    "dump",
	OpAsign:                   "asign",
	OpDelete:                  "delete",
	OpDeleteCode:              "dc",
	OpDeleteCodeWithoutSource: "dc_ns",
	OpDeleteCodeWithoutTarget: "dc_nt",
	OpSet:                     "set",
	OpAppend:                  "append",
}

func (o Opcode) String() string {
	if o < 0 || int(o) >= len(opcodeStrings) {
		return fmt.Sprintf("Opcode(%d)", int(o))
	}
	return opcodeStrings[o]
}

// ErrUnknownOpcode is returned for instructions whose code names no opcode.
var ErrUnknownOpcode = errors.New("unknown opcode")

// ParseOpcode maps an instruction code to its opcode.
func ParseOpcode(name string) (Opcode, error) {
	op, ok := opcodeNames[name]
	if !ok {
		return opUnresolved, fmt.Errorf("%w %q", ErrUnknownOpcode, name)
	}
	return op, nil
}

type instruction struct {
	Inc
	// op is opUnresolved when Code is a path, decided after resolution.
	op Opcode
}

// Program is a compiled instruction sequence.
type Program []instruction

// Compile decides the opcode of every instruction with a literal code, so
// a program naming an unknown opcode is rejected before anything runs.
func Compile(incs []Inc) (Program, error) {
	prog := make(Program, len(incs))
	for i, inc := range incs {
		prog[i] = instruction{Inc: inc}
		if path.IsPath(inc.Code) {
			continue
		}
		op, err := ParseOpcode(inc.Code)
		if err != nil {
			return nil, fmt.Errorf("inc %d: %w", i, err)
		}
		prog[i].op = op
	}
	return prog, nil
}

// LoadProgram reads an instruction list. The input may be YAML or JSON:
//
//	- {source: x, code: append, target: y}
//	- {source: "", code: return, target: done}
func LoadProgram(r io.Reader) ([]Inc, error) {
	var incs []Inc
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&incs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}
	return incs, nil
}
