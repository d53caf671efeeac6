package vm

import (
	"fmt"

	"github.com/standardbeagle/rholang-core/internal/bytecode"
	"github.com/standardbeagle/rholang-core/internal/types"
)

type stepKind uint8

const (
	stepNext stepKind = iota
	stepStop
	stepJump
)

type stepResult struct {
	kind   stepKind
	target int
}

// step executes one instruction against p, mirroring execute.rs's `step`
// dispatch opcode-for-opcode where the reference defines behavior, and
// extending it (§6.3's full opcode enumeration) where the reference's own
// match falls through to its "unimplemented" arm.
func step(vm *VM, p *Process, ins bytecode.Instruction) (stepResult, error) {
	op := ins.Opcode
	name := op.String()
	switch op {
	case bytecode.NOP:
		// no-op

	case bytecode.HALT, bytecode.RETURN:
		return stepResult{kind: stepStop}, nil

	case bytecode.PUSH_INT:
		p.push(types.IntValue(int64(int16(ins.Op16()))))
	case bytecode.PUSH_BOOL:
		p.push(types.BoolValue(ins.Operand0 != 0))
	case bytecode.PUSH_STR:
		idx := int(ins.Op16())
		if idx < 0 || idx >= len(p.strings) {
			return stepResult{}, errInvalidOperand(name, fmt.Sprintf("string index %d out of bounds", idx))
		}
		p.push(types.StrValue(p.strings[idx]))
	case bytecode.PUSH_NIL:
		p.push(types.NilValue)
	case bytecode.PUSH_PROC:
		// Reserved for a future literal-process constant table; no compiler
		// path emits it yet (every process value this VM sees arrives via
		// SPAWN_ASYNC/EVAL, not as a pushed constant).
		return stepResult{}, errInvalidOperand(name, "no process constant table is wired yet")
	case bytecode.PUSH_NAME:
		idx := int(ins.Op16())
		if idx < 0 || idx >= len(p.strings) {
			return stepResult{}, errInvalidOperand(name, fmt.Sprintf("name index %d out of bounds", idx))
		}
		p.push(types.NameValue(p.strings[idx]))
	case bytecode.POP:
		if _, err := p.pop(name); err != nil {
			return stepResult{}, err
		}

	case bytecode.ADD:
		return stepResult{}, binArith(p, name, func(a, b int64) (types.Value, error) { return types.IntValue(a + b), nil },
			func(a, b types.Value) (types.Value, bool) {
				switch {
				case a.Kind == types.ValueStr && b.Kind == types.ValueStr:
					return types.StrValue(a.Str + b.Str), true
				case a.Kind == types.ValueList && b.Kind == types.ValueList:
					out := append(append([]types.Value{}, a.List...), b.List...)
					return types.ListValue(out), true
				default:
					return types.Value{}, false
				}
			})
	case bytecode.SUB:
		return stepResult{}, intArith(p, name, func(a, b int64) (int64, error) { return a - b, nil })
	case bytecode.MUL:
		return stepResult{}, intArith(p, name, func(a, b int64) (int64, error) { return a * b, nil })
	case bytecode.DIV:
		return stepResult{}, intArith(p, name, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, errDivByZero(name)
			}
			return a / b, nil
		})
	case bytecode.MOD:
		return stepResult{}, intArith(p, name, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, errDivByZero(name)
			}
			return a % b, nil
		})
	case bytecode.NEG:
		v, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		if v.Kind != types.ValueInt {
			return stepResult{}, errTypeMismatch(name, "requires Int")
		}
		p.push(types.IntValue(-v.Int))

	case bytecode.CMP_EQ, bytecode.CMP_NEQ:
		b, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		a, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		eq := a.Equal(b)
		if op == bytecode.CMP_NEQ {
			eq = !eq
		}
		p.push(types.BoolValue(eq))
	case bytecode.CMP_LT:
		return stepResult{}, intCompare(p, name, func(a, b int64) bool { return a < b })
	case bytecode.CMP_LTE:
		return stepResult{}, intCompare(p, name, func(a, b int64) bool { return a <= b })
	case bytecode.CMP_GT:
		return stepResult{}, intCompare(p, name, func(a, b int64) bool { return a > b })
	case bytecode.CMP_GTE:
		return stepResult{}, intCompare(p, name, func(a, b int64) bool { return a >= b })

	case bytecode.NOT:
		v, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		if v.Kind != types.ValueBool {
			return stepResult{}, errTypeMismatch(name, "requires Bool")
		}
		p.push(types.BoolValue(!v.Bool))
	case bytecode.AND:
		return stepResult{}, boolArith(p, name, func(a, b bool) bool { return a && b })
	case bytecode.OR:
		return stepResult{}, boolArith(p, name, func(a, b bool) bool { return a || b })

	case bytecode.DUP:
		v, err := p.last(name)
		if err != nil {
			return stepResult{}, err
		}
		p.push(v)
	case bytecode.SWAP:
		if len(p.stack) < 2 {
			return stepResult{}, errStackUnderflow(name)
		}
		n := len(p.stack)
		p.stack[n-1], p.stack[n-2] = p.stack[n-2], p.stack[n-1]

	case bytecode.ALLOC_LOCAL:
		slot := int(ins.Op16())
		growLocals(p, slot)
	case bytecode.LOAD_VAR, bytecode.LOAD_LOCAL:
		idx := int(ins.Op16())
		if idx < 0 || idx >= len(p.locals) {
			return stepResult{}, errLocalsOutOfBounds(name, idx)
		}
		p.push(p.locals[idx])
	case bytecode.STORE_LOCAL:
		idx := int(ins.Op16())
		v, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		growLocals(p, idx)
		p.locals[idx] = v
	case bytecode.LOAD_ENV:
		idx := int(ins.Op16())
		if idx < 0 || idx >= len(p.env) {
			return stepResult{}, errLocalsOutOfBounds(name, idx)
		}
		p.push(p.env[idx])
	case bytecode.STORE_ENV:
		idx := int(ins.Op16())
		v, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		if idx >= len(p.env) {
			grown := make([]types.Value, idx+1)
			copy(grown, p.env)
			p.env = grown
		}
		p.env[idx] = v

	case bytecode.JUMP:
		return stepResult{kind: stepJump, target: int(ins.Op16())}, nil
	case bytecode.BRANCH_TRUE:
		return branch(p, name, ins, true)
	case bytecode.BRANCH_FALSE:
		return branch(p, name, ins, false)
	case bytecode.BRANCH_SUCCESS:
		return branch(p, name, ins, true)

	case bytecode.CREATE_LIST:
		vs, err := p.popN(name, int(ins.Op16()))
		if err != nil {
			return stepResult{}, err
		}
		p.push(types.ListValue(vs))
	case bytecode.CREATE_TUPLE:
		vs, err := p.popN(name, int(ins.Op16()))
		if err != nil {
			return stepResult{}, err
		}
		p.push(types.TupleValue(vs))
	case bytecode.CREATE_MAP:
		n := int(ins.Op16())
		vs, err := p.popN(name, n*2)
		if err != nil {
			return stepResult{}, err
		}
		entries := make([]types.MapEntry, 0, n)
		for i := 0; i+1 < len(vs); i += 2 {
			entries = append(entries, types.MapEntry{Key: vs[i], Value: vs[i+1]})
		}
		p.push(types.MapValue(entries))
	case bytecode.CONCAT:
		b, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		a, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		switch {
		case a.Kind == types.ValueStr && b.Kind == types.ValueStr:
			p.push(types.StrValue(a.Str + b.Str))
		case a.Kind == types.ValueList && b.Kind == types.ValueList:
			p.push(types.ListValue(append(append([]types.Value{}, a.List...), b.List...)))
		default:
			return stepResult{}, errTypeMismatch(name, "requires two Strings or two Lists")
		}
	case bytecode.DIFF:
		b, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		a, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		if a.Kind != types.ValueList || b.Kind != types.ValueList {
			return stepResult{}, errTypeMismatch(name, "requires two Lists")
		}
		p.push(types.ListValue(multisetDiff(a.List, b.List)))
	case bytecode.INTERPOLATE:
		return stepResult{}, &ExecError{Opcode: name, Message: "not implemented: no string-interpolation surface reaches the compiler yet"}

	case bytecode.SPAWN_ASYNC:
		vs, err := p.popN(name, int(ins.Op16()))
		if err != nil {
			return stepResult{}, err
		}
		var procs []types.ProcessRef
		for _, v := range vs {
			switch v.Kind {
			case types.ValuePar:
				procs = append(procs, v.Par...)
			case types.ValueNil:
			default:
				return stepResult{}, errTypeMismatch(name, "expected process list")
			}
		}
		p.push(types.ParValue(procs))
	case bytecode.NAME_CREATE:
		kind := types.RSpaceKind(ins.Op16())
		p.push(types.NameValue(vm.mintName(kind)))

	case bytecode.TELL:
		kind := types.RSpaceKind(ins.Operand0)
		data, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		chanVal, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		if chanVal.Kind != types.ValueName {
			return stepResult{}, errTypeMismatch(name, "requires Name channel")
		}
		if err := vm.RSpace.Tell(kind, chanVal.Name, data); err != nil {
			return stepResult{}, errChannelStore(name, err.Error())
		}
		p.push(types.BoolValue(true))
	case bytecode.ASK, bytecode.ASK_NB:
		kind := types.RSpaceKind(ins.Operand0)
		chanVal, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		if chanVal.Kind != types.ValueName {
			return stepResult{}, errTypeMismatch(name, "requires Name channel")
		}
		result, ok, err := vm.RSpace.Ask(kind, chanVal.Name)
		if err != nil {
			return stepResult{}, errChannelStore(name, err.Error())
		}
		if !ok {
			p.push(types.NilValue)
		} else {
			p.push(result)
		}
	case bytecode.PEEK:
		kind := types.RSpaceKind(ins.Operand0)
		chanVal, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		if chanVal.Kind != types.ValueName {
			return stepResult{}, errTypeMismatch(name, "requires Name channel")
		}
		result, ok, err := vm.RSpace.Peek(kind, chanVal.Name)
		if err != nil {
			return stepResult{}, errChannelStore(name, err.Error())
		}
		if !ok {
			p.push(types.NilValue)
		} else {
			p.push(result)
		}
	case bytecode.NAME_QUOTE:
		v, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		p.push(types.NameValue(v.Render()))
	case bytecode.NAME_UNQUOTE:
		v, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		if v.Kind != types.ValueName {
			return stepResult{}, errTypeMismatch(name, "requires Name")
		}
		p.push(types.StrValue(v.Name))
	case bytecode.CONT_STORE:
		v, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		id := vm.nextContID
		vm.nextContID++
		vm.contLast = &storedCont{id: id, value: v}
		p.push(types.IntValue(int64(id)))
	case bytecode.CONT_RESUME:
		v, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		if v.Kind != types.ValueInt {
			return stepResult{}, errTypeMismatch(name, "requires Int id")
		}
		if vm.contLast != nil && int64(vm.contLast.id) == v.Int {
			p.push(vm.contLast.value)
		} else {
			p.push(types.NilValue)
		}
	case bytecode.BUNDLE_BEGIN:
		// Pops the bundle-type marker the compiler pushes via PUSH_INT just
		// before BUNDLE_BEGIN (§4.6). Capability restriction (read-only,
		// write-only, etc.) is a static property the resolver/elaborator
		// already checked; there is nothing left to gate at runtime in a
		// single-threaded, non-scheduled VM.
		if _, err := p.pop(name); err != nil {
			return stepResult{}, err
		}
	case bytecode.BUNDLE_END:
		// no-op: brackets BUNDLE_BEGIN, nothing to unwind at runtime.

	case bytecode.PATTERN:
		idx := uint32(ins.Op16())
		pat, ok := vm.Pool.GetPattern(idx)
		if !ok {
			return stepResult{}, errInvalidOperand(name, fmt.Sprintf("pattern index %d not found", idx))
		}
		p.pendingPattern = &pat
	case bytecode.MATCH_TEST:
		// Ground-literal matching is compiled directly to CMP_EQ (§4.6);
		// MATCH_TEST exists for a future structural matcher and currently
		// always reports success, since every pattern this compiler builds
		// is irrefutable (unconditional destructuring, not refutation).
		p.push(types.BoolValue(true))
	case bytecode.EXTRACT_BINDINGS:
		if p.pendingPattern == nil {
			return stepResult{}, errInvalidOperand(name, "no pattern selected (PATTERN must precede EXTRACT_BINDINGS)")
		}
		target, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		bindings, err := extractBindings(p.pendingPattern.Bytecode, target)
		if err != nil {
			return stepResult{}, errInvalidOperand(name, err.Error())
		}
		p.pendingPattern = nil
		for i := len(bindings) - 1; i >= 0; i-- {
			p.push(bindings[i])
		}

	case bytecode.COPY:
		v, err := p.last(name)
		if err != nil {
			return stepResult{}, err
		}
		p.push(v)
	case bytecode.MOVE:
		// Same runtime effect as a plain move-through: Go values here are
		// already copy-on-assign, so MOVE is indistinguishable from a no-op
		// read of the top of stack; it exists in the ISA for an allocator
		// that tracks ownership, which this VM does not implement.
	case bytecode.REF:
		v, err := p.last(name)
		if err != nil {
			return stepResult{}, err
		}
		p.push(v)

	case bytecode.LOAD_METHOD:
		idx := int(ins.Op16())
		if idx < 0 || idx >= len(p.strings) {
			return stepResult{}, errInvalidOperand(name, fmt.Sprintf("method name index %d out of bounds", idx))
		}
		p.push(types.StrValue(p.strings[idx]))
	case bytecode.INVOKE_METHOD:
		argc := int(ins.Op16())
		args, err := p.popN(name, argc)
		if err != nil {
			return stepResult{}, err
		}
		methodName, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		if methodName.Kind != types.ValueStr {
			return stepResult{}, errTypeMismatch(name, "expected method name on stack")
		}
		result, err := invokeBuiltinMethod(methodName.Str, args)
		if err != nil {
			return stepResult{}, &ExecError{Opcode: name, Message: err.Error()}
		}
		p.push(result)

	case bytecode.EVAL, bytecode.EVAL_STAR, bytecode.EXEC:
		target, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		result, err := evalValue(vm, target)
		if err != nil {
			return stepResult{}, err
		}
		p.push(result)
	case bytecode.EVAL_BOOL, bytecode.PROC_NEG:
		v, err := p.pop(name)
		if err != nil {
			return stepResult{}, err
		}
		if op == bytecode.EVAL_BOOL {
			result, err := evalValue(vm, v)
			if err != nil {
				return stepResult{}, err
			}
			if result.Kind != types.ValueBool {
				return stepResult{}, errTypeMismatch(name, "evaluated process did not produce a Bool")
			}
			p.push(result)
		} else {
			if v.Kind != types.ValueBool {
				return stepResult{}, errTypeMismatch(name, "requires Bool")
			}
			p.push(types.BoolValue(!v.Bool))
		}

	default:
		return stepResult{}, &ExecError{Opcode: name, Message: "opcode not implemented"}
	}
	return stepResult{kind: stepNext}, nil
}

// invokeBuiltinMethod implements the small set of methods Rholang source
// calls via the dot-method surface (`ch.length()`, `list.nth(i)`, and the
// like) — §4.6 compiles a method call as LOAD_METHOD + args +
// INVOKE_METHOD, but no grounding source defines the exact method set, so
// this sticks to the handful with unambiguous, type-driven semantics.
func invokeBuiltinMethod(method string, args []types.Value) (types.Value, error) {
	switch method {
	case "length":
		if len(args) != 1 {
			return types.Value{}, fmt.Errorf("%s: expected 1 receiver argument", method)
		}
		switch args[0].Kind {
		case types.ValueList:
			return types.IntValue(int64(len(args[0].List))), nil
		case types.ValueTuple:
			return types.IntValue(int64(len(args[0].Tuple))), nil
		case types.ValueStr:
			return types.IntValue(int64(len(args[0].Str))), nil
		case types.ValueMap:
			return types.IntValue(int64(len(args[0].Map))), nil
		default:
			return types.Value{}, fmt.Errorf("%s: unsupported receiver kind", method)
		}
	case "nth":
		if len(args) != 2 || args[1].Kind != types.ValueInt {
			return types.Value{}, fmt.Errorf("%s: expected (list, Int index)", method)
		}
		elems := args[0].List
		if args[0].Kind == types.ValueTuple {
			elems = args[0].Tuple
		}
		i := args[1].Int
		if i < 0 || i >= int64(len(elems)) {
			return types.Value{}, fmt.Errorf("%s: index %d out of range", method, i)
		}
		return elems[i], nil
	case "toByteArray":
		if len(args) != 1 || args[0].Kind != types.ValueStr {
			return types.Value{}, fmt.Errorf("%s: expected (Str)", method)
		}
		return types.StrValue(args[0].Str), nil
	default:
		return types.Value{}, fmt.Errorf("unknown method %q", method)
	}
}

func growLocals(p *Process, idx int) {
	if idx >= len(p.locals) {
		grown := make([]types.Value, idx+1)
		copy(grown, p.locals)
		p.locals = grown
	}
}

func branch(p *Process, name string, ins bytecode.Instruction, onTrue bool) (stepResult, error) {
	cond, err := p.pop(name)
	if err != nil {
		return stepResult{}, err
	}
	if cond.Kind != types.ValueBool {
		return stepResult{}, errTypeMismatch(name, "expects Bool on stack")
	}
	if cond.Bool == onTrue {
		return stepResult{kind: stepJump, target: int(ins.Op16())}, nil
	}
	return stepResult{kind: stepNext}, nil
}

func intArith(p *Process, name string, f func(a, b int64) (int64, error)) error {
	b, err := p.pop(name)
	if err != nil {
		return err
	}
	a, err := p.pop(name)
	if err != nil {
		return err
	}
	if a.Kind != types.ValueInt || b.Kind != types.ValueInt {
		return errTypeMismatch(name, "requires Ints")
	}
	v, err := f(a.Int, b.Int)
	if err != nil {
		return err
	}
	p.push(types.IntValue(v))
	return nil
}

func binArith(p *Process, name string, intOp func(a, b int64) (types.Value, error), otherOp func(a, b types.Value) (types.Value, bool)) error {
	b, err := p.pop(name)
	if err != nil {
		return err
	}
	a, err := p.pop(name)
	if err != nil {
		return err
	}
	if a.Kind == types.ValueInt && b.Kind == types.ValueInt {
		v, err := intOp(a.Int, b.Int)
		if err != nil {
			return err
		}
		p.push(v)
		return nil
	}
	if v, ok := otherOp(a, b); ok {
		p.push(v)
		return nil
	}
	return errTypeMismatch(name, "type mismatch")
}

func intCompare(p *Process, name string, cmp func(a, b int64) bool) error {
	b, err := p.pop(name)
	if err != nil {
		return err
	}
	a, err := p.pop(name)
	if err != nil {
		return err
	}
	if a.Kind != types.ValueInt || b.Kind != types.ValueInt {
		return errTypeMismatch(name, "requires Ints")
	}
	p.push(types.BoolValue(cmp(a.Int, b.Int)))
	return nil
}

func boolArith(p *Process, name string, f func(a, b bool) bool) error {
	b, err := p.pop(name)
	if err != nil {
		return err
	}
	a, err := p.pop(name)
	if err != nil {
		return err
	}
	if a.Kind != types.ValueBool || b.Kind != types.ValueBool {
		return errTypeMismatch(name, "requires Bools")
	}
	p.push(types.BoolValue(f(a.Bool, b.Bool)))
	return nil
}

// multisetDiff removes, for each element of b, one matching occurrence from
// a (by value equality), preserving a's relative order — "a minus b" per
// §4.7's DIFF semantics.
func multisetDiff(a, b []types.Value) []types.Value {
	remaining := append([]types.Value{}, b...)
	out := make([]types.Value, 0, len(a))
	for _, item := range a {
		removed := false
		for i, r := range remaining {
			if item.Equal(r) {
				remaining = append(remaining[:i], remaining[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			out = append(out, item)
		}
	}
	return out
}

// evalValue implements EVAL/EVAL_STAR/EXEC's shared rule (§4.7): a Par
// value runs each inner process that is still ready and returns the single
// result unwrapped, or a List if more than one ran; any other value passes
// through unchanged since it is already evaluated.
func evalValue(vm *VM, target types.Value) (types.Value, error) {
	if target.Kind != types.ValuePar {
		return target, nil
	}
	var results []types.Value
	for _, ref := range target.Par {
		runner, ok := ref.(interface {
			IsReady() bool
			Execute(*VM) (types.Value, error)
		})
		if !ok || !runner.IsReady() {
			continue
		}
		result, err := runner.Execute(vm)
		if err != nil {
			return types.Value{}, err
		}
		results = append(results, result)
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return types.ListValue(results), nil
}
