package sandbox

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"

	"github.com/flemzord/toolcore/internal/process"
)

// DefaultMaxCallStack caps JavaScript recursion depth.
const DefaultMaxCallStack = 512

// RegexpMatchTimeout bounds a single regular-expression match. Patterns
// outside RE2 syntax (lookaround, backreferences) run on a backtracking
// engine that does not observe VM interrupts. A match that times out is
// reported to the guest as no match.
const RegexpMatchTimeout = 250 * time.Millisecond

func init() {
	regexp2.DefaultMatchTimeout = RegexpMatchTimeout
}

// allowedGlobals survive hardening; everything else on the global object
// is deleted before guest code runs.
var allowedGlobals = []string{
	"Object", "Array", "String", "Number", "Boolean", "Symbol",
	"Math", "JSON", "Date", "RegExp", "Map", "Set", "WeakMap", "WeakSet",
	"Error", "TypeError", "RangeError", "SyntaxError", "ReferenceError", "URIError",
	"parseInt", "parseFloat", "isNaN", "isFinite",
	"encodeURIComponent", "decodeURIComponent", "encodeURI", "decodeURI",
	"NaN", "Infinity", "undefined",
}

const pruneGlobals = `(function (allowed) {
	var g = globalThis;
	Object.getOwnPropertyNames(g).forEach(function (name) {
		if (allowed.indexOf(name) < 0) {
			delete g[name];
		}
	});
})`

// functionKinds produce one function of each kind; their prototypes carry
// the constructors that compile source text at runtime.
var functionKinds = []string{
	"(function () {})",
	"(function* () {})",
	"(async function () {})",
	"(async function* () {})",
}

// promiseStatics are the %Promise% methods that would let a guest queue
// a job once it holds a promise.
var promiseStatics = []string{"resolve", "reject", "all", "allSettled", "any", "race", "withResolvers", "try"}

var errInterrupted = errors.New("interrupted")

var (
	functionLiteralType = reflect.TypeOf(ast.FunctionLiteral{})
	arrowLiteralType    = reflect.TypeOf(ast.ArrowFunctionLiteral{})
	awaitType           = reflect.TypeOf(ast.AwaitExpression{})
	sourceFileType      = reflect.TypeOf(file.File{})
)

type jsStrategy struct {
	maxCallStack int
	maxOutput    int
}

func newJSStrategy(maxCallStack, maxOutput int) *jsStrategy {
	if maxCallStack <= 0 {
		maxCallStack = DefaultMaxCallStack
	}
	if maxOutput <= 0 {
		maxOutput = process.DefaultMaxOutputBytes
	}
	return &jsStrategy{maxCallStack: maxCallStack, maxOutput: maxOutput}
}

func (s *jsStrategy) Language() Language { return JavaScript }

func (s *jsStrategy) Spawns() bool { return false }

// Run evaluates code as the body of a function; a returned value is
// appended to the console output.
func (s *jsStrategy) Run(ctx context.Context, code string, timeout time.Duration) (Outcome, error) {
	prog, err := compileGuest(code)
	if err != nil {
		return Outcome{Error: guestMessage(err)}, nil
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(s.maxCallStack)

	if err := harden(vm); err != nil {
		return Outcome{}, fmt.Errorf("hardening javascript runtime: %w", err)
	}
	out := process.NewBoundedBuffer(s.maxOutput)
	if err := installConsole(vm, out); err != nil {
		return Outcome{}, fmt.Errorf("installing console: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(runCtx, func() { vm.Interrupt(errInterrupted) })
	defer stop()

	value, err := runGuarded(vm, prog)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			msg := canceledMessage
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				msg = timeoutMessage(timeout)
			}
			return Outcome{Output: out.String(), Error: msg, Truncated: out.Truncated()}, nil
		}
		return Outcome{Output: out.String(), Error: guestMessage(err), Truncated: out.Truncated()}, nil
	}

	if value != nil && !goja.IsUndefined(value) {
		_, _ = out.WriteString(value.String())
	}
	return Outcome{Success: true, Output: out.String(), Truncated: out.Truncated()}, nil
}

// runGuarded converts a panic escaping the VM into an error.
func runGuarded(vm *goja.Runtime, prog *goja.Program) (v goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("javascript runtime panic: %v", r)
		}
	}()
	return vm.RunProgram(prog)
}

// compileGuest wraps code as a function body and compiles it. Async
// functions and await are refused: their continuations run as promise
// jobs that the VM drains after the script returns.
func compileGuest(code string) (*goja.Program, error) {
	tree, err := goja.Parse("", "(function () {\n"+code+"\n})()", parser.WithDisableSourceMaps)
	if err != nil {
		return nil, err
	}
	if usesAsync(reflect.ValueOf(tree)) {
		return nil, errors.New("SyntaxError: async functions and await are not supported")
	}
	return goja.CompileAST(tree, false)
}

// usesAsync walks a parsed program looking for async functions, async
// arrows, and await expressions.
func usesAsync(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		return !v.IsNil() && usesAsync(v.Elem())
	case reflect.Slice:
		for i := range v.Len() {
			if usesAsync(v.Index(i)) {
				return true
			}
		}
	case reflect.Struct:
		switch v.Type() {
		case awaitType:
			return true
		case functionLiteralType, arrowLiteralType:
			if v.FieldByName("Async").Bool() {
				return true
			}
		case sourceFileType:
			return false
		}
		for i := range v.NumField() {
			if usesAsync(v.Field(i)) {
				return true
			}
		}
	}
	return false
}

// harden prunes the global object, replaces every function constructor
// with a thrower so neither eval, Function, nor (function(){}).constructor
// can compile new source, and seals the intrinsic promise.
func harden(vm *goja.Runtime) error {
	thrower := newThrower(vm, "dynamic code generation is disabled")

	for _, src := range functionKinds {
		fn, err := vm.RunString(src)
		if err != nil {
			// Syntax this runtime does not support cannot be used by guests either.
			continue
		}
		proto := fn.ToObject(vm).Prototype()
		if proto == nil {
			continue
		}
		if err := proto.DefineDataProperty("constructor", thrower, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			return fmt.Errorf("sealing %s constructor: %w", src, err)
		}
	}

	if err := sealPromise(vm); err != nil {
		return err
	}

	prune, err := vm.RunString(pruneGlobals)
	if err != nil {
		return err
	}
	call, ok := goja.AssertFunction(prune)
	if !ok {
		return errors.New("global pruner is not callable")
	}
	if _, err := call(goja.Undefined(), vm.ToValue(slices.Clone(allowedGlobals))); err != nil {
		return err
	}

	for _, name := range allowedGlobals {
		if name == "NaN" || name == "Infinity" || name == "undefined" {
			continue
		}
		if v := vm.Get(name); v == nil || goja.IsUndefined(v) {
			return fmt.Errorf("global %s missing after pruning", name)
		}
	}
	return nil
}

// sealPromise replaces the methods that queue promise jobs on the
// intrinsic %Promise% and its prototype. Deleting the Promise global is
// not enough: an async function still returns an instance of it.
func sealPromise(vm *goja.Runtime) error {
	thrower := newThrower(vm, "asynchronous scheduling is disabled")

	v, err := vm.RunString("Object.getPrototypeOf((async function () {})())")
	if err != nil {
		return fmt.Errorf("locating promise prototype: %w", err)
	}
	proto := v.ToObject(vm)
	ctor := proto.Get("constructor").ToObject(vm)

	for _, name := range []string{"then", "catch", "finally", "constructor"} {
		if err := proto.DefineDataProperty(name, thrower, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			return fmt.Errorf("sealing Promise.prototype.%s: %w", name, err)
		}
	}
	for _, name := range promiseStatics {
		if err := ctor.DefineDataProperty(name, thrower, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			return fmt.Errorf("sealing Promise.%s: %w", name, err)
		}
	}
	return nil
}

func newThrower(vm *goja.Runtime, msg string) goja.Value {
	return vm.ToValue(func(goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError(msg))
	})
}

// installConsole binds console.log/info/warn/error to out, one line per
// call, with a level prefix for everything but log.
func installConsole(vm *goja.Runtime, out *process.BoundedBuffer) error {
	console := vm.NewObject()
	levels := map[string]string{
		"log":   "",
		"info":  "[INFO] ",
		"warn":  "[WARN] ",
		"error": "[ERROR] ",
	}
	for name, prefix := range levels {
		if err := console.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			_, _ = out.WriteString(prefix + strings.Join(parts, " ") + "\n")
			return goja.Undefined()
		}); err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}

// guestMessage extracts "Name: message" from a thrown value.
func guestMessage(err error) string {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		if v := exc.Value(); v != nil {
			return v.String()
		}
	}
	return err.Error()
}
