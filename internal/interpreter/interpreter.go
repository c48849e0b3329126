// Package interpreter wraps the embedded JavaScript engine as the
// black-box capability spec.md §4.8 describes: evaluate(script_name,
// source), invoke_function(name, args), wrap_native(callback). A fresh
// Interpreter is created per perform; native callbacks installed under
// __ffi.unstable.* close over a single MapStd instance for that perform.
//
// Grounded on the teacher's jschallenge.OttoSolver, which wraps the same
// otto VM behind a narrow method set with a bootstrap script run before
// any map code — generalized here from a browser-global stub into the
// real __ffi.unstable.* stdlib surface.
package interpreter

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/robertkrimen/otto"
)

// MapInterpreterError carries the engine's diagnostic for a failed
// evaluate/invoke, converted into a perform exception by internal/perform.
type MapInterpreterError struct {
	Message string
	File    string
	Line    int // 0 if unknown
}

func (e *MapInterpreterError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("interpreter: %s", e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("interpreter: %s (%s:%d)", e.Message, e.File, e.Line)
	}
	return fmt.Sprintf("interpreter: %s (%s)", e.Message, e.File)
}

// otto reports syntax/runtime locations inline in its error text, e.g.
// "... at <anonymous>:3:1(4)" — best-effort extraction only, since otto's
// public API doesn't expose a structured position.
var ottoLocationPattern = regexp.MustCompile(`at (\S+):(\d+):\d+`)

func parseOttoLocation(message string) (file string, line int) {
	m := ottoLocationPattern.FindStringSubmatch(message)
	if m == nil {
		return "", 0
	}
	n, _ := strconv.Atoi(m[2])
	return m[1], n
}

// Interpreter is a fresh-per-perform JS engine instance.
type Interpreter struct {
	vm *otto.Otto
}

// New creates an Interpreter with an empty global namespace. Callers
// install the __ffi.unstable.* surface via WrapNative/Set before
// evaluating any script.
func New() *Interpreter {
	return &Interpreter{vm: otto.New()}
}

// NativeFunc is a Go function callable from JS, receiving already-decoded
// arguments, matching the "wrap_native(callback) → function value"
// capability from spec.md §4.8.
type NativeFunc func(call otto.FunctionCall) otto.Value

// WrapNative exposes fn as fullPath (dot-separated, e.g.
// "__ffi.unstable.print"), creating intermediate objects as needed.
func (in *Interpreter) WrapNative(fullPath string, fn NativeFunc) error {
	segments, err := splitPath(fullPath)
	if err != nil {
		return err
	}

	container, err := in.ensureObjectPath(segments[:len(segments)-1])
	if err != nil {
		return err
	}

	return container.Set(segments[len(segments)-1], fn)
}

func splitPath(path string) ([]string, error) {
	var segments []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			if i == start {
				return nil, fmt.Errorf("interpreter: invalid native function path %q", path)
			}
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	return segments, nil
}

// ensureObjectPath walks segments from the global object, creating plain
// objects for any that don't yet exist, and returns the innermost one.
func (in *Interpreter) ensureObjectPath(segments []string) (*otto.Object, error) {
	globalValue, err := in.vm.Run("this")
	if err != nil {
		return nil, fmt.Errorf("interpreter: access global object: %w", err)
	}
	global := globalValue.Object()
	if global == nil {
		return nil, fmt.Errorf("interpreter: global `this` is not an object")
	}

	current := global
	for _, seg := range segments {
		existing, err := current.Get(seg)
		if err != nil {
			return nil, fmt.Errorf("interpreter: read %q: %w", seg, err)
		}
		if existing.IsUndefined() || existing.IsNull() {
			obj, err := in.vm.Object("({})")
			if err != nil {
				return nil, fmt.Errorf("interpreter: create object for %q: %w", seg, err)
			}
			if err := current.Set(seg, obj); err != nil {
				return nil, fmt.Errorf("interpreter: install %q: %w", seg, err)
			}
			current = obj
			continue
		}
		obj := existing.Object()
		if obj == nil {
			return nil, fmt.Errorf("interpreter: %q is not an object", seg)
		}
		current = obj
	}
	return current, nil
}

// Evaluate runs source under the given scriptName (used for interpreter
// stack traces, SPEC_FULL.md supplement 3), returning a MapInterpreterError
// on syntax or runtime failure.
func (in *Interpreter) Evaluate(scriptName, source string) error {
	_, err := in.vm.Run(source)
	if err == nil {
		return nil
	}
	file, line := parseOttoLocation(err.Error())
	if file == "" {
		file = scriptName
	}
	return &MapInterpreterError{Message: err.Error(), File: file, Line: line}
}

// InvokeFunction calls the named global function with args, converting Go
// values via otto's normal conversion rules.
func (in *Interpreter) InvokeFunction(name string, args ...any) (otto.Value, error) {
	val, err := in.vm.Run(name)
	if err != nil {
		return otto.Value{}, &MapInterpreterError{Message: fmt.Sprintf("function %q not found: %s", name, err)}
	}
	if !val.IsFunction() {
		return otto.Value{}, &MapInterpreterError{Message: fmt.Sprintf("%q is not a function", name)}
	}

	result, err := in.vm.Call(name, nil, args...)
	if err != nil {
		file, line := parseOttoLocation(err.Error())
		return otto.Value{}, &MapInterpreterError{Message: err.Error(), File: file, Line: line}
	}
	return result, nil
}
