package interpreter

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"unicode/utf8"

	"github.com/oneclientcore/runtime/internal/mapstd"
	"github.com/robertkrimen/otto"
)

// MessageExchangeFunc dispatches one core<->map JSON request, used to
// back __ffi.unstable.message_exchange (spec.md §4.2, §4.7).
type MessageExchangeFunc func(requestJSON string) (responseJSON string, err error)

// PrintFunc routes a map-emitted string to the @user tracing sink.
type PrintFunc func(message string)

// PrintDebugFunc routes map-emitted values to the developer trace, each
// argument converted to its JSON-ish string form by the caller.
type PrintDebugFunc func(args []string)

// InstallStdlib binds the fixed __ffi.unstable.* callback surface
// (spec.md §4.7) onto in, each closing over ms for this perform. String,
// byte-array and object arguments are validated strictly: a wrong type or
// missing argument produces a JavaScript TypeError naming the function and
// argument index. The numeric handle and length arguments of stream_read,
// stream_write and stream_close are converted with ToInteger and not
// type-checked, and printDebug accepts any arguments.
func InstallStdlib(in *Interpreter, ms *mapstd.MapStd, exchange MessageExchangeFunc, print PrintFunc, printDebug PrintDebugFunc) error {
	bindings := map[string]NativeFunc{
		"print":                stdlibPrint(print),
		"printDebug":           stdlibPrintDebug(printDebug),
		"message_exchange":     stdlibMessageExchange(exchange),
		"stream_read":          stdlibStreamRead(ms),
		"stream_write":         stdlibStreamWrite(ms),
		"stream_close":         stdlibStreamClose(ms),
		"bytes_to_utf8":        stdlibBytesToUtf8(),
		"utf8_to_bytes":        stdlibUtf8ToBytes(),
		"bytes_to_base64":      stdlibBytesToBase64(),
		"base64_to_bytes":      stdlibBase64ToBytes(),
		"record_to_urlencoded": stdlibRecordToUrlencoded(),
		"url_parse":            stdlibUrlParse(),
	}

	for name, fn := range bindings {
		if err := in.WrapNative("__ffi.unstable."+name, fn); err != nil {
			return fmt.Errorf("interpreter: install __ffi.unstable.%s: %w", name, err)
		}
	}
	return nil
}

// throwType panics with a JS TypeError naming the offending function and
// argument index, which otto recovers into a thrown script exception.
func throwType(vm *otto.Otto, fn string, argIndex int, want string) {
	thrown, _ := vm.Call("new TypeError", nil, fmt.Sprintf("%s: argument %d must be %s", fn, argIndex, want))
	panic(thrown)
}

// throwError panics with a plain JS Error, used for runtime (not
// argument-shape) failures such as a failed message_exchange or an
// unknown stream handle.
func throwError(vm *otto.Otto, message string) {
	thrown, _ := vm.Call("new Error", nil, message)
	panic(thrown)
}

func argString(call otto.FunctionCall, fn string, idx int) string {
	arg := call.Argument(idx)
	if !arg.IsString() {
		throwType(call.Otto, fn, idx, "a string")
	}
	return arg.String()
}

func argBytes(call otto.FunctionCall, fn string, idx int) []byte {
	arg := call.Argument(idx)
	obj := arg.Object()
	if obj == nil || obj.Class() != "Array" {
		throwType(call.Otto, fn, idx, "a byte array")
	}
	lengthVal, _ := obj.Get("length")
	length, _ := lengthVal.ToInteger()
	out := make([]byte, length)
	for i := range out {
		elem, _ := obj.Get(fmt.Sprintf("%d", i))
		n, _ := elem.ToInteger()
		out[i] = byte(n)
	}
	return out
}

func bytesToJSArray(vm *otto.Otto, data []byte) otto.Value {
	arr := make([]any, len(data))
	for i, b := range data {
		arr[i] = int(b)
	}
	val, _ := vm.ToValue(arr)
	return val
}

func stdlibPrint(print PrintFunc) NativeFunc {
	return func(call otto.FunctionCall) otto.Value {
		print(argString(call, "print", 0))
		return otto.UndefinedValue()
	}
}

func stdlibPrintDebug(printDebug PrintDebugFunc) NativeFunc {
	return func(call otto.FunctionCall) otto.Value {
		args := make([]string, len(call.ArgumentList))
		for i, a := range call.ArgumentList {
			args[i] = a.String()
		}
		printDebug(args)
		return otto.UndefinedValue()
	}
}

func stdlibMessageExchange(exchange MessageExchangeFunc) NativeFunc {
	return func(call otto.FunctionCall) otto.Value {
		req := argString(call, "message_exchange", 0)
		resp, err := exchange(req)
		if err != nil {
			throwError(call.Otto, fmt.Sprintf("message_exchange: %s", err))
		}
		val, _ := call.Otto.ToValue(resp)
		return val
	}
}

func stdlibStreamRead(ms *mapstd.MapStd) NativeFunc {
	return func(call otto.FunctionCall) otto.Value {
		handleVal, _ := call.Argument(0).ToInteger()
		bufLenVal, _ := call.Argument(1).ToInteger()
		buf := make([]byte, bufLenVal)
		n, err := ms.StreamRead(uint32(handleVal), buf)
		if err != nil {
			throwError(call.Otto, fmt.Sprintf("stream_read: %s", err))
		}
		obj, _ := call.Otto.Object(`({})`)
		obj.Set("bytesRead", n)
		obj.Set("data", bytesToJSArray(call.Otto, buf[:n]))
		return obj.Value()
	}
}

func stdlibStreamWrite(ms *mapstd.MapStd) NativeFunc {
	return func(call otto.FunctionCall) otto.Value {
		handleVal, _ := call.Argument(0).ToInteger()
		data := argBytes(call, "stream_write", 1)
		n, err := ms.StreamWrite(uint32(handleVal), data)
		if err != nil {
			throwError(call.Otto, fmt.Sprintf("stream_write: %s", err))
		}
		val, _ := call.Otto.ToValue(n)
		return val
	}
}

func stdlibStreamClose(ms *mapstd.MapStd) NativeFunc {
	return func(call otto.FunctionCall) otto.Value {
		handleVal, _ := call.Argument(0).ToInteger()
		if err := ms.StreamClose(uint32(handleVal)); err != nil {
			throwError(call.Otto, fmt.Sprintf("stream_close: %s", err))
		}
		return otto.UndefinedValue()
	}
}

func stdlibBytesToUtf8() NativeFunc {
	return func(call otto.FunctionCall) otto.Value {
		data := argBytes(call, "bytes_to_utf8", 0)
		if !utf8.Valid(data) {
			throwType(call.Otto, "bytes_to_utf8", 0, "valid utf8 bytes")
		}
		val, _ := call.Otto.ToValue(string(data))
		return val
	}
}

func stdlibUtf8ToBytes() NativeFunc {
	return func(call otto.FunctionCall) otto.Value {
		str := argString(call, "utf8_to_bytes", 0)
		return bytesToJSArray(call.Otto, []byte(str))
	}
}

func stdlibBytesToBase64() NativeFunc {
	return func(call otto.FunctionCall) otto.Value {
		data := argBytes(call, "bytes_to_base64", 0)
		val, _ := call.Otto.ToValue(base64.StdEncoding.EncodeToString(data))
		return val
	}
}

func stdlibBase64ToBytes() NativeFunc {
	return func(call otto.FunctionCall) otto.Value {
		str := argString(call, "base64_to_bytes", 0)
		data, err := base64.StdEncoding.DecodeString(str)
		if err != nil {
			throwType(call.Otto, "base64_to_bytes", 0, "valid base64")
		}
		return bytesToJSArray(call.Otto, data)
	}
}

func stdlibRecordToUrlencoded() NativeFunc {
	return func(call otto.FunctionCall) otto.Value {
		obj := call.Argument(0).Object()
		if obj == nil {
			throwType(call.Otto, "record_to_urlencoded", 0, "an object")
		}

		values := url.Values{}
		keys := obj.Keys()
		sort.Strings(keys)
		for _, key := range keys {
			fieldVal, _ := obj.Get(key)
			arrObj := fieldVal.Object()
			if arrObj == nil || arrObj.Class() != "Array" {
				throwType(call.Otto, "record_to_urlencoded", 0, "an object whose values are string arrays")
			}
			lengthVal, _ := arrObj.Get("length")
			length, _ := lengthVal.ToInteger()
			for i := int64(0); i < length; i++ {
				elem, _ := arrObj.Get(fmt.Sprintf("%d", i))
				values.Add(key, elem.String())
			}
		}

		val, _ := call.Otto.ToValue(values.Encode())
		return val
	}
}

func stdlibUrlParse() NativeFunc {
	return func(call otto.FunctionCall) otto.Value {
		raw := argString(call, "url_parse", 0)

		var parsed *url.URL
		var err error
		if base := call.Argument(1); base.IsString() {
			var baseURL *url.URL
			baseURL, err = url.Parse(base.String())
			if err == nil {
				var rel *url.URL
				rel, err = url.Parse(raw)
				if err == nil {
					parsed = baseURL.ResolveReference(rel)
				}
			}
		} else {
			parsed, err = url.Parse(raw)
		}
		if err != nil || parsed == nil {
			throwType(call.Otto, "url_parse", 0, "a valid URL")
		}

		obj, _ := call.Otto.Object(`({})`)
		obj.Set("hostname", parsed.Hostname())
		obj.Set("host", parsed.Host)
		obj.Set("origin", parsed.Scheme+"://"+parsed.Host)
		obj.Set("protocol", parsed.Scheme+":")
		obj.Set("pathname", parsed.Path)
		if parsed.User != nil {
			obj.Set("username", parsed.User.Username())
			if pass, ok := parsed.User.Password(); ok {
				obj.Set("password", pass)
			}
		}
		if port := parsed.Port(); port != "" {
			obj.Set("port", port)
		}
		if parsed.RawQuery != "" {
			obj.Set("search", "?"+parsed.RawQuery)
		}
		if parsed.Fragment != "" {
			obj.Set("hash", "#"+parsed.Fragment)
		}

		return obj.Value()
	}
}
