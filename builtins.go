package ilo

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cast"
)

// builtinFunc is a builtin's call shape: it receives the config (for the
// get capability gate), already-evaluated arguments, and the call site's
// span (for error reporting), and returns either a Value or a runtime
// error. Builtins that model fallible work (num, get) signal failure as
// an Err value rather than a Go error — only a genuine arity/type
// mismatch is a *RuntimeError, matching how calls to declared functions
// behave. Taking *Config rather than *Interpreter keeps builtins usable
// from both the tree-walking interpreter and the bytecode VM.
type builtinFunc func(cfg *Config, args []Value, sp Span) (Value, error)

// builtinErr builds a builtin call's *RuntimeError. Builtins don't carry
// a call stack of their own — the caller (interpreter or VM) already
// knows it and can enrich the error further up the chain if it wants to.
func builtinErr(code string, sp Span, format string, args ...interface{}) error {
	return &RuntimeError{Code: code, Message: fmt.Sprintf(format, args...), Span: sp}
}

// builtinFuncs implements the language's ten builtins. Each arity/type
// check reuses T013 ("builtin argument type mismatch"), the same code the
// verifier assigns when it can prove the mismatch statically — this path
// only fires when the verifier couldn't (an Unknown-typed parameter, say).
var builtinFuncs = map[string]builtinFunc{
	"len": func(cfg *Config, args []Value, sp Span) (Value, error) {
		if len(args) != 1 {
			return nil, builtinErr("T013", sp, "len expects 1 argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case TextVal:
			return NumberVal(float64(utf8.RuneCountInString(string(v)))), nil
		case *ListVal:
			return NumberVal(float64(len(v.Items))), nil
		default:
			return nil, builtinErr("T013", sp, "len requires a text or a list")
		}
	},

	"str": func(cfg *Config, args []Value, sp Span) (Value, error) {
		if len(args) != 1 {
			return nil, builtinErr("T013", sp, "str expects 1 argument, got %d", len(args))
		}
		n, ok := args[0].(NumberVal)
		if !ok {
			return nil, builtinErr("T013", sp, "str requires a number")
		}
		f := float64(n)
		switch {
		case math.IsNaN(f):
			return TextVal("nan"), nil
		case math.IsInf(f, 1):
			return TextVal("inf"), nil
		case math.IsInf(f, -1):
			return TextVal("-inf"), nil
		case f == math.Trunc(f):
			return TextVal(strconv.FormatInt(int64(f), 10)), nil
		default:
			return TextVal(strconv.FormatFloat(f, 'g', -1, 64)), nil
		}
	},

	"num": func(cfg *Config, args []Value, sp Span) (Value, error) {
		if len(args) != 1 {
			return nil, builtinErr("T013", sp, "num expects 1 argument, got %d", len(args))
		}
		t, ok := args[0].(TextVal)
		if !ok {
			return nil, builtinErr("T013", sp, "num requires text")
		}
		f, err := cast.ToFloat64E(strings.TrimSpace(string(t)))
		if err != nil {
			return &ErrVal{Inner: TextVal(fmt.Sprintf("cannot parse %q as a number", string(t)))}, nil
		}
		return &OkVal{Inner: NumberVal(f)}, nil
	},

	"abs": func(cfg *Config, args []Value, sp Span) (Value, error) {
		n, err := onlyNumberArg("abs", args, sp)
		if err != nil {
			return nil, err
		}
		return NumberVal(math.Abs(float64(n))), nil
	},

	"flr": func(cfg *Config, args []Value, sp Span) (Value, error) {
		n, err := onlyNumberArg("flr", args, sp)
		if err != nil {
			return nil, err
		}
		return NumberVal(math.Floor(float64(n))), nil
	},

	"cel": func(cfg *Config, args []Value, sp Span) (Value, error) {
		n, err := onlyNumberArg("cel", args, sp)
		if err != nil {
			return nil, err
		}
		return NumberVal(math.Ceil(float64(n))), nil
	},

	"min": func(cfg *Config, args []Value, sp Span) (Value, error) {
		a, b, err := twoNumberArgs("min", args, sp)
		if err != nil {
			return nil, err
		}
		return NumberVal(math.Min(float64(a), float64(b))), nil
	},

	"max": func(cfg *Config, args []Value, sp Span) (Value, error) {
		a, b, err := twoNumberArgs("max", args, sp)
		if err != nil {
			return nil, err
		}
		return NumberVal(math.Max(float64(a), float64(b))), nil
	},

	"spl": func(cfg *Config, args []Value, sp Span) (Value, error) {
		if len(args) != 2 {
			return nil, builtinErr("T013", sp, "spl expects 2 arguments, got %d", len(args))
		}
		text, ok := args[0].(TextVal)
		if !ok {
			return nil, builtinErr("T013", sp, "spl requires text as its first argument")
		}
		sep, ok := args[1].(TextVal)
		if !ok {
			return nil, builtinErr("T013", sp, "spl requires text as its second argument")
		}
		parts := strings.Split(string(text), string(sep))
		items := make([]Value, len(parts))
		for i, p := range parts {
			items[i] = TextVal(p)
		}
		return &ListVal{Items: items}, nil
	},

	"get": func(cfg *Config, args []Value, sp Span) (Value, error) {
		if len(args) != 1 {
			return nil, builtinErr("T013", sp, "get expects 1 argument, got %d", len(args))
		}
		url, ok := args[0].(TextVal)
		if !ok {
			return nil, builtinErr("T013", sp, "get requires text")
		}
		if cfg == nil || !cfg.GetBool("builtins.http") {
			return &ErrVal{Inner: TextVal("the http builtin is disabled")}, nil
		}
		return httpGet(string(url)), nil
	},
}

func onlyNumberArg(name string, args []Value, sp Span) (NumberVal, error) {
	if len(args) != 1 {
		return 0, builtinErr("T013", sp, "%s expects 1 argument, got %d", name, len(args))
	}
	n, ok := args[0].(NumberVal)
	if !ok {
		return 0, builtinErr("T013", sp, "%s requires a number", name)
	}
	return n, nil
}

func twoNumberArgs(name string, args []Value, sp Span) (NumberVal, NumberVal, error) {
	if len(args) != 2 {
		return 0, 0, builtinErr("T013", sp, "%s expects 2 arguments, got %d", name, len(args))
	}
	a, aok := args[0].(NumberVal)
	b, bok := args[1].(NumberVal)
	if !aok || !bok {
		return 0, 0, builtinErr("T013", sp, "%s requires two numbers", name)
	}
	return a, b, nil
}

// httpClient is shared across every get call; its timeout bounds how long
// a tool-less program can block on a misbehaving remote.
var httpClient = &http.Client{Timeout: 10 * time.Second}

// httpGet performs the request the get builtin models, turning any
// transport or status failure into an Err rather than propagating a Go
// error, since get's whole contract is "Result, never a crash."
func httpGet(url string) Value {
	resp, err := httpClient.Get(url)
	if err != nil {
		return &ErrVal{Inner: TextVal(err.Error())}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ErrVal{Inner: TextVal(err.Error())}
	}
	if resp.StatusCode >= 400 {
		return &ErrVal{Inner: TextVal(fmt.Sprintf("http status %d", resp.StatusCode))}
	}
	return &OkVal{Inner: TextVal(string(body))}
}
