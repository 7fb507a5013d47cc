package integration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// DefaultLuaTimeout bounds one script call.
const DefaultLuaTimeout = time.Second

const (
	lookupFunc = "lookup"
	storeFunc  = "store"
)

// Lua is a Source backed by a sandboxed Lua script. The script defines
//
//	function lookup(plugin, setting) ... end        -- value or nil
//	function store(plugin, setting, value) ... end  -- optional
//
// Values cross the boundary in storage form: colors and bindings as
// strings, actions as tables, lists as arrays.
//
// gopher-lua states are single threaded; calls are serialised.
type Lua struct {
	name    string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

// LuaOption configures a Lua source.
type LuaOption func(*Lua)

// WithLuaTimeout sets the per-call timeout.
func WithLuaTimeout(d time.Duration) LuaOption {
	return func(l *Lua) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLuaLogger sets the logger receiving the script's print output.
func WithLuaLogger(logger *slog.Logger) LuaOption {
	return func(l *Lua) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLua loads a script from source text.
func NewLua(name, code string, opts ...LuaOption) (*Lua, error) {
	l := newLua(name, opts)
	if err := l.do(func() error { return l.L.DoString(code) }); err != nil {
		l.L.Close()
		return nil, perrors.E(perrors.ErrMalformed, "integration.lua", fmt.Errorf("%s: %w", name, err))
	}
	if err := l.checkLookup(); err != nil {
		l.L.Close()
		return nil, err
	}
	return l, nil
}

// NewLuaFile loads a script from a file.
func NewLuaFile(path string, opts ...LuaOption) (*Lua, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.E(perrors.ErrNotFound, "integration.lua", err)
	}
	return NewLua(path, string(data), opts...)
}

func newLua(name string, opts []LuaOption) *Lua {
	l := &Lua{
		name:    name,
		timeout: DefaultLuaTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "integration", "source", name)

	l.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(l.L)
	l.installSandbox()
	return l
}

// openSafeLibraries opens the libraries without file, process or module
// loading access.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// installSandbox removes code loading functions and routes print to the
// logger.
func (l *Lua) installSandbox() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		l.L.SetGlobal(name, lua.LNil)
	}
	l.L.SetGlobal("print", l.L.NewFunction(func(L *lua.LState) int {
		args := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			args = append(args, L.ToStringMeta(L.Get(i)).String())
		}
		l.logger.Info(strings.Join(args, "\t"))
		return 0
	}))
}

func (l *Lua) checkLookup() error {
	if fn := l.L.GetGlobal(lookupFunc); fn.Type() != lua.LTFunction {
		return perrors.Errorf(perrors.ErrMalformed, "integration.lua", "%s: script does not define %s()", l.name, lookupFunc)
	}
	return nil
}

// Name returns the source name.
func (l *Lua) Name() string {
	return l.name
}

// Lookup calls lookup(plugin, setting). A nil result means no value.
func (l *Lua) Lookup(ctx context.Context, plugin, setting string, _ *schema.Schema) (any, bool, error) {
	const op = "integration.lookup"
	results, err := l.call(ctx, op, lookupFunc, lua.LString(plugin), lua.LString(setting))
	if err != nil {
		return nil, false, perrors.ForSetting(perrors.KindOf(err), op, plugin, setting, err)
	}
	if len(results) == 0 || results[0] == lua.LNil {
		return nil, false, nil
	}
	return toGo(results[0]), true, nil
}

// Store calls store(plugin, setting, value). Scripts without a store
// function are read-only.
func (l *Lua) Store(ctx context.Context, plugin, setting string, s *schema.Schema, value any) error {
	const op = "integration.store"
	if s == nil {
		return perrors.Errorf(perrors.ErrTypeMismatch, op, "%s.%s has no schema", plugin, setting)
	}
	v, err := s.CoercePath(plugin+"."+setting, value)
	if err != nil {
		return perrors.ForSetting(perrors.ErrTypeMismatch, op, plugin, setting, err)
	}

	l.mu.Lock()
	defined := !l.closed && l.L.GetGlobal(storeFunc).Type() == lua.LTFunction
	l.mu.Unlock()
	if !defined {
		return perrors.ForSetting(perrors.ErrUnsupported, op, plugin, setting, nil)
	}

	_, err = l.call(ctx, op, storeFunc, lua.LString(plugin), lua.LString(setting), l.toLua(schema.Encode(v)))
	if err != nil {
		return perrors.ForSetting(perrors.KindOf(err), op, plugin, setting, err)
	}
	return nil
}

// call invokes a global function under the timeout and returns its
// results.
func (l *Lua) call(ctx context.Context, op, fn string, args ...lua.LValue) ([]lua.LValue, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, perrors.E(perrors.ErrClosed, op, nil)
	}

	fnVal := l.L.GetGlobal(fn)
	if fnVal.Type() != lua.LTFunction {
		return nil, perrors.Errorf(perrors.ErrUnsupported, op, "%s() is not defined", fn)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	l.L.SetContext(ctx)
	defer l.L.RemoveContext()

	top := l.L.GetTop()
	err := l.do(func() error {
		return l.L.CallByParam(lua.P{Fn: fnVal, NRet: lua.MultRet, Protect: true}, args...)
	})
	if err != nil {
		l.L.SetTop(top)
		if ctx.Err() != nil {
			return nil, perrors.E(perrors.ErrIOFailure, op, fmt.Errorf("%s(): %w", fn, ctx.Err()))
		}
		return nil, perrors.E(perrors.ErrIOFailure, op, fmt.Errorf("%s(): %w", fn, err))
	}

	n := l.L.GetTop() - top
	results := make([]lua.LValue, n)
	for i := range n {
		results[i] = l.L.Get(top + i + 1)
	}
	l.L.SetTop(top)
	return results, nil
}

// do runs fn, turning a Go panic inside the interpreter into an error.
func (l *Lua) do(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Close releases the interpreter.
func (l *Lua) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.L.Close()
	return nil
}

var (
	_ Source = (*Lua)(nil)
	_ Writer = (*Lua)(nil)
)
