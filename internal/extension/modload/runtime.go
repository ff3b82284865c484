package modload

import (
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// ErrRuntimeClosed is returned when calling into a closed Lua runtime.
var ErrRuntimeClosed = errors.New("lua runtime is closed")

// runtime wraps one extension's Lua state.
//
// gopher-lua states are not goroutine-safe; handlers registered during load
// are re-entered later from HTTP, bus and scheduler goroutines, so every
// entry into the state goes through the mutex.
type runtime struct {
	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

func newRuntime() *runtime {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	// Safe subset only: no io, os, debug or package.
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	return &runtime{L: L}
}

// evalFile executes the module file and returns its single return value
// (nil-adjusted when the module returns nothing).
func (r *runtime) evalFile(path string) (lua.LValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRuntimeClosed
	}

	fn, err := r.L.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	r.L.Push(fn)
	if err := r.protect(func() error { return r.L.PCall(0, 1, nil) }); err != nil {
		return nil, fmt.Errorf("run %s: %w", path, err)
	}

	value := r.L.Get(-1)
	r.L.Pop(1)
	return value, nil
}

// call invokes fn with already-converted Lua arguments and returns its first
// result. Must not be called while holding r.mu.
func (r *runtime) call(fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callLocked(fn, args...)
}

// callGo invokes fn converting arguments and result across the Go/Lua
// boundary under the runtime lock.
func (r *runtime) callGo(fn *lua.LFunction, args ...any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	luaArgs := make([]lua.LValue, len(args))
	for i, arg := range args {
		luaArgs[i] = toLua(r.L, arg)
	}
	result, err := r.callLocked(fn, luaArgs...)
	if err != nil {
		return nil, err
	}
	return toGo(result), nil
}

func (r *runtime) callLocked(fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	if r.closed {
		return nil, ErrRuntimeClosed
	}

	err := r.protect(func() error {
		return r.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	})
	if err != nil {
		return nil, err
	}

	value := r.L.Get(-1)
	r.L.Pop(1)
	return value, nil
}

// protect converts Lua panics into errors.
func (r *runtime) protect(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()
	return fn()
}

func (r *runtime) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.L.Close()
}
