package script

import (
	"fmt"
	"io"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// RunLua runs a Lua program against target. The program sees these globals:
//
//	read(addr [, size])          returns the value read, size defaults to 4
//	write(addr, value [, size])
//	expect(addr, value [, size]) fails the program if the read differs
//	rx(byte_or_string)           fails the program if the UART refuses a byte
//	reset()
//	print(...)                   writes to out
func RunLua(target Target, src io.Reader, name string, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}

	L := lua.NewState()
	defer L.Close()

	env := &luaEnv{target: target, out: out}
	env.register(L)

	fn, err := L.Load(src, name)
	if err != nil {
		return fmt.Errorf("script: %s: %w", name, err)
	}

	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		if env.failure != nil {
			return fmt.Errorf("script: %s: %w", name, env.failure)
		}

		return fmt.Errorf("script: %s: %w", name, err)
	}

	return nil
}

type luaEnv struct {
	target  Target
	out     io.Writer
	failure error
}

func (e *luaEnv) register(L *lua.LState) {
	funcs := map[string]lua.LGFunction{
		"read":   e.read,
		"write":  e.write,
		"expect": e.expect,
		"rx":     e.rx,
		"reset":  e.reset,
		"print":  e.print,
	}

	for name, fn := range funcs {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

func (e *luaEnv) fail(L *lua.LState, err error) {
	e.failure = err
	L.RaiseError("%v", err)
}

func checkSize(L *lua.LState, n int) int {
	size := L.OptInt(n, 4)
	if size != 1 && size != 2 && size != 4 {
		L.ArgError(n, "size must be 1, 2 or 4")
	}

	return size
}

func checkUint(L *lua.LState, n int) uint64 {
	v := float64(L.CheckNumber(n))
	if v < 0 || v != float64(uint64(v)) {
		L.ArgError(n, "not an unsigned integer")
	}

	return uint64(v)
}

func (e *luaEnv) read(L *lua.LState) int {
	addr := checkUint(L, 1)
	size := checkSize(L, 2)

	L.Push(lua.LNumber(e.target.Read(addr, size)))

	return 1
}

func (e *luaEnv) write(L *lua.LState) int {
	addr := checkUint(L, 1)
	value := checkUint(L, 2)
	size := checkSize(L, 3)

	if value > maxValue(size) {
		L.ArgError(2, fmt.Sprintf("value does not fit in %d bytes", size))
	}

	e.target.Write(addr, value, size)

	return 0
}

func (e *luaEnv) expect(L *lua.LState) int {
	addr := checkUint(L, 1)
	want := checkUint(L, 2)
	size := checkSize(L, 3)

	if v := e.target.Read(addr, size); v != want {
		e.fail(L, fmt.Errorf("%w: 0x%08x is 0x%x, expect 0x%x",
			ErrMismatch, addr, v, want))
	}

	return 0
}

func (e *luaEnv) rx(L *lua.LState) int {
	var data []byte

	switch v := L.CheckAny(1).(type) {
	case lua.LString:
		data = []byte(string(v))
	case lua.LNumber:
		b := checkUint(L, 1)
		if b > 0xFF {
			L.ArgError(1, "not a byte")
		}
		data = []byte{byte(b)}
	default:
		L.ArgError(1, "byte or string expected")
	}

	for i, b := range data {
		if err := e.target.Receive(b); err != nil {
			e.fail(L, fmt.Errorf("rx byte %d (0x%02x): %w", i, b, err))
		}
	}

	return 0
}

func (e *luaEnv) reset(*lua.LState) int {
	e.target.Reset()
	return 0
}

func (e *luaEnv) print(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}

	fmt.Fprintln(e.out, strings.Join(parts, "\t"))

	return 0
}
