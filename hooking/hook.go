// Package hooking lets devices report what happens inside them without
// knowing who is listening.
package hooking

import "log/slog"

// HookPos defines the enum of possible hooking positions.
type HookPos struct {
	Name string

	// Mask is the diagnostic class of the position. Log hooks only print
	// positions whose class is enabled.
	Mask LogMask
}

// HookCtx is the context that holds all the information about the site that a
// hook is triggered.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Named describes an object that has a name.
type Named interface {
	Name() string
}

// Hookable defines an object that accept Hooks.
type Hookable interface {
	// AcceptHook registers a hook.
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int

	// Hooks returns all the hooks registered.
	Hooks() []Hook
}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// Note is the Detail of a diagnostic hook invocation.
type Note struct {
	Msg   string
	Attrs []slog.Attr
}

// A HookableBase provides some utility function for other type that implement
// the Hookable interface.
type HookableBase struct {
	hookList []Hook
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// Hooks returns all the hooks registered.
func (h *HookableBase) Hooks() []Hook {
	return h.hookList
}

// AcceptHook register a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.mustNotHaveDuplicatedHook(hook)
	h.hookList = append(h.hookList, hook)
}

func (h *HookableBase) mustNotHaveDuplicatedHook(hook Hook) {
	for _, h := range h.hookList {
		if h == hook {
			panic("duplicated hook")
		}
	}
}

// InvokeHook triggers the register Hooks.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}

// Notify invokes the hooks with a Note as the detail. Nothing is formatted
// when no hook is registered.
func (h *HookableBase) Notify(
	domain Hookable,
	pos *HookPos,
	msg string,
	attrs ...slog.Attr,
) {
	if len(h.hookList) == 0 {
		return
	}

	h.InvokeHook(HookCtx{
		Domain: domain,
		Pos:    pos,
		Detail: Note{Msg: msg, Attrs: attrs},
	})
}
