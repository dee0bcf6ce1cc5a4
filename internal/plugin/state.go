// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package plugin

import (
	"github.com/bluefox-game/bluefox/internal/native"
	"github.com/bluefox-game/bluefox/internal/plugin/capability"
	"github.com/bluefox-game/bluefox/internal/toolchain"
	"github.com/bluefox-game/bluefox/pkg/errutil"
)

// State is where a candidate is in the compile-load-resolve sequence.
// Done and Failed are terminal; nothing is retried.
type State int

// Candidate states, in the order a successful candidate passes through them.
const (
	StatePending State = iota
	StateCompilingToAssembly
	StateCompilingToNative
	StateLoading
	StateResolvingSymbol
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompilingToAssembly:
		return "compiling_to_assembly"
	case StateCompilingToNative:
		return "compiling_to_native"
	case StateLoading:
		return "loading"
	case StateResolvingSymbol:
		return "resolving_symbol"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is Done or Failed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Kind classifies a candidate failure.
type Kind int

// Failure kinds.
const (
	KindNone Kind = iota
	KindCompilerNotFound
	KindCompile
	KindLoad
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCompilerNotFound:
		return "CompilerNotFound"
	case KindCompile:
		return "CompileError"
	case KindLoad:
		return "LoadError"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Anything that is not a toolchain failure is a load error.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	switch errutil.Code(err) {
	case toolchain.CodeCompilerNotFound:
		return KindCompilerNotFound
	case toolchain.CodeCompileFailed:
		return KindCompile
	default:
		return KindLoad
	}
}

// Outcome is the terminal record of one directory entry.
type Outcome struct {
	Entry  string
	Source Source
	State  State
	// FailedIn is the state the candidate was in when it failed.
	FailedIn   State
	Kind       Kind
	Err        error
	Descriptor *Descriptor
}

// Report collects the outcomes of one discovery run in processing order.
type Report struct {
	RunID    string
	Outcomes []Outcome
}

// Descriptors returns the successfully extracted descriptors in processing order.
func (r *Report) Descriptors() []Descriptor {
	out := []Descriptor{}
	for _, o := range r.Outcomes {
		if o.State == StateDone && o.Descriptor != nil {
			out = append(out, *o.Descriptor)
		}
	}
	return out
}

// Failed returns the outcomes that ended in StateFailed.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.State == StateFailed {
			out = append(out, o)
		}
	}
	return out
}

// failedInFor maps an error to the state it interrupted.
func failedInFor(current State, err error) State {
	if current != StateCompilingToAssembly {
		return current
	}
	if stage, ok := errutil.ContextValue(err, "stage"); ok && stage == string(toolchain.StageNative) {
		return StateCompilingToNative
	}
	return current
}

// outcomeLabel is the metrics label for a terminal outcome.
func outcomeLabel(o Outcome) string {
	if o.State == StateDone {
		return "done"
	}
	switch errutil.Code(o.Err) {
	case CodeNotPluginSource:
		return "not_a_source"
	case capability.CodeNotTrusted:
		return "not_trusted"
	case native.CodeSymbolFailed:
		return "symbol_missing"
	}
	switch o.Kind {
	case KindCompilerNotFound:
		return "compiler_not_found"
	case KindCompile:
		return "compile_error"
	default:
		return "load_error"
	}
}
