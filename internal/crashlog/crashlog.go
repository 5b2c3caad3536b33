// Package crashlog records recovered panics with their stack traces.
package crashlog

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vowser/controlhub/internal/logging"
)

// Entry is one recovered panic.
type Entry struct {
	Time    time.Time
	Module  string
	Message string
	Stack   string
	Context map[string]string
}

const keepRecent = 32

var (
	panics atomic.Int64

	mu     sync.Mutex
	recent []Entry
)

// LogPanic records a recovered panic with the current goroutine's stack.
// ctx carries optional identifiers such as the tool name.
func LogPanic(module string, r any, ctx map[string]string) {
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)

	e := Entry{
		Time:    time.Now(),
		Module:  module,
		Message: fmt.Sprintf("%v", r),
		Stack:   string(stack[:n]),
		Context: ctx,
	}
	panics.Add(1)

	mu.Lock()
	recent = append(recent, e)
	if len(recent) > keepRecent {
		recent = recent[len(recent)-keepRecent:]
	}
	mu.Unlock()

	logging.Errorf("[PANIC] %s: %s%s\n%s", module, e.Message, formatContext(ctx), e.Stack)
}

// Count returns the number of panics recorded since start.
func Count() int64 { return panics.Load() }

// Recent returns the most recent panics, oldest first.
func Recent() []Entry {
	mu.Lock()
	defer mu.Unlock()
	out := make([]Entry, len(recent))
	copy(out, recent)
	return out
}

func formatContext(ctx map[string]string) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, ctx[k])
	}
	return b.String()
}
