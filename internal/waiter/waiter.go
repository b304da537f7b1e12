// Package waiter turns asynchronous readiness into a bounded, awaitable call.
//
// ForPath polls an object graph until a dotted field path resolves to a non-nil value.
// ForSignal waits on a one-shot channel that is closed when the producer becomes ready.
// Both give up with ErrTimeout once the deadline passes.
package waiter

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"
)

var ErrTimeout = errors.New("waiter: timed out")

// Until calls cond every interval until it returns true, the timeout elapses, or ctx ends.
// cond is evaluated once before the first tick, so an already-true condition returns at once.
func Until(ctx context.Context, cond func() bool, timeout, interval time.Duration) error {
	if cond() {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if cond() {
				return nil
			}
			return ErrTimeout
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}

// ForPath waits until Resolve(root, path) reports a present value.
func ForPath(ctx context.Context, root any, path string, timeout, interval time.Duration) error {
	return Until(ctx, func() bool {
		_, ok := Resolve(root, path)
		return ok
	}, timeout, interval)
}

// ForSignal waits for ready to be closed (or receive a value).
func ForSignal(ctx context.Context, ready <-chan struct{}, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}

// Resolve walks a dotted path through structs (exported fields by name), string-keyed
// maps, pointers and interfaces. A missing or nil segment at any depth yields ok=false.
// Values guarded by a mutex should expose an accessor method instead; Resolve also
// calls zero-argument single-result methods named after the segment.
func Resolve(root any, path string) (any, bool) {
	v := reflect.ValueOf(root)
	if path != "" {
		for _, segment := range strings.Split(path, ".") {
			var ok bool
			if v, ok = step(v, segment); !ok {
				return nil, false
			}
		}
	}

	v, ok := deref(v)
	if !ok {
		return nil, false
	}
	return v.Interface(), true
}

func step(v reflect.Value, name string) (reflect.Value, bool) {
	if !v.IsValid() {
		return reflect.Value{}, false
	}
	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
		return reflect.Value{}, false
	}

	if m := v.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		return m.Call(nil)[0], true
	}

	v, ok := deref(v)
	if !ok {
		return reflect.Value{}, false
	}

	switch v.Kind() {
	case reflect.Struct:
		field, found := v.Type().FieldByName(name)
		if !found || !field.IsExported() {
			return reflect.Value{}, false
		}
		return v.FieldByIndex(field.Index), true
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		elem := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !elem.IsValid() {
			return reflect.Value{}, false
		}
		return elem, true
	default:
		return reflect.Value{}, false
	}
}

// deref unwraps pointers and interfaces, failing on nil at any level.
func deref(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Value{}, false
	}
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		if v.IsNil() {
			return reflect.Value{}, false
		}
	}
	return v, true
}
