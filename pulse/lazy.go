package pulse

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// lazy holds one raw JSON value and its typed form once resolved. The raw
// value is never consulted again after a successful resolution.
type lazy[T any] struct {
	raw      json.RawMessage
	extra    map[string]any
	resolved bool
	value    T
}

// set replaces the raw value and drops any cached resolution.
func (l *lazy[T]) set(raw json.RawMessage) {
	*l = lazy[T]{raw: raw}
}

// store records an already-typed value, as if it had been resolved.
func (l *lazy[T]) store(v T) {
	l.raw = nil
	l.extra = nil
	l.value = v
	l.resolved = true
}

// inject merges extra keys into the raw object before resolution.
func (l *lazy[T]) inject(extra map[string]any) error {
	if l.resolved {
		return fmt.Errorf("pulse: inject after resolution")
	}
	l.extra = mergeExtra(l.extra, extra)
	return nil
}

// load resolves the raw value once and memoizes it. A null or absent raw
// value resolves to the zero value without calling resolve. Failed
// resolutions are not memoized.
func (l *lazy[T]) load(resolve func(json.RawMessage) (T, error)) (T, error) {
	if l.resolved {
		return l.value, nil
	}

	var zero T
	if isNull(l.raw) {
		l.resolved = true
		return zero, nil
	}

	raw, err := injectInto(l.raw, l.extra)
	if err != nil {
		return zero, err
	}
	v, err := resolve(raw)
	if err != nil {
		return zero, err
	}
	l.store(v)
	return v, nil
}

// lazyList is the sequence counterpart of lazy: every raw element is
// resolved individually and the order of the raw array is preserved.
type lazyList[T any] struct {
	raw      json.RawMessage
	extra    map[string]any
	resolved bool
	values   []T
}

func (l *lazyList[T]) set(raw json.RawMessage) {
	*l = lazyList[T]{raw: raw}
}

func (l *lazyList[T]) store(values []T) {
	l.raw = nil
	l.extra = nil
	l.values = values
	l.resolved = true
}

// present reports whether the list has a raw or resolved value.
func (l *lazyList[T]) present() bool {
	return l.resolved || len(l.raw) > 0
}

func (l *lazyList[T]) inject(extra map[string]any) error {
	if l.resolved {
		return fmt.Errorf("pulse: inject after resolution")
	}
	l.extra = mergeExtra(l.extra, extra)
	return nil
}

func (l *lazyList[T]) load(resolve func(json.RawMessage) (T, error)) ([]T, error) {
	if l.resolved {
		return l.values, nil
	}
	if isNull(l.raw) {
		l.resolved = true
		return nil, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(l.raw, &elems); err != nil {
		return nil, fmt.Errorf("decoding list: %w", err)
	}

	values := make([]T, 0, len(elems))
	for i, elem := range elems {
		if isNull(elem) {
			continue
		}
		raw, err := injectInto(elem, l.extra)
		if err != nil {
			return nil, err
		}
		v, err := resolve(raw)
		if err != nil {
			return nil, fmt.Errorf("resolving element %d: %w", i, err)
		}
		values = append(values, v)
	}
	l.store(values)
	return values, nil
}

func mergeExtra(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// injectInto adds extra keys to a raw JSON object. Existing keys are left
// untouched and non-object values are returned unchanged.
func injectInto(raw json.RawMessage, extra map[string]any) (json.RawMessage, error) {
	if len(extra) == 0 {
		return raw, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("decoding object for injection: %w", err)
	}
	for k, v := range extra {
		if _, ok := obj[k]; ok {
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding injected key %q: %w", k, err)
		}
		obj[k] = encoded
	}
	return json.Marshal(obj)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
