// Package enums は永続化される状態値（貸出・資産・ヘルプデスク）を閉じた文字列型として定義する。
// DB / JSON との往復で未知の値は必ずエラーになる。
package enums

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type meta struct {
	label string
	color string
}

// def は各列挙型の共通実装。values の並びが SortOrder になる。
type def[T ~string] struct {
	name   string
	values []T
	meta   map[T]meta
}

func (d def[T]) valid(v T) bool {
	_, ok := d.meta[v]
	return ok
}

func (d def[T]) parse(s string) (T, error) {
	v := T(s)
	if !d.valid(v) {
		return "", fmt.Errorf("invalid %s: %q", d.name, s)
	}
	return v, nil
}

func (d def[T]) all() []T {
	out := make([]T, len(d.values))
	copy(out, d.values)
	return out
}

func (d def[T]) order(v T) int {
	for i, x := range d.values {
		if x == v {
			return i + 1
		}
	}
	return 0
}

func (d def[T]) label(v T) string { return d.meta[v].label }
func (d def[T]) color(v T) string { return d.meta[v].color }

func (d def[T]) scan(dst *T, src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		return fmt.Errorf("cannot scan NULL into %s", d.name)
	default:
		return fmt.Errorf("cannot scan %T into %s", src, d.name)
	}
	v, err := d.parse(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func (d def[T]) value(v T) (driver.Value, error) {
	if !d.valid(v) {
		return nil, fmt.Errorf("invalid %s: %q", d.name, string(v))
	}
	return string(v), nil
}

func (d def[T]) unmarshal(dst *T, b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%s must be a string", d.name)
	}
	return d.scan(dst, s)
}
