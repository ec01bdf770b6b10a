// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/eventreporter/lib/event"
)

// Envelope is the single message sent per flush in envelope mode.
type Envelope struct {
	Host   string `json:"host"`
	Schema string `json:"schema"`

	// TimeStamp is the flush time in Unix milliseconds.
	TimeStamp int64 `json:"timeStamp"`

	// Events maps each event type to its events, in timestamp order,
	// with reference cycles replaced by placeholder strings.
	Events map[string][]any `json:"events"`
}

// New builds the envelope for one flush. The events are copied
// through Decycle, so the envelope is always safe to encode and
// never aliases caller maps.
func New(host, schema string, now time.Time, groups event.Groups) Envelope {
	events := make(map[string][]any, len(groups))
	for _, eventType := range groups.Types() {
		members := groups[eventType]
		converted := make([]any, len(members))
		for index, e := range members {
			path := "~.events." + eventType + "." + strconv.Itoa(index)
			converted[index] = Decycle(map[string]any(e), path)
		}
		events[eventType] = converted
	}
	return Envelope{
		Host:      host,
		Schema:    schema,
		TimeStamp: now.UnixMilli(),
		Events:    events,
	}
}

// Decycle returns a copy of value built only from map[string]any,
// []any and scalars. Every map, slice or pointer that contains itself
// (directly or through descendants) is replaced, at the point of
// recursion, by "[Circular <path>]" where path names the ancestor being
// revisited. path is the location of value itself; "~" denotes the
// root, and a self-reference at the root yields "[Circular ~]".
//
// Values of any Go type are walked, including typed maps and slices
// (such as []event.Event), arrays, pointers and structs. Struct fields
// follow their json tag names. Values reachable more than once without
// forming a cycle are copied each time they appear.
//
// Values neither encoder can carry become placeholder strings: NaN and
// infinite floats become "[NaN]", "[+Inf]" or "[-Inf]", and channels,
// functions, complex numbers and unsafe pointers become
// "[Unsupported <type>]". json.Number values become int64 or float64.
// time.Time values are kept; other encoding.TextMarshaler values
// become their text.
func Decycle(value any, path string) any {
	return decycle(reflect.ValueOf(value), path, make(map[identity]string))
}

// identity names a map, slice or pointer value. Slices sharing a
// backing array are distinct values, so a slice is identified by its
// length too.
type identity struct {
	kind    reflect.Kind
	pointer uintptr
	length  int
}

var (
	numberType        = reflect.TypeFor[json.Number]()
	timeType          = reflect.TypeFor[time.Time]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

func decycle(value reflect.Value, path string, ancestors map[identity]string) any {
	if !value.IsValid() {
		return nil
	}
	switch value.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
		if value.IsNil() {
			return nil
		}
	}
	if value.Kind() == reflect.Interface {
		return decycle(value.Elem(), path, ancestors)
	}

	switch value.Type() {
	case numberType:
		return number(json.Number(value.String()))
	case timeType:
		if value.CanInterface() {
			return value.Interface()
		}
	}
	if value.Type().Implements(textMarshalerType) && value.CanInterface() {
		text, err := value.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "[Unsupported " + value.Type().String() + "]"
		}
		return string(text)
	}

	switch value.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return scalar(value)
	case reflect.Float32, reflect.Float64:
		float := value.Float()
		switch {
		case math.IsNaN(float):
			return "[NaN]"
		case math.IsInf(float, 1):
			return "[+Inf]"
		case math.IsInf(float, -1):
			return "[-Inf]"
		}
		return scalar(value)
	case reflect.Pointer:
		key := identity{kind: reflect.Pointer, pointer: value.Pointer()}
		return track(key, path, ancestors, func() any {
			return decycle(value.Elem(), path, ancestors)
		})
	case reflect.Map:
		key := identity{kind: reflect.Map, pointer: value.Pointer()}
		return track(key, path, ancestors, func() any {
			copied := make(map[string]any, value.Len())
			iterator := value.MapRange()
			for iterator.Next() {
				field := mapKey(iterator.Key())
				copied[field] = decycle(iterator.Value(), path+"."+field, ancestors)
			}
			return copied
		})
	case reflect.Slice:
		if value.Type().Elem().Kind() == reflect.Uint8 {
			return append([]byte(nil), value.Bytes()...)
		}
		if value.Len() == 0 {
			return []any{}
		}
		key := identity{kind: reflect.Slice, pointer: value.Pointer(), length: value.Len()}
		return track(key, path, ancestors, func() any {
			return elements(value, path, ancestors)
		})
	case reflect.Array:
		return elements(value, path, ancestors)
	case reflect.Struct:
		return fields(value, path, ancestors)
	default:
		return "[Unsupported " + value.Type().String() + "]"
	}
}

// track runs build with key recorded as an ancestor at path, or returns
// the circular placeholder if key is already an ancestor.
func track(key identity, path string, ancestors map[identity]string, build func() any) any {
	if ancestor, ok := ancestors[key]; ok {
		return circular(ancestor)
	}
	ancestors[key] = path
	defer delete(ancestors, key)
	return build()
}

func elements(value reflect.Value, path string, ancestors map[identity]string) []any {
	copied := make([]any, value.Len())
	for index := range copied {
		copied[index] = decycle(value.Index(index), path+"."+strconv.Itoa(index), ancestors)
	}
	return copied
}

// fields copies the exported fields of a struct, named and filtered the
// way encoding/json names and filters them.
func fields(value reflect.Value, path string, ancestors map[identity]string) map[string]any {
	structType := value.Type()
	copied := make(map[string]any, structType.NumField())
	for index := range structType.NumField() {
		field := structType.Field(index)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		omitEmpty := false
		if tag, ok := field.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			tagName, options, _ := strings.Cut(tag, ",")
			if tagName != "" {
				name = tagName
			}
			omitEmpty = strings.Contains(","+options+",", ",omitempty,")
		}
		element := value.Field(index)
		if omitEmpty && element.IsZero() {
			continue
		}
		copied[name] = decycle(element, path+"."+name, ancestors)
	}
	return copied
}

// scalar returns a boolean, string or integer value, keeping its Go
// type when the value is reachable through exported fields.
func scalar(value reflect.Value) any {
	if value.CanInterface() {
		return value.Interface()
	}
	switch value.Kind() {
	case reflect.Bool:
		return value.Bool()
	case reflect.String:
		return value.String()
	case reflect.Float32, reflect.Float64:
		return value.Float()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return value.Uint()
	default:
		return value.Int()
	}
}

func mapKey(key reflect.Value) string {
	if key.Kind() == reflect.Interface && !key.IsNil() {
		key = key.Elem()
	}
	if key.Kind() == reflect.String {
		return key.String()
	}
	if key.Type().Implements(textMarshalerType) && key.CanInterface() {
		if text, err := key.Interface().(encoding.TextMarshaler).MarshalText(); err == nil {
			return string(text)
		}
	}
	if key.CanInterface() {
		return fmt.Sprint(key.Interface())
	}
	switch key.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return fmt.Sprint(scalar(key))
	}
	return "[" + key.Type().String() + "]"
}

func number(v json.Number) any {
	// CBOR has no arbitrary-precision literal; carry a number.
	if integer, err := v.Int64(); err == nil {
		return integer
	}
	if float, err := v.Float64(); err == nil {
		return float
	}
	return v.String()
}

func circular(path string) string {
	return "[Circular " + path + "]"
}
