// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package luaformat

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// converter turns an event value of any Go type into Lua. A map, slice
// or struct pointer converted once is reused by identity, so a cyclic
// event becomes a cyclic table. Values Lua cannot hold become
// "[Unsupported <type>]" strings.
type converter struct {
	state  *lua.LState
	tables map[identity]*lua.LTable

	// visiting holds pointers to non-struct values being dereferenced;
	// they produce no table to reuse.
	visiting map[identity]bool
}

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

func newConverter(state *lua.LState) *converter {
	return &converter{
		state:    state,
		tables:   make(map[identity]*lua.LTable),
		visiting: make(map[identity]bool),
	}
}

func (c *converter) convert(value reflect.Value) lua.LValue {
	if !value.IsValid() {
		return lua.LNil
	}
	switch value.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
		if value.IsNil() {
			return lua.LNil
		}
	}
	if value.Kind() == reflect.Interface {
		return c.convert(value.Elem())
	}

	switch value.Type() {
	case numberType:
		number, err := json.Number(value.String()).Float64()
		if err != nil {
			return lua.LString(value.String())
		}
		return lua.LNumber(number)
	case timeType:
		if value.CanInterface() {
			return lua.LNumber(value.Interface().(time.Time).UnixMilli())
		}
	}
	if value.Type().Implements(textMarshalerType) && value.CanInterface() {
		text, err := value.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return unsupported(value)
		}
		return lua.LString(text)
	}

	switch value.Kind() {
	case reflect.Bool:
		return lua.LBool(value.Bool())
	case reflect.String:
		return lua.LString(value.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(value.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return lua.LNumber(value.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(value.Float())
	case reflect.Pointer:
		key := identity{kind: reflect.Pointer, pointer: value.Pointer()}
		if value.Elem().Kind() == reflect.Struct {
			return c.table(key, func(table *lua.LTable) { c.fields(table, value.Elem()) })
		}
		if c.visiting[key] {
			return lua.LString("[Circular]")
		}
		c.visiting[key] = true
		defer delete(c.visiting, key)
		return c.convert(value.Elem())
	case reflect.Map:
		key := identity{kind: reflect.Map, pointer: value.Pointer()}
		return c.table(key, func(table *lua.LTable) {
			iterator := value.MapRange()
			for iterator.Next() {
				table.RawSet(c.mapKey(iterator.Key()), c.convert(iterator.Value()))
			}
		})
	case reflect.Slice:
		if value.Type().Elem().Kind() == reflect.Uint8 {
			return lua.LString(value.Bytes())
		}
		if value.Len() == 0 {
			return c.state.NewTable()
		}
		key := identity{kind: reflect.Slice, pointer: value.Pointer(), length: value.Len()}
		return c.table(key, func(table *lua.LTable) { c.elements(table, value) })
	case reflect.Array:
		table := c.state.NewTable()
		c.elements(table, value)
		return table
	case reflect.Struct:
		table := c.state.NewTable()
		c.fields(table, value)
		return table
	default:
		return unsupported(value)
	}
}

// table returns the table already built for key, or registers a new
// one before fill runs so that fill can refer back to it.
func (c *converter) table(key identity, fill func(*lua.LTable)) *lua.LTable {
	if table, ok := c.tables[key]; ok {
		return table
	}
	table := c.state.NewTable()
	c.tables[key] = table
	fill(table)
	return table
}

func (c *converter) elements(table *lua.LTable, value reflect.Value) {
	for index := range value.Len() {
		table.RawSetInt(index+1, c.convert(value.Index(index)))
	}
}

// fields sets the exported fields of a struct under their json tag
// names.
func (c *converter) fields(table *lua.LTable, value reflect.Value) {
	structType := value.Type()
	for index := range structType.NumField() {
		field := structType.Field(index)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			if tagName, _, _ := strings.Cut(tag, ","); tagName != "" {
				name = tagName
			}
		}
		table.RawSetString(name, c.convert(value.Field(index)))
	}
}

func (c *converter) mapKey(key reflect.Value) lua.LValue {
	if key.Kind() == reflect.Interface && !key.IsNil() {
		key = key.Elem()
	}
	switch key.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return c.convert(key)
	case reflect.Float32, reflect.Float64:
		return lua.LString(strconv.FormatFloat(key.Float(), 'g', -1, 64))
	}
	if key.CanInterface() {
		return lua.LString(fmt.Sprint(key.Interface()))
	}
	return unsupported(key)
}

func unsupported(value reflect.Value) lua.LString {
	return lua.LString("[Unsupported " + value.Type().String() + "]")
}
