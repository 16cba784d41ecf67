package main

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/danderson/finn"
	"gopkg.in/yaml.v3"
)

// decodeParams decodes a YAML document into the parameter block v
// points to.
//
// Mapping keys match struct fields case insensitively. Union fields
// take the variant selected by their tag field, which must appear
// earlier in the document. Enum fields accept either their numeric
// value or their name.
func decodeParams(doc []byte, v any) error {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return err
	}
	if root.Kind == 0 {
		// Empty document, zero parameter block.
		return nil
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 {
		return errors.New("input must be a single YAML document")
	}
	return decodeValue(root.Content[0], reflect.ValueOf(v).Elem())
}

var (
	unionTagType = reflect.TypeFor[finn.UnionTag]()
	stringerType = reflect.TypeFor[fmt.Stringer]()
)

type wireIDSetter interface {
	SetWireID(uint32) error
}

func decodeValue(n *yaml.Node, v reflect.Value) error {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	switch v.Kind() {
	case reflect.Struct:
		return decodeStruct(n, v)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 && n.Kind == yaml.ScalarNode {
			// Strings are accepted for byte buffers.
			v.SetBytes([]byte(n.Value))
			return nil
		}
		if n.Kind != yaml.SequenceNode {
			return nodeErr(n, "expected a sequence for %s", v.Type())
		}
		s := reflect.MakeSlice(v.Type(), len(n.Content), len(n.Content))
		for i, elt := range n.Content {
			if err := decodeValue(elt, s.Index(i)); err != nil {
				return err
			}
		}
		v.Set(s)
		return nil
	case reflect.Array:
		if n.Kind != yaml.SequenceNode {
			return nodeErr(n, "expected a sequence for %s", v.Type())
		}
		if len(n.Content) > v.Len() {
			return nodeErr(n, "%d elements do not fit in %s", len(n.Content), v.Type())
		}
		for i, elt := range n.Content {
			if err := decodeValue(elt, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Interface:
		return nodeErr(n, "union field %s must follow its tag", v.Type())
	}

	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" && v.CanAddr() {
		if ok, err := decodeEnumName(n, v); ok {
			return err
		}
	}
	if err := n.Decode(v.Addr().Interface()); err != nil {
		return nodeErr(n, "%v", err)
	}
	return nil
}

// decodeEnumName decodes an enum value given by name. It reports
// false if v is not an enum type.
func decodeEnumName(n *yaml.Node, v reflect.Value) (bool, error) {
	if !v.Type().Implements(stringerType) {
		return false, nil
	}
	setter, ok := v.Addr().Interface().(wireIDSetter)
	if !ok {
		return false, nil
	}
	// Wire IDs are dense from 1, so probing stops at the first gap.
	for id := uint32(1); setter.SetWireID(id) == nil; id++ {
		if strings.EqualFold(v.Interface().(fmt.Stringer).String(), n.Value) {
			return true, nil
		}
	}
	v.SetZero()
	return true, nodeErr(n, "unknown %s %q", v.Type().Name(), n.Value)
}

func decodeStruct(n *yaml.Node, v reflect.Value) error {
	if n.Kind != yaml.MappingNode {
		return nodeErr(n, "expected a mapping for %s", v.Type())
	}
	t := v.Type()
	for i := 0; i < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		f, ok := t.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, key.Value)
		})
		if !ok || !f.IsExported() || len(f.Index) != 1 {
			return nodeErr(key, "%s has no field %q", t.Name(), key.Value)
		}
		fv := v.FieldByIndex(f.Index)
		if f.Type.Kind() == reflect.Interface {
			if err := decodeUnion(val, v, f, fv); err != nil {
				return err
			}
			continue
		}
		if err := decodeValue(val, fv); err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
		}
	}
	return nil
}

func decodeUnion(n *yaml.Node, sv reflect.Value, f reflect.StructField, fv reflect.Value) error {
	tagName := ""
	for _, opt := range strings.Split(f.Tag.Get("finn"), ",") {
		if k, v, ok := strings.Cut(opt, "="); ok && k == "union" {
			tagName = v
		}
	}
	tf := sv.FieldByName(tagName)
	if tagName == "" || !tf.IsValid() || !tf.Type().Implements(unionTagType) {
		return nodeErr(n, "%s.%s is not a tagged union", sv.Type().Name(), f.Name)
	}
	vt, err := tf.Interface().(finn.UnionTag).Variant()
	if err != nil {
		return nodeErr(n, "%s.%s: %v", sv.Type().Name(), f.Name, err)
	}
	variant := reflect.New(vt).Elem()
	if err := decodeValue(n, variant); err != nil {
		return fmt.Errorf("%s.%s: %w", sv.Type().Name(), f.Name, err)
	}
	if !variant.Type().AssignableTo(fv.Type()) {
		return nodeErr(n, "%s is not a valid %s", vt, fv.Type())
	}
	fv.Set(variant)
	return nil
}

func nodeErr(n *yaml.Node, msg string, args ...any) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(msg, args...))
}
