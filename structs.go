package finn

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// fieldKind is the wire shape of a struct field.
type fieldKind int

const (
	// fieldScalar is a packed integer or bool.
	fieldScalar fieldKind = iota
	// fieldEnum is an [Enum], written as its 4-byte wire ID.
	fieldEnum
	// fieldArray is a fixed length array of scalars.
	fieldArray
	// fieldStruct is a nested struct, or a fixed length array of
	// structs.
	fieldStruct
	// fieldBuffer is a variable length slice, sized by another field
	// or a constant.
	fieldBuffer
	// fieldUnion is a tagged union, discriminated by another field.
	fieldUnion
)

func (k fieldKind) String() string {
	switch k {
	case fieldScalar:
		return "scalar"
	case fieldEnum:
		return "enum"
	case fieldArray:
		return "array"
	case fieldStruct:
		return "struct"
	case fieldBuffer:
		return "buffer"
	case fieldUnion:
		return "union"
	default:
		return "invalid"
	}
}

// structField is the information about a struct field that needs to
// be serialized/deserialized.
type structField struct {
	Name  string
	Index int
	Type  reflect.Type
	Kind  fieldKind

	// Max is the inclusive upper bound of a scalar field's value, if
	// HasMax is set.
	Max    uint64
	HasMax bool

	// Count is the field that holds a buffer's element count. If
	// nil, the buffer has the constant length FixedCount.
	Count      *structField
	FixedCount uint64

	// Tag is the field that holds a union's discriminant.
	Tag *structField
}

// Get loads the struct field from structVal.
func (f *structField) Get(structVal reflect.Value) reflect.Value {
	return structVal.Field(f.Index)
}

// Variable reports whether the field lives in the variable length
// region of the struct's encoding.
func (f *structField) Variable() bool {
	return f.Kind == fieldBuffer || f.Kind == fieldUnion
}

// ElemCount returns the number of elements in a buffer field, given
// the enclosing struct.
func (f *structField) ElemCount(structVal reflect.Value) uint64 {
	if f.Count == nil {
		return f.FixedCount
	}
	return scalarUint(f.Count.Get(structVal))
}

// CheckRange checks that the field's value is within its declared
// bounds.
func (f *structField) CheckRange(v reflect.Value) error {
	if !f.HasMax {
		return nil
	}
	if u := scalarUint(v); u > f.Max {
		return statusErr(StatusOutOfRange, "value %d exceeds maximum %d", u, f.Max)
	}
	return nil
}

func (f *structField) String() string {
	var ret strings.Builder
	fmt.Fprintf(&ret, "%s: %s (%s) at %d", f.Name, f.Type, f.Kind, f.Index)
	if f.HasMax {
		fmt.Fprintf(&ret, ", max %d", f.Max)
	}
	switch {
	case f.Kind == fieldBuffer && f.Count != nil:
		fmt.Fprintf(&ret, ", count from %s", f.Count.Name)
	case f.Kind == fieldBuffer:
		fmt.Fprintf(&ret, ", count %d", f.FixedCount)
	case f.Kind == fieldUnion:
		fmt.Fprintf(&ret, ", tagged by %s", f.Tag.Name)
	}
	return ret.String()
}

// structInfo is the information about a struct relevant to
// serializing/deserializing.
type structInfo struct {
	// Name is the struct's name, for use in diagnostics.
	Name string
	// Type is the struct's type, for use in diagnostics.
	Type reflect.Type
	// Mask is the field mask that precedes the struct's fields on
	// the wire. It has one bit set per serialized field.
	Mask uint64

	// Static is the information about each fixed size field, in
	// declaration order.
	Static []*structField
	// Variable is the information about each variable length field,
	// in declaration order.
	Variable []*structField
}

func (s *structInfo) String() string {
	var ret strings.Builder
	fmt.Fprintf(&ret, "%s: struct, mask 0x%x, fields:\n", s.Name, s.Mask)
	for _, f := range s.Static {
		ret.WriteString(f.String())
		ret.WriteByte('\n')
	}
	for _, f := range s.Variable {
		ret.WriteString(f.String())
		ret.WriteByte('\n')
	}
	return ret.String()
}

// getStructInfo returns the structInfo for t.
//
// getStructInfo returns an error if t is not a struct, or if the
// struct is malformed in a way that prevents its use as a FINN
// parameter block.
func getStructInfo(t reflect.Type) (*structInfo, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%s is not a struct", t)
	}

	ret := &structInfo{
		Name: t.Name(),
		Type: t,
	}

	byName := map[string]*structField{}
	var n int
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Anonymous {
			return nil, fmt.Errorf("embedded field %s.%s is not supported", ret.Name, field.Name)
		}

		tag, err := parseStructTag(field)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", ret.Name, field.Name, err)
		}
		f := &structField{
			Name:  field.Name,
			Index: i,
			Type:  field.Type,
		}
		if err := f.classify(tag, byName); err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", ret.Name, field.Name, err)
		}

		byName[f.Name] = f
		if f.Variable() {
			ret.Variable = append(ret.Variable, f)
		} else {
			ret.Static = append(ret.Static, f)
		}
		n++
	}
	if n > 64 {
		return nil, fmt.Errorf("%s has %d serialized fields, field mask only has room for 64", ret.Name, n)
	}
	ret.Mask = fieldMask(n)

	return ret, nil
}

// fieldMask returns a mask with the low n bits set.
func fieldMask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<n - 1
}

// classify works out the wire shape of f from its Go type and struct
// tag. prev holds the fields declared before f, which are the only
// fields a count or union tag may refer to.
func (f *structField) classify(tag structTag, prev map[string]*structField) error {
	t := f.Type

	switch {
	case t.Implements(enumType):
		if !reflect.PointerTo(t).Implements(enumSetterType) {
			return fmt.Errorf("enum type %s must implement SetWireID with a pointer receiver", t)
		}
		f.Kind = fieldEnum
	case isScalarKind(t.Kind()):
		f.Kind = fieldScalar
	case t.Kind() == reflect.Array && t.Elem().Kind() == reflect.Struct:
		f.Kind = fieldStruct
	case t.Kind() == reflect.Array && isScalarKind(t.Elem().Kind()):
		f.Kind = fieldArray
	case t.Kind() == reflect.Struct:
		f.Kind = fieldStruct
	case t.Kind() == reflect.Slice:
		if k := t.Elem().Kind(); k != reflect.Struct && !isScalarKind(k) {
			return fmt.Errorf("slice elements must be scalars or structs, not %s", t.Elem())
		}
		f.Kind = fieldBuffer
	case t.Kind() == reflect.Interface:
		f.Kind = fieldUnion
	default:
		return typeErr(t, "no FINN mapping for type")
	}

	if tag.HasMax {
		if f.Kind != fieldScalar {
			return fmt.Errorf("max bound on non-scalar field")
		}
		f.Max, f.HasMax = tag.Max, true
	}

	switch f.Kind {
	case fieldBuffer:
		if tag.Count == "" {
			return fmt.Errorf("slice field requires a count tag")
		}
		if n, err := strconv.ParseUint(tag.Count, 0, 64); err == nil {
			f.FixedCount = n
			break
		}
		cf := prev[tag.Count]
		if cf == nil {
			return fmt.Errorf("count field %q must be declared before the slice", tag.Count)
		}
		if cf.Kind != fieldScalar || !isUnsignedKind(cf.Type.Kind()) {
			return fmt.Errorf("count field %s must be an unsigned integer", cf.Name)
		}
		f.Count = cf
	case fieldUnion:
		if tag.Union == "" {
			return fmt.Errorf("interface field requires a union tag")
		}
		uf := prev[tag.Union]
		if uf == nil {
			return fmt.Errorf("union tag field %q must be declared before the union", tag.Union)
		}
		if !uf.Type.Implements(unionTagType) {
			return fmt.Errorf("union tag field %s must implement UnionTag", uf.Name)
		}
		f.Tag = uf
	default:
		if tag.Count != "" || tag.Union != "" {
			return fmt.Errorf("count and union tags only apply to slice and interface fields")
		}
	}

	return nil
}

// structTag is the parsed form of a `finn:"..."` struct tag.
type structTag struct {
	Max    uint64
	HasMax bool
	Count  string
	Union  string
}

func parseStructTag(field reflect.StructField) (ret structTag, err error) {
	tag := field.Tag.Get("finn")
	if tag == "" {
		return ret, nil
	}
	for _, part := range strings.Split(tag, ",") {
		switch {
		case strings.HasPrefix(part, "max="):
			v, err := strconv.ParseUint(strings.TrimPrefix(part, "max="), 0, 64)
			if err != nil {
				return ret, fmt.Errorf("invalid max bound %q: %w", part, err)
			}
			ret.Max, ret.HasMax = v, true
		case strings.HasPrefix(part, "count="):
			ret.Count = strings.TrimPrefix(part, "count=")
		case strings.HasPrefix(part, "union="):
			ret.Union = strings.TrimPrefix(part, "union=")
		default:
			return ret, fmt.Errorf("unknown struct tag option %q", part)
		}
	}
	return ret, nil
}
