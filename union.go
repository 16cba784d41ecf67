package finn

import "reflect"

// An Enum is an enumerated type whose values travel on the wire as
// stable wire IDs, independent of the in-memory constant values.
//
// WireID returns the wire ID for the receiver, or an error if the
// receiver is not a known enum value. Enum types must also implement
// SetWireID(uint32) error with a pointer receiver, which stores the
// enum value for a wire ID or reports an unknown ID.
type Enum interface {
	WireID() (uint32, error)
}

type enumSetter interface {
	SetWireID(id uint32) error
}

// A UnionTag is an [Enum] that selects the active variant of a
// tagged union field.
//
// A union field is an interface-typed struct field tagged with
// `finn:"union=Field"`, where Field is a UnionTag declared earlier in
// the same struct. The codec hands the tag's value to the union's
// encoder and decoder explicitly, and checks that the variant held
// by the union field has the type the tag selects.
type UnionTag interface {
	Enum
	// Variant returns the struct type of the variant selected by the
	// tag, or an error if the tag does not select a variant.
	Variant() (reflect.Type, error)
	// NumVariants returns the number of variants in the union. It
	// determines the union's field mask.
	NumVariants() int
}

var (
	enumType       = reflect.TypeFor[Enum]()
	enumSetterType = reflect.TypeFor[enumSetter]()
	unionTagType   = reflect.TypeFor[UnionTag]()
)

// unionVariant returns the variant type selected by the union tag
// field of structVal.
func unionVariant(f *structField, structVal reflect.Value) (reflect.Type, UnionTag, error) {
	tag := f.Tag.Get(structVal).Interface().(UnionTag)
	vt, err := tag.Variant()
	if err != nil {
		return nil, nil, err
	}
	return vt, tag, nil
}
