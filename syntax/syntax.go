// Package syntax implements a struct-tag-driven marshal/unmarshal scheme
// for TLS presentation-language structures: a Go struct mirrors an RFC
// struct definition field for field, and a `tls:"head=N,min=N,max=N"` tag
// on a slice or []byte field says how many bytes its length prefix
// occupies and what bounds the inner length must satisfy. Fields without
// a tag are encoded in place with no prefix (fixed-width integers,
// fixed-size arrays, and nested structs).
package syntax

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// tagSpec is the parsed form of a `tls:"..."` struct tag.
type tagSpec struct {
	head     int // length-prefix width in bytes; 0 means "no prefix, fixed width"
	min, max int
	hasMin   bool
	hasMax   bool
}

func parseTag(tag string) (tagSpec, error) {
	spec := tagSpec{}
	raw, ok := lookupTag(tag)
	if !ok {
		return spec, nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return spec, fmt.Errorf("syntax: malformed tag component %q", part)
		}
		n, err := strconv.Atoi(kv[1])
		if err != nil {
			return spec, fmt.Errorf("syntax: non-numeric tag value in %q: %v", part, err)
		}
		switch kv[0] {
		case "head":
			spec.head = n
		case "min":
			spec.min, spec.hasMin = n, true
		case "max":
			spec.max, spec.hasMax = n, true
		default:
			return spec, fmt.Errorf("syntax: unknown tag key %q", kv[0])
		}
	}
	return spec, nil
}

func lookupTag(tag string) (string, bool) {
	return reflect.StructTag(tag).Lookup("tls")
}

// Marshal serializes v (a struct, or a value reachable from one) into TLS
// presentation-language wire form.
func Marshal(v interface{}) ([]byte, error) {
	rv := reflect.ValueOf(v)
	w := newWriter()
	if err := w.write(rv, tagSpec{}); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal parses data into v (a pointer to a struct) and returns the
// number of bytes consumed.
func Unmarshal(data []byte, v interface{}) (int, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return 0, fmt.Errorf("syntax: Unmarshal requires a pointer")
	}
	r := newReader(data)
	if err := r.read(rv.Elem(), tagSpec{}); err != nil {
		return 0, err
	}
	return r.off, nil
}
