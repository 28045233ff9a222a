package reflectx

import "reflect"

// IsZero reports whether v is nil, a nil pointer or interface, or a zero value.
// Pointers are followed, so a pointer to a zero value counts as zero.
func IsZero(v any) bool {
	if v == nil {
		return true
	}

	val := reflect.ValueOf(v)
	for val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return true
		}
		val = val.Elem()
	}
	return val.IsZero()
}
