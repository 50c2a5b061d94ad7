package ply

// publishCustomScalar implements spec.md §4.5 for one scalar custom
// property value: ensure the named property handle exists on owner,
// then set it for handle (a VH or FH).
func publishCustomScalar(imp Importer, owner OwnerKind, name string, handle any, value PropertyValue) {
	ph, ok := imp.GetPropertyHandle(owner, name)
	if !ok {
		ph = imp.AddProperty(owner, name)
	}
	imp.SetProperty(owner, ph, handle, value)
}

// publishCustomList implements spec.md §4.5 for a list custom
// property: the stored value is an ordered, uniformly-typed sequence
// (not a slice of boxed interface values) sized by the list's leading
// count.
func publishCustomList(imp Importer, owner OwnerKind, name string, handle any, vt ValueType, values []PropertyValue) {
	ph, ok := imp.GetPropertyHandle(owner, name)
	if !ok {
		ph = imp.AddProperty(owner, name)
	}
	imp.SetProperty(owner, ph, handle, typedSlice(vt, values))
}

// typedSlice converts a slice of boxed scalar values (each produced by
// readASCII/readBinary for the same ValueType) into a concretely
// typed Go slice, e.g. []int32, matching spec.md §4.5's "ordered
// sequence of that same element type".
func typedSlice(vt ValueType, values []PropertyValue) PropertyValue {
	switch vt.canonical() {
	case Int8:
		out := make([]int8, len(values))
		for i, v := range values {
			out[i] = v.(int8)
		}
		return out
	case UInt8:
		out := make([]uint8, len(values))
		for i, v := range values {
			out[i] = v.(uint8)
		}
		return out
	case Int16:
		out := make([]int16, len(values))
		for i, v := range values {
			out[i] = v.(int16)
		}
		return out
	case UInt16:
		out := make([]uint16, len(values))
		for i, v := range values {
			out[i] = v.(uint16)
		}
		return out
	case Int32:
		out := make([]int32, len(values))
		for i, v := range values {
			out[i] = v.(int32)
		}
		return out
	case UInt32:
		out := make([]uint32, len(values))
		for i, v := range values {
			out[i] = v.(uint32)
		}
		return out
	case Float32:
		out := make([]float32, len(values))
		for i, v := range values {
			out[i] = v.(float32)
		}
		return out
	case Float64:
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = v.(float64)
		}
		return out
	default:
		return values
	}
}
