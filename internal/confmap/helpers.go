package confmap

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	default:
		return "", false
	}
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case float32:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func asBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	default:
		return false, false
	}
}

func asInts(v any) ([]int, bool) {
	switch xs := v.(type) {
	case []int:
		return append([]int(nil), xs...), true
	case []any:
		out := make([]int, 0, len(xs))
		for _, item := range xs {
			n, ok := asInt(item)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	default:
		return nil, false
	}
}

func asInt64s(v any) ([]int64, bool) {
	switch xs := v.(type) {
	case []int64:
		return append([]int64(nil), xs...), true
	case []any:
		out := make([]int64, 0, len(xs))
		for _, item := range xs {
			n, ok := asInt64(item)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	default:
		return nil, false
	}
}

func asFloat64s(v any) ([]float64, bool) {
	switch xs := v.(type) {
	case []float64:
		return append([]float64(nil), xs...), true
	case []any:
		out := make([]float64, 0, len(xs))
		for _, item := range xs {
			f, ok := asFloat64(item)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	default:
		return nil, false
	}
}

// asRange accepts either a two-element array or a {"low":..,"high":..}
// object.
func asRange(v any) ([2]float64, bool) {
	switch x := v.(type) {
	case []any:
		if len(x) != 2 {
			return [2]float64{}, false
		}
		lo, ok1 := asFloat64(x[0])
		hi, ok2 := asFloat64(x[1])
		if !ok1 || !ok2 {
			return [2]float64{}, false
		}
		return [2]float64{lo, hi}, true
	case map[string]any:
		lo, ok1 := asFloat64(x["low"])
		hi, ok2 := asFloat64(x["high"])
		if !ok1 || !ok2 {
			return [2]float64{}, false
		}
		return [2]float64{lo, hi}, true
	default:
		return [2]float64{}, false
	}
}

func asMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	default:
		return nil, false
	}
}
