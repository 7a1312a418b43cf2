package pulse

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"time"
)

// Params holds request parameters. Values may be strings, numbers, bools,
// time.Time, slices, nested Params/maps, or nil (omitted).
type Params map[string]any

// PageOptions controls pagination for list endpoints. Zero values leave
// the remote defaults in place.
type PageOptions struct {
	Page    int
	PerPage int
}

func (o PageOptions) params() Params {
	p := Params{}
	if o.Page > 0 {
		p["page"] = o.Page
	}
	if o.PerPage > 0 {
		p["per_page"] = o.PerPage
	}
	return p
}

// encodeParams flattens params into url.Values. Booleans become literal
// "true"/"false", slices become prefix[i] keys, maps become prefix[key]
// keys, and nil values are dropped.
func encodeParams(params Params) url.Values {
	values := url.Values{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		encodeValue(values, k, params[k])
	}
	return values
}

func encodeValue(values url.Values, key string, v any) {
	switch val := v.(type) {
	case nil:
		return
	case string:
		values.Add(key, val)
	case bool:
		values.Add(key, strconv.FormatBool(val))
	case int:
		values.Add(key, strconv.Itoa(val))
	case int64:
		values.Add(key, strconv.FormatInt(val, 10))
	case float64:
		values.Add(key, strconv.FormatFloat(val, 'f', -1, 64))
	case time.Time:
		values.Add(key, val.Format(dateLayout))
	case *time.Time:
		if val != nil {
			values.Add(key, val.Format(dateLayout))
		}
	case Params:
		encodeMap(values, key, val)
	case map[string]any:
		encodeMap(values, key, val)
	case []string:
		for i, s := range val {
			values.Add(fmt.Sprintf("%s[%d]", key, i), s)
		}
	case []int64:
		for i, n := range val {
			values.Add(fmt.Sprintf("%s[%d]", key, i), strconv.FormatInt(n, 10))
		}
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				encodeValue(values, fmt.Sprintf("%s[%d]", key, i), rv.Index(i).Interface())
			}
		case reflect.Pointer:
			if !rv.IsNil() {
				encodeValue(values, key, rv.Elem().Interface())
			}
		default:
			values.Add(key, fmt.Sprint(v))
		}
	}
}

func encodeMap(values url.Values, prefix string, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		encodeValue(values, fmt.Sprintf("%s[%s]", prefix, k), m[k])
	}
}
