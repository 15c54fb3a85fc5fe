package cache

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// TagSeparator joins the tag name and the argument segment of a key.
	TagSeparator = "_"
	// ArgSeparator joins individual arguments inside the argument segment.
	ArgSeparator = ":"
)

// defaultKeySerializer writes scalar arguments verbatim so keys stay readable
// ("user_get_1", "user_list_0:100").
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds a cache key of the form "{tag}_{arg1}:{arg2}...".
// Without args the key is the tag itself.
func (s *defaultKeySerializer) SerializeKey(tag string, args ...any) string {
	if len(args) == 0 {
		return tag
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatArg(arg)
	}

	return tag + TagSeparator + strings.Join(parts, ArgSeparator)
}

// ItemKey is the key of a single item lookup, "{tag}_{id}".
func ItemKey(serializer KeySerializer, tag string, id any) string {
	return serializer.SerializeKey(tag, id)
}

// PageKey is the key of a paginated list lookup, "{tag}_{skip}:{limit}".
func PageKey(serializer KeySerializer, tag string, skip, limit int) string {
	return serializer.SerializeKey(tag, skip, limit)
}

func formatArg(v any) string {
	switch a := v.(type) {
	case nil:
		return "nil"
	case string:
		return a
	case int:
		return strconv.Itoa(a)
	case int64:
		return strconv.FormatInt(a, 10)
	case int32:
		return strconv.FormatInt(int64(a), 10)
	case uint:
		return strconv.FormatUint(uint64(a), 10)
	case uint64:
		return strconv.FormatUint(a, 10)
	case uint32:
		return strconv.FormatUint(uint64(a), 10)
	case bool:
		return strconv.FormatBool(a)
	case float64:
		return strconv.FormatFloat(a, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(a), 'g', -1, 32)
	case fmt.Stringer:
		return a.String()
	default:
		return fmt.Sprint(a)
	}
}
