package repositorycache

// Tag suffixes appended to an entity namespace.
const (
	ListTagSuffix = "_list"
	GetTagSuffix  = "_get"
)

// ListTag returns the tag covering every list read of namespace, e.g. "user_list".
func ListTag(namespace string) string {
	return namespace + ListTagSuffix
}

// GetTag returns the tag covering every item read of namespace, e.g. "user_get".
func GetTag(namespace string) string {
	return namespace + GetTagSuffix
}

// dedupeStrings drops empty and repeated values keeping first-seen order.
func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	out := values[:0:0]
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
