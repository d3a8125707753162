package cache

import "strings"

// DefaultSeparator joins a namespace and a key in store-level prefixes.
const DefaultSeparator = "::"

// KeyPrefixData is a physical key split back into its parts.
type KeyPrefixData struct {
	Namespace string
	Key       string
}

// KeyPrefix returns namespace+sep+key, or key when namespace is empty.
func KeyPrefix(key, namespace, sep string) string {
	if namespace == "" {
		return key
	}
	return namespace + sep + key
}

// SplitKeyPrefix splits on the first separator. Keys without a separator
// belong to no namespace.
func SplitKeyPrefix(key, sep string) KeyPrefixData {
	if sep == "" {
		return KeyPrefixData{Key: key}
	}
	ns, rest, ok := strings.Cut(key, sep)
	if !ok {
		return KeyPrefixData{Key: key}
	}
	return KeyPrefixData{Namespace: ns, Key: rest}
}

// inNamespace reports whether a physical key belongs to namespace. The empty
// namespace owns only keys that carry no separator.
func inNamespace(physical, namespace, sep string) bool {
	if namespace == "" {
		return !strings.Contains(physical, sep)
	}
	return strings.HasPrefix(physical, namespace+sep)
}

func prefixAll(keys []string, namespace, sep string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = KeyPrefix(k, namespace, sep)
	}
	return out
}
