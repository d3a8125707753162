package metrics

import "fmt"

// Tag creates a formatted tag string in "key:value" format.
func Tag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

// OperationTag creates an operation tag.
func OperationTag(op string) string {
	return Tag("operation", op)
}

// StatusTag creates a status tag (hit/miss/error).
func StatusTag(status string) string {
	return Tag("status", status)
}

// NamespaceTag creates a namespace tag. Empty namespaces are tagged "none".
func NamespaceTag(ns string) string {
	if ns == "" {
		ns = "none"
	}
	return Tag("namespace", ns)
}
