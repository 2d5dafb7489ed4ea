package badger

import "fmt"

// Key prefixes for different data types
const (
	namespacePrefix = "ns:"
	vectorPrefix    = "vec:"
	runPrefix       = "run:"
)

// makeNamespaceKey generates the key holding a namespace's metadata.
func makeNamespaceKey(namespace string) []byte {
	return []byte(namespacePrefix + namespace)
}

// makeVectorPrefix generates the prefix shared by every vector of a namespace.
// Format: vec:<len(namespace)>:<namespace>:
// The length keeps "a" from prefixing the vectors of "a:b".
func makeVectorPrefix(namespace string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s:", vectorPrefix, len(namespace), namespace))
}

// makeVectorKey generates a key for a vector by namespace and id.
func makeVectorKey(namespace, id string) []byte {
	prefix := makeVectorPrefix(namespace)
	buf := make([]byte, len(prefix)+len(id))
	offset := copy(buf, prefix)
	copy(buf[offset:], id)
	return buf
}

// makeRunKey generates a key for an ingestion run.
func makeRunKey(id string) []byte {
	return []byte(runPrefix + id)
}
