// Package graph models contribution graphs: hierarchical node and edge
// addresses, the graph itself, prefix weights, merging and serialization.
package graph

import (
	"fmt"
	"strconv"
	"strings"
)

const separator = "\x00"

const (
	nodeMarker = "N"
	edgeMarker = "E"
)

// NodeAddress is an ordered sequence of string parts identifying a node.
//
// The encoding terminates every part with a NUL byte, so a byte-prefix test
// on two encodings is a part-wise prefix test.
type NodeAddress string

// EdgeAddress is an ordered sequence of string parts identifying an edge.
type EdgeAddress string

// NodeAddressFromParts encodes parts as a node address.
func NodeAddressFromParts(parts []string) (NodeAddress, error) {
	encoded, err := encode(nodeMarker, parts)
	return NodeAddress(encoded), err
}

// NewNodeAddress is NodeAddressFromParts for parts known to contain no NUL.
func NewNodeAddress(parts ...string) NodeAddress {
	a, err := NodeAddressFromParts(parts)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseNodeAddress splits a slash-separated path such as "github/user" into a
// node address. The empty path is the empty address, a prefix of every node.
func ParseNodeAddress(path string) (NodeAddress, error) {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return NodeAddressFromParts(nil)
	}
	return NodeAddressFromParts(strings.Split(path, "/"))
}

// Parts decodes the address.
func (a NodeAddress) Parts() []string { return decode(nodeMarker, string(a)) }

// Append returns the address with parts added at the end.
func (a NodeAddress) Append(parts ...string) NodeAddress {
	return NewNodeAddress(append(a.Parts(), parts...)...)
}

// HasPrefix reports whether prefix is a part-wise prefix of a.
func (a NodeAddress) HasPrefix(prefix NodeAddress) bool {
	return strings.HasPrefix(string(a), string(prefix))
}

// String renders the address for humans, e.g. N["github","user","ada"].
func (a NodeAddress) String() string { return render(nodeMarker, a.Parts()) }

// EdgeAddressFromParts encodes parts as an edge address.
func EdgeAddressFromParts(parts []string) (EdgeAddress, error) {
	encoded, err := encode(edgeMarker, parts)
	return EdgeAddress(encoded), err
}

// NewEdgeAddress is EdgeAddressFromParts for parts known to contain no NUL.
func NewEdgeAddress(parts ...string) EdgeAddress {
	a, err := EdgeAddressFromParts(parts)
	if err != nil {
		panic(err)
	}
	return a
}

// Parts decodes the address.
func (a EdgeAddress) Parts() []string { return decode(edgeMarker, string(a)) }

// HasPrefix reports whether prefix is a part-wise prefix of a.
func (a EdgeAddress) HasPrefix(prefix EdgeAddress) bool {
	return strings.HasPrefix(string(a), string(prefix))
}

// String renders the address for humans, e.g. E["github","authors","1"].
func (a EdgeAddress) String() string { return render(edgeMarker, a.Parts()) }

func encode(marker string, parts []string) (string, error) {
	var b strings.Builder
	b.WriteString(marker)
	b.WriteString(separator)
	for i, part := range parts {
		if strings.Contains(part, separator) {
			return "", fmt.Errorf("address part %d contains NUL: %q", i, part)
		}
		b.WriteString(part)
		b.WriteString(separator)
	}
	return b.String(), nil
}

func decode(marker, encoded string) []string {
	body := strings.TrimPrefix(encoded, marker+separator)
	if body == "" {
		return []string{}
	}
	parts := strings.Split(body, separator)
	return parts[:len(parts)-1]
}

func render(marker string, parts []string) string {
	quoted := make([]string, len(parts))
	for i, part := range parts {
		quoted[i] = strconv.Quote(part)
	}
	return marker + "[" + strings.Join(quoted, ",") + "]"
}

// prefixes returns every part-wise prefix of parts, shortest first: the
// empty address, then one part, and so on up to the full address.
func prefixes(marker string, parts []string) []string {
	out := make([]string, 0, len(parts)+1)
	var b strings.Builder
	b.WriteString(marker)
	b.WriteString(separator)
	out = append(out, b.String())
	for _, part := range parts {
		b.WriteString(part)
		b.WriteString(separator)
		out = append(out, b.String())
	}
	return out
}
