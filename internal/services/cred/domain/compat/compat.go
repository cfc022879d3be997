// Package compat wraps serialized cred artifacts in a versioned header.
//
// Every artifact is a two-element JSON array: a header naming the format and
// its semantic version, then the payload. Readers accept a version range so
// additive format changes stay readable.
package compat

import (
	"encoding/json"
	"fmt"

	mm "github.com/Masterminds/semver/v3"
	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
)

// Header names an artifact format and version.
type Header struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

// Marshal encodes payload behind the header.
func Marshal(header Header, payload any) ([]byte, error) {
	if _, err := mm.StrictNewVersion(header.Version); err != nil {
		return nil, fmt.Errorf("compat: version %q: %w", header.Version, err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("compat: marshal %s: %w", header.Type, err)
	}
	head, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("compat: marshal header: %w", err)
	}
	return json.Marshal([]json.RawMessage{head, body})
}

// Unmarshal checks that data carries formatType at a version satisfying
// constraint, then decodes the payload into target.
func Unmarshal(data []byte, formatType, constraint string, target any) error {
	c, err := mm.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("compat: constraint %q: %w", constraint, err)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return apperrors.Wrap(apperrors.CodeIncompatibleFormat, "compat: expected [header, payload]", err)
	}
	if len(parts) != 2 {
		return apperrors.Newf(apperrors.CodeIncompatibleFormat, "compat: expected 2 elements, got %d", len(parts))
	}

	var header Header
	if err := json.Unmarshal(parts[0], &header); err != nil {
		return apperrors.Wrap(apperrors.CodeIncompatibleFormat, "compat: decode header", err)
	}
	if header.Type != formatType {
		return apperrors.WithMetadata(apperrors.CodeIncompatibleFormat, "compat: unexpected format type", map[string]string{
			"want": formatType,
			"got":  header.Type,
		})
	}
	version, err := mm.NewVersion(header.Version)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIncompatibleFormat, "compat: decode version", err)
	}
	if !c.Check(version) {
		return apperrors.WithMetadata(apperrors.CodeIncompatibleFormat, "compat: unsupported version", map[string]string{
			"type":       formatType,
			"version":    header.Version,
			"constraint": constraint,
		})
	}

	if err := json.Unmarshal(parts[1], target); err != nil {
		return apperrors.Wrap(apperrors.CodeIncompatibleFormat, fmt.Sprintf("compat: decode %s payload", formatType), err)
	}
	return nil
}
