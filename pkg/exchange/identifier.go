package exchange

import (
	"fmt"
	"strings"
)

// IdentifierMode selects how Search rewrites a patient identifier.
type IdentifierMode string

const (
	// IdentifierEnsure adds the prefix when it is missing.
	IdentifierEnsure IdentifierMode = "ensure"
	// IdentifierStrip removes the prefix when it is present.
	IdentifierStrip IdentifierMode = "strip"
	// IdentifierNone sends the identifier as typed.
	IdentifierNone IdentifierMode = "none"
)

// DefaultIdentifierPrefix is the national run-number qualifier.
const DefaultIdentifierPrefix = "RUN*"

// IdentifierPolicy is the identifier normalization applied before discovery.
type IdentifierPolicy struct {
	Mode   IdentifierMode
	Prefix string
}

// DefaultIdentifierPolicy ensures the RUN* prefix.
func DefaultIdentifierPolicy() IdentifierPolicy {
	return IdentifierPolicy{Mode: IdentifierEnsure, Prefix: DefaultIdentifierPrefix}
}

// Normalize trims id and applies the policy. The prefix is matched
// case-insensitively; applying Normalize twice gives the same result.
func (p IdentifierPolicy) Normalize(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty patient identifier", ErrValidation)
	}
	if p.Prefix == "" {
		return id, nil
	}

	has := len(id) >= len(p.Prefix) && strings.EqualFold(id[:len(p.Prefix)], p.Prefix)
	switch p.Mode {
	case IdentifierEnsure:
		if !has {
			id = p.Prefix + id
		}
	case IdentifierStrip:
		if has {
			id = strings.TrimSpace(id[len(p.Prefix):])
		}
		if id == "" {
			return "", fmt.Errorf("%w: empty patient identifier", ErrValidation)
		}
	}
	return id, nil
}
