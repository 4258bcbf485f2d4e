// Package schemafmt normalizes the kind and schema_version header fields of
// match request documents.
package schemafmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DocumentKind identifies supported top-level document kinds.
type DocumentKind string

const (
	KindMatchRequest DocumentKind = "match_request"

	LegacyKindMatchRequest = "match-request"

	SupportedRequestSchemaMajor = 1
	CurrentRequestSchemaVersion = "1.0.0"
)

var semverPattern = regexp.MustCompile(
	`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)` +
		`(?:-((?:0|[1-9][0-9]*|[0-9A-Za-z-]*[A-Za-z-][0-9A-Za-z-]*)` +
		`(?:\.(?:0|[1-9][0-9]*|[0-9A-Za-z-]*[A-Za-z-][0-9A-Za-z-]*))*))?` +
		`(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`,
)

// NormalizeKind canonicalizes a kind string. An empty kind defaults to
// KindMatchRequest. The second result reports use of the legacy alias.
func NormalizeKind(raw string) (DocumentKind, bool, error) {
	switch kind := strings.TrimSpace(raw); kind {
	case "", string(KindMatchRequest):
		return KindMatchRequest, false, nil
	case LegacyKindMatchRequest:
		return KindMatchRequest, true, nil
	default:
		return "", false, fmt.Errorf("invalid kind %q", raw)
	}
}

// ValidateSchemaVersion ensures version is a SemVer 2.0.0 string with a
// supported MAJOR. An empty version is accepted and means the current one.
func ValidateSchemaVersion(version string, supportedMajor int) error {
	v := strings.TrimSpace(version)
	if v == "" {
		return nil
	}

	match := semverPattern.FindStringSubmatch(v)
	if match == nil {
		return fmt.Errorf("schema_version %q must be a valid semantic version (MAJOR.MINOR.PATCH)", version)
	}

	major, err := strconv.Atoi(match[1])
	if err != nil {
		return fmt.Errorf("parsing schema_version major: %w", err)
	}
	if major != supportedMajor {
		return fmt.Errorf("schema_version %q has unsupported major %d (supported: %d.x.x)", version, major, supportedMajor)
	}
	return nil
}
