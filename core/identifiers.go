package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidIdentifier is returned for element identifiers that cannot
// address an element unambiguously.
var ErrInvalidIdentifier = errors.New("invalid element identifier")

// CheckIdentifier rejects identifiers that are empty or contain "/", the
// element path separator.
func CheckIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("%w: identifier is empty", ErrInvalidIdentifier)
	}
	if strings.Contains(id, "/") {
		return fmt.Errorf("%w: %q contains \"/\"", ErrInvalidIdentifier, id)
	}
	return nil
}

// CheckIdentifiers validates every identifier in the collection tree and
// rejects identifiers repeated among siblings. Errors name the element
// path, e.g. "s1/forward".
func (c *Collection) CheckIdentifiers() error {
	return checkIdentifiers(c, "")
}

func checkIdentifiers(c *Collection, parent string) error {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool, len(c.Elements))
	for _, el := range c.Elements {
		if el == nil {
			continue
		}
		if err := CheckIdentifier(el.Identifier); err != nil {
			if parent != "" {
				return fmt.Errorf("under %q: %w", parent, err)
			}
			return err
		}
		path := el.Identifier
		if parent != "" {
			path = parent + "/" + el.Identifier
		}
		if seen[el.Identifier] {
			return fmt.Errorf("%w: duplicate identifier %q", ErrInvalidIdentifier, path)
		}
		seen[el.Identifier] = true
		if err := checkIdentifiers(el.Child, path); err != nil {
			return err
		}
	}
	return nil
}
