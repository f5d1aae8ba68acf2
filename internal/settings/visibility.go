package settings

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// CurrentUser is the visibility placeholder for the logged-in identity
const CurrentUser = "{current_user}"

// Public is the default visibility
const Public = "public"

// Visibility is a list of principals. In YAML it may be written as a single
// string or as a list of strings.
type Visibility []string

// UnmarshalYAML accepts a scalar or a sequence
func (v *Visibility) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*v = Visibility{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*v = Visibility(list)
		return nil
	default:
		return fmt.Errorf("line %d: visibility must be a string or a list of strings", node.Line)
	}
}
