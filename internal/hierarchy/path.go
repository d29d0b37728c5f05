package hierarchy

import (
	"fmt"
	"strings"

	"unshub/internal/api"
)

// parsePath splits s by "/" and assigns the segments positionally to the
// ordered levels of the configuration. Extra segments beyond the number of
// levels fail validation. The returned path always carries one segment per
// level; unassigned levels have an empty value.
func parsePath(cfg *HierarchyConfiguration, s string) (api.HierarchicalPath, error) {
	levels, err := cfg.OrderedNodes()
	if err != nil {
		return api.HierarchicalPath{}, err
	}

	var values []string
	if s != "" {
		values = strings.Split(s, "/")
	}
	if len(values) > len(levels) {
		return api.HierarchicalPath{}, api.NewValidationError("path",
			fmt.Sprintf("%q has %d segments but the active configuration defines %d levels", s, len(values), len(levels)))
	}

	path := api.HierarchicalPath{Segments: make([]api.PathSegment, len(levels))}
	for i, level := range levels {
		seg := api.PathSegment{Level: level.Name}
		if i < len(values) {
			seg.Value = values[i]
		}
		path.Segments[i] = seg
	}
	return path, nil
}

// validatePath checks a path against a configuration: required levels must
// carry a value, every segment must name a known level, and values must not
// be blank or contain the path separator.
func validatePath(cfg *HierarchyConfiguration, path api.HierarchicalPath) error {
	var messages []string

	for _, seg := range path.Segments {
		node, ok := cfg.NodeByName(seg.Level)
		if !ok {
			messages = append(messages, fmt.Sprintf("unknown level %s", seg.Level))
			continue
		}
		if node.Required && seg.Value == "" {
			messages = append(messages, fmt.Sprintf("required level %s is empty", seg.Level))
		}
		if seg.Value != "" {
			if strings.TrimSpace(seg.Value) == "" {
				messages = append(messages, fmt.Sprintf("level %s value is blank", seg.Level))
			}
			if strings.Contains(seg.Value, "/") {
				messages = append(messages, fmt.Sprintf("level %s value contains a path separator", seg.Level))
			}
		}
	}

	// Required levels must appear even when the path carries fewer segments.
	for _, node := range cfg.Nodes {
		if !node.Required {
			continue
		}
		found := false
		for _, seg := range path.Segments {
			if seg.Level == node.Name {
				found = true
				break
			}
		}
		if !found {
			messages = append(messages, fmt.Sprintf("required level %s is missing", node.Name))
		}
	}

	if len(messages) > 0 {
		return api.NewValidationError("path", messages...)
	}
	return nil
}

// validateTopicMapping rejects paths whose deepest populated level does not
// accept topics.
func validateTopicMapping(cfg *HierarchyConfiguration, path api.HierarchicalPath) error {
	deepest := path.DeepestLevel()
	if deepest == "" {
		return api.NewValidationError("path", "path has no populated levels")
	}
	node, ok := cfg.NodeByName(deepest)
	if !ok {
		return api.NewValidationError("path", fmt.Sprintf("unknown level %s", deepest))
	}
	if !node.AllowTopics {
		return &api.TopicNotAllowedError{Path: path.FullPath(), Level: deepest}
	}
	return nil
}
