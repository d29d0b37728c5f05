package automap

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"unshub/internal/api"
	"unshub/internal/bus"
	"unshub/internal/hierarchy"
	"unshub/internal/topics"
	"unshub/pkg/logging"
)

// Mapping is a resolved topic placement before it becomes a topic
// configuration.
type Mapping struct {
	NSPath     string
	UNSName    string
	Confidence float64
	// MappedBy names what produced the mapping: "rule:<name>" or "tree".
	MappedBy string
}

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Mapper places discovered topics into the namespace tree: custom rules
// first, then a structural walk over the composed namespace structure.
type Mapper struct {
	cfg      Config
	registry *hierarchy.Registry
	repo     *topics.Repository
	events   *bus.Bus
	rules    []compiledRule
}

// New compiles the custom rules and returns a ready mapper. With
// caseSensitive=false the rule patterns match case-insensitively; capture
// groups keep the topic's original casing.
func New(cfg Config, registry *hierarchy.Registry, repo *topics.Repository, events *bus.Bus) (*Mapper, error) {
	m := &Mapper{cfg: cfg, registry: registry, repo: repo, events: events}
	for _, rule := range cfg.Rules {
		pattern := rule.Pattern
		if !cfg.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, api.NewValidationError("auto-mapping rule",
				fmt.Sprintf("rule %s: bad pattern: %v", rule.Name, err))
		}
		m.rules = append(m.rules, compiledRule{rule: rule, re: re})
	}
	return m, nil
}

// Map resolves the topic and registers a topic configuration for it. On
// failure an AutoMappingFailedEvent carrying placement suggestions goes out
// on the bus and the error is returned.
func (m *Mapper) Map(ctx context.Context, topic string, source api.SourceType) (api.TopicConfiguration, error) {
	if !m.cfg.Enabled {
		return api.TopicConfiguration{}, m.fail(ctx, topic, source, "auto-mapping disabled", nil)
	}

	mapping, suggestions, err := m.Resolve(topic)
	if err != nil {
		return api.TopicConfiguration{}, m.fail(ctx, topic, source, err.Error(), suggestions)
	}

	path, ns, err := m.place(mapping.NSPath)
	if err != nil {
		return api.TopicConfiguration{}, m.fail(ctx, topic, source, err.Error(), suggestions)
	}
	// Topics inside a namespace node are always allowed; only direct
	// placement on a hierarchy level is subject to the allowTopics flag.
	if ns == nil {
		if err := m.registry.ValidateTopicMapping(path); err != nil {
			return api.TopicConfiguration{}, m.fail(ctx, topic, source, err.Error(), suggestions)
		}
	}

	verified := ns != nil && ns.AutoVerifyTopics
	tc, err := m.repo.Create(ctx, api.TopicConfiguration{
		Topic:      topic,
		UNSName:    mapping.UNSName,
		Path:       path,
		NSPath:     mapping.NSPath,
		SourceType: source,
		IsVerified: verified,
		Metadata: map[string]string{
			"autoMapped": "true",
			"mappedBy":   mapping.MappedBy,
			"confidence": strconv.FormatFloat(mapping.Confidence, 'f', 2, 64),
		},
	})
	if err != nil {
		return api.TopicConfiguration{}, err
	}
	logging.Info("AutoMapper", "Mapped %s -> %s (%s, confidence %.2f)",
		topic, mapping.NSPath, mapping.MappedBy, mapping.Confidence)
	return tc, nil
}

// Resolve finds the best placement for a topic without registering anything.
// The returned suggestions are candidate paths worth surfacing when the
// mapping is rejected.
func (m *Mapper) Resolve(topic string) (Mapping, []string, error) {
	stripped := m.strip(topic)
	segments := splitNonEmpty(stripped)
	if len(segments) == 0 {
		return Mapping{}, nil, api.NewValidationError("topic", "empty after prefix stripping")
	}
	leaf := segments[len(segments)-1]

	if mapping, ok := m.resolveByRule(stripped, leaf); ok {
		return mapping, nil, nil
	}

	mapping, suggestions := m.resolveByTree(segments)
	if mapping.Confidence < m.cfg.MinimumConfidence {
		return Mapping{}, suggestions, fmt.Errorf(
			"no placement above confidence %.2f for %s", m.cfg.MinimumConfidence, topic)
	}
	return mapping, suggestions, nil
}

func (m *Mapper) resolveByRule(topic, leaf string) (Mapping, bool) {
	for _, cr := range m.rules {
		if !cr.rule.Active {
			continue
		}
		groups := cr.re.FindStringSubmatch(topic)
		if groups == nil {
			continue
		}
		// Template placeholders are zero-based: {0} is the first capture group.
		nsPath := cr.rule.Template
		for i := 1; i < len(groups); i++ {
			nsPath = strings.ReplaceAll(nsPath, "{"+strconv.Itoa(i-1)+"}", groups[i])
		}
		confidence := cr.rule.Confidence
		if confidence == 0 {
			confidence = 1.0
		}
		if confidence < m.cfg.MinimumConfidence {
			continue
		}
		return Mapping{
			NSPath:     nsPath,
			UNSName:    leaf,
			Confidence: confidence,
			MappedBy:   "rule:" + cr.rule.Name,
		}, true
	}
	return Mapping{}, false
}

type candidate struct {
	path    string
	depth   int
	matched int
}

// resolveByTree scores every node of the namespace structure by how many
// leading topic segments it covers. The leaf segment names the topic and is
// excluded from matching.
func (m *Mapper) resolveByTree(segments []string) (Mapping, []string) {
	prefix := segments[:len(segments)-1]
	leaf := segments[len(segments)-1]
	if len(prefix) == 0 {
		return Mapping{}, nil
	}

	var candidates []candidate
	forest := m.registry.NamespaceStructure()
	hierarchy.WalkStructure(forest, m.cfg.MaxSearchDepth, func(node *hierarchy.NSTreeNode, depth int) {
		nodeSegs := splitNonEmpty(node.FullPath)
		matched := 0
		for i := 0; i < len(nodeSegs) && i < len(prefix); i++ {
			if !m.segmentEqual(nodeSegs[i], prefix[i]) {
				break
			}
			matched++
		}
		// The node itself must lie on the matched prefix; partial chains
		// diverging from the topic are not placements.
		if matched == len(nodeSegs) && matched > 0 {
			candidates = append(candidates, candidate{path: node.FullPath, depth: depth, matched: matched})
		}
	})

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].matched != candidates[j].matched {
			return candidates[i].matched > candidates[j].matched
		}
		if candidates[i].depth != candidates[j].depth {
			return candidates[i].depth > candidates[j].depth
		}
		return candidates[i].path < candidates[j].path
	})

	suggestions := make([]string, 0, 3)
	for i := 0; i < len(candidates) && i < 3; i++ {
		suggestions = append(suggestions, candidates[i].path)
	}
	if len(candidates) == 0 {
		return Mapping{}, nil
	}

	best := candidates[0]
	nsPath := best.path
	confidence := float64(best.matched) / float64(len(prefix))
	if best.matched < len(prefix) {
		if !m.cfg.CreateMissingNodes {
			return Mapping{NSPath: nsPath, UNSName: leaf, Confidence: confidence, MappedBy: "tree"}, suggestions
		}
		// Extend the placement with the unmatched remainder; the missing
		// nodes materialise when the mapping is applied. Created segments
		// count half towards confidence.
		missing := len(prefix) - best.matched
		nsPath = nsPath + "/" + strings.Join(prefix[best.matched:], "/")
		confidence = (float64(best.matched) + 0.5*float64(missing)) / float64(len(prefix))
	} else {
		confidence = 1.0
	}
	return Mapping{NSPath: nsPath, UNSName: leaf, Confidence: confidence, MappedBy: "tree"}, suggestions
}

// place resolves the namespace path, creating missing namespace nodes when
// configured to.
func (m *Mapper) place(nsPath string) (api.HierarchicalPath, *hierarchy.NamespaceNode, error) {
	if m.cfg.CreateMissingNodes {
		if _, ok := m.registry.FindNamespaceByPath(nsPath); !ok {
			if _, err := m.registry.EnsureNamespace(nsPath, false); err != nil {
				return api.HierarchicalPath{}, nil, err
			}
		}
	}
	return m.registry.ResolveNSPath(nsPath)
}

func (m *Mapper) fail(ctx context.Context, topic string, source api.SourceType, reason string, suggestions []string) error {
	logging.Debug("AutoMapper", "Mapping %s failed: %s", topic, reason)
	m.events.Publish(ctx, api.AutoMappingFailedEvent{
		Topic:       topic,
		SourceType:  source,
		Reason:      reason,
		Suggestions: suggestions,
		Timestamp:   time.Now().UTC(),
	})
	return fmt.Errorf("auto-mapping %s: %s", topic, reason)
}

// strip removes the longest configured prefix that covers whole leading
// segments of the topic. A prefix equal to the entire topic is skipped so
// stripping never produces an empty topic.
func (m *Mapper) strip(topic string) string {
	best := -1
	for _, prefix := range m.cfg.StripPrefixes {
		trimmed := strings.TrimSuffix(prefix, "/")
		if strings.EqualFold(topic, trimmed) {
			continue
		}
		if len(topic) > len(trimmed)+1 && strings.EqualFold(topic[:len(trimmed)+1], trimmed+"/") {
			if len(trimmed) > best {
				best = len(trimmed)
			}
		}
	}
	if best >= 0 {
		return topic[best+1:]
	}
	return topic
}

func (m *Mapper) segmentEqual(a, b string) bool {
	if m.cfg.CaseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
