package topics

import (
	"context"
	"errors"
	"strings"

	"unshub/internal/api"
	"unshub/pkg/logging"
)

// DiscoveryService is the fallback used when the auto-mapper returns no
// placement: it registers the topic unverified, with an empty hierarchical
// path and NS path, so operators can triage it later.
type DiscoveryService struct {
	repo *Repository
}

// NewDiscoveryService creates the fallback discovery service.
func NewDiscoveryService(repo *Repository) *DiscoveryService {
	return &DiscoveryService{repo: repo}
}

// Discover registers topic as an unverified configuration unless one already
// exists for the (topic, sourceType) pair, in which case the existing one is
// returned.
func (d *DiscoveryService) Discover(ctx context.Context, topic string, source api.SourceType) (api.TopicConfiguration, error) {
	if existing, ok := d.repo.GetByTopicAndSource(topic, source); ok {
		return existing, nil
	}

	tc := api.TopicConfiguration{
		Topic:      topic,
		UNSName:    leafName(topic),
		NSPath:     "",
		SourceType: source,
		IsVerified: false,
	}
	created, err := d.repo.Create(ctx, tc)
	if err != nil {
		if errors.Is(err, api.ErrAlreadyExists) {
			if existing, ok := d.repo.GetByTopicAndSource(topic, source); ok {
				return existing, nil
			}
		}
		return api.TopicConfiguration{}, err
	}
	logging.Info("Discovery", "Registered unverified topic %s (%s)", topic, source)
	return created, nil
}

// leafName returns the last /-separated segment of the wire topic.
func leafName(topic string) string {
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
