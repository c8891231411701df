package main

import (
	"context"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/gallotrack-backend/pkg/outbox/registry"
)

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// pubsubSink publishes with ordering enabled. A failed ordered publish
// pauses its key, so the key is resumed before the error is returned and
// the row retries on the next drain.
type pubsubSink struct {
	source publisherSource

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

func newPubSubSink(source publisherSource) *pubsubSink {
	return &pubsubSink{source: source, publishers: map[string]*gcppubsub.Publisher{}}
}

func (s *pubsubSink) Send(ctx context.Context, msg *registry.Message) error {
	pub, err := s.publisher(msg.Topic)
	if err != nil {
		return err
	}
	_, err = pub.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.OrderingKey,
	}).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		pub.ResumePublish(msg.OrderingKey)
	}
	return err
}

func (s *pubsubSink) publisher(topic string) (*gcppubsub.Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[topic]; ok {
		return pub, nil
	}
	pub := s.source.Publisher(topic)
	if pub == nil {
		return nil, fmt.Errorf("no publisher for topic %s", topic)
	}
	pub.EnableMessageOrdering = true
	s.publishers[topic] = pub
	return pub, nil
}

func (s *pubsubSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pub := range s.publishers {
		pub.Stop()
	}
}
