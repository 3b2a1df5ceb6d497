// Package io appends relayed events to a JSON-lines journal file. Subscribers
// replay the journal from its first line and then follow new appends, so the
// file doubles as an audit trail of every posted event.
package io

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/ssoflow/internal/runtime/jsoncodec"
	"github.com/drblury/ssoflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "io"

// DefaultFilePath is used when no journal file is configured.
const DefaultFilePath = "ssoflow-events.jsonl"

// PollInterval is how long a subscriber waits at the end of the journal
// before checking for new lines.
var PollInterval = 50 * time.Millisecond

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return NewPublisher(filePath, logger), nil
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return NewSubscriber(filePath, logger), nil
}

func init() {
	Register()
}

// Register adds the journal transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

// Build opens a journal publisher and subscriber on the configured file.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	filePath := cfg.GetJournalFile()
	if filePath == "" {
		filePath = DefaultFilePath
	}

	pub, err := PublisherFactory(filePath, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	sub, err := SubscriberFactory(filePath, logger)
	if err != nil {
		_ = pub.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// Entry is one line of the journal.
type Entry struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Publisher appends messages to the journal.
type Publisher struct {
	filePath string
	logger   watermill.LoggerAdapter
	mu       sync.Mutex
}

func NewPublisher(filePath string, logger watermill.LoggerAdapter) *Publisher {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Publisher{filePath: filePath, logger: logger}
}

// Publish writes every message as one line. Lines of a single call are
// written with one write so concurrent readers never see them interleaved.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	var buf []byte
	for _, msg := range messages {
		line, err := jsoncodec.Marshal(Entry{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		})
		if err != nil {
			return err
		}
		buf = append(append(buf, line...), '\n')
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.OpenFile(p.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return err
	}
	p.logger.Trace("Journal append", watermill.LogFields{"topic": topic, "messages": len(messages)})
	return f.Close()
}

func (p *Publisher) Close() error {
	return nil
}

// Subscriber replays and follows the journal.
type Subscriber struct {
	filePath string
	logger   watermill.LoggerAdapter

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSubscriber(filePath string, logger watermill.LoggerAdapter) *Subscriber {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Subscriber{filePath: filePath, logger: logger, closing: make(chan struct{})}
}

// Subscribe delivers every journal entry for topic, oldest first. Each message
// must be acked or nacked before the next one is read.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	f, err := os.OpenFile(s.filePath, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *message.Message)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		defer s.wg.Done()
		defer close(out)
		defer f.Close()
		defer cancel()
		s.follow(ctx, f, out, topic)
	}()

	return out, nil
}

// Close stops every subscription.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	s.wg.Wait()
	return nil
}

func (s *Subscriber) follow(ctx context.Context, f *os.File, out chan<- *message.Message, topic string) {
	reader := bufio.NewReader(f)
	var pending []byte
	for {
		chunk, err := reader.ReadBytes('\n')
		pending = append(pending, chunk...)
		switch {
		case errors.Is(err, io.EOF):
			select {
			case <-ctx.Done():
				return
			case <-time.After(PollInterval):
			}
			continue
		case err != nil:
			s.logger.Error("Failed to read journal", err, watermill.LogFields{"file": s.filePath})
			return
		}

		line := pending
		pending = nil
		if !s.deliver(ctx, out, line, topic) {
			return
		}
	}
}

func (s *Subscriber) deliver(ctx context.Context, out chan<- *message.Message, line []byte, topic string) bool {
	var entry Entry
	if err := jsoncodec.Unmarshal(line, &entry); err != nil {
		s.logger.Error("Skipping malformed journal line", err, watermill.LogFields{"file": s.filePath})
		return true
	}
	if entry.Topic != topic {
		return true
	}

	msg := message.NewMessage(entry.UUID, entry.Payload)
	for k, v := range entry.Metadata {
		msg.Metadata.Set(k, v)
	}
	msg.SetContext(ctx)

	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	}
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Debug("Journal entry nacked", watermill.LogFields{"uuid": msg.UUID, "topic": topic})
	case <-ctx.Done():
		return false
	}
	return true
}
