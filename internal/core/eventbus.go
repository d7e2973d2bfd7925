// Package core provides the embedded event bus that carries engine
// output events to optional consumers (API websocket hub, event store,
// external correlators).
package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EventBus provides pub/sub messaging over an embedded NATS server.
// Publishing never blocks on consumers; the engine works with zero
// subscribers.
type EventBus struct {
	server *server.Server
	conn   *nats.Conn
	logger *slog.Logger

	subs   map[string][]*nats.Subscription
	subsMu sync.Mutex
}

// EventBusConfig configures the event bus.
type EventBusConfig struct {
	// Host for the NATS server (default: 127.0.0.1).
	Host string
	// Port for the NATS server (default: 14222). -1 selects a random
	// free port, which tests use.
	Port int
}

// DefaultEventBusConfig returns the default configuration.
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{Host: "127.0.0.1", Port: 14222}
}

// NewEventBus starts an embedded NATS server and connects to it.
func NewEventBus(cfg EventBusConfig, logger *slog.Logger) (*EventBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultEventBusConfig().Port
	}

	opts := &server.Options{
		Host:   cfg.Host,
		Port:   cfg.Port,
		NoSigs: true,
		NoLog:  true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(2 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready after 2 seconds (port %d)", cfg.Port)
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	logger = logger.With("component", "eventbus")
	logger.Info("event bus started", "url", ns.ClientURL())

	return &EventBus{
		server: ns,
		conn:   nc,
		logger: logger,
		subs:   make(map[string][]*nats.Subscription),
	}, nil
}

// ClientURL returns the NATS client URL for external subscribers.
func (eb *EventBus) ClientURL() string {
	return eb.server.ClientURL()
}

// Publish marshals data as JSON and publishes it to a subject. A nil
// payload publishes an empty message.
func (eb *EventBus) Publish(subject string, data interface{}) error {
	if data == nil {
		return eb.conn.Publish(subject, nil)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return eb.conn.Publish(subject, payload)
}

// Subscribe registers a handler for a subject. Wildcards follow NATS
// rules ("detection.>" matches all lifecycle subjects).
func (eb *EventBus) Subscribe(subject string, handler func(*nats.Msg)) (*nats.Subscription, error) {
	sub, err := eb.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, err
	}
	eb.subsMu.Lock()
	eb.subs[subject] = append(eb.subs[subject], sub)
	eb.subsMu.Unlock()
	return sub, nil
}

// Unsubscribe removes all subscriptions for a subject.
func (eb *EventBus) Unsubscribe(subject string) {
	eb.subsMu.Lock()
	defer eb.subsMu.Unlock()
	if subs, ok := eb.subs[subject]; ok {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
		delete(eb.subs, subject)
	}
}

// Stop drains the connection and shuts the server down.
func (eb *EventBus) Stop() {
	_ = eb.conn.Drain()
	eb.server.Shutdown()
	eb.logger.Info("event bus stopped")
}
