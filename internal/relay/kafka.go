// Package relay publishes applied collaboration events to kafka for
// off-process consumers (activity feeds, analytics). The in-process hub
// never depends on it: a relay outage degrades to in-memory-only fan-out.
package relay

import (
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// Event mirrors one collaboration message after the hub accepted it.
type Event struct {
	EventType  string    `json:"eventType"` // "edit", "cursor", "selection", "join", "leave"
	DocumentID string    `json:"documentId"`
	UserID     string    `json:"userId"`
	Content    string    `json:"content,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Dispatcher is a bounded local queue drained by worker goroutines that
// publish to kafka with capped retries. Goals:
//   - the websocket read loop only enqueues, never waits on the broker
//   - short broker stalls are absorbed by the queue
//   - a full queue drops events instead of growing without bound
type Dispatcher struct {
	producer sarama.SyncProducer
	topic    string

	queue chan Event

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type Options struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewDispatcher(producer sarama.SyncProducer, topic string, opt Options) *Dispatcher {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 10_000
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.BaseBackoff <= 0 {
		opt.BaseBackoff = 50 * time.Millisecond
	}
	if opt.MaxBackoff <= 0 {
		opt.MaxBackoff = time.Second
	}
	d := &Dispatcher{
		producer:    producer,
		topic:       topic,
		queue:       make(chan Event, opt.QueueSize),
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	d.start()
	return d
}

// Enqueue places an event on the local queue, or drops it when the queue is
// full. Delivery is best-effort; collaboration events are not required to
// reach every downstream consumer.
func (d *Dispatcher) Enqueue(evt Event) {
	select {
	case d.queue <- evt:
	default:
		log.Printf("relay queue full, drop event doc=%s type=%s", evt.DocumentID, evt.EventType)
	}
}

// Close stops accepting events and lets the workers drain what is queued.
func (d *Dispatcher) Close() {
	close(d.queue)
}

func (d *Dispatcher) start() {
	for i := 0; i < d.workers; i++ {
		go d.workerLoop(i)
	}
}

func (d *Dispatcher) workerLoop(workerID int) {
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *Dispatcher) sendWithRetry(workerID int, evt Event) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		err := d.sendOnce(evt)
		if err == nil {
			return
		}
		if attempt == d.maxRetry {
			log.Printf("relay send failed, drop event doc=%s type=%s worker=%d err=%v",
				evt.DocumentID, evt.EventType, workerID, err)
			return
		}
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *Dispatcher) sendOnce(evt Event) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.DocumentID), // partition per document
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
