package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/turbolytics/eventreplay/internal/record"
	"go.uber.org/zap"
)

const SessionHeader = "replay-session-id"

// minReportWait is how long Flush waits for delivery reports once the
// producer queue is empty, even if the flush timeout is already used up.
const minReportWait = 100 * time.Millisecond

var ErrNotConnected = errors.New("kafka sink is not connected")

// producer is the subset of *kafka.Producer the sink uses.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

type Stats struct {
	TotalEvents        int64     `json:"total_events"`
	DeliveredEvents    int64     `json:"delivered_events"`
	WriteErrorCount    int64     `json:"write_error_count"`
	DeliveryErrorCount int64     `json:"delivery_error_count"`
	LastError          string    `json:"last_error,omitempty"`
	LastWriteAt        time.Time `json:"last_write_at,omitempty"`
	ConnectionHealthy  bool      `json:"connection_healthy"`
	Topic              string    `json:"topic"`
	Brokers            string    `json:"brokers"`
}

type Option func(*Sink)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func WithSessionID(id string) Option {
	return func(s *Sink) {
		s.sessionID = id
	}
}

func WithFlushTimeout(d time.Duration) Option {
	return func(s *Sink) {
		s.flushTimeout = d
	}
}

func withProducerFactory(f func(*kafka.ConfigMap) (producer, error)) Option {
	return func(s *Sink) {
		s.newProducer = f
	}
}

// Sink publishes replayed records to a single topic.
type Sink struct {
	config       kafka.ConfigMap
	producer     producer
	newProducer  func(*kafka.ConfigMap) (producer, error)
	topic        string
	sessionID    string
	flushTimeout time.Duration
	logger       *zap.Logger

	// delivery reports
	deliveries chan kafka.Event
	pending    inFlight
	done       chan struct{}
	closeOnce  sync.Once

	statsMu     sync.RWMutex
	stats       Stats
	deliveryErr error
}

// NewSink builds a sink from kafka://broker[,broker]/topic. Query parameters
// are passed to librdkafka as-is and override the defaults.
func NewSink(uri *url.URL, opts ...Option) (*Sink, error) {
	topic := strings.TrimPrefix(uri.Path, "/")
	if topic == "" {
		return nil, fmt.Errorf("topic must be specified in URL path")
	}

	brokers := uri.Host
	if brokers == "" {
		return nil, fmt.Errorf("brokers must be specified in URL host")
	}

	config := kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         "eventreplay",

		// Wait for all in-sync replicas, retry transient failures a few times
		"acks":    "all",
		"retries": "3",
	}

	for key, values := range uri.Query() {
		if len(values) > 0 {
			config[key] = values[0]
		}
	}

	s := &Sink{
		config:       config,
		topic:        topic,
		flushTimeout: 30 * time.Second,
		logger:       zap.NewNop(),
		newProducer: func(cm *kafka.ConfigMap) (producer, error) {
			return kafka.NewProducer(cm)
		},
		stats: Stats{
			Topic:   topic,
			Brokers: brokers,
		},
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Sink) Topic() string {
	return s.topic
}

func (s *Sink) Connect(ctx context.Context) error {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	p, err := s.newProducer(&s.config)
	if err != nil {
		s.stats.ConnectionHealthy = false
		s.stats.LastError = err.Error()
		return err
	}

	s.producer = p
	s.deliveries = make(chan kafka.Event, 1024)
	s.done = make(chan struct{})
	s.stats.ConnectionHealthy = true
	s.stats.LastError = ""

	go s.handleDeliveries()
	go func() {
		defer s.logger.Debug("Producer event loop closed")

		for e := range p.Events() {
			switch ev := e.(type) {
			case kafka.Error:
				s.logger.Error("Producer error", zap.Error(ev))
				if ev.IsFatal() {
					s.recordDeliveryError(ev)
				}
			default:
				s.logger.Debug("Producer event", zap.String("event", ev.String()))
			}
		}
	}()

	s.logger.Info("Kafka sink connected",
		zap.String("topic", s.topic),
		zap.String("brokers", s.stats.Brokers))

	return nil
}

func (s *Sink) handleDeliveries() {
	for {
		select {
		case e := <-s.deliveries:
			s.handleDelivery(e)
		case <-s.done:
			return
		}
	}
}

func (s *Sink) handleDelivery(e kafka.Event) {
	defer s.pending.done()

	ev, ok := e.(*kafka.Message)
	if !ok {
		return
	}

	if ev.TopicPartition.Error != nil {
		s.logger.Error("Delivery failed",
			zap.ByteString("key", ev.Key),
			zap.Error(ev.TopicPartition.Error))
		s.recordDeliveryError(ev.TopicPartition.Error)
		return
	}

	s.statsMu.Lock()
	s.stats.DeliveredEvents++
	s.statsMu.Unlock()

	s.logger.Debug("Message delivered",
		zap.String("topic", *ev.TopicPartition.Topic),
		zap.Int32("partition", ev.TopicPartition.Partition),
		zap.Int64("offset", int64(ev.TopicPartition.Offset)))
}

func (s *Sink) recordDeliveryError(err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.stats.DeliveryErrorCount++
	s.stats.LastError = err.Error()
	if s.deliveryErr == nil {
		s.deliveryErr = err
	}
}

// Send enqueues the record and returns without waiting for the broker.
func (s *Sink) Send(ctx context.Context, rec *record.Record) error {
	if s.producer == nil {
		return ErrNotConnected
	}

	value, err := json.Marshal(rec)
	if err != nil {
		s.recordWriteError(err)
		return err
	}

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.topic,
			Partition: kafka.PartitionAny,
		},
		Key:       []byte(rec.DeviceID()),
		Value:     value,
		Timestamp: time.UnixMilli(rec.Timestamp()),
	}
	if s.sessionID != "" {
		message.Headers = []kafka.Header{
			{Key: SessionHeader, Value: []byte(s.sessionID)},
		}
	}

	s.pending.add()
	if err := s.producer.Produce(message, s.deliveries); err != nil {
		s.pending.done()
		s.recordWriteError(err)
		return err
	}

	s.statsMu.Lock()
	s.stats.TotalEvents++
	s.stats.LastWriteAt = time.Now()
	s.statsMu.Unlock()

	return nil
}

func (s *Sink) recordWriteError(err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.stats.WriteErrorCount++
	s.stats.LastError = err.Error()
}

// Flush blocks until every produced message has a delivery report, or the
// flush timeout passes. It returns the first delivery failure seen so far.
func (s *Sink) Flush(ctx context.Context) error {
	if s.producer == nil {
		return ErrNotConnected
	}

	timeout := s.flushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	started := time.Now()

	if remaining := s.producer.Flush(int(timeout.Milliseconds())); remaining > 0 {
		return fmt.Errorf("%d messages still in flight after %s", remaining, timeout)
	}

	select {
	case <-s.pending.idle():
	default:
		wait := timeout - time.Since(started)
		if wait < minReportWait {
			wait = minReportWait
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-s.pending.idle():
		case <-timer.C:
			return fmt.Errorf("%d delivery reports still pending after %s", s.pending.count(), time.Since(started))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	if s.deliveryErr != nil {
		return fmt.Errorf("delivery failed: %w", s.deliveryErr)
	}
	return nil
}

// Close flushes outstanding messages and releases the producer.
// It is safe to call more than once.
func (s *Sink) Close(ctx context.Context) error {
	if s.producer == nil {
		return nil
	}

	var err error
	s.closeOnce.Do(func() {
		err = s.Flush(ctx)
		s.producer.Close()
		close(s.done)

		s.statsMu.Lock()
		s.stats.ConnectionHealthy = false
		s.statsMu.Unlock()

		s.logger.Info("Kafka sink closed", zap.String("topic", s.topic))
	})
	return err
}

func (s *Sink) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// inFlight counts messages waiting for a delivery report. The channel
// returned by idle is closed whenever the count is zero.
type inFlight struct {
	mu    sync.Mutex
	n     int
	empty chan struct{}
}

func (f *inFlight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.empty = make(chan struct{})
	}
	f.n++
}

func (f *inFlight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n == 0 {
		close(f.empty)
	}
}

func (f *inFlight) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func (f *inFlight) idle() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return f.empty
}
