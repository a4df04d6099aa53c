package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"storefront/internal/logging"
)

type relayMessage struct {
	Event  string    `json:"event"`
	Origin string    `json:"origin"`
	SentAt time.Time `json:"sentAt"`
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Relay fans cart signals out to other instances through a RabbitMQ fanout
// exchange, and delivers theirs locally.
type Relay struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	pub      publisher
	exchange string
	instance string
	signal   *Signal
	logger   logrus.FieldLogger
	pending  chan struct{}
	done     chan struct{}
}

// DialRelay connects to url, declares the fanout exchange and an exclusive
// queue bound to it.
func DialRelay(url, exchange string, sig *Signal, logger logrus.FieldLogger) (*Relay, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	r := newRelay(ch, exchange, sig, logger)
	r.conn = conn
	r.ch = ch
	return r, nil
}

func newRelay(pub publisher, exchange string, sig *Signal, logger logrus.FieldLogger) *Relay {
	if sig == nil {
		sig = Default
	}
	return &Relay{
		pub:      pub,
		exchange: exchange,
		instance: uuid.NewString(),
		signal:   sig,
		logger:   logging.OrDiscard(logger).WithField("exchange", exchange),
		pending:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start begins forwarding local broadcasts and consuming remote ones until
// ctx is done or the broker closes the consumer.
func (r *Relay) Start(ctx context.Context) error {
	r.signal.Forward(func() {
		select {
		case r.pending <- struct{}{}:
		default:
		}
	})

	var msgs <-chan amqp.Delivery
	if r.ch != nil {
		q, err := r.ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			return errors.Wrap(err, "declare queue")
		}
		if err := r.ch.QueueBind(q.Name, "", r.exchange, false, nil); err != nil {
			return errors.Wrap(err, "bind queue")
		}
		msgs, err = r.ch.Consume(q.Name, r.instance, true, true, false, false, nil)
		if err != nil {
			return errors.Wrap(err, "consume")
		}
	}
	r.run(ctx, msgs)
	r.logger.WithField("instance", r.instance).Info("cart relay started")
	return nil
}

// run starts the publish loop and, when msgs is set, the consumer. A closed
// msgs stops the publish loop so Done fires.
func (r *Relay) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	ctx, cancel := context.WithCancel(ctx)
	if msgs != nil {
		go func() {
			defer cancel()
			for d := range msgs {
				r.handle(d)
			}
			r.logger.Warn("relay consumer closed by broker")
		}()
	}
	go func() {
		defer cancel()
		r.publishLoop(ctx)
	}()
}

func (r *Relay) publishLoop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.pending:
			if err := r.publish(ctx); err != nil {
				r.logger.WithError(err).Error("relay publish failed")
			}
		}
	}
}

func (r *Relay) publish(ctx context.Context) error {
	body, err := json.Marshal(relayMessage{Event: EventCartChanged, Origin: r.instance, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return r.pub.PublishWithContext(ctx, r.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		AppId:       r.instance,
		Type:        EventCartChanged,
		Body:        body,
	})
}

// handle delivers a foreign cart event locally. Own echoes are ignored.
func (r *Relay) handle(d amqp.Delivery) {
	var msg relayMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		r.logger.WithError(err).Warn("relay: malformed message")
		return
	}
	if msg.Event != EventCartChanged || msg.Origin == r.instance {
		return
	}
	r.signal.Deliver()
}

// Close releases the channel and connection. The publish loop stops with
// the context given to Start.
func (r *Relay) Close() {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

// Done is closed when the relay stops, either because the Start context
// ended or because the broker connection went away.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}
