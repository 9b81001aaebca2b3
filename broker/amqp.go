package broker

import (
	"context"
	"encoding/json"
	"time"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
)

var _ Producer = &AMQPBroker{}
var _ Consumer = &AMQPBroker{}

const reservationExchange string = "reservation_events"

// AMQPBroker describes a message broker via RabbitMQ
type AMQPBroker struct {
	connection *amqp.Connection
	channel    *amqp.Channel
}

// NewAMQPBroker returns a Message Broker over RabbitMQ
func NewAMQPBroker(amqpURI string) (*AMQPBroker, error) {
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	broker := &AMQPBroker{
		connection: amqpConn,
		channel:    amqpChan,
	}
	if err := broker.setupReservationExchange(); err != nil {
		return nil, extErrors.Wrap(err, "Cannot declare exchange for reservation events")
	}

	return broker, nil
}

func (a *AMQPBroker) setupReservationExchange() error {
	return a.channel.ExchangeDeclare(
		reservationExchange, // name
		"topic",             // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
}

// Close will close the channel and connection to release resources
func (a *AMQPBroker) Close() {
	a.channel.Close()
	a.connection.Close()
}

// PublishReservationEvent will publish the event with its kind as routing key
func (a *AMQPBroker) PublishReservationEvent(e *ReservationEvent) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode event into bytes")
	}
	if err := a.channel.Publish(
		reservationExchange,
		string(e.Kind),
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return extErrors.Wrap(err, "Cannot publish reservation event")
	}
	return nil
}

func (a *AMQPBroker) setupQueue(qName string) error {
	_, err := a.channel.QueueDeclare(
		qName,
		true,
		false,
		false,
		false,
		nil,
	)
	return err
}

// ReceiveReservationEvents binds the queue to all reservation event kinds and
// returns a channel of decoded events. The channel closes when ctx is done.
func (a *AMQPBroker) ReceiveReservationEvents(ctx context.Context, queue string) (<-chan *ReservationEvent, error) {
	if err := a.setupQueue(queue); err != nil {
		return nil, extErrors.Wrap(err, "Cannot setup queue")
	}
	if err := a.channel.QueueBind(
		queue,
		"reservation.*",
		reservationExchange,
		false,
		nil,
	); err != nil {
		return nil, extErrors.Wrap(err, "Cannot bind queue")
	}
	msgChan, err := a.channel.Consume(
		queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot setup consumer")
	}
	rChan := make(chan *ReservationEvent)
	go func() {
		defer close(rChan)
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-msgChan:
				var e ReservationEvent
				if err := json.Unmarshal(d.Body, &e); err != nil {
					d.Nack(false, false)
					continue
				}
				rChan <- &e
				d.Ack(false)
			}
		}
	}()
	return rChan, nil
}
