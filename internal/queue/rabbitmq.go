package queue

import (
	"context"
	"time"

	"civicapp/internal/observability"
	contextutils "civicapp/internal/utils"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// RabbitQueue publishes and consumes tasks on a durable RabbitMQ queue
type RabbitQueue struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	logger    *observability.Logger
}

// NewRabbitQueue dials url and declares the durable queue
func NewRabbitQueue(url, queueName string, prefetch int, logger *observability.Logger) (*RabbitQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, unavailable("failed to connect to rabbitmq", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, unavailable("failed to open a rabbitmq channel", err)
	}

	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, unavailable("failed to declare queue", err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, unavailable("failed to set channel qos", err)
		}
	}

	return &RabbitQueue{
		conn:      conn,
		channel:   ch,
		queueName: queueName,
		logger:    logger,
	}, nil
}

// Publish sends task as a persistent JSON message
func (q *RabbitQueue) Publish(ctx context.Context, task Task) (err error) {
	ctx, span := observability.TraceQueueFunction(ctx, "rabbit_publish",
		observability.AttributeTaskType(string(task.Type)),
		observability.AttributeReportID(task.ReportID),
	)
	defer observability.FinishSpan(span, &err)

	body, err := encodeTask(task)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := q.channel.PublishWithContext(ctx,
		"",          // exchange
		q.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    task.ID,
			Timestamp:    task.EnqueuedAt,
			Type:         string(task.Type),
			Body:         body,
		}); err != nil {
		return unavailable("failed to publish task", err)
	}
	return nil
}

// Consume acknowledges each delivery after handler succeeds. Failed or malformed
// deliveries are rejected without requeue so a bad message cannot loop forever.
func (q *RabbitQueue) Consume(ctx context.Context, handler Handler) error {
	deliveries, err := q.channel.ConsumeWithContext(ctx,
		q.queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return unavailable("failed to register a consumer", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			q.handleDelivery(ctx, d, handler)
		}
	}
}

func (q *RabbitQueue) handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler) {
	task, err := decodeTask(d.Body)
	if err == nil {
		err = handler(ctx, task)
	}

	if err != nil {
		q.logger.Warn(ctx, "Rejecting task delivery", map[string]interface{}{
			"message_id": d.MessageId,
			"error":      err.Error(),
		})
		if nackErr := d.Nack(false, false); nackErr != nil {
			q.logger.Error(ctx, "Failed to nack delivery", nackErr)
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		q.logger.Error(ctx, "Failed to ack delivery", ackErr, map[string]interface{}{"message_id": d.MessageId})
	}
}

// Close closes the channel and connection
func (q *RabbitQueue) Close() error {
	var firstErr error
	if q.channel != nil {
		if err := q.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func unavailable(message string, cause error) error {
	return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError, message, cause.Error(), cause)
}
