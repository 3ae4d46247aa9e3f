package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shop-api/mailer"
	"shop-api/middleware"
	"shop-api/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func InitConsumer(logger *zap.Logger) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	config.Consumer.Retry.Backoff = 1 * time.Second

	brokers := []string{getEnv("KAFKA_BROKER", "localhost:9092")}

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized")
	return consumer, nil
}

// StartNotificationConsumer reads order lifecycle events and dispatches the
// matching customer email. Blocks until the partition consumer fails.
func StartNotificationConsumer(consumer sarama.Consumer, mail mailer.Mailer, logger *zap.Logger) error {
	partitionConsumer, err := consumer.ConsumePartition(OrderEventsTopic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer partitionConsumer.Close()

	logger.Info("Notification consumer started", zap.String("topic", OrderEventsTopic))

	for {
		select {
		case message := <-partitionConsumer.Messages():
			if err := handleMessageWithRetry(message, mail, logger, 3); err != nil {
				logger.Error("Failed to handle message after retries", zap.Error(err))
			}
		case err := <-partitionConsumer.Errors():
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}
}

func handleMessageWithRetry(message *sarama.ConsumerMessage, mail mailer.Mailer, logger *zap.Logger, maxRetries int) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := handleMessage(message, mail, logger)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxRetries {
			backoff := time.Duration(attempt) * time.Second
			logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			time.Sleep(backoff)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func handleMessage(message *sarama.ConsumerMessage, mail mailer.Mailer, logger *zap.Logger) error {
	// Continue the trace that produced this event
	propagator := otel.GetTextMapPropagator()
	carrier := consumerHeaderCarrier(message.Headers)
	ctx := propagator.Extract(context.Background(), carrier)

	ctx, span := otel.Tracer("shop-api").Start(ctx, "ProcessNotification")
	defer span.End()

	var event models.OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.Int("order.id", event.OrderID),
	)

	var subject, body string
	switch event.EventType {
	case "order_created":
		subject = "Order Confirmation"
		body = fmt.Sprintf("Your order #%d has been placed successfully. Total: %d", event.OrderID, event.TotalAmount)
	case "payment_verified":
		subject = "Payment Successful"
		body = fmt.Sprintf("Payment for order #%d was verified. Total: %d", event.OrderID, event.TotalAmount)
	case "order_cancelled":
		subject = "Order Cancelled"
		body = fmt.Sprintf("Your order #%d has been cancelled.", event.OrderID)
	case "order_status_changed":
		subject = "Order Update"
		body = fmt.Sprintf("Your order #%d is now %s.", event.OrderID, event.Status)
	default:
		logger.Debug("Unknown event type", zap.String("event_type", event.EventType))
		return nil
	}

	if event.UserEmail == "" {
		logger.Warn("Event carries no recipient", zap.Int("order_id", event.OrderID))
		return nil
	}

	if err := mail.Send(event.UserEmail, subject, body); err != nil {
		span.RecordError(err)
		return err
	}

	logger.Info("Order notification sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("event_type", event.EventType),
		zap.Int("order_id", event.OrderID),
	)
	return nil
}

// consumerHeaderCarrier implements the TextMapCarrier interface for reading
// trace context back out of Kafka headers.
type consumerHeaderCarrier []*sarama.RecordHeader

func (c consumerHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c consumerHeaderCarrier) Set(key, value string) {
	// Not needed for extraction
}

func (c consumerHeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
