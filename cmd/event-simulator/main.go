// Command event-simulator generates synthetic shopping events onto the
// raw-events topic, the way original_source/event-simulator drives a
// local pipeline with realistic session traffic. It uses the
// segmentio/kafka-go writer instead of the consumer-group-oriented
// IBM/sarama client the pipeline itself uses, since a one-shot producer
// has no group membership to manage.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/featurepipeline/featurepipeline/internal/env"
	"github.com/featurepipeline/featurepipeline/internal/logger"
)

var products = []string{
	"laptop", "phone", "headphones", "keyboard", "monitor",
	"shirt", "jeans", "shoes", "jacket", "book", "notebook",
}

var deviceTypes = []string{"mobile", "desktop", "tablet"}

type event struct {
	UserID     string  `json:"user_id"`
	EventType  string  `json:"event_type"`
	IngestedAt string  `json:"ingested_at"`
	DeviceType string  `json:"device_type,omitempty"`
	Product    string  `json:"product,omitempty"`
	Quantity   int     `json:"quantity,omitempty"`
	Price      float64 `json:"product_price,omitempty"`
}

type simulatedUser struct {
	userID string
	cart   []string
}

func (u *simulatedUser) session(ctx context.Context, w *kafka.Writer, rng *rand.Rand) {
	publish(ctx, w, rng, u.userID, "login", "")

	numViews := 3 + rng.Intn(6)
	for i := 0; i < numViews; i++ {
		publish(ctx, w, rng, u.userID, "view", products[rng.Intn(len(products))])
	}

	numCart := 1 + rng.Intn(4)
	for i := 0; i < numCart; i++ {
		product := products[rng.Intn(len(products))]
		publish(ctx, w, rng, u.userID, "add_to_cart", product)
		u.cart = append(u.cart, product)
	}

	if len(u.cart) > 0 && rng.Float64() < 0.3 {
		idx := rng.Intn(len(u.cart))
		publish(ctx, w, rng, u.userID, "remove_from_cart", u.cart[idx])
		u.cart = append(u.cart[:idx], u.cart[idx+1:]...)
	}

	if len(u.cart) > 0 && rng.Float64() < 0.7 {
		for _, product := range u.cart {
			publish(ctx, w, rng, u.userID, "purchase", product)
		}
	}

	publish(ctx, w, rng, u.userID, "logout", "")
	u.cart = nil
}

// publish sends one event. It occasionally omits device_type or emits a
// malformed timestamp, mirroring the noisy real-world traffic
// original_source/event-simulator's field mix models so the pipeline's
// fallback paths (unknown device, unparsable timestamp) see live traffic.
func publish(ctx context.Context, w *kafka.Writer, rng *rand.Rand, userID, eventType, product string) {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if rng.Float64() < 0.02 {
		ts = "not-a-timestamp"
	}

	e := event{
		UserID:     userID,
		EventType:  eventType,
		IngestedAt: ts,
	}
	if rng.Float64() < 0.9 {
		e.DeviceType = deviceTypes[rng.Intn(len(deviceTypes))]
	}
	if product != "" {
		e.Product = product
		e.Quantity = 1 + rng.Intn(3)
	}

	body, err := json.Marshal(e)
	if err != nil {
		zap.S().Errorw("failed to encode simulated event", "error", err)
		return
	}

	if err := w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(userID),
		Value: body,
		Time:  time.Now(),
	}); err != nil {
		zap.S().Warnw("failed to publish simulated event", "error", err, "user_id", userID, "event_type", eventType)
		return
	}
	zap.S().Debugw("published simulated event", "user_id", userID, "event_type", eventType)
}

func main() {
	logLevel, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION")
	logger.New(logLevel)

	brokers := strings.Split(mustEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := mustEnv("RAW_EVENTS_TOPIC", "raw-events")
	numUsers, _ := env.GetAsInt("SIMULATOR_USERS", false, 5)
	eventsPerMinute, _ := env.GetAsInt("SIMULATOR_EVENTS_PER_MINUTE", false, 10)

	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	defer func() {
		if err := writer.Close(); err != nil {
			zap.S().Warnw("error closing kafka writer", "error", err)
		}
	}()

	users := make([]*simulatedUser, numUsers)
	for i := range users {
		users[i] = &simulatedUser{userID: fmt.Sprintf("user_%d", i)}
	}

	// An average session emits roughly 12 events; space session starts so
	// the aggregate rate approximates eventsPerMinute.
	sessionInterval := time.Duration(float64(time.Minute) / float64(eventsPerMinute) * 12)
	if sessionInterval <= 0 {
		sessionInterval = time.Second
	}

	rng := rand.New(rand.NewSource(1))
	ctx := context.Background()
	var wg sync.WaitGroup
	ticker := time.NewTicker(sessionInterval)
	defer ticker.Stop()

	zap.S().Infow("starting event simulator", "users", numUsers, "events_per_minute", eventsPerMinute, "topic", topic)

	for range ticker.C {
		user := users[rng.Intn(len(users))]
		wg.Add(1)
		go func(u *simulatedUser) {
			defer wg.Done()
			u.session(ctx, writer, rand.New(rand.NewSource(rng.Int63())))
		}(user)
	}
}

func mustEnv(key, fallback string) string {
	v, _ := env.GetAsString(key, false, fallback)
	return v
}
