package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/oakmart/storefront/internal/events"
	kafkax "github.com/oakmart/storefront/internal/kafka"
	"github.com/oakmart/storefront/internal/redisx"
)

// apology is appended locally when the upstream call fails. The user's
// message stays in the transcript on purpose: the next successful exchange
// re-sends the whole history, so nothing is lost, and wiping the user's own
// words back out of the window would read as data loss.
const apology = "Sorry, I'm having trouble answering right now. Please try again in a moment."

// FallbackPrefix marks session ids synthesized locally after a Redis
// failure. They are never reconciled with a stored session; the visitor
// rides out the browser session in degraded mode.
const FallbackPrefix = "local-"

type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	ZRevRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Activity struct {
	Type       string
	ProductID  string
	CategoryID string
	Query      string
}

// Service holds per-browser-session assistant state in Redis and frontends
// the upstream chat API.
type Service struct {
	Redis       redisAPI
	Chat        ChatClient
	Producer    Publisher
	ServiceName string

	// test seam; defaults to time.Now
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func sessionKey(owner string) string  { return fmt.Sprintf(redisx.KeyAssistantSession, owner) }
func convKey(sessionID string) string { return fmt.Sprintf(redisx.KeyAssistantConv, sessionID) }
func RecsKey(sessionID string) string { return fmt.Sprintf(redisx.KeyAssistantRecs, sessionID) }

// Session returns the assistant session id for owner (auth token hash or
// guest id), creating it lazily. A Redis failure degrades to a synthesized
// timestamp id rather than failing the caller; the fallback is accepted as
// permanent for this browser session.
func (s *Service) Session(ctx context.Context, owner string) string {
	key := sessionKey(owner)
	id, err := s.Redis.Get(ctx, key).Result()
	if err == nil && id != "" {
		return id
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("assistant: session lookup: %v", err)
		return FallbackPrefix + strconv.FormatInt(s.now().UnixNano(), 10)
	}

	id = uuid.NewString()
	if err := s.Redis.Set(ctx, key, id, redisx.TTLAssistant).Err(); err != nil {
		log.Printf("assistant: session create: %v", err)
		return FallbackPrefix + strconv.FormatInt(s.now().UnixNano(), 10)
	}
	return id
}

// TrackActivity is fire-and-forget telemetry: the envelope goes out through
// the async producer and nothing is awaited, surfaced, or retried.
func (s *Service) TrackActivity(sessionID, userID string, a Activity) {
	if s.Producer == nil {
		return
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     events.EventActivityTracked,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: sessionID,
	}
	ev.Payload = kafkax.MustMarshal(events.ActivityTrackedPayload{
		SessionID:  sessionID,
		UserID:     userID,
		Type:       a.Type,
		ProductID:  a.ProductID,
		CategoryID: a.CategoryID,
		Query:      a.Query,
		At:         s.now().UTC(),
	})
	s.Producer.Publish(events.PartitionKey(sessionID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventActivityTracked)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// Conversation returns the stored transcript, oldest first. Unparsable
// state falls back to an empty transcript rather than erroring the view.
func (s *Service) Conversation(ctx context.Context, sessionID string) []Message {
	raw, err := s.Redis.Get(ctx, convKey(sessionID)).Result()
	if err != nil || raw == "" {
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		log.Printf("assistant: corrupt transcript for %s, resetting", sessionID)
		return nil
	}
	return msgs
}

func (s *Service) saveConversation(ctx context.Context, sessionID string, msgs []Message) {
	b, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, convKey(sessionID), b, redisx.TTLAssistant).Err(); err != nil {
		log.Printf("assistant: save transcript: %v", err)
	}
}

// SendMessage appends the user's message immediately, then asks the
// upstream and replaces the transcript with its version. On upstream
// failure a synthetic apology is appended and the error returned so the
// handler can show a transient notice; the locally appended user message
// is not rolled back.
func (s *Service) SendMessage(ctx context.Context, sessionID, text, productID, categoryID string) ([]Message, error) {
	conv := s.Conversation(ctx, sessionID)
	conv = append(conv, Message{Role: RoleUser, Content: text})
	s.saveConversation(ctx, sessionID, conv)

	resp, err := s.Chat.Chat(ctx, ChatRequest{
		SessionID:  sessionID,
		Messages:   conv,
		ProductID:  productID,
		CategoryID: categoryID,
	})
	if err != nil {
		conv = append(conv, Message{Role: RoleAssistant, Content: apology})
		s.saveConversation(ctx, sessionID, conv)
		return conv, err
	}

	if len(resp.Messages) > 0 {
		conv = resp.Messages
	}
	s.saveConversation(ctx, sessionID, conv)
	return conv, nil
}

// Recommendations reads the top product ids the worker has accumulated for
// this session. A fallback session id naturally yields nothing.
func (s *Service) Recommendations(ctx context.Context, sessionID string, n int) ([]string, error) {
	if n <= 0 {
		n = 10
	}
	ids, err := s.Redis.ZRevRange(ctx, RecsKey(sessionID), 0, int64(n-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return ids, nil
}
