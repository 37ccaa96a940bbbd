package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bartek5186/pos2cloud/internal/remote"
)

// Feed dostarcza zdarzenia do fn aż do błędu połączenia albo ctx.Done.
type Feed interface {
	Run(ctx context.Context, fn func(context.Context, remote.Change)) error
}

// PGFeed: LISTEN na kanale wypełnianym przez trigger pos_notify_change.
type PGFeed struct {
	DSN     string
	Channel string
}

func (f *PGFeed) Run(ctx context.Context, fn func(context.Context, remote.Change)) error {
	cfg, err := pgx.ParseConfig(f.DSN)
	if err != nil {
		return fmt.Errorf("realtime: parse dsn: %w", err)
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("realtime: connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.Channel}.Sanitize()); err != nil {
		return fmt.Errorf("realtime: listen: %w", err)
	}
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		dispatch(ctx, []byte(n.Payload), fn)
	}
}

// RedisFeed: pub/sub dla backendów bez NOTIFY; zasila go RedisPublisher.
type RedisFeed struct {
	Client  *redis.Client
	Channel string
}

func (f *RedisFeed) Run(ctx context.Context, fn func(context.Context, remote.Change)) error {
	sub := f.Client.Subscribe(ctx, f.Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribe: %w", err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("realtime: redis channel closed")
			}
			dispatch(ctx, []byte(msg.Payload), fn)
		}
	}
}

// RedisPublisher rozgłasza zapisy remote.Store (remote.Publisher).
type RedisPublisher struct {
	Client  *redis.Client
	Channel string
}

func (p *RedisPublisher) Publish(ctx context.Context, c remote.Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return p.Client.Publish(ctx, p.Channel, b).Err()
}

// NewRedisClient łączy się i sprawdza PING w ciągu 5s.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("realtime: redis ping: %w", err)
	}
	return client, nil
}

var errBadPayload = errors.New("realtime: bad payload")

func decode(payload []byte) (remote.Change, error) {
	var c remote.Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return c, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if c.Table == "" || c.Type == "" {
		return c, errBadPayload
	}
	return c, nil
}

func dispatch(ctx context.Context, payload []byte, fn func(context.Context, remote.Change)) {
	c, err := decode(payload)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("pomijam zdarzenie")
		return
	}
	fn(ctx, c)
}

// Listener utrzymuje subskrypcję: po zerwaniu łączy się ponownie z rosnącą przerwą.
type Listener struct {
	log     zerolog.Logger
	feed    Feed
	handler *Handler

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewListener(log zerolog.Logger, feed Feed, h *Handler) *Listener {
	return &Listener{
		log:        log.With().Str("component", "realtime").Logger(),
		feed:       feed,
		handler:    h,
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

func (l *Listener) Run(ctx context.Context) {
	ctx = l.log.WithContext(ctx)
	wait := l.MinBackoff
	for {
		started := time.Now()
		err := l.feed.Run(ctx, func(ctx context.Context, c remote.Change) {
			l.handler.Handle(ctx, c)
		})
		if ctx.Err() != nil {
			l.log.Info().Msg("subskrypcja zakończona")
			return
		}
		if time.Since(started) > l.MaxBackoff {
			wait = l.MinBackoff
		}
		l.log.Warn().Err(err).Dur("retry_in", wait).Msg("kanał zmian rozłączony")
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
		if wait > l.MaxBackoff {
			wait = l.MaxBackoff
		}
	}
}
