package nats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
)

const DefaultSubjectPrefix = "memory.session.completed"

var _ service.Notifier = (*Publisher)(nil)

type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: DefaultSubjectPrefix,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Envelope is the message body published for every finished session
type Envelope struct {
	EventID   string        `json:"eventId"`
	EventType string        `json:"eventType"`
	SessionID string        `json:"sessionId"`
	Timestamp time.Time     `json:"timestamp"`
	Result    engine.Result `json:"result"`
}

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Publisher fans finished game results out on NATS subjects
type Publisher struct {
	nc     *nats.Conn
	conn   msgPublisher
	prefix string
	now    func() time.Time
}

// Connect dials NATS with reconnect handling
func Connect(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("memory-match-game"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	p := newPublisher(nc, cfg.SubjectPrefix)
	p.nc = nc
	return p, nil
}

func newPublisher(conn msgPublisher, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix, now: time.Now}
}

// Subject returns the subject a result is published on, e.g. memory.session.completed.win
func (p *Publisher) Subject(r engine.Result) string {
	return p.prefix + "." + strings.ToLower(string(r.Status))
}

// Notify publishes the result. Failures are logged; game flow never waits on NATS acks.
func (p *Publisher) Notify(r engine.Result) {
	msg, err := p.message(r)
	if err != nil {
		log.Error().Err(err).Str("session_id", r.SessionID).Msg("marshal NATS event")
		return
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Str("session_id", r.SessionID).Msg("publish to NATS")
		return
	}
	log.Debug().Str("subject", msg.Subject).Str("session_id", r.SessionID).Msg("published to NATS")
}

func (p *Publisher) message(r engine.Result) (*nats.Msg, error) {
	eventType := "session.completed." + strings.ToLower(string(r.Status))
	env := Envelope{
		EventID:   r.SessionID + ":" + string(r.Status),
		EventType: eventType,
		SessionID: r.SessionID,
		Timestamp: p.now().UTC(),
		Result:    r,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(p.Subject(r))
	msg.Data = data
	msg.Header.Set("Event-Type", eventType)
	msg.Header.Set("Session-ID", r.SessionID)
	msg.Header.Set("Player-ID", r.PlayerID)
	msg.Header.Set(nats.MsgIdHdr, env.EventID)
	return msg, nil
}

// Close drains pending messages and closes the connection
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
