package alert

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	logger "github.com/sirupsen/logrus"
)

const DefaultSubject = "pmm.alerts"

type natsMessage struct {
	Source string    `json:"source"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// NatsSink publishes alerts so that other services can fan them out.
type NatsSink struct {
	conn    *nats.Conn
	subject string
	source  string
}

func NewNatsSink(url, subject, source string) (*NatsSink, error) {
	conn, err := nats.Connect(url,
		nats.Name(source),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WithField("err", err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	return NewNatsSinkWithConn(conn, subject, source), nil
}

func NewNatsSinkWithConn(conn *nats.Conn, subject, source string) *NatsSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NatsSink{conn: conn, subject: subject, source: source}
}

func (s *NatsSink) Send(_ context.Context, msg string) error {
	data, err := json.Marshal(&natsMessage{
		Source: s.source,
		Text:   msg,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.conn.Publish(s.subject, data)
}

func (s *NatsSink) Close() {
	s.conn.Close()
}
