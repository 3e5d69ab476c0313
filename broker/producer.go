package broker

import (
	"log"

	"marginalia-reader/marginalia/config"

	"github.com/nats-io/nats.go"
)

var conn *nats.Conn

// InitProducer connects to the NATS server. The broker is optional: when the
// server is unreachable the app keeps running and events stay queued in the
// store until a dispatcher can reach a broker.
func InitProducer(cfg config.Config) error {
	var err error
	conn, err = nats.Connect(cfg.NatsServerURL,
		nats.Name("marginalia-events"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		conn = nil
		return err
	}
	log.Println("NATS producer initialized")
	return nil
}

// IsConnected reports whether the producer currently has a live connection.
func IsConnected() bool {
	return conn != nil && conn.IsConnected()
}

func PublishMessage(subject string, key string, value string) error {
	if conn == nil {
		log.Println("NATS producer is not initialized")
		return nats.ErrConnectionClosed
	}

	message := &nats.Msg{
		Subject: subject,
		Header:  nats.Header{"Key": []string{key}},
		Data:    []byte(value),
	}

	if err := conn.PublishMsg(message); err != nil {
		log.Printf("Failed to publish message to NATS: %v", err)
		return err
	}
	return nil
}

func CloseProducer() {
	if conn != nil {
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
		conn = nil
	}
}
