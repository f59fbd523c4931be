// Package mqtt provides the mqtt:// transport over an MQTT broker using the
// Eclipse Paho client. Importing it registers the driver.
//
// Addresses have the form mqtt://host:port/endpoint. Requesters publish on
// MQRPC/<endpoint>/Request/<id> and listen on MQRPC/<endpoint>/Reply/<id>;
// routers share a subscription on the request topics, so several servers
// may serve one endpoint.
package mqtt

import (
	"context"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srand/mqrpc/transport"
)

const quiesce = 250 * time.Millisecond

func init() {
	transport.Register("mqtt", &Driver{})
}

type Driver struct{}

var _ transport.Driver = (*Driver)(nil)

func clientOptions(broker, clientID string, options *transport.Options) *mqtt.ClientOptions {
	mqttOptions := mqtt.NewClientOptions()
	mqttOptions.AddBroker(broker)
	for _, addr := range options.Addrs {
		mqttOptions.AddBroker(addr)
	}
	mqttOptions.SetClientID(clientID)
	mqttOptions.SetConnectTimeout(options.ConnectTimeout)
	mqttOptions.SetOrderMatters(false)
	mqttOptions.SetAutoReconnect(true)
	if options.TLSConfig != nil {
		mqttOptions.SetTLSConfig(options.TLSConfig)
	}
	return mqttOptions
}

func connect(ctx context.Context, mqttOptions *mqtt.ClientOptions) (mqtt.Client, error) {
	client := mqtt.NewClient(mqttOptions)
	if err := waitToken(ctx, client.Connect()); err != nil {
		return nil, err
	}
	return client, nil
}

func (d *Driver) Dial(ctx context.Context, addr string, options *transport.Options) (transport.Requester, error) {
	broker, endpoint, err := parseAddress(addr, options.TLSConfig != nil)
	if err != nil {
		return nil, err
	}

	id := options.ClientID
	if id == "" {
		id = uuid.NewString()
	}

	client, err := connect(ctx, clientOptions(broker, id, options))
	if err != nil {
		return nil, err
	}
	options.Events.TriggerConnect(broker)

	r, err := newRequester(ctx, client, id, endpoint, options.QoS)
	if err != nil {
		client.Disconnect(0)
		return nil, err
	}
	return r, nil
}

func (d *Driver) Listen(ctx context.Context, addr string, options *transport.Options) (transport.Router, error) {
	broker, endpoint, err := parseAddress(addr, options.TLSConfig != nil)
	if err != nil {
		return nil, err
	}

	id := options.ClientID
	if id == "" {
		id = "mqrpc-server-" + uuid.NewString()
	}

	r := &router{
		endpoint: endpoint,
		qos:      options.QoS,
		logger:   options.Logger,
		incoming: make(chan transport.Multipart),
		done:     make(chan struct{}),
	}

	mqttOptions := clientOptions(broker, id, options)
	// Subscriptions are not kept by a clean session, so restore them.
	mqttOptions.SetOnConnectHandler(func(client mqtt.Client) {
		options.Events.TriggerConnect(broker)
		if err := r.subscribe(context.Background(), client); err != nil {
			r.logger.Error("subscribe failed", zap.String("endpoint", endpoint), zap.Error(err))
		}
	})

	client, err := connect(ctx, mqttOptions)
	if err != nil {
		return nil, err
	}
	r.client = client

	if err := r.subscribe(ctx, client); err != nil {
		client.Disconnect(0)
		return nil, err
	}
	return r, nil
}

type router struct {
	client   mqtt.Client
	endpoint string
	qos      byte
	logger   *zap.Logger
	incoming chan transport.Multipart
	done     chan struct{}
	once     sync.Once
}

var _ transport.Router = (*router)(nil)

func (r *router) subscribe(ctx context.Context, client mqtt.Client) error {
	token := client.Subscribe(sharedRequestTopic(r.endpoint), r.qos, func(_ mqtt.Client, msg mqtt.Message) {
		m := transport.Multipart{
			Identity: []byte(extractTopicID(msg.Topic())),
			Frames:   [][]byte{msg.Payload()},
		}
		select {
		case r.incoming <- m:
		case <-r.done:
		}
	})
	return waitToken(ctx, token)
}

func (r *router) RecvMultipart(ctx context.Context) (transport.Multipart, error) {
	select {
	case msg := <-r.incoming:
		return msg, nil
	case <-r.done:
		return transport.Multipart{}, transport.ErrClosed
	case <-ctx.Done():
		return transport.Multipart{}, ctx.Err()
	}
}

func (r *router) SendMultipart(ctx context.Context, msg transport.Multipart) error {
	topic := replyTopic(r.endpoint, string(msg.Identity))
	for _, frame := range msg.Frames {
		if err := waitToken(ctx, r.client.Publish(topic, r.qos, false, frame)); err != nil {
			return err
		}
	}
	return nil
}

func (r *router) Close() error {
	r.once.Do(func() {
		close(r.done)
		r.client.Unsubscribe(sharedRequestTopic(r.endpoint)).WaitTimeout(quiesce)
		r.client.Disconnect(uint(quiesce.Milliseconds()))
	})
	return nil
}
