package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/srand/mqrpc/transport"
)

const topicRoot = "MQRPC"

func requestTopic(endpoint, id string) string {
	return topicRoot + "/" + endpoint + "/Request/" + id
}

func replyTopic(endpoint, id string) string {
	return topicRoot + "/" + endpoint + "/Reply/" + id
}

// sharedRequestTopic spreads requests for endpoint over every subscribed
// server instance.
func sharedRequestTopic(endpoint string) string {
	return "$share/" + topicRoot + "/" + requestTopic(endpoint, "+")
}

func extractTopicID(topic string) string {
	parts := strings.Split(topic, "/")
	return parts[len(parts)-1]
}

// parseAddress splits host:port/endpoint into a broker URL and endpoint name.
func parseAddress(addr string, secure bool) (broker, endpoint string, err error) {
	scheme := "tcp"
	if secure {
		scheme = "ssl"
	}
	u, err := url.Parse(scheme + "://" + addr)
	if err != nil {
		return "", "", err
	}
	endpoint = strings.Trim(u.Path, "/")
	if u.Host == "" || endpoint == "" {
		return "", "", fmt.Errorf("%w: mqtt address must be host:port/endpoint", transport.ErrNoAddress)
	}
	if strings.ContainsAny(endpoint, "+#") {
		return "", "", fmt.Errorf("invalid mqtt endpoint %q", endpoint)
	}
	return scheme + "://" + u.Host, endpoint, nil
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	if token == nil {
		return errors.New("failed to create token")
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requester publishes requests on its own request topic and receives
// replies on its reply topic.
type requester struct {
	client   mqtt.Client
	id       string
	endpoint string
	qos      byte
	receiver chan []byte
	done     chan struct{}
	once     sync.Once
}

var _ transport.Requester = (*requester)(nil)

func newRequester(ctx context.Context, client mqtt.Client, id, endpoint string, qos byte) (*requester, error) {
	r := &requester{
		client:   client,
		id:       id,
		endpoint: endpoint,
		qos:      qos,
		receiver: make(chan []byte, 1),
		done:     make(chan struct{}),
	}

	token := client.Subscribe(replyTopic(endpoint, id), qos, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case r.receiver <- msg.Payload():
		case <-r.done:
		}
	})
	if err := waitToken(ctx, token); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *requester) Send(ctx context.Context, data []byte) error {
	select {
	case <-r.done:
		return transport.ErrClosed
	default:
	}
	return waitToken(ctx, r.client.Publish(requestTopic(r.endpoint, r.id), r.qos, false, data))
}

func (r *requester) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-r.receiver:
		return data, nil
	case <-r.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *requester) Close() error {
	r.once.Do(func() {
		close(r.done)
		r.client.Unsubscribe(replyTopic(r.endpoint, r.id)).WaitTimeout(quiesce)
		r.client.Disconnect(uint(quiesce.Milliseconds()))
	})
	return nil
}
