package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ghdlabs/ghd-market-maker/domain"
	"nhooyr.io/websocket"
)

type websocketCredentials interface {
	GetWebsocketURL() string
	GetAPIKey() string
	GetSymbol() string
}

type websocketClientLogger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Printf(format string, args ...interface{})
}

// WebsocketClient consumes the market-data stream (ticker, trades and order
// events) and delivers it on a single buffered channel. It reconnects and
// resubscribes on any read failure; the engine detects lost order events
// through sequence gaps and resyncs over REST.
type WebsocketClient struct {
	credentials websocketCredentials
	logger      websocketClientLogger
	events      chan domain.FeedEvent
}

func NewWebsocketClient(ctx context.Context, websocketCredentials websocketCredentials, websocketClientLogger websocketClientLogger) *WebsocketClient {
	websocketClient := WebsocketClient{
		credentials: websocketCredentials,
		logger:      websocketClientLogger,
		events:      make(chan domain.FeedEvent, 256),
	}

	go websocketClient.run(ctx)

	return &websocketClient
}

// Events is the inbound stream. Closed when the context is done.
func (websocketClient *WebsocketClient) Events() <-chan domain.FeedEvent {
	return websocketClient.events
}

func (websocketClient *WebsocketClient) run(ctx context.Context) {
	defer close(websocketClient.events)

	for ctx.Err() == nil {
		if err := websocketClient.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			websocketClient.logger.Warnf("feed connection lost: %v", err)
			time.Sleep(1 * time.Second)
		}
	}
}

func (websocketClient *WebsocketClient) connectAndRead(ctx context.Context) error {
	url := websocketClient.credentials.GetWebsocketURL() + "?api_key=" + websocketClient.credentials.GetAPIKey()

	connection, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	defer connection.Close(websocket.StatusNormalClosure, "")

	if err := websocketClient.subscribe(ctx, connection); err != nil {
		return err
	}
	websocketClient.logger.Printf("Subscribed to %s feed", websocketClient.credentials.GetSymbol())

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-time.After(30 * time.Second):
				_ = connection.Ping(pingCtx)
			}
		}
	}()

	for {
		_, bytes, err := connection.Read(ctx)
		if err != nil {
			return err
		}

		var event domain.FeedEvent
		if err := json.Unmarshal(bytes, &event); err != nil {
			websocketClient.logger.Debugf("unparseable feed message dropped: %v", err)
			continue
		}
		if event.Type == "" || event.Type == domain.EventSubscribed {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case websocketClient.events <- event:
		}
	}
}

func (websocketClient *WebsocketClient) subscribe(ctx context.Context, connection *websocket.Conn) error {
	bytes, err := json.Marshal(map[string]interface{}{
		"type":     "subscribe",
		"symbol":   websocketClient.credentials.GetSymbol(),
		"channels": []string{"trades", "orderbook", "orders"},
	})
	if err != nil {
		return err
	}

	return connection.Write(ctx, websocket.MessageText, bytes)
}
