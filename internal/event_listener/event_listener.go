package event_listener

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"inference-gateway/logging"

	"github.com/gorilla/websocket"
)

const (
	newBlockEventType = "tendermint/event/NewBlock"

	newBlockQuery  = "tm.event='NewBlock'"
	reconnectDelay = 10 * time.Second
)

// jsonRPCResponse is the envelope the chain node's websocket pushes for every
// subscribed event.
type jsonRPCResponse struct {
	Result struct {
		Data struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"data"`
		Events map[string][]string `json:"events"`
	} `json:"result"`
}

type newBlockValue struct {
	Block struct {
		Header struct {
			Height string `json:"height"`
		} `json:"header"`
	} `json:"block"`
}

// EventListener subscribes to the chain node's NewBlock stream and publishes
// the heights. Downstream consumers can be arbitrarily slow; the unbounded
// queue decouples them from the websocket read loop.
type EventListener struct {
	websocketUrl string
	heights      *UnboundedQueue[int64]
	ws           *websocket.Conn
}

func NewEventListener(websocketUrl string) *EventListener {
	return &EventListener{
		websocketUrl: websocketUrl,
		heights:      NewUnboundedQueue[int64](),
	}
}

// Heights is the stream of block heights, in arrival order.
func (el *EventListener) Heights() <-chan int64 {
	return el.heights.Out
}

// Start connects and listens until the context is cancelled. Connection
// failures trigger a delayed reconnect rather than an exit, because missing
// blocks means missing deposits.
func (el *EventListener) Start(ctx context.Context) {
	defer el.heights.Close()

	for {
		if ctx.Err() != nil {
			return
		}

		if err := el.connect(); err != nil {
			logging.Error("Failed to connect to websocket, retrying", logging.EventProcessing,
				"url", el.websocketUrl, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		el.listen(ctx)
		el.ws.Close()
	}
}

func (el *EventListener) connect() error {
	logging.Info("Connecting to websocket", logging.EventProcessing, "url", el.websocketUrl)

	ws, _, err := websocket.DefaultDialer.Dial(el.websocketUrl, nil)
	if err != nil {
		return err
	}
	el.ws = ws
	return el.subscribe(newBlockQuery)
}

func (el *EventListener) subscribe(query string) error {
	subscribeMsg := fmt.Sprintf(`{"jsonrpc": "2.0", "method": "subscribe", "id": "1", "params": ["%s"]}`, query)
	return el.ws.WriteMessage(websocket.TextMessage, []byte(subscribeMsg))
}

func (el *EventListener) listen(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		_, message, err := el.ws.ReadMessage()
		if err != nil {
			logging.Warn("Failed to read a websocket message", logging.EventProcessing,
				"errorType", fmt.Sprintf("%T", err), "error", err)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("Websocket connection closed, reconnecting", logging.EventProcessing)
			}
			return
		}

		var event jsonRPCResponse
		if err = json.Unmarshal(message, &event); err != nil {
			logging.Error("Error unmarshalling websocket message", logging.EventProcessing,
				"error", err, "message", string(message))
			continue
		}

		if event.Result.Data.Type != newBlockEventType {
			continue
		}

		height, err := parseBlockHeight(event.Result.Data.Value)
		if err != nil {
			logging.Error("Failed to parse block height", logging.EventProcessing, "error", err)
			continue
		}

		logging.Debug("New block event received", logging.EventProcessing,
			"height", height, "queued", el.heights.Size())
		el.heights.In <- height
	}
}

func parseBlockHeight(value json.RawMessage) (int64, error) {
	var block newBlockValue
	if err := json.Unmarshal(value, &block); err != nil {
		return 0, err
	}
	return strconv.ParseInt(block.Block.Header.Height, 10, 64)
}
