package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"switchyard/internal/api"
)

// WebSocketAdapter calls tool servers over a websocket. Each call opens its
// own connection, sends one request and reads one reply:
//
//	-> {"id","tool","arguments","config"}
//	<- {"id","result"} or {"id","error":{"message"}}
type WebSocketAdapter struct {
	client *http.Client
}

// NewWebSocketAdapter creates a websocket adapter. client is used for the
// opening handshake.
func NewWebSocketAdapter(client *http.Client) *WebSocketAdapter {
	return &WebSocketAdapter{client: client}
}

type wsReply struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *WebSocketAdapter) dial(ctx context.Context, reg api.ServiceRegistration) (*websocket.Conn, error) {
	header := http.Header{}
	for k, v := range reg.ConfigStringMap("headers") {
		header.Set(k, v)
	}
	conn, resp, err := websocket.Dial(ctx, reg.Location, &websocket.DialOptions{
		HTTPClient: a.client,
		HTTPHeader: header,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, wrapTransport("websocket dial", err)
	}
	conn.SetReadLimit(maxBodyBytes)
	return conn, nil
}

func (a *WebSocketAdapter) Invoke(ctx context.Context, reg api.ServiceRegistration, tool string, args map[string]interface{}) (api.Result, error) {
	conn, err := a.dial(ctx, reg)
	if err != nil {
		return api.Result{}, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if args == nil {
		args = map[string]interface{}{}
	}
	id := uuid.New().String()
	if err := wsjson.Write(ctx, conn, invokeBody{ID: id, Tool: tool, Arguments: args, Config: reg.Config}); err != nil {
		return api.Result{}, wrapTransport("websocket write", err)
	}

	var reply wsReply
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return api.Result{}, api.NewProtocolError("reply is not JSON", err)
		}
		return api.Result{}, wrapTransport("websocket read", err)
	}
	if reply.ID != id {
		return api.Result{}, api.NewProtocolError("reply id does not match request", nil)
	}
	if reply.Error != nil {
		return api.Result{}, api.NewBackendError(reply.Error.Message, 0, nil)
	}
	return api.Result{Data: reply.Result}, nil
}

// Probe opens a connection and exchanges a ping/pong.
func (a *WebSocketAdapter) Probe(ctx context.Context, reg api.ServiceRegistration) error {
	conn, err := a.dial(ctx, reg)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Pongs are only processed while something reads.
	readCtx := conn.CloseRead(ctx)
	if err := conn.Ping(readCtx); err != nil {
		return wrapTransport("websocket ping", err)
	}
	return nil
}
