package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct
// Client calls a remote ActionService.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// Dial connects to an ActionService at addr.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn wraps an existing connection. Close is then a no-op.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close shuts down a dialled connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region invoke
// Invoke runs name remotely. Transport failures come back as a 502 result
// so the owning step fails like any other rejected action.
func (c *Client) Invoke(ctx context.Context, name string, params map[string]any, ec action.ExecContext) action.Result {
	req, err := toStruct(map[string]any{
		"action":  name,
		"params":  params,
		"context": execContextMap(ec),
	})
	if err != nil {
		return action.Failure(http.StatusBadRequest, "encode params: %v", err).WithFlags(action.FlagValidationError)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, invokeMethod, req, out); err != nil {
		return action.Failure(http.StatusBadGateway, "invoke rpc: %v", err)
	}
	return resultFrom(out.AsMap())
}

func resultFrom(m map[string]any) action.Result {
	r := action.Result{}
	r.OK, _ = m["ok"].(bool)
	if s, ok := m["status"].(float64); ok {
		r.Status = int(s)
	}
	r.Value, _ = m["result"].(map[string]any)
	r.Error, _ = m["error"].(string)
	if flags, ok := m["flags"].([]any); ok {
		for _, f := range flags {
			if s, ok := f.(string); ok {
				r.Flags = append(r.Flags, s)
			}
		}
	}
	return r
}

// Handler adapts one remote action into a local handler.
func (c *Client) Handler(name string) action.Handler {
	return func(ctx context.Context, params map[string]any, ec action.ExecContext) action.Result {
		return c.Invoke(ctx, name, params, ec)
	}
}

// RegisterAll binds every remote action into reg and returns the names.
func (c *Client) RegisterAll(ctx context.Context, reg *action.Registry) ([]string, error) {
	names, err := c.Actions(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		reg.Register(n, c.Handler(n))
	}
	return names, nil
}

// Actions lists the remote registry.
func (c *Client) Actions(ctx context.Context) ([]string, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listActionsMethod, &structpb.Struct{}, out); err != nil {
		return nil, fmt.Errorf("list actions rpc: %w", err)
	}
	var names []string
	if list, ok := out.AsMap()["names"].([]any); ok {
		for _, n := range list {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
	}
	return names, nil
}

// #endregion invoke

// #region score
// Score implements scenario.ScoreLookup against the remote side.
func (c *Client) Score(ctx context.Context, scope, actorID string) (*float64, error) {
	req, err := structpb.NewStruct(map[string]any{"scope": scope, "actor_id": actorID})
	if err != nil {
		return nil, fmt.Errorf("score request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, lookupScoreMethod, req, out); err != nil {
		return nil, fmt.Errorf("lookup score rpc: %w", err)
	}
	m := out.AsMap()
	if found, _ := m["found"].(bool); !found {
		return nil, nil
	}
	v, ok := m["value"].(float64)
	if !ok {
		return nil, fmt.Errorf("lookup score: missing value for %s", actorID)
	}
	return &v, nil
}

// #endregion score
