// Package remote exposes an action registry and score lookup over gRPC, and
// adapts the remote side back into handlers for an in-process registry.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"github.com/Blackthor84/WorkVouch-sub000/internal/scenario"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
const (
	ServiceName       = "trustsim.v1.ActionService"
	invokeMethod      = "/" + ServiceName + "/Invoke"
	lookupScoreMethod = "/" + ServiceName + "/LookupScore"
	listActionsMethod = "/" + ServiceName + "/ListActions"
)

// ActionServiceServer is the server side of ActionService. Every message
// is a google.protobuf.Struct.
type ActionServiceServer interface {
	Invoke(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LookupScore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListActions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method string, call func(ActionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ActionServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(ActionServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc describes ActionService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ActionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: unaryHandler(invokeMethod, ActionServiceServer.Invoke)},
		{MethodName: "LookupScore", Handler: unaryHandler(lookupScoreMethod, ActionServiceServer.LookupScore)},
		{MethodName: "ListActions", Handler: unaryHandler(listActionsMethod, ActionServiceServer.ListActions)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "trustsim/v1/action.proto",
}

// #endregion service-desc

// #region server
// Server serves a registry and score lookup.
type Server struct {
	registry *action.Registry
	scores   scenario.ScoreLookup
	log      *slog.Logger
}

func NewServer(registry *action.Registry, scores scenario.ScoreLookup, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{registry: registry, scores: scores, log: log.With("component", "remote")}
}

// Register attaches the service to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&ServiceDesc, s)
}

// Invoke expects {action, params, context} and answers with the action
// result fields {ok, status, result, error, flags}.
func (s *Server) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := req.AsMap()
	name, _ := m["action"].(string)
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "action is required")
	}
	params, _ := m["params"].(map[string]any)
	ec := execContextFrom(m["context"])

	res := s.registry.Invoke(ctx, name, params, ec)
	s.log.DebugContext(ctx, "remote invoke", "action", name, "actor", ec.ActorID, "ok", res.OK, "status", res.Status)
	out, err := toStruct(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

// LookupScore expects {scope, actor_id} and answers {found, value}.
func (s *Server) LookupScore(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.scores == nil {
		return nil, status.Error(codes.Unimplemented, "score lookup not configured")
	}
	m := req.AsMap()
	scope, _ := m["scope"].(string)
	actorID, _ := m["actor_id"].(string)
	if actorID == "" {
		return nil, status.Error(codes.InvalidArgument, "actor_id is required")
	}
	v, err := s.scores.Score(ctx, scope, actorID)
	if err != nil {
		s.log.ErrorContext(ctx, "score lookup failed", "scope", scope, "actor", actorID, "error", err)
		return nil, status.Errorf(codes.Internal, "score lookup: %v", err)
	}
	resp := map[string]any{"found": v != nil}
	if v != nil {
		resp["value"] = *v
	}
	return structpb.NewStruct(resp)
}

// ListActions answers {names}.
func (s *Server) ListActions(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	names := s.registry.Names()
	list := make([]any, len(names))
	for i, n := range names {
		list[i] = n
	}
	return structpb.NewStruct(map[string]any{"names": list})
}

// #endregion server

// #region encoding
func execContextFrom(v any) action.ExecContext {
	m, _ := v.(map[string]any)
	str := func(k string) string { s, _ := m[k].(string); return s }
	safe, _ := m["safe_mode"].(bool)
	return action.ExecContext{
		RunID:      str("run_id"),
		SandboxID:  str("sandbox_id"),
		ScenarioID: str("scenario_id"),
		Mode:       str("mode"),
		ActorRef:   str("actor_ref"),
		ActorID:    str("actor_id"),
		StepID:     str("step_id"),
		SafeMode:   safe,
	}
}

func execContextMap(ec action.ExecContext) map[string]any {
	return map[string]any{
		"run_id":      ec.RunID,
		"sandbox_id":  ec.SandboxID,
		"scenario_id": ec.ScenarioID,
		"mode":        ec.Mode,
		"actor_ref":   ec.ActorRef,
		"actor_id":    ec.ActorID,
		"step_id":     ec.StepID,
		"safe_mode":   ec.SafeMode,
	}
}

// toStruct round-trips v through JSON so typed slices and maps become the
// generic shapes structpb accepts.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("struct: %w", err)
	}
	return s, nil
}

// #endregion encoding
