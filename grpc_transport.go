// grpc_transport.go: gRPC node service and client for remote deploys
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully qualified gRPC names of the deploy node service.
const (
	DeployServiceName  = "godeploy.v1.DeployService"
	deployMethodPath   = "/" + DeployServiceName + "/Deploy"
	readMethodPath     = "/" + DeployServiceName + "/Read"
	defaultMaxMsgBytes = 64 << 20
)

// DeployService is the server side of the node service. *Deployer satisfies
// it through NewNodeServer.
type DeployService interface {
	Deploy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Read(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// deployServiceDesc is written by hand; messages are structpb.Struct so no
// generated code is needed.
var deployServiceDesc = grpc.ServiceDesc{
	ServiceName: DeployServiceName,
	HandlerType: (*DeployService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deploy", Handler: deployHandler},
		{MethodName: "Read", Handler: readHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "godeploy/v1/deploy.proto",
}

func deployHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeployService).Deploy(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deployMethodPath}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DeployService).Deploy(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func readHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeployService).Read(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: readMethodPath}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DeployService).Read(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterDeployService registers srv on s.
func RegisterDeployService(s grpc.ServiceRegistrar, srv DeployService) {
	s.RegisterService(&deployServiceDesc, srv)
}

// NodeServer exposes a Deployer over gRPC.
type NodeServer struct {
	deployer *Deployer
	logger   Logger
}

// NewNodeServer creates the gRPC service for d.
func NewNodeServer(d *Deployer, logger any) *NodeServer {
	return &NodeServer{deployer: d, logger: NewLogger(logger).With("component", "grpc")}
}

// Deploy implements DeployService. Deploy failures are reported in the
// result, not as gRPC errors.
func (s *NodeServer) Deploy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeDeployRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Debug("Remote deploy received", "module", req.Name, "bytes", len(req.Content))

	result, deployErr := s.deployer.Deploy(ctx, req)
	out, err := encodeNodeResult(result, deployErr)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Read implements DeployService.
func (s *NodeServer) Read(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	out, err := encodeSummaries(s.deployer.NodeID(), s.deployer.Read())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// GRPCNodeClient talks to a remote node's DeployService.
type GRPCNodeClient struct {
	id      string
	conn    *grpc.ClientConn
	timeout time.Duration
}

// GRPCClientOptions configures a GRPCNodeClient.
type GRPCClientOptions struct {
	// Timeout bounds each call; 0 means no extra deadline.
	Timeout     time.Duration
	MaxMsgBytes int
	DialOptions []grpc.DialOption
}

// NewGRPCNodeClient creates a client for the node id at target. The
// connection is established lazily by gRPC.
func NewGRPCNodeClient(id, target string, opts GRPCClientOptions) (*GRPCNodeClient, error) {
	if id == "" {
		id = target
	}
	maxBytes := opts.MaxMsgBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxMsgBytes
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxBytes),
			grpc.MaxCallSendMsgSize(maxBytes),
		),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, NewTransportError(id, err)
	}
	return &GRPCNodeClient{id: id, conn: conn, timeout: opts.Timeout}, nil
}

// ID implements Node
func (c *GRPCNodeClient) ID() string { return c.id }

func (c *GRPCNodeClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}

// Deploy implements Node. A failed remote deploy returns the result and a
// REMOTE_FAILURE error carrying the remote message.
func (c *GRPCNodeClient) Deploy(ctx context.Context, req DeployRequest) (NodeResult, error) {
	in, err := encodeDeployRequest(req)
	if err != nil {
		return NodeResult{Node: c.id, Name: req.Name, Error: err.Error()}, err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, deployMethodPath, in, out); err != nil {
		terr := transportError(c.id, err)
		return NodeResult{Node: c.id, Name: req.Name, Error: terr.Error()}, terr
	}
	result, err := decodeNodeResult(out)
	if err != nil {
		return NodeResult{Node: c.id, Name: req.Name, Error: err.Error()}, err
	}
	if result.Node == "" {
		result.Node = c.id
	}
	if !result.Success {
		return result, NewRemoteFailureError(c.id, result.Error)
	}
	return result, nil
}

// Read implements Node
func (c *GRPCNodeClient) Read(ctx context.Context) (map[string]ModuleSummary, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, readMethodPath, &structpb.Struct{}, out); err != nil {
		return nil, transportError(c.id, err)
	}
	_, modules, err := decodeSummaries(out)
	return modules, err
}

// Close releases the connection.
func (c *GRPCNodeClient) Close() error {
	return c.conn.Close()
}

func transportError(node string, err error) error {
	if st, ok := status.FromError(err); ok && st.Code() == codes.InvalidArgument {
		return NewCodecError(st.Message(), err)
	}
	return NewTransportError(node, err)
}

func encodeDeployRequest(req DeployRequest) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"name":         req.Name,
		"source":       req.SourceLocator,
		"content_type": req.ContentType,
	}
	if len(req.Content) > 0 {
		fields["content"] = base64.StdEncoding.EncodeToString(req.Content)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, NewCodecError("failed to encode deploy request", err)
	}
	return s, nil
}

func decodeDeployRequest(s *structpb.Struct) (DeployRequest, error) {
	f := s.GetFields()
	req := DeployRequest{
		Name:          f["name"].GetStringValue(),
		SourceLocator: f["source"].GetStringValue(),
		ContentType:   f["content_type"].GetStringValue(),
	}
	if raw := f["content"].GetStringValue(); raw != "" {
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return req, NewCodecError("content is not valid base64", err)
		}
		req.Content = data
	}
	return req, nil
}

func encodeNodeResult(r NodeResult, deployErr error) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"node":    r.Node,
		"name":    r.Name,
		"success": r.Success,
		"error":   r.Error,
	}
	if deployErr != nil {
		fields["kind"] = string(KindOf(deployErr))
		if r.Error == "" {
			fields["error"] = deployErr.Error()
		}
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, NewCodecError("failed to encode node result", err)
	}
	return s, nil
}

func decodeNodeResult(s *structpb.Struct) (NodeResult, error) {
	f := s.GetFields()
	if _, ok := f["success"]; !ok {
		return NodeResult{}, NewCodecError("node result has no success field", nil)
	}
	return NodeResult{
		Node:    f["node"].GetStringValue(),
		Name:    f["name"].GetStringValue(),
		Success: f["success"].GetBoolValue(),
		Error:   f["error"].GetStringValue(),
	}, nil
}

func encodeSummaries(node string, modules map[string]ModuleSummary) (*structpb.Struct, error) {
	data, err := json.Marshal(modules)
	if err != nil {
		return nil, NewCodecError("failed to encode module summaries", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, NewCodecError("failed to encode module summaries", err)
	}
	s, err := structpb.NewStruct(map[string]interface{}{"node": node, "modules": raw})
	if err != nil {
		return nil, NewCodecError("failed to encode module summaries", err)
	}
	return s, nil
}

func decodeSummaries(s *structpb.Struct) (string, map[string]ModuleSummary, error) {
	f := s.GetFields()
	modules := make(map[string]ModuleSummary)
	if mv := f["modules"].GetStructValue(); mv != nil {
		data, err := json.Marshal(mv.AsMap())
		if err != nil {
			return "", nil, NewCodecError("failed to decode module summaries", err)
		}
		if err := json.Unmarshal(data, &modules); err != nil {
			return "", nil, NewCodecError(fmt.Sprintf("failed to decode module summaries: %v", err), err)
		}
	}
	return f["node"].GetStringValue(), modules, nil
}
