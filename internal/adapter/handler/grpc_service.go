package handler

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const ledgerServiceName = "stockledger.v1.LedgerService"

type CreateStockRequest struct {
	ProductId string `json:"product_id"`
	OnHand    int64  `json:"on_hand"`
}

type SnapshotRequest struct {
	ProductId string `json:"product_id"`
}

type MutationRequest struct {
	ProductId string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type StockResponse struct {
	Success   bool           `json:"success"`
	Outcome   domain.Outcome `json:"outcome,omitempty"`
	Message   string         `json:"message"`
	ProductId string         `json:"product_id,omitempty"`
	Requested int64          `json:"requested,omitempty"`
	Quantity  int64          `json:"quantity"`
	OnHand    int64          `json:"on_hand"`
	Reserved  int64          `json:"reserved"`
	Available int64          `json:"available"`
	Version   int64          `json:"version,omitempty"`
	Shortfall int64          `json:"shortfall,omitempty"`
}

func (x *MutationRequest) GetProductId() string {
	if x != nil {
		return x.ProductId
	}
	return ""
}

func (x *MutationRequest) GetQuantity() int64 {
	if x != nil {
		return x.Quantity
	}
	return 0
}

type LedgerServiceServer interface {
	CreateStock(context.Context, *CreateStockRequest) (*StockResponse, error)
	Snapshot(context.Context, *SnapshotRequest) (*StockResponse, error)
	Reserve(context.Context, *MutationRequest) (*StockResponse, error)
	Release(context.Context, *MutationRequest) (*StockResponse, error)
	Commit(context.Context, *MutationRequest) (*StockResponse, error)
}

func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateStock", Handler: unaryHandler("CreateStock", LedgerServiceServer.CreateStock)},
		{MethodName: "Snapshot", Handler: unaryHandler("Snapshot", LedgerServiceServer.Snapshot)},
		{MethodName: "Reserve", Handler: unaryHandler("Reserve", LedgerServiceServer.Reserve)},
		{MethodName: "Release", Handler: unaryHandler("Release", LedgerServiceServer.Release)},
		{MethodName: "Commit", Handler: unaryHandler("Commit", LedgerServiceServer.Commit)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockledger/v1/ledger.proto",
}

func unaryHandler[Req any](method string, call func(LedgerServiceServer, context.Context, *Req) (*StockResponse, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ledgerServiceName + "/" + method

	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LedgerClient calls a remote ledger over gRPC using the JSON codec.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) CreateStock(ctx context.Context, in *CreateStockRequest, opts ...grpc.CallOption) (*StockResponse, error) {
	return c.invoke(ctx, "CreateStock", in, opts)
}

func (c *LedgerClient) Snapshot(ctx context.Context, in *SnapshotRequest, opts ...grpc.CallOption) (*StockResponse, error) {
	return c.invoke(ctx, "Snapshot", in, opts)
}

func (c *LedgerClient) Reserve(ctx context.Context, in *MutationRequest, opts ...grpc.CallOption) (*StockResponse, error) {
	return c.invoke(ctx, "Reserve", in, opts)
}

func (c *LedgerClient) Release(ctx context.Context, in *MutationRequest, opts ...grpc.CallOption) (*StockResponse, error) {
	return c.invoke(ctx, "Release", in, opts)
}

func (c *LedgerClient) Commit(ctx context.Context, in *MutationRequest, opts ...grpc.CallOption) (*StockResponse, error) {
	return c.invoke(ctx, "Commit", in, opts)
}

func (c *LedgerClient) invoke(ctx context.Context, method string, in any, opts []grpc.CallOption) (*StockResponse, error) {
	out := new(StockResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ledgerServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
