package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "wallet.v1.WalletService"

// WalletServiceServer is the server API for wallet.v1.WalletService.
type WalletServiceServer interface {
	GetWallet(context.Context, *WalletRequest) (*WalletResponse, error)
	ListTransactions(context.Context, *ListTransactionsRequest) (*ListTransactionsResponse, error)
	ApplyBalanceChange(context.Context, *BalanceChangeRequest) (*BalanceChangeResponse, error)
	ReconcileDeposit(context.Context, *ReconcileDepositRequest) (*ReconcileDepositResponse, error)
	CreateWithdrawal(context.Context, *CreateWithdrawalRequest) (*WithdrawalMessage, error)
	ApproveWithdrawal(context.Context, *ProcessWithdrawalRequest) (*WithdrawalMessage, error)
	RejectWithdrawal(context.Context, *ProcessWithdrawalRequest) (*WithdrawalMessage, error)
	ListWithdrawals(context.Context, *ListWithdrawalsRequest) (*ListWithdrawalsResponse, error)
}

func unaryHandler[Request any, Response any](method string, call func(WalletServiceServer, context.Context, *Request) (*Response, error)) grpc.MethodHandler {
	return func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		request := new(Request)
		if err := decode(request); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(server.(WalletServiceServer), ctx, request)
		}
		info := &grpc.UnaryServerInfo{Server: server, FullMethod: "/" + serviceName + "/" + method}
		return interceptor(ctx, request, info, func(ctx context.Context, decoded any) (any, error) {
			return call(server.(WalletServiceServer), ctx, decoded.(*Request))
		})
	}
}

// ServiceDesc describes wallet.v1.WalletService for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WalletServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetWallet", Handler: unaryHandler("GetWallet", WalletServiceServer.GetWallet)},
		{MethodName: "ListTransactions", Handler: unaryHandler("ListTransactions", WalletServiceServer.ListTransactions)},
		{MethodName: "ApplyBalanceChange", Handler: unaryHandler("ApplyBalanceChange", WalletServiceServer.ApplyBalanceChange)},
		{MethodName: "ReconcileDeposit", Handler: unaryHandler("ReconcileDeposit", WalletServiceServer.ReconcileDeposit)},
		{MethodName: "CreateWithdrawal", Handler: unaryHandler("CreateWithdrawal", WalletServiceServer.CreateWithdrawal)},
		{MethodName: "ApproveWithdrawal", Handler: unaryHandler("ApproveWithdrawal", WalletServiceServer.ApproveWithdrawal)},
		{MethodName: "RejectWithdrawal", Handler: unaryHandler("RejectWithdrawal", WalletServiceServer.RejectWithdrawal)},
		{MethodName: "ListWithdrawals", Handler: unaryHandler("ListWithdrawals", WalletServiceServer.ListWithdrawals)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wallet/v1/wallet.proto",
}

// RegisterWalletServiceServer registers server on registrar.
func RegisterWalletServiceServer(registrar grpc.ServiceRegistrar, server WalletServiceServer) {
	registrar.RegisterService(&ServiceDesc, server)
}

// NewServer returns a grpc.Server that speaks the JSON codec.
func NewServer(options ...grpc.ServerOption) *grpc.Server {
	return grpc.NewServer(append([]grpc.ServerOption{grpc.ForceServerCodec(Codec())}, options...)...)
}

// WalletServiceClient calls wallet.v1.WalletService.
type WalletServiceClient struct {
	conn grpc.ClientConnInterface
}

// NewWalletServiceClient wraps conn. Dial with DialOptions so calls use the JSON codec.
func NewWalletServiceClient(conn grpc.ClientConnInterface) *WalletServiceClient {
	return &WalletServiceClient{conn: conn}
}

// DialOptions configures a client connection for the JSON codec.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec()))}
}

func invoke[Response any](ctx context.Context, conn grpc.ClientConnInterface, method string, request any, options ...grpc.CallOption) (*Response, error) {
	response := new(Response)
	if err := conn.Invoke(ctx, "/"+serviceName+"/"+method, request, response, options...); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *WalletServiceClient) GetWallet(ctx context.Context, request *WalletRequest, options ...grpc.CallOption) (*WalletResponse, error) {
	return invoke[WalletResponse](ctx, client.conn, "GetWallet", request, options...)
}

func (client *WalletServiceClient) ListTransactions(ctx context.Context, request *ListTransactionsRequest, options ...grpc.CallOption) (*ListTransactionsResponse, error) {
	return invoke[ListTransactionsResponse](ctx, client.conn, "ListTransactions", request, options...)
}

func (client *WalletServiceClient) ApplyBalanceChange(ctx context.Context, request *BalanceChangeRequest, options ...grpc.CallOption) (*BalanceChangeResponse, error) {
	return invoke[BalanceChangeResponse](ctx, client.conn, "ApplyBalanceChange", request, options...)
}

func (client *WalletServiceClient) ReconcileDeposit(ctx context.Context, request *ReconcileDepositRequest, options ...grpc.CallOption) (*ReconcileDepositResponse, error) {
	return invoke[ReconcileDepositResponse](ctx, client.conn, "ReconcileDeposit", request, options...)
}

func (client *WalletServiceClient) CreateWithdrawal(ctx context.Context, request *CreateWithdrawalRequest, options ...grpc.CallOption) (*WithdrawalMessage, error) {
	return invoke[WithdrawalMessage](ctx, client.conn, "CreateWithdrawal", request, options...)
}

func (client *WalletServiceClient) ApproveWithdrawal(ctx context.Context, request *ProcessWithdrawalRequest, options ...grpc.CallOption) (*WithdrawalMessage, error) {
	return invoke[WithdrawalMessage](ctx, client.conn, "ApproveWithdrawal", request, options...)
}

func (client *WalletServiceClient) RejectWithdrawal(ctx context.Context, request *ProcessWithdrawalRequest, options ...grpc.CallOption) (*WithdrawalMessage, error) {
	return invoke[WithdrawalMessage](ctx, client.conn, "RejectWithdrawal", request, options...)
}

func (client *WalletServiceClient) ListWithdrawals(ctx context.Context, request *ListWithdrawalsRequest, options ...grpc.CallOption) (*ListWithdrawalsResponse, error) {
	return invoke[ListWithdrawalsResponse](ctx, client.conn, "ListWithdrawals", request, options...)
}
