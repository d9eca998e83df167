// The service descriptor, client and server interfaces below follow the
// shape protoc-gen-go-grpc generates. There is no .proto file: messages are
// the plain structs in types.go, carried by the JSON codec in codec.go.

package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gophchat.ChatService"

// Method names, as used in FullMethod strings.
const (
	MethodPing              = "Ping"
	MethodRegister          = "Register"
	MethodLogin             = "Login"
	MethodRefreshToken      = "RefreshToken"
	MethodCheckAuth         = "CheckAuth"
	MethodUpdateProfile     = "UpdateProfile"
	MethodListUsers         = "ListUsers"
	MethodGetMessages       = "GetMessages"
	MethodSendMessage       = "SendMessage"
	MethodGetImageUploadURL = "GetImageUploadURL"
	MethodGetImageURL       = "GetImageURL"
	MethodSubscribe         = "Subscribe"
)

// FullMethod returns "/gophchat.ChatService/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ChatServiceServer is implemented by the server transport.
type ChatServiceServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*RefreshTokenResponse, error)
	CheckAuth(context.Context, *CheckAuthRequest) (*CheckAuthResponse, error)
	UpdateProfile(context.Context, *UpdateProfileRequest) (*UpdateProfileResponse, error)
	ListUsers(context.Context, *ListUsersRequest) (*ListUsersResponse, error)
	GetMessages(context.Context, *GetMessagesRequest) (*GetMessagesResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	GetImageUploadURL(context.Context, *GetImageUploadURLRequest) (*GetImageUploadURLResponse, error)
	GetImageURL(context.Context, *GetImageURLRequest) (*GetImageURLResponse, error)
	Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[Event]) error
}

// UnimplementedChatServiceServer can be embedded to get Unimplemented
// answers for methods a server does not provide.
type UnimplementedChatServiceServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedChatServiceServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, unimplemented(MethodPing)
}
func (UnimplementedChatServiceServer) Register(context.Context, *RegisterRequest) (*RegisterResponse, error) {
	return nil, unimplemented(MethodRegister)
}
func (UnimplementedChatServiceServer) Login(context.Context, *LoginRequest) (*LoginResponse, error) {
	return nil, unimplemented(MethodLogin)
}
func (UnimplementedChatServiceServer) RefreshToken(context.Context, *RefreshTokenRequest) (*RefreshTokenResponse, error) {
	return nil, unimplemented(MethodRefreshToken)
}
func (UnimplementedChatServiceServer) CheckAuth(context.Context, *CheckAuthRequest) (*CheckAuthResponse, error) {
	return nil, unimplemented(MethodCheckAuth)
}
func (UnimplementedChatServiceServer) UpdateProfile(context.Context, *UpdateProfileRequest) (*UpdateProfileResponse, error) {
	return nil, unimplemented(MethodUpdateProfile)
}
func (UnimplementedChatServiceServer) ListUsers(context.Context, *ListUsersRequest) (*ListUsersResponse, error) {
	return nil, unimplemented(MethodListUsers)
}
func (UnimplementedChatServiceServer) GetMessages(context.Context, *GetMessagesRequest) (*GetMessagesResponse, error) {
	return nil, unimplemented(MethodGetMessages)
}
func (UnimplementedChatServiceServer) SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error) {
	return nil, unimplemented(MethodSendMessage)
}
func (UnimplementedChatServiceServer) GetImageUploadURL(context.Context, *GetImageUploadURLRequest) (*GetImageUploadURLResponse, error) {
	return nil, unimplemented(MethodGetImageUploadURL)
}
func (UnimplementedChatServiceServer) GetImageURL(context.Context, *GetImageURLRequest) (*GetImageURLResponse, error) {
	return nil, unimplemented(MethodGetImageURL)
}
func (UnimplementedChatServiceServer) Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[Event]) error {
	return unimplemented(MethodSubscribe)
}

// RegisterChatServiceServer attaches srv to a gRPC server.
func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

// unary builds a MethodDesc that decodes Req and dispatches through the
// server's interceptor chain.
func unary[Req any, Resp any](method string, call func(ChatServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).Subscribe(in, &grpc.GenericServerStream[SubscribeRequest, Event]{ServerStream: stream})
}

// ChatServiceDesc describes gophchat.ChatService for grpc.Server.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPing, ChatServiceServer.Ping),
		unary(MethodRegister, ChatServiceServer.Register),
		unary(MethodLogin, ChatServiceServer.Login),
		unary(MethodRefreshToken, ChatServiceServer.RefreshToken),
		unary(MethodCheckAuth, ChatServiceServer.CheckAuth),
		unary(MethodUpdateProfile, ChatServiceServer.UpdateProfile),
		unary(MethodListUsers, ChatServiceServer.ListUsers),
		unary(MethodGetMessages, ChatServiceServer.GetMessages),
		unary(MethodSendMessage, ChatServiceServer.SendMessage),
		unary(MethodGetImageUploadURL, ChatServiceServer.GetImageUploadURL),
		unary(MethodGetImageURL, ChatServiceServer.GetImageURL),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodSubscribe,
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "gophchat/chat.json",
}
