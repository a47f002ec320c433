package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Unary builds a method descriptor for service/name that decodes a *Req, runs the interceptor
// chain, and calls call on the registered server of type S.
func Unary[S any, Req any, Resp any](service, name string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			if interceptor == nil {
				return h(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, h)
		},
	}
}

// FullMethod returns the /service/method name used by interceptors.
func FullMethod(service, name string) string {
	return "/" + service + "/" + name
}
