package grpcserver

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
)

const (
	serviceName = "pointdag.Intercom"
	queryMethod = "/" + serviceName + "/Query"
)

// RequestHandler answers a raw intercom request.
type RequestHandler func(ctx context.Context, request []byte) ([]byte, error)

// intercomService is implemented by servers registered with intercomServiceDesc
type intercomService interface {
	query(ctx context.Context, request []byte) ([]byte, error)
}

var intercomServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*intercomService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Query",
			Handler:    queryHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "intercom",
}

func queryHandler(srv interface{}, ctx context.Context, dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor) (interface{}, error) {

	var request []byte
	err := dec(&request)
	if err != nil {
		return nil, err
	}
	service := srv.(intercomService)
	if interceptor == nil {
		return service.query(ctx, request)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: queryMethod,
	}
	handler := func(ctx context.Context, request interface{}) (interface{}, error) {
		return service.query(ctx, *request.(*[]byte))
	}
	return interceptor(ctx, &request, info, handler)
}

// rawCodec passes byte slices through unchanged, so intercom messages are
// encoded by appmessage rather than by generated protobuf code.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	switch message := v.(type) {
	case []byte:
		return message, nil
	case *[]byte:
		return *message, nil
	}
	return nil, errors.Errorf("cannot marshal %T", v)
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	message, ok := v.(*[]byte)
	if !ok {
		return errors.Errorf("cannot unmarshal into %T", v)
	}
	*message = append((*message)[:0], data...)
	return nil
}

func (rawCodec) Name() string {
	return "pointdag-raw"
}
