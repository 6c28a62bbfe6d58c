package grpcsvc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/cardapio/internal/transport/dto"
)

// ServiceName — полное имя gRPC-сервиса заказов.
const ServiceName = "cardapio.v1.OrderService"

// Полные имена методов.
const (
	MethodCreateOrder        = "/" + ServiceName + "/CreateOrder"
	MethodGetOrder           = "/" + ServiceName + "/GetOrder"
	MethodListOrders         = "/" + ServiceName + "/ListOrders"
	MethodListOrdersByClient = "/" + ServiceName + "/ListOrdersByClient"
	MethodTransitionStatus   = "/" + ServiceName + "/TransitionStatus"
	MethodMergeItem          = "/" + ServiceName + "/MergeItem"
	MethodDeleteOrder        = "/" + ServiceName + "/DeleteOrder"
	MethodGetOrderTimeline   = "/" + ServiceName + "/GetOrderTimeline"
)

// OrderServiceServer — серверная сторона cardapio.v1.OrderService.
// Запросы и ответы — google.protobuf.Struct с теми же JSON-документами, что и в REST.
type OrderServiceServer interface {
	CreateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOrders(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOrdersByClient(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MergeItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrderTimeline(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(OrderServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(OrderServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OrderServiceDesc описывает сервис для grpc.Server без сгенерированных заглушек.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler(MethodCreateOrder, OrderServiceServer.CreateOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(MethodGetOrder, OrderServiceServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler(MethodListOrders, OrderServiceServer.ListOrders)},
		{MethodName: "ListOrdersByClient", Handler: unaryHandler(MethodListOrdersByClient, OrderServiceServer.ListOrdersByClient)},
		{MethodName: "TransitionStatus", Handler: unaryHandler(MethodTransitionStatus, OrderServiceServer.TransitionStatus)},
		{MethodName: "MergeItem", Handler: unaryHandler(MethodMergeItem, OrderServiceServer.MergeItem)},
		{MethodName: "DeleteOrder", Handler: unaryHandler(MethodDeleteOrder, OrderServiceServer.DeleteOrder)},
		{MethodName: "GetOrderTimeline", Handler: unaryHandler(MethodGetOrderTimeline, OrderServiceServer.GetOrderTimeline)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cardapio/v1/order_service.proto",
}

// RegisterOrderServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

// OrderServiceClient — типизированный клиент поверх Struct-сообщений.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderServiceClient создаёт клиента для соединения cc.
func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

// CreateOrder вызывает CreateOrder.
func (c *OrderServiceClient) CreateOrder(ctx context.Context, req dto.CreateOrderRequest, opts ...grpc.CallOption) (dto.Order, error) {
	var out dto.Order
	err := c.invoke(ctx, MethodCreateOrder, req, &out, opts...)
	return out, err
}

// GetOrder вызывает GetOrder.
func (c *OrderServiceClient) GetOrder(ctx context.Context, orderID string, opts ...grpc.CallOption) (dto.Order, error) {
	var out dto.Order
	err := c.invoke(ctx, MethodGetOrder, dto.OrderRef{OrderID: orderID}, &out, opts...)
	return out, err
}

// ListOrders вызывает ListOrders.
func (c *OrderServiceClient) ListOrders(ctx context.Context, limit int, opts ...grpc.CallOption) ([]dto.Order, error) {
	var out dto.OrderList
	err := c.invoke(ctx, MethodListOrders, dto.ListRequest{Limit: limit}, &out, opts...)
	return out.Orders, err
}

// ListOrdersByClient вызывает ListOrdersByClient.
func (c *OrderServiceClient) ListOrdersByClient(ctx context.Context, clientID string, limit int, opts ...grpc.CallOption) ([]dto.Order, error) {
	var out dto.OrderList
	err := c.invoke(ctx, MethodListOrdersByClient, dto.ListRequest{ClientID: clientID, Limit: limit}, &out, opts...)
	return out.Orders, err
}

// TransitionStatus вызывает TransitionStatus.
func (c *OrderServiceClient) TransitionStatus(ctx context.Context, orderID, status string, opts ...grpc.CallOption) (dto.Order, error) {
	var out dto.Order
	err := c.invoke(ctx, MethodTransitionStatus, dto.StatusRequest{OrderID: orderID, Status: status}, &out, opts...)
	return out, err
}

// MergeItem вызывает MergeItem.
func (c *OrderServiceClient) MergeItem(ctx context.Context, req dto.MergeItemRequest, opts ...grpc.CallOption) (dto.Line, error) {
	var out dto.Line
	err := c.invoke(ctx, MethodMergeItem, req, &out, opts...)
	return out, err
}

// DeleteOrder вызывает DeleteOrder.
func (c *OrderServiceClient) DeleteOrder(ctx context.Context, orderID string, opts ...grpc.CallOption) error {
	return c.invoke(ctx, MethodDeleteOrder, dto.OrderRef{OrderID: orderID}, nil, opts...)
}

// GetOrderTimeline вызывает GetOrderTimeline.
func (c *OrderServiceClient) GetOrderTimeline(ctx context.Context, orderID string, opts ...grpc.CallOption) (dto.Timeline, error) {
	var out dto.Timeline
	err := c.invoke(ctx, MethodGetOrderTimeline, dto.OrderRef{OrderID: orderID}, &out, opts...)
	return out, err
}

func (c *OrderServiceClient) invoke(ctx context.Context, method string, req, out any, opts ...grpc.CallOption) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, resp, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return fromStruct(resp, out)
}

// toStruct кодирует значение в Struct через его JSON-представление.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return out, nil
}

// fromStruct декодирует Struct в dst.
func fromStruct(in *structpb.Struct, dst any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
