package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/cardapio/internal/domain"
	"github.com/vladislavdragonenkov/cardapio/internal/service/ordering"
	"github.com/vladislavdragonenkov/cardapio/internal/transport/dto"
)

// Operations — операции ядра, которые публикует gRPC API.
type Operations interface {
	CreateOrder(ctx context.Context, cmd ordering.CreateOrderCommand) (domain.OrderView, error)
	GetOrder(ctx context.Context, orderID string) (domain.OrderView, error)
	ListOrders(ctx context.Context, limit int) ([]domain.OrderView, error)
	ListOrdersByClient(ctx context.Context, clientID string, limit int) ([]domain.OrderView, error)
	TransitionStatus(ctx context.Context, orderID string, target domain.OrderStatus) (domain.OrderView, error)
	MergeItem(ctx context.Context, cmd ordering.MergeItemCommand) (domain.OrderLine, error)
	DeleteOrder(ctx context.Context, orderID string) error
	OrderTimeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

// OrderService реализует gRPC API поверх сервиса приёма заказов.
type OrderService struct {
	ops      Operations
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry
	now      func() time.Time
}

const defaultListOrdersLimit = 100

// NewOrderService конструирует сервис с зависимостями. idemRepo может быть nil.
func NewOrderService(ops Operations, idemRepo domain.IdempotencyRepository, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	return &OrderService{
		ops:      ops,
		idemRepo: idemRepo,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder создаёт заказ с резервированием остатков.
func (s *OrderService) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.withIdempotency(ctx, MethodCreateOrder, req, func(ctx context.Context) (*structpb.Struct, error) {
		var in dto.CreateOrderRequest
		if err := decodeRequest(req, &in); err != nil {
			return nil, err
		}
		view, err := s.ops.CreateOrder(ctx, in.Command())
		if err != nil {
			return nil, s.toStatus(err, MethodCreateOrder)
		}
		return encodeResponse(dto.FromView(view))
	})
}

// GetOrder возвращает собранный заказ.
func (s *OrderService) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.OrderRef
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}
	view, err := s.ops.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, s.toStatus(err, MethodGetOrder)
	}
	return encodeResponse(dto.FromView(view))
}

// ListOrders возвращает последние заказы.
func (s *OrderService) ListOrders(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.ListRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}
	views, err := s.ops.ListOrders(ctx, listLimit(in.Limit))
	if err != nil {
		return nil, s.toStatus(err, MethodListOrders)
	}
	return encodeResponse(dto.FromViews(views))
}

// ListOrdersByClient возвращает заказы клиента.
func (s *OrderService) ListOrdersByClient(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.ListRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}
	views, err := s.ops.ListOrdersByClient(ctx, in.ClientID, listLimit(in.Limit))
	if err != nil {
		return nil, s.toStatus(err, MethodListOrdersByClient)
	}
	return encodeResponse(dto.FromViews(views))
}

// TransitionStatus переводит заказ в новый статус.
func (s *OrderService) TransitionStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.StatusRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}
	target, err := domain.ParseOrderStatus(in.Status)
	if err != nil {
		return nil, s.toStatus(err, MethodTransitionStatus)
	}
	view, err := s.ops.TransitionStatus(ctx, in.OrderID, target)
	if err != nil {
		return nil, s.toStatus(err, MethodTransitionStatus)
	}
	return encodeResponse(dto.FromView(view))
}

// MergeItem добавляет товар в заказ в работе.
func (s *OrderService) MergeItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.withIdempotency(ctx, MethodMergeItem, req, func(ctx context.Context) (*structpb.Struct, error) {
		var in dto.MergeItemRequest
		if err := decodeRequest(req, &in); err != nil {
			return nil, err
		}
		line, err := s.ops.MergeItem(ctx, in.Command(""))
		if err != nil {
			return nil, s.toStatus(err, MethodMergeItem)
		}
		return encodeResponse(dto.FromLine(line))
	})
}

// DeleteOrder удаляет заказ и возвращает остатки.
func (s *OrderService) DeleteOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.OrderRef
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}
	if err := s.ops.DeleteOrder(ctx, in.OrderID); err != nil {
		return nil, s.toStatus(err, MethodDeleteOrder)
	}
	return &structpb.Struct{}, nil
}

// GetOrderTimeline возвращает историю заказа.
func (s *OrderService) GetOrderTimeline(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.OrderRef
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}
	events, err := s.ops.OrderTimeline(ctx, in.OrderID)
	if err != nil {
		return nil, s.toStatus(err, MethodGetOrderTimeline)
	}
	return encodeResponse(dto.FromTimeline(in.OrderID, events))
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListOrdersLimit
	}
	return limit
}

func decodeRequest(req *structpb.Struct, dst any) error {
	if req == nil {
		return status.Error(codes.InvalidArgument, "request is required")
	}
	if err := fromStruct(req, dst); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func encodeResponse(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// toStatus переводит доменную ошибку в gRPC-статус.
func (s *OrderService) toStatus(err error, method string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}

	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case domain.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.KindInvalidTransition:
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.KindConflict:
		if errors.Is(err, domain.ErrConcurrentUpdate) || domain.IsVersionConflict(err) {
			return status.Error(codes.Aborted, err.Error())
		}
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		s.logger.WithError(err).WithField("method", method).Error("order operation failed")
		return status.Error(codes.Internal, "internal error")
	}
}

const (
	idempotencyKeyHeader = "idempotency-key"
	idempotencyTTL       = 24 * time.Hour
)

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// withIdempotency выполняет handler не более одного раза на idempotency-key.
// Без ключа в metadata запрос обрабатывается как обычно.
func (s *OrderService) withIdempotency(
	ctx context.Context,
	method string,
	req *structpb.Struct,
	handler func(context.Context) (*structpb.Struct, error),
) (*structpb.Struct, error) {
	if s.idemRepo == nil {
		return handler(ctx)
	}

	idemKey, ok := readIdempotencyKey(ctx)
	if !ok {
		return handler(ctx)
	}

	reqHash, err := buildIdempotencyRequestHash(method, req)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to build idempotency request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, err := s.idemRepo.CreateProcessing(ctx, idemKey, reqHash, s.now().Add(idempotencyTTL))
	if err != nil {
		return s.replayIdempotency(err, record)
	}

	resp, runErr := handler(ctx)
	storeCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		if transientCode(status.Code(runErr)) {
			s.releaseIdempotencyKey(storeCtx, idemKey)
		} else {
			s.cacheIdempotencyFailure(storeCtx, idemKey, runErr)
		}
		return nil, runErr
	}

	if cacheErr := s.cacheIdempotencySuccess(storeCtx, idemKey, resp); cacheErr != nil {
		s.logger.WithError(cacheErr).WithField("idempotency_key", idemKey).Warn("failed to store idempotent success response")
	}
	return resp, nil
}

func (s *OrderService) replayIdempotency(createErr error, record domain.IdempotencyRecord) (*structpb.Struct, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			resp := &structpb.Struct{}
			if len(record.ResponseBody) == 0 {
				return resp, nil
			}
			if err := protojson.Unmarshal(record.ResponseBody, resp); err != nil {
				s.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to decode cached idempotency response")
				return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
			}
			return resp, nil
		case domain.IdempotencyStatusProcessing:
			return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
		case domain.IdempotencyStatusFailed:
			return nil, decodeIdempotencyFailure(record)
		default:
			return nil, status.Error(codes.Internal, "unknown idempotency record status")
		}
	default:
		s.logger.WithError(createErr).Warn("failed to create idempotency record")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}
}

func (s *OrderService) cacheIdempotencySuccess(ctx context.Context, key string, resp proto.Message) error {
	if resp == nil {
		return s.idemRepo.MarkDone(ctx, key, nil, int(codes.OK))
	}

	data, err := protojson.Marshal(resp)
	if err != nil {
		return err
	}
	return s.idemRepo.MarkDone(ctx, key, data, int(codes.OK))
}

// transientCode — исход, который не фиксируется за ключом: повтор с тем же ключом
// выполнит запрос заново.
func transientCode(code codes.Code) bool {
	switch code {
	case codes.Internal, codes.Unknown, codes.Aborted, codes.Unavailable,
		codes.DeadlineExceeded, codes.Canceled, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func (s *OrderService) releaseIdempotencyKey(ctx context.Context, key string) {
	if err := s.idemRepo.Release(ctx, key); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to release idempotency key")
	}
}

func (s *OrderService) cacheIdempotencyFailure(ctx context.Context, key string, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}

	payload, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code), //nolint:gosec // codes.Code is a bounded enum value.
		Message: st.Message(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotency failure payload")
		payload = nil
	}

	if err := s.idemRepo.MarkFailed(ctx, key, payload, int(code)); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency failure response")
	}
}

func decodeIdempotencyFailure(record domain.IdempotencyRecord) error {
	if len(record.ResponseBody) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(record.ResponseBody, &payload); err == nil {
			if code, ok := grpcCodeFromInt32(payload.Code); ok {
				if code == codes.OK {
					code = codes.Internal
				}
				if payload.Message == "" {
					payload.Message = "previous request with the same idempotency key failed"
				}
				return status.Error(code, payload.Message)
			}
		}
	}

	if record.HTTPStatus > 0 {
		if code, ok := grpcCodeFromInt(record.HTTPStatus); ok && code != codes.OK {
			return status.Error(code, "previous request with the same idempotency key failed")
		}
	}

	return status.Error(codes.Internal, "previous request with the same idempotency key failed")
}

func grpcCodeFromInt32(value int32) (codes.Code, bool) {
	if value < int32(codes.OK) || value > int32(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true
}

func grpcCodeFromInt(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true
}

func readIdempotencyKey(ctx context.Context) (string, bool) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(idempotencyKeyHeader)
		if len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0]), true
		}
	}

	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		values := md.Get(idempotencyKeyHeader)
		if len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0]), true
		}
	}

	return "", false
}

func buildIdempotencyRequestHash(method string, req proto.Message) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", err
	}

	payload := make([]byte, 0, len(method)+1+len(data))
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, data...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

var (
	_ OrderServiceServer = (*OrderService)(nil)
	_ Operations         = (*ordering.Service)(nil)
)
