package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls vetclinic.v1.AvailabilityService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetAvailability(ctx context.Context, req map[string]any) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetAvailability, req)
}

func (c *Client) CheckSlot(ctx context.Context, req map[string]any) (*structpb.Struct, error) {
	return c.invoke(ctx, methodCheckSlot, req)
}

// BookAppointment sends idempotencyKey as metadata when it is not empty.
func (c *Client) BookAppointment(ctx context.Context, req map[string]any, idempotencyKey string) (*structpb.Struct, error) {
	if idempotencyKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "idempotency-key", idempotencyKey)
	}
	return c.invoke(ctx, methodBookAppointment, req)
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
