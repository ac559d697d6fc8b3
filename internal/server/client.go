package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a running calculator server.
type Client struct {
	evaluate *connect.Client[structpb.Struct, structpb.Struct]
	check    *connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient creates a client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		evaluate: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+EvaluateProcedure, opts...),
		check:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+CheckProcedure, opts...),
	}
}

// Evaluate runs source remotely. An empty session starts a new one; its id
// is returned in the result.
func (c *Client) Evaluate(ctx context.Context, source, session string) (*EvalResult, error) {
	resp, err := c.evaluate.CallUnary(ctx, connect.NewRequest(evalRequest(source, session)))
	if err != nil {
		return nil, err
	}
	return evalResultFrom(resp.Msg), nil
}

// Check compiles source remotely.
func (c *Client) Check(ctx context.Context, source string) (*CheckResult, error) {
	resp, err := c.check.CallUnary(ctx, connect.NewRequest(evalRequest(source, "")))
	if err != nil {
		return nil, err
	}
	return checkResultFrom(resp.Msg), nil
}
