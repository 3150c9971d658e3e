package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"convo-service/internal/models"
)

// ConfessionDirectory resolves confession summaries for shared-confession
// messages. Confessions are owned by another service; this is read-only.
type ConfessionDirectory interface {
	GetConfessionSummary(ctx context.Context, confessionID int) (models.ConfessionSummary, error)
}

// ConfessionClient wraps the confession-service gRPC surface.
type ConfessionClient struct {
	cc *grpc.ClientConn
}

// NewConfessionClient constructs the wrapper.
func NewConfessionClient(cc *grpc.ClientConn) *ConfessionClient {
	return &ConfessionClient{cc: cc}
}

type getConfessionRequest struct {
	ConfessionID int64 `json:"confession_id"`
}

type confessionResponse struct {
	ID           int64  `json:"id"`
	Content      string `json:"content"`
	Author       string `json:"author"`
	LikeCount    int    `json:"like_count"`
	CommentCount int    `json:"comment_count"`
}

// GetConfessionSummary retrieves the referenced confession's summary.
func (c *ConfessionClient) GetConfessionSummary(ctx context.Context, confessionID int) (models.ConfessionSummary, error) {
	var resp confessionResponse
	err := c.cc.Invoke(ctx, "/confession.ConfessionInternal/GetConfession",
		&getConfessionRequest{ConfessionID: int64(confessionID)}, &resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		return models.ConfessionSummary{}, err
	}
	if resp.ID == 0 {
		return models.ConfessionSummary{}, errors.New("confession not found")
	}
	return models.ConfessionSummary{
		ID:           int(resp.ID),
		Content:      resp.Content,
		Author:       resp.Author,
		LikeCount:    resp.LikeCount,
		CommentCount: resp.CommentCount,
	}, nil
}
