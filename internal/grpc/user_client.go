package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"convo-service/internal/models"
)

// UserDirectory supplies profile summaries for notification and event
// enrichment. This service never mutates user accounts.
type UserDirectory interface {
	GetUserSummary(ctx context.Context, userID int) (models.UserSummary, error)
	BulkUserSummaries(ctx context.Context, ids []int) (map[int]models.UserSummary, error)
}

// UserClient wraps the user-service gRPC surface.
type UserClient struct {
	cc *grpc.ClientConn
}

// NewUserClient constructs the wrapper.
func NewUserClient(cc *grpc.ClientConn) *UserClient {
	return &UserClient{cc: cc}
}

type getUserRequest struct {
	UserID int64 `json:"user_id"`
}

type userResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type bulkUsersRequest struct {
	IDs []int64 `json:"ids"`
}

type bulkUsersResponse struct {
	Users []userResponse `json:"users"`
}

// GetUserSummary retrieves one user's profile slice.
func (u *UserClient) GetUserSummary(ctx context.Context, userID int) (models.UserSummary, error) {
	var resp userResponse
	err := u.cc.Invoke(ctx, "/user.UserInternal/GetUser",
		&getUserRequest{UserID: int64(userID)}, &resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		return models.UserSummary{}, err
	}
	if resp.ID == 0 {
		return models.UserSummary{}, errors.New("user not found")
	}
	return models.UserSummary{ID: int(resp.ID), Name: resp.Name, AvatarURL: resp.AvatarURL}, nil
}

// BulkUserSummaries fetches multiple users in one call, keyed by id.
func (u *UserClient) BulkUserSummaries(ctx context.Context, ids []int) (map[int]models.UserSummary, error) {
	if len(ids) == 0 {
		return map[int]models.UserSummary{}, nil
	}
	id64s := make([]int64, 0, len(ids))
	for _, id := range ids {
		id64s = append(id64s, int64(id))
	}

	var resp bulkUsersResponse
	err := u.cc.Invoke(ctx, "/user.UserInternal/BulkUsers",
		&bulkUsersRequest{IDs: id64s}, &resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}

	users := make(map[int]models.UserSummary, len(resp.Users))
	for _, u := range resp.Users {
		users[int(u.ID)] = models.UserSummary{ID: int(u.ID), Name: u.Name, AvatarURL: u.AvatarURL}
	}
	return users, nil
}
