package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
)

// AuthClient wraps the auth-service gRPC surface.
type AuthClient struct {
	cc *grpc.ClientConn
}

// NewAuthClient constructs the wrapper.
func NewAuthClient(cc *grpc.ClientConn) *AuthClient {
	return &AuthClient{cc: cc}
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type validateTokenResponse struct {
	Valid  bool  `json:"valid"`
	UserID int64 `json:"user_id"`
}

// ValidateToken verifies the JWT and returns the authenticated user id.
func (a *AuthClient) ValidateToken(ctx context.Context, token string) (int, error) {
	var resp validateTokenResponse
	err := a.cc.Invoke(ctx, "/auth.AuthService/ValidateToken",
		&validateTokenRequest{Token: token}, &resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		return 0, err
	}
	if !resp.Valid || resp.UserID == 0 {
		return 0, errors.New("invalid token")
	}
	return int(resp.UserID), nil
}
