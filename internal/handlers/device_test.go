package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"convo-service/internal/mocks"
)

func setupDeviceRouter(handler *DeviceHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/devices/tokens", handler.RegisterToken)
	r.DELETE("/devices/tokens", handler.RemoveToken)
	return r
}

func TestRegisterTokenSuccess(t *testing.T) {
	tokens := new(mocks.TokenRepositoryMock)
	router := setupDeviceRouter(NewDeviceHandler(tokens))

	tokens.On("Register", mock.Anything, 1, "ExponentPushToken[abc]", "ios").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/devices/tokens",
		bytes.NewBufferString(`{"token":"ExponentPushToken[abc]","platform":"ios"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	tokens.AssertExpectations(t)
}

func TestRegisterTokenBadFormat(t *testing.T) {
	tokens := new(mocks.TokenRepositoryMock)
	router := setupDeviceRouter(NewDeviceHandler(tokens))

	req := httptest.NewRequest(http.MethodPost, "/devices/tokens",
		bytes.NewBufferString(`{"token":"not-an-expo-token"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	tokens.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoveTokenSuccess(t *testing.T) {
	tokens := new(mocks.TokenRepositoryMock)
	router := setupDeviceRouter(NewDeviceHandler(tokens))

	tokens.On("Deactivate", mock.Anything, 1, "ExponentPushToken[abc]").Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/devices/tokens",
		bytes.NewBufferString(`{"token":"ExponentPushToken[abc]"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	tokens.AssertExpectations(t)
}
