package push

import (
	"context"
	"strconv"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	log "github.com/sirupsen/logrus"
)

// Payload is the push notification content for one recipient.
type Payload struct {
	Title     string
	Body      string
	ChatID    int
	MessageID int
}

// Result reports per-dispatch outcomes. Failed tokens are fed back to the
// registry so dead endpoints get deactivated.
type Result struct {
	SuccessCount int
	FailureCount int
	SentTokens   []string
	FailedTokens []string
}

// Gateway dispatches push notifications. Delivery is at-most-once per token;
// failures are reported back, never retried inline.
type Gateway interface {
	Dispatch(ctx context.Context, tokens []string, payload Payload) (Result, error)
}

// ExpoGateway sends notifications through the Expo push service.
type ExpoGateway struct {
	client *expo.PushClient
}

// NewExpoGateway builds an ExpoGateway. An empty access token is fine for
// unauthenticated projects.
func NewExpoGateway(accessToken string) *ExpoGateway {
	if accessToken == "" {
		return &ExpoGateway{client: expo.NewPushClient(nil)}
	}
	return &ExpoGateway{client: expo.NewPushClient(&expo.ClientConfig{AccessToken: accessToken})}
}

// Dispatch sends the payload to every token, one publish per token so each
// endpoint gets an individual verdict.
func (g *ExpoGateway) Dispatch(ctx context.Context, tokens []string, payload Payload) (Result, error) {
	var result Result
	for _, raw := range tokens {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		token, err := expo.NewExponentPushToken(raw)
		if err != nil {
			log.Errorf("invalid expo token: %v", err)
			result.FailureCount++
			result.FailedTokens = append(result.FailedTokens, raw)
			continue
		}

		response, err := g.client.Publish(&expo.PushMessage{
			To:       []expo.ExponentPushToken{token},
			Title:    payload.Title,
			Body:     payload.Body,
			Sound:    "default",
			Priority: expo.HighPriority,
			Data: map[string]string{
				"category":   "chat",
				"chat_id":    strconv.Itoa(payload.ChatID),
				"message_id": strconv.Itoa(payload.MessageID),
			},
		})
		if err != nil {
			log.Errorf("expo publish failed: %v", err)
			result.FailureCount++
			result.FailedTokens = append(result.FailedTokens, raw)
			continue
		}
		if err := response.ValidateResponse(); err != nil {
			log.Errorf("expo rejected token: %v", err)
			result.FailureCount++
			result.FailedTokens = append(result.FailedTokens, raw)
			continue
		}

		result.SuccessCount++
		result.SentTokens = append(result.SentTokens, raw)
	}
	return result, nil
}
