package delivery

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"convo-service/internal/models"
	"convo-service/internal/observability"
	"convo-service/internal/push"
	"convo-service/internal/repositories"
)

// Broadcaster is the real-time transport capability the engine needs.
type Broadcaster interface {
	BroadcastToChat(chatID int, event models.ChatEvent)
	SendToUser(userID int, event models.ChatEvent)
}

// Presence probes whether a user currently holds a live subscription to
// their personal room. Best effort: any error means "presumed offline".
type Presence interface {
	IsOnline(ctx context.Context, userID int) (bool, error)
}

// ProbeTimeout bounds the presence probe so a transport stall can never
// block a send.
const ProbeTimeout = 2 * time.Second

// PushContentLimit caps the content carried in a push payload.
const PushContentLimit = 100

const dispatchTimeout = 15 * time.Second

type pushTask struct {
	userID  int
	payload push.Payload
}

// Engine fans a persisted message out to the chat's real-time room and, when
// the recipient is offline, to their push endpoints. Everything here is a
// best-effort side effect: failures are logged and counted, never surfaced
// to the sender.
type Engine struct {
	broadcaster Broadcaster
	presence    Presence
	tokens      repositories.TokenRepository
	gateway     push.Gateway

	tasks chan pushTask
	wg    sync.WaitGroup
}

// NewEngine builds the engine and starts its bounded push worker pool.
func NewEngine(broadcaster Broadcaster, presence Presence, tokens repositories.TokenRepository, gateway push.Gateway, workers, queueSize int) *Engine {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	e := &Engine{
		broadcaster: broadcaster,
		presence:    presence,
		tokens:      tokens,
		gateway:     gateway,
		tasks:       make(chan pushTask, queueSize),
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Close drains the queue and stops the workers.
func (e *Engine) Close() {
	close(e.tasks)
	e.wg.Wait()
}

// MessageSent runs the post-persistence fan-out: synchronous broadcast to
// the chat room, presence probe, and async push when the recipient is
// presumed offline.
func (e *Engine) MessageSent(chat models.Chat, msg models.Message, sender models.UserSummary) {
	e.broadcaster.BroadcastToChat(chat.ID, models.ChatEvent{
		Type:    models.EventMessage,
		ChatID:  chat.ID,
		Message: &msg,
		Sender:  &sender,
	})

	recipient := chat.OtherParticipant(msg.SenderID)
	if e.probeOnline(recipient) {
		return
	}

	e.enqueue(pushTask{
		userID: recipient,
		payload: push.Payload{
			Title:     sender.Name,
			Body:      Truncate(msg.Preview(), PushContentLimit),
			ChatID:    chat.ID,
			MessageID: msg.ID,
		},
	})
}

// NotifyUser sends a real-time event to the user's personal room and a push
// notification regardless of presence (chat request and accept/reject flow).
func (e *Engine) NotifyUser(userID int, event models.ChatEvent, payload push.Payload) {
	e.broadcaster.SendToUser(userID, event)
	e.enqueue(pushTask{userID: userID, payload: payload})
}

func (e *Engine) probeOnline(userID int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), ProbeTimeout)
	defer cancel()

	online, err := e.presence.IsOnline(ctx, userID)
	if err != nil {
		log.Warnf("presence probe failed for user %d, presuming offline: %v", userID, err)
		observability.IncProbeFailure()
		return false
	}
	return online
}

func (e *Engine) enqueue(t pushTask) {
	select {
	case e.tasks <- t:
		observability.SetPushQueueDepth(len(e.tasks))
	default:
		log.Warnf("push queue full, dropping notification for user %d", t.userID)
		observability.IncPushDropped()
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for t := range e.tasks {
		e.dispatch(t)
		observability.SetPushQueueDepth(len(e.tasks))
	}
}

func (e *Engine) dispatch(t pushTask) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	registered, err := e.tokens.ActiveTokens(ctx, t.userID)
	if err != nil {
		log.Errorf("token lookup failed for user %d: %v", t.userID, err)
		observability.IncPushDispatch("error")
		return
	}
	if len(registered) == 0 {
		observability.IncPushDispatch("no_tokens")
		return
	}

	tokens := make([]string, 0, len(registered))
	for _, reg := range registered {
		tokens = append(tokens, reg.Token)
	}

	result, err := e.gateway.Dispatch(ctx, tokens, t.payload)
	if err != nil {
		log.Errorf("push dispatch failed for user %d: %v", t.userID, err)
		observability.IncPushDispatch("error")
		return
	}

	if err := e.tokens.DeactivateTokens(ctx, result.FailedTokens); err != nil {
		log.Errorf("deactivating dead tokens failed: %v", err)
	}
	if err := e.tokens.TouchTokens(ctx, result.SentTokens); err != nil {
		log.Errorf("touching delivered tokens failed: %v", err)
	}

	if result.FailureCount > 0 {
		observability.IncPushDispatch("partial")
		return
	}
	observability.IncPushDispatch("ok")
}

// Truncate shortens s to at most limit runes.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
