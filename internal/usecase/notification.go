package usecase

import (
	"log"
	"sync"
	"time"

	"trader-backend/internal/domain"
	"trader-backend/internal/infrastructure/fcm"
)

// notifyCooldown suppresses repeats of the same alert to the same user.
const notifyCooldown = 5 * time.Minute

// TokenSource resolves a user's registered device tokens.
type TokenSource interface {
	TokensForUser(userID string) ([]string, error)
}

// FCMNotifier pushes position and strategy alerts to the user's devices.
// Delivery is fire and forget; failures are logged and swallowed so the
// trading loop never blocks on the push service.
type FCMNotifier struct {
	client *fcm.Client
	tokens TokenSource

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewFCMNotifier(client *fcm.Client, tokens TokenSource) *FCMNotifier {
	return &FCMNotifier{
		client:   client,
		tokens:   tokens,
		lastSent: make(map[string]time.Time),
	}
}

func (n *FCMNotifier) Notify(userID, title, body string) {
	if n.client == nil || !n.client.IsEnabled() {
		return
	}

	key := userID + "|" + title + "|" + body
	n.mu.Lock()
	if last, ok := n.lastSent[key]; ok && time.Since(last) < notifyCooldown {
		n.mu.Unlock()
		return
	}
	n.lastSent[key] = time.Now()
	n.mu.Unlock()

	go func() {
		tokens, err := n.tokens.TokensForUser(userID)
		if err != nil {
			log.Printf("notify %s: load tokens: %v", userID, err)
			return
		}
		if len(tokens) == 0 {
			return
		}
		if err := n.client.SendMulticast(tokens, title, body, nil); err != nil {
			log.Printf("notify %s: %v", userID, err)
		}
	}()
}

var _ domain.Notifier = (*FCMNotifier)(nil)
