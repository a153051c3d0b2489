package mail

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Sermonario/app/models"
)

var (
	// ErrQueueFull is returned when the notifier cannot accept more messages.
	ErrQueueFull = errors.New("mail queue full")
	// ErrStopped is returned for notices queued after Stop.
	ErrStopped = errors.New("mail notifier stopped")
)

const accountCreatedSubject = "Sua conta foi criada"

type notice struct {
	to   string
	name string
}

// AccountNotifier emails users whose account was created by a purchase,
// asking them to set a password. Messages are sent by a background worker.
type AccountNotifier struct {
	send     func(to, subject, body string) error
	loginURL string
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	queue   chan notice
	stopped bool
}

// NewAccountNotifier creates a notifier that links to loginURL.
func NewAccountNotifier(loginURL string) *AccountNotifier {
	return &AccountNotifier{
		send:     SendMail,
		loginURL: loginURL,
		queue:    make(chan notice, 256),
		done:     make(chan struct{}),
	}
}

// Start runs the delivery worker.
func (n *AccountNotifier) Start() {
	go func() {
		defer close(n.done)
		for msg := range n.queue {
			if err := n.send(msg.to, accountCreatedSubject, n.body(msg.name)); err != nil {
				log.Warnf("[Mail] Account notice to %s failed: %v", msg.to, err)
			}
		}
	}()
}

// Stop drains queued messages and waits for the worker.
func (n *AccountNotifier) Stop() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.stopped = true
		close(n.queue)
		n.mu.Unlock()
	})
	<-n.done
}

// UserCreated queues a notice for a user that still has to set a password.
func (n *AccountNotifier) UserCreated(_ context.Context, user *models.User) error {
	if user == nil || !user.NeedsPasswordSet {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.stopped {
		return ErrStopped
	}
	select {
	case n.queue <- notice{to: user.Email, name: user.Name}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (n *AccountNotifier) body(name string) string {
	return fmt.Sprintf(
		"<p>Olá %s,</p><p>Sua compra foi confirmada e uma conta foi criada para você.</p>"+
			"<p>Defina sua senha em <a href=\"%s\">%s</a>.</p>",
		html.EscapeString(name), html.EscapeString(n.loginURL), html.EscapeString(n.loginURL),
	)
}
