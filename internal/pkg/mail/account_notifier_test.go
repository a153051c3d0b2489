package mail

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Sermonario/app/models"
)

func TestAccountNotifier_SendsForNewAccounts(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	n := NewAccountNotifier("https://app.example.com/login")
	n.send = func(to, subject, body string) error {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, accountCreatedSubject, subject)
		assert.Contains(t, body, "https://app.example.com/login")
		sent = append(sent, to+"|"+body)
		return nil
	}
	n.Start()

	ctx := context.Background()
	require.NoError(t, n.UserCreated(ctx, &models.User{Email: "a@x.com", Name: "<Ana>", NeedsPasswordSet: true}))
	require.NoError(t, n.UserCreated(ctx, &models.User{Email: "b@x.com", NeedsPasswordSet: false}))
	require.NoError(t, n.UserCreated(ctx, nil))
	n.Stop()

	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0], "a@x.com|"))
	assert.Contains(t, sent[0], "&lt;Ana&gt;")
}

func TestAccountNotifier_QueueFull(t *testing.T) {
	n := NewAccountNotifier("")
	n.queue = make(chan notice, 1)

	user := &models.User{Email: "q@x.com", NeedsPasswordSet: true}
	require.NoError(t, n.UserCreated(context.Background(), user))
	assert.ErrorIs(t, n.UserCreated(context.Background(), user), ErrQueueFull)
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("from@x.com", "to@x.com", "Hi", "<p>x</p>"))
	assert.Contains(t, msg, "From: from@x.com\r\n")
	assert.Contains(t, msg, "To: to@x.com\r\n")
	assert.Contains(t, msg, "Subject: Hi\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\n<p>x</p>"))
}

func TestAccountNotifier_AfterStop(t *testing.T) {
	n := NewAccountNotifier("")
	n.send = func(string, string, string) error { return nil }
	n.Start()
	n.Stop()
	n.Stop()

	user := &models.User{Email: "late@x.com", NeedsPasswordSet: true}
	assert.NotPanics(t, func() {
		assert.ErrorIs(t, n.UserCreated(context.Background(), user), ErrStopped)
	})
}

func TestAccountNotifier_ConcurrentStop(t *testing.T) {
	n := NewAccountNotifier("")
	n.send = func(string, string, string) error { return nil }
	n.Start()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := n.UserCreated(context.Background(), &models.User{Email: "c@x.com", NeedsPasswordSet: true})
			if err != nil {
				assert.ErrorIs(t, err, ErrStopped)
			}
		}()
	}
	n.Stop()
	wg.Wait()
}
