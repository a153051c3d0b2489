package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Sermonario/app/models"
	"github.com/ManuelReschke/Sermonario/internal/pkg/webhook"
	"github.com/ManuelReschke/Sermonario/internal/pkg/webhook/webhooktest"
)

type plainHasher struct{}

func (plainHasher) Hash(s string) (string, error) { return s, nil }

type fakeArchiver struct {
	ids []uint
	err error
}

func (a *fakeArchiver) Archive(_ context.Context, ev *models.WebhookEvent) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.ids = append(a.ids, ev.ID)
	return "key", nil
}

func newFixture(t *testing.T) (*webhook.Service, *webhooktest.Repository) {
	t.Helper()
	repo := webhooktest.New()
	return webhook.NewService(repo, webhook.WithHasher(plainHasher{})), repo
}

// failedEvent records a delivery whose activation fails, leaving it unfinalized.
func failedEvent(t *testing.T, svc *webhook.Service, repo *webhooktest.Repository) uint {
	t.Helper()
	repo.FailOn("ActivateSubscription", errors.New("timeout"))
	res, err := svc.Process(context.Background(), webhook.ProcessInput{
		Body:     []byte(`{"Email":"a@x.com","Nome":"Ana"}`),
		Provider: webhook.SourceGGCheckout,
	})
	require.Error(t, err)
	repo.FailOn("ActivateSubscription", nil)
	return res.EventID
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Schedule = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.StaleAfter = time.Millisecond
	assert.Error(t, cfg.Validate())
}

func TestReplayStale(t *testing.T) {
	svc, repo := newFixture(t)
	id := failedEvent(t, svc, repo)

	s, err := New(svc, nil, DefaultConfig())
	require.NoError(t, err)

	// Too recent to be considered stale.
	replayed, failed, err := s.ReplayStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, replayed)
	assert.Zero(t, failed)

	repo.SetEventCreatedAt(id, time.Now().Add(-time.Hour))
	replayed, failed, err = s.ReplayStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)
	assert.Zero(t, failed)

	ev, err := repo.GetWebhookEvent(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ev.Processed)
	assert.Len(t, repo.Subscriptions(), 1)
	assert.Len(t, repo.Users(), 1)
}

func TestReplayStale_RespectsMaxAttempts(t *testing.T) {
	svc, repo := newFixture(t)
	id := failedEvent(t, svc, repo)
	repo.SetEventCreatedAt(id, time.Now().Add(-time.Hour))

	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	s, err := New(svc, nil, cfg)
	require.NoError(t, err)

	repo.FailOn("ActivateSubscription", errors.New("still down"))
	_, failed, err := s.ReplayStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	// Two attempts used; the event is no longer eligible.
	replayed, failed, err := s.ReplayStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, replayed)
	assert.Zero(t, failed)
}

func TestArchiveFinalized(t *testing.T) {
	svc, repo := newFixture(t)
	_, err := svc.Process(context.Background(), webhook.ProcessInput{Body: []byte(`{"status":"pending","email":"a@x.com"}`)})
	require.NoError(t, err)
	failedEvent(t, svc, repo)

	archiver := &fakeArchiver{}
	s, err := New(svc, archiver, DefaultConfig())
	require.NoError(t, err)

	n, err := s.ArchiveFinalized(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "unfinalized events are not archived")

	events := repo.Events()
	assert.NotNil(t, events[0].ArchivedAt)
	assert.Nil(t, events[1].ArchivedAt)

	n, err = s.ArchiveFinalized(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArchiveFinalized_StopsOnError(t *testing.T) {
	svc, _ := newFixture(t)
	_, err := svc.Process(context.Background(), webhook.ProcessInput{Body: []byte(`{"status":"pending","email":"a@x.com"}`)})
	require.NoError(t, err)

	s, err := New(svc, &fakeArchiver{err: errors.New("s3 down")}, DefaultConfig())
	require.NoError(t, err)
	n, err := s.ArchiveFinalized(context.Background())
	assert.ErrorContains(t, err, "s3 down")
	assert.Zero(t, n)
}

func TestStart_InvalidSchedule(t *testing.T) {
	svc, _ := newFixture(t)
	cfg := DefaultConfig()
	cfg.Schedule = "not a schedule"
	s, err := New(svc, nil, cfg)
	require.NoError(t, err)
	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	svc, _ := newFixture(t)
	s, err := New(svc, &fakeArchiver{}, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	s.Stop()
}
