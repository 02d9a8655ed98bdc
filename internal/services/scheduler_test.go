package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"pictopercept/internal/models"
	"pictopercept/internal/sink"
	"pictopercept/internal/survey"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReaperFinalizesAbandonedSessions(t *testing.T) {
	mem := sink.NewMemorySink()
	svc, clock := newService(t, mem, 50)

	sess, err := svc.Start(context.Background(), "resp_01")
	require.NoError(t, err)
	_, err = svc.Submit(sess, 0, survey.ChoiceSecond)
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := NewReaper(zap.NewNop(), svc, 5*time.Millisecond, time.Minute, time.Hour).Start(ctx)

	assert.Eventually(t, func() bool {
		return sess.State.Status() == models.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
	assert.Len(t, mem.Records(), 2)
}
