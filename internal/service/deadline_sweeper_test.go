package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/models"
)

func newTestSweeper(f *attemptFixture, client *redis.Client) *DeadlineSweeper {
	sweeper := NewDeadlineSweeper(f.attempts, f.outbox, nil, client, SweeperConfig{}, zerolog.Nop())
	sweeper.now = f.clock.Now
	return sweeper
}

func TestSweeperTimesOutUnstartedInvite(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	invite := f.invite(t, f.createTest(t, singleChoiceQuestion, 10, 50), "late@example.com")
	sweeper := newTestSweeper(f, nil)

	report, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, report.TimedOut)

	f.clock.Advance(73 * time.Hour)
	report, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.TimedOut)

	attempt, err := f.service.Get(ctx, invite.AttemptID)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusTimeout, attempt.Status)
	require.Zero(t, *attempt.Score)
	require.Zero(t, *attempt.Percentage)
	require.False(t, *attempt.Passed)
	require.NotNil(t, attempt.CompletedAt)
	require.WithinDuration(t, invite.ExpiresAt, *attempt.CompletedAt, time.Millisecond)

	report, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, report.TimedOut, "timed out attempts are never swept twice")

	_, err = f.service.Start(ctx, invite.AccessToken)
	require.ErrorIs(t, err, ErrTestExpired)
}

func TestSweeperTimesOutRunningAttemptAtDeadline(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	invite := f.invite(t, f.createTest(t, singleChoiceQuestion, 10, 50), "slow@example.com")
	_, err := f.service.Start(ctx, invite.AccessToken)
	require.NoError(t, err)
	_, err = f.service.SaveAnswer(ctx, invite.AccessToken, dto.SaveAnswerRequest{QuestionID: 1, Answer: json.RawMessage(`1`)})
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	report, err := newTestSweeper(f, nil).SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.TimedOut)

	_, err = f.service.Submit(ctx, invite.AccessToken, dto.SubmitRequest{})
	require.ErrorIs(t, err, ErrTestExpired)
}

func TestSweeperSendsDeadlineWarningOnce(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	invite := f.startPresentation(t, "warn@example.com")
	sweeper := newTestSweeper(f, nil)

	report, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Warned)

	f.clock.Advance(10 * time.Minute)
	report, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Warned)

	require.Equal(t, int64(1), f.outboxCount(t, models.EventDeadlineWarning))

	attempt, err := f.service.Get(ctx, invite.AttemptID)
	require.NoError(t, err)
	require.True(t, attempt.DeadlineNotified)
	require.Equal(t, models.AttemptStatusInProgress, attempt.Status)
}

func TestSweeperEscapesSilentClients(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, singleChoiceQuestion, 30, 50)

	silent := f.invite(t, testID, "silent@example.com")
	quiet := f.invite(t, testID, "quiet@example.com")
	for _, token := range []string{silent.AccessToken, quiet.AccessToken} {
		_, err := f.service.Start(ctx, token)
		require.NoError(t, err)
	}
	_, err := f.service.Heartbeat(ctx, silent.AccessToken)
	require.NoError(t, err)

	f.clock.Advance(3 * time.Minute)
	report, err := newTestSweeper(f, nil).SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Escaped)
	require.Zero(t, report.TimedOut)

	escaped, err := f.service.Get(ctx, silent.AttemptID)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusEscaped, escaped.Status)
	require.False(t, *escaped.Passed)

	untouched, err := f.service.Get(ctx, quiet.AttemptID)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusInProgress, untouched.Status, "attempts without heartbeats wait for the deadline")
}

func TestSweeperLockAllowsOneReplicaPerInterval(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	first := newTestSweeper(f, client)
	second := newTestSweeper(f, client)

	report, err := first.SweepOnce(ctx)
	require.NoError(t, err)
	require.False(t, report.Skipped)

	report, err = second.SweepOnce(ctx)
	require.NoError(t, err)
	require.True(t, report.Skipped)

	server.FastForward(time.Minute)
	report, err = second.SweepOnce(ctx)
	require.NoError(t, err)
	require.False(t, report.Skipped)
}

func TestSweeperIgnoresHeartbeatsSentBeforeStart(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	invite := f.invite(t, f.createTest(t, singleChoiceQuestion, 30, 50), "early@example.com")

	_, err := f.service.Heartbeat(ctx, invite.AccessToken)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	_, err = f.service.Start(ctx, invite.AccessToken)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	report, err := newTestSweeper(f, nil).SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Escaped)

	attempt, err := f.service.Get(ctx, invite.AttemptID)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusInProgress, attempt.Status)
}

func TestSweeperDrainsBacklogInOnePass(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, singleChoiceQuestion, 10, 50)

	const invites = 5
	for i := 0; i < invites; i++ {
		f.invite(t, testID, fmt.Sprintf("backlog-%d@example.com", i))
	}

	sweeper := NewDeadlineSweeper(f.attempts, f.outbox, nil, nil, SweeperConfig{BatchSize: 2}, zerolog.Nop())
	sweeper.now = f.clock.Now

	f.clock.Advance(73 * time.Hour)
	report, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, invites, report.TimedOut)

	var open int64
	require.NoError(t, f.db.Model(&models.Attempt{}).Where("status IN ?", []models.AttemptStatus{models.AttemptStatusPending, models.AttemptStatusInProgress}).Count(&open).Error)
	require.Zero(t, open)
}
