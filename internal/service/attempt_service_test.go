package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/skilltest-api/internal/database"
	"github.com/noah-isme/skilltest-api/internal/dto"
	"github.com/noah-isme/skilltest-api/internal/models"
	"github.com/noah-isme/skilltest-api/internal/queue"
	"github.com/noah-isme/skilltest-api/internal/repository"
)

const hookURL = "https://hooks.example.test/events"

type serviceClock struct {
	mu  sync.Mutex
	now time.Time
}

func newServiceClock() *serviceClock {
	return &serviceClock{now: time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *serviceClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *serviceClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type attemptFixture struct {
	db       *gorm.DB
	clock    *serviceClock
	attempts repository.AttemptRepository
	outbox   NotificationOutbox
	tests    TestService
	service  AttemptService
	storage  *storageStub
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Test{}, &models.Attempt{}, &models.AnswerLog{},
		&models.OutboxEntry{}, &models.AIJob{},
	))
	return db
}

func setupAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()

	db := setupServiceDB(t)
	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.Nop()
	clock := newServiceClock()

	attemptRepo := repository.NewAttemptRepository(db)
	testRepo := repository.NewTestRepository(db)
	store := queue.NewStore[models.OutboxEntry](db, NotificationQueueName, queue.Options{Now: clock.Now})
	outbox := NewNotificationOutbox(store, nil, NotificationOutboxConfig{TargetURL: hookURL}, validate, logger)
	storage := &storageStub{}

	svc := NewAttemptService(
		attemptRepo,
		testRepo,
		outbox,
		NewAttemptFeed(nil, "", logger),
		NewUploadService(storage, 5, logger),
		AttemptServiceConfig{},
		validate,
		logger,
	)
	if concrete, ok := svc.(*attemptService); ok {
		concrete.now = clock.Now
	}

	return &attemptFixture{
		db:       db,
		clock:    clock,
		attempts: attemptRepo,
		outbox:   outbox,
		tests:    NewTestService(testRepo, validate, logger),
		service:  svc,
		storage:  storage,
	}
}

func (f *attemptFixture) createTest(t *testing.T, questions string, duration int, passing float64) string {
	t.Helper()
	test, err := f.tests.Create(context.Background(), dto.TestCreateRequest{
		Title:           "Go fundamentals",
		Questions:       json.RawMessage(questions),
		DurationMinutes: duration,
		PassingScore:    &passing,
	}, "staff-1")
	require.NoError(t, err)
	return test.ID
}

func (f *attemptFixture) invite(t *testing.T, testID, email string) dto.InviteResponse {
	t.Helper()
	invite, err := f.service.CreateInvite(context.Background(), dto.InviteRequest{
		TestID:         testID,
		CandidateName:  "Ada Lovelace",
		CandidateEmail: email,
	})
	require.NoError(t, err)
	return invite
}

func (f *attemptFixture) outboxCount(t *testing.T, eventType string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.OutboxEntry{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

const singleChoiceQuestion = `[{"id":1,"type":"multiple_choice","question":"What is 2+2?","points":1,"options":["3","4"],"correct_answer":1}]`

func TestAttemptServiceCompletesMultipleChoiceAttempt(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, singleChoiceQuestion, 10, 50)

	invite := f.invite(t, testID, "ada@example.com")
	require.Equal(t, models.AttemptStatusPending, invite.Status)
	require.Len(t, invite.AccessToken, 48)
	require.Equal(t, f.clock.Now().Add(72*time.Hour), invite.ExpiresAt)

	started, err := f.service.Start(ctx, invite.AccessToken)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusInProgress, started.Status)
	require.WithinDuration(t, f.clock.Now().Add(10*time.Minute), started.ExpiresAt, time.Millisecond)
	require.Equal(t, int64(600), started.RemainingSeconds)

	saved, err := f.service.SaveAnswer(ctx, invite.AccessToken, dto.SaveAnswerRequest{
		QuestionID: 1,
		Answer:     json.RawMessage(`1`),
	})
	require.NoError(t, err)
	require.Equal(t, 1, saved.AnsweredCount)

	f.clock.Advance(2 * time.Minute)
	result, err := f.service.Submit(ctx, invite.AccessToken, dto.SubmitRequest{})
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusCompleted, result.Status)
	require.InDelta(t, 100.0, *result.Percentage, 0.001)
	require.True(t, *result.Passed)
	require.False(t, result.NeedsReview)
	require.Equal(t, 120, *result.TimeSpentSeconds)

	var logs int64
	require.NoError(t, f.db.Model(&models.AnswerLog{}).Count(&logs).Error)
	require.Equal(t, int64(1), logs)
	require.Equal(t, int64(1), f.outboxCount(t, models.EventTestAssigned))
	require.Equal(t, int64(1), f.outboxCount(t, models.EventTestCompleted))

	_, err = f.service.Submit(ctx, invite.AccessToken, dto.SubmitRequest{})
	require.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestAttemptServiceOpenEndedAnswerNeedsManualGrading(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, `[
		{"id":1,"type":"multiple_choice","question":"Pick a","points":1,"options":["a","b"],"correct_answer":0},
		{"id":2,"type":"short_answer","question":"Explain goroutines","points":3}
	]`, 30, 70)

	invite := f.invite(t, testID, "grace@example.com")
	_, err := f.service.Start(ctx, invite.AccessToken)
	require.NoError(t, err)

	result, err := f.service.Submit(ctx, invite.AccessToken, dto.SubmitRequest{Answers: []models.SubmittedAnswer{
		{QuestionID: 1, Answer: json.RawMessage(`0`)},
		{QuestionID: 2, Answer: json.RawMessage(`"lightweight threads managed by the runtime"`)},
	}})
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusNeedsReview, result.Status)
	require.InDelta(t, 25.0, *result.Percentage, 0.001)
	require.True(t, result.NeedsReview)

	_, err = f.service.Submit(ctx, invite.AccessToken, dto.SubmitRequest{})
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	correct := true
	graded, err := f.service.GradeAnswer(ctx, invite.AttemptID, dto.GradeAnswerRequest{
		QuestionID: 2,
		IsCorrect:  &correct,
		Comment:    "<b>Clear</b> explanation",
	}, "grader-1")
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusCompleted, graded.Status)
	require.InDelta(t, 100.0, *graded.Percentage, 0.001)
	require.InDelta(t, 4.0, *graded.Score, 0.001)
	require.True(t, *graded.Passed)
	require.Equal(t, "Clear explanation", graded.GradedAnswers[1].GraderComment)
	require.Equal(t, int64(1), f.outboxCount(t, models.EventAttemptGraded))
}

func TestAttemptServiceGradeAnswerWithPartialPoints(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, `[{"id":7,"type":"short_answer","question":"Describe channels","points":4}]`, 30, 70)

	invite := f.invite(t, testID, "linus@example.com")
	_, err := f.service.Start(ctx, invite.AccessToken)
	require.NoError(t, err)
	_, err = f.service.Submit(ctx, invite.AccessToken, dto.SubmitRequest{Answers: []models.SubmittedAnswer{
		{QuestionID: 7, Answer: json.RawMessage(`"typed pipes"`)},
	}})
	require.NoError(t, err)

	points := 9.0
	graded, err := f.service.GradeAnswer(ctx, invite.AttemptID, dto.GradeAnswerRequest{QuestionID: 7, Points: &points}, "grader-1")
	require.NoError(t, err)
	require.InDelta(t, 4.0, *graded.Score, 0.001, "points are capped at the question value")
	require.LessOrEqual(t, *graded.Score, *graded.MaxScore)

	_, err = f.service.GradeAnswer(ctx, invite.AttemptID, dto.GradeAnswerRequest{QuestionID: 99, Points: &points}, "grader-1")
	require.ErrorIs(t, err, ErrAnswerNotFound)

	_, err = f.service.GradeAnswer(ctx, invite.AttemptID, dto.GradeAnswerRequest{QuestionID: 7}, "grader-1")
	require.ErrorIs(t, err, ErrGradeRequired)
}

func TestAttemptServiceGradeRequiresSubmittedAttempt(t *testing.T) {
	f := setupAttemptFixture(t)
	testID := f.createTest(t, singleChoiceQuestion, 10, 50)
	invite := f.invite(t, testID, "ken@example.com")

	correct := true
	_, err := f.service.GradeAnswer(context.Background(), invite.AttemptID, dto.GradeAnswerRequest{QuestionID: 1, IsCorrect: &correct}, "grader-1")
	require.ErrorIs(t, err, ErrNotGradable)
}

func TestAttemptServiceStartIsIdempotent(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, singleChoiceQuestion, 10, 50)
	invite := f.invite(t, testID, "barbara@example.com")

	first, err := f.service.Start(ctx, invite.AccessToken)
	require.NoError(t, err)

	f.clock.Advance(3 * time.Minute)
	second, err := f.service.Start(ctx, invite.AccessToken)
	require.NoError(t, err)
	require.WithinDuration(t, first.StartedAt, second.StartedAt, time.Millisecond)
	require.WithinDuration(t, first.ExpiresAt, second.ExpiresAt, time.Millisecond)
	require.Equal(t, int64(420), second.RemainingSeconds)
}

func TestAttemptServiceStartKeepsEarlierInviteExpiry(t *testing.T) {
	f := setupAttemptFixture(t)
	testID := f.createTest(t, singleChoiceQuestion, 120, 50)

	invite, err := f.service.CreateInvite(context.Background(), dto.InviteRequest{
		TestID:         testID,
		CandidateName:  "Edsger",
		CandidateEmail: "edsger@example.com",
		ExpiresInHours: 1,
	})
	require.NoError(t, err)

	started, err := f.service.Start(context.Background(), invite.AccessToken)
	require.NoError(t, err)
	require.WithinDuration(t, invite.ExpiresAt, started.ExpiresAt, time.Millisecond)
}

func TestAttemptServiceRejectsExpiredAndUnknownTokens(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, singleChoiceQuestion, 10, 50)
	invite := f.invite(t, testID, "alan@example.com")

	_, err := f.service.Start(ctx, "missing-token")
	require.ErrorIs(t, err, ErrAttemptNotFound)

	f.clock.Advance(73 * time.Hour)
	_, err = f.service.Start(ctx, invite.AccessToken)
	require.ErrorIs(t, err, ErrTestExpired)

	_, err = f.service.GetByToken(ctx, invite.AccessToken)
	require.ErrorIs(t, err, ErrTestExpired)

	_, err = f.service.SaveAnswer(ctx, invite.AccessToken, dto.SaveAnswerRequest{QuestionID: 1, Answer: json.RawMessage(`1`)})
	require.ErrorIs(t, err, ErrTestExpired)
}

func TestAttemptServiceSubmitRequiresStart(t *testing.T) {
	f := setupAttemptFixture(t)
	testID := f.createTest(t, singleChoiceQuestion, 10, 50)
	invite := f.invite(t, testID, "donald@example.com")

	_, err := f.service.Submit(context.Background(), invite.AccessToken, dto.SubmitRequest{})
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestAttemptServiceRejectsSecondPendingInvite(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, singleChoiceQuestion, 10, 50)

	first := f.invite(t, testID, "Margaret@Example.com")

	_, err := f.service.CreateInvite(ctx, dto.InviteRequest{
		TestID:         testID,
		CandidateName:  "Margaret",
		CandidateEmail: " margaret@example.com ",
	})
	require.ErrorIs(t, err, ErrPendingInviteExists)

	_, err = f.service.Start(ctx, first.AccessToken)
	require.NoError(t, err)

	second := f.invite(t, testID, "margaret@example.com")
	require.NotEqual(t, first.AccessToken, second.AccessToken)
}

func TestAttemptServiceInviteValidatesTest(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateInvite(ctx, dto.InviteRequest{
		TestID:         uuid.NewString(),
		CandidateName:  "Nobody",
		CandidateEmail: "nobody@example.com",
	})
	require.ErrorIs(t, err, ErrTestNotFound)

	inactive := false
	test, err := f.tests.Create(ctx, dto.TestCreateRequest{
		Title:     "Retired test",
		Questions: json.RawMessage(singleChoiceQuestion),
		IsActive:  &inactive,
	}, "")
	require.NoError(t, err)

	_, err = f.service.CreateInvite(ctx, dto.InviteRequest{
		TestID:         test.ID,
		CandidateName:  "Nobody",
		CandidateEmail: "nobody@example.com",
	})
	require.ErrorIs(t, err, ErrTestInactive)
}

func TestAttemptServiceViolationThreshold(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, singleChoiceQuestion, 10, 50)
	invite := f.invite(t, testID, "tony@example.com")

	ignored, err := f.service.ReportViolation(ctx, invite.AccessToken, dto.ViolationRequest{Type: "tab_switch"})
	require.NoError(t, err)
	require.Zero(t, ignored.TabSwitches, "violations before start are ignored")

	_, err = f.service.Start(ctx, invite.AccessToken)
	require.NoError(t, err)

	first, err := f.service.ReportViolation(ctx, invite.AccessToken, dto.ViolationRequest{
		Type:    "tab_switch",
		Details: "<script>alert(1)</script>left the page",
	})
	require.NoError(t, err)
	require.Equal(t, 1, first.TabSwitches)
	require.False(t, first.Terminated)
	require.Equal(t, models.AttemptStatusInProgress, first.Status)

	second, err := f.service.ReportViolation(ctx, invite.AccessToken, dto.ViolationRequest{Type: "window_blur"})
	require.NoError(t, err)
	require.Equal(t, 2, second.TabSwitches)
	require.True(t, second.Terminated)
	require.Equal(t, models.AttemptStatusEscaped, second.Status)

	third, err := f.service.ReportViolation(ctx, invite.AccessToken, dto.ViolationRequest{Type: "tab_switch"})
	require.NoError(t, err)
	require.Equal(t, second, third)

	attempt, err := f.service.Get(ctx, invite.AttemptID)
	require.NoError(t, err)
	require.Zero(t, *attempt.Score)
	require.Zero(t, *attempt.Percentage)
	require.False(t, *attempt.Passed)
	require.NotNil(t, attempt.CompletedAt)
	require.Len(t, attempt.SuspiciousActivity, 2)
	require.NotContains(t, attempt.SuspiciousActivity[0].Details, "<script>")

	_, err = f.service.SaveAnswer(ctx, invite.AccessToken, dto.SaveAnswerRequest{QuestionID: 1, Answer: json.RawMessage(`1`)})
	require.ErrorIs(t, err, ErrAttemptTerminated)
	_, err = f.service.Start(ctx, invite.AccessToken)
	require.ErrorIs(t, err, ErrAttemptTerminated)
}

func TestAttemptServiceCandidateViewHidesAnswers(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, singleChoiceQuestion, 10, 50)
	invite := f.invite(t, testID, "frances@example.com")

	before, err := f.service.GetByToken(ctx, invite.AccessToken)
	require.NoError(t, err)
	require.Empty(t, before.Questions)
	require.Equal(t, "Go fundamentals", before.Test.Title)

	_, err = f.service.Start(ctx, invite.AccessToken)
	require.NoError(t, err)

	after, err := f.service.GetByToken(ctx, invite.AccessToken)
	require.NoError(t, err)
	require.Len(t, after.Questions, 1)
	require.Equal(t, []string{"3", "4"}, after.Questions[0].Options)

	encoded, err := json.Marshal(after)
	require.NoError(t, err)
	require.NotContains(t, string(encoded), "correct_answer")
}

func TestAttemptServiceHeartbeatAndStatus(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, singleChoiceQuestion, 10, 50)
	invite := f.invite(t, testID, "radia@example.com")

	_, err := f.service.Start(ctx, invite.AccessToken)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	beat, err := f.service.Heartbeat(ctx, invite.AccessToken)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusInProgress, beat.Status)
	require.WithinDuration(t, f.clock.Now(), beat.LastHeartbeatAt, time.Millisecond)

	_, err = f.service.SaveAnswer(ctx, invite.AccessToken, dto.SaveAnswerRequest{QuestionID: 1, Answer: json.RawMessage(`0`)})
	require.NoError(t, err)

	status, err := f.service.GetStatus(ctx, invite.AccessToken)
	require.NoError(t, err)
	require.Equal(t, int64(540), status.RemainingSeconds)
	require.Equal(t, 1, status.AnsweredCount)
	require.Equal(t, 1, status.QuestionCount)
}

func TestAttemptServiceDeleteOnlyPending(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, singleChoiceQuestion, 10, 50)

	pending := f.invite(t, testID, "one@example.com")
	started := f.invite(t, testID, "two@example.com")
	_, err := f.service.Start(ctx, started.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, pending.AttemptID))
	require.ErrorIs(t, f.service.Delete(ctx, pending.AttemptID), ErrAttemptNotFound)
	require.ErrorIs(t, f.service.Delete(ctx, started.AttemptID), ErrNotPending)
}

func TestAttemptServiceListingAndDistribution(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	testID := f.createTest(t, `[{"id":1,"type":"short_answer","question":"Why Go?","points":2}]`, 10, 50)

	review := f.invite(t, testID, "review@example.com")
	f.invite(t, testID, "waiting@example.com")

	_, err := f.service.Start(ctx, review.AccessToken)
	require.NoError(t, err)
	_, err = f.service.Submit(ctx, review.AccessToken, dto.SubmitRequest{Answers: []models.SubmittedAnswer{
		{QuestionID: 1, Answer: json.RawMessage(`"simplicity"`)},
	}})
	require.NoError(t, err)

	flagged, err := f.service.ListNeedsReview(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, flagged.Items, 1)
	require.Equal(t, review.AttemptID, flagged.Items[0].ID)

	listed, err := f.service.List(ctx, dto.AttemptListRequest{CandidateEmail: "WAITING@example.com"})
	require.NoError(t, err)
	require.Len(t, listed.Items, 1)
	require.Equal(t, models.AttemptStatusPending, listed.Items[0].Status)

	stats, err := f.service.StatusDistribution(ctx, testID)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Total)
	require.Equal(t, int64(1), stats.ByStatus["needs_review"])
	require.Equal(t, int64(1), stats.ByStatus["pending"])
	require.Equal(t, int64(0), stats.ByStatus["escaped"])
}

func TestAttemptServiceFeedReceivesTransitions(t *testing.T) {
	f := setupAttemptFixture(t)
	ctx := context.Background()
	feed := NewAttemptFeed(nil, "", zerolog.Nop())
	f.service.(*attemptService).feed = feed

	events, cancel := feed.Subscribe()
	defer cancel()

	testID := f.createTest(t, singleChoiceQuestion, 10, 50)
	invite := f.invite(t, testID, "feed@example.com")
	_, err := f.service.Start(ctx, invite.AccessToken)
	require.NoError(t, err)

	first := <-events
	require.Equal(t, FeedAttemptInvited, first.Type)
	second := <-events
	require.Equal(t, FeedAttemptStarted, second.Type)
	require.Equal(t, invite.AttemptID, second.AttemptID)
	require.Equal(t, models.AttemptStatusInProgress, second.Status)
}
