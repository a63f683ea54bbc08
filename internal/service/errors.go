package service

import "errors"

var (
	// ErrAttemptNotFound indicates no attempt matches the token or id.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrTestNotFound indicates the referenced test does not exist.
	ErrTestNotFound = errors.New("test not found")
	// ErrTestInactive indicates invitations cannot be issued for the test.
	ErrTestInactive = errors.New("test is not active")
	// ErrTestExpired indicates the attempt deadline has passed.
	ErrTestExpired = errors.New("test has expired")
	// ErrAlreadyCompleted indicates the attempt has already been submitted.
	ErrAlreadyCompleted = errors.New("test already completed")
	// ErrAttemptTerminated indicates the attempt was ended by anti-cheat or abandonment.
	ErrAttemptTerminated = errors.New("attempt was terminated")
	// ErrNotStarted indicates the candidate submitted before starting the attempt.
	ErrNotStarted = errors.New("test has not been started")
	// ErrUsePresentationSubmit indicates a question submission on a presentation attempt.
	ErrUsePresentationSubmit = errors.New("presentation tests are submitted with a link or file")
	// ErrConcurrentUpdate indicates the attempt changed while the request was applied.
	ErrConcurrentUpdate = errors.New("attempt was modified concurrently")
	// ErrPendingInviteExists indicates the candidate already holds an unstarted invitation.
	ErrPendingInviteExists = errors.New("candidate already has a pending invitation")
	// ErrNotPending indicates only pending attempts may be deleted.
	ErrNotPending = errors.New("only pending attempts can be deleted")
	// ErrNotGradable indicates the attempt is not waiting for or past grading.
	ErrNotGradable = errors.New("attempt is not in a gradable state")
	// ErrAnswerNotFound indicates the question has no graded answer on the attempt.
	ErrAnswerNotFound = errors.New("question not found in graded answers")
	// ErrGradeRequired indicates neither is_correct nor points was provided.
	ErrGradeRequired = errors.New("is_correct or points is required")
	// ErrNotPresentation indicates a presentation-only operation on a question test.
	ErrNotPresentation = errors.New("attempt is not a presentation test")
	// ErrInvalidURL indicates the presentation link could not be parsed.
	ErrInvalidURL = errors.New("invalid presentation url")
	// ErrInvalidURLScheme indicates the presentation link is not http or https.
	ErrInvalidURLScheme = errors.New("presentation url must use http or https")
	// ErrInvalidFileType indicates the uploaded presentation format is not accepted.
	ErrInvalidFileType = errors.New("presentation file type not allowed")
	// ErrFileTooLarge indicates the uploaded presentation exceeds the size limit.
	ErrFileTooLarge = errors.New("presentation file exceeds maximum allowed size")
	// ErrEmptySubmission indicates neither a link nor a file was provided.
	ErrEmptySubmission = errors.New("presentation link or file is required")
	// ErrInvalidQuestionSet indicates questions do not match the question set schema.
	ErrInvalidQuestionSet = errors.New("invalid question set")
	// ErrInvalidThemes indicates a presentation test without a theme list.
	ErrInvalidThemes = errors.New("presentation themes must be a non-empty array")
	// ErrJobNotFound indicates the AI job does not exist.
	ErrJobNotFound = errors.New("ai job not found")
	// ErrNotificationNotFound indicates the outbox entry does not exist.
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrNoWebhookTarget indicates neither the request nor the configuration names a webhook URL.
	ErrNoWebhookTarget = errors.New("no webhook target configured")
)
