package util

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailRegistered     = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountDisabled     = errors.New("account disabled")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrDemoRestricted      = errors.New("not available for demo accounts")
	ErrDemoDisabled        = errors.New("demo accounts are disabled")
	ErrInvalidLevel        = errors.New("level must be M1 or M2")
	ErrInvalidRole         = errors.New("unknown role")
	ErrInvalidInput        = errors.New("invalid input")
	ErrWrongPassword       = errors.New("current password is incorrect")
	ErrUnitNotFound        = errors.New("unit not found")
	ErrAxisNotFound        = errors.New("thematic axis not found")
	ErrTopicNotFound       = errors.New("topic not found")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrInvalidQuestion     = errors.New("invalid question")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionFull         = errors.New("session is full")
	ErrSessionClosed       = errors.New("session is closed")
	ErrSessionNotJoinable  = errors.New("session is not open for joining")
	ErrSessionNotEditable  = errors.New("session can no longer be modified")
	ErrSessionNotStarted   = errors.New("session has not started")
	ErrInvalidTransition   = errors.New("invalid session status transition")
	ErrNotParticipant      = errors.New("user has not joined this session")
	ErrAlreadySubmitted    = errors.New("answers already submitted")
	ErrAlreadyJoined       = errors.New("already joined this session")
	ErrInvalidSchedule     = errors.New("session must be scheduled in the future")
	ErrDiagnosticNotFound  = errors.New("diagnostic session not found")
	ErrDiagnosticClosed    = errors.New("diagnostic session is not in progress")
	ErrConversationMissing = errors.New("conversation not found")
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrDeclarationMissing  = errors.New("knowledge declaration not found")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrInvalidFile         = errors.New("invalid file")
	ErrLLMUnavailable      = errors.New("ai provider unavailable")
	ErrToolLoopExhausted   = errors.New("ai tool loop exceeded iteration limit")
)
