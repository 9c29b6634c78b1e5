package util

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{ErrEmailRegistered, http.StatusConflict, "email_registered"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{ErrAccountDisabled, http.StatusUnauthorized, "account_disabled"},
	{ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
	{ErrDemoRestricted, http.StatusForbidden, "demo_restricted"},
	{ErrDemoDisabled, http.StatusForbidden, "demo_disabled"},
	{ErrInvalidLevel, http.StatusBadRequest, "invalid_level"},
	{ErrInvalidRole, http.StatusBadRequest, "invalid_role"},
	{ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{ErrWrongPassword, http.StatusBadRequest, "wrong_password"},
	{ErrUnitNotFound, http.StatusNotFound, "unit_not_found"},
	{ErrAxisNotFound, http.StatusNotFound, "axis_not_found"},
	{ErrTopicNotFound, http.StatusNotFound, "topic_not_found"},
	{ErrQuestionNotFound, http.StatusNotFound, "question_not_found"},
	{ErrInvalidQuestion, http.StatusBadRequest, "invalid_question"},
	{ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{ErrSessionFull, http.StatusBadRequest, "session_full"},
	{ErrSessionClosed, http.StatusBadRequest, "session_closed"},
	{ErrSessionNotJoinable, http.StatusBadRequest, "session_not_joinable"},
	{ErrSessionNotEditable, http.StatusBadRequest, "session_not_editable"},
	{ErrSessionNotStarted, http.StatusBadRequest, "session_not_started"},
	{ErrInvalidTransition, http.StatusBadRequest, "invalid_transition"},
	{ErrNotParticipant, http.StatusForbidden, "not_participant"},
	{ErrAlreadySubmitted, http.StatusConflict, "already_submitted"},
	{ErrAlreadyJoined, http.StatusConflict, "already_joined"},
	{ErrInvalidSchedule, http.StatusBadRequest, "invalid_schedule"},
	{ErrDiagnosticNotFound, http.StatusNotFound, "diagnostic_not_found"},
	{ErrDiagnosticClosed, http.StatusBadRequest, "diagnostic_closed"},
	{ErrConversationMissing, http.StatusNotFound, "conversation_not_found"},
	{ErrCertificateNotFound, http.StatusNotFound, "certificate_not_found"},
	{ErrDeclarationMissing, http.StatusNotFound, "declaration_not_found"},
	{ErrResourceNotFound, http.StatusNotFound, "resource_not_found"},
	{ErrInvalidFile, http.StatusBadRequest, "invalid_file"},
	{ErrLLMUnavailable, http.StatusServiceUnavailable, "ai_unavailable"},
	{ErrToolLoopExhausted, http.StatusServiceUnavailable, "ai_tool_loop_exhausted"},
	{gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
}

// StatusForError 返回错误对应的 HTTP 状态码和错误码，未知错误返回 500
func StatusForError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// RespondError 把业务错误映射为统一的错误响应
func RespondError(c *gin.Context, err error) {
	status, code := StatusForError(err)
	if status == http.StatusInternalServerError {
		LogInternalError(c, err)
		return
	}
	ErrorWithCode(c, status, code, err.Error())
}
