package audit

import (
	"context"

	"github.com/dllu1/go-chatroom/pkg/log"
)

// Audit actions.
const (
	ActionRegister    = "auth.register"
	ActionLogin       = "auth.login"
	ActionLoginFailed = "auth.login_failed"
	ActionJoin        = "chat.join"
	ActionLeave       = "chat.leave"
	ActionSendMessage = "chat.send_message"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, username, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUsername, username).
		Msg(msg)
}

// LogWithDetail emits an audit log with an extra detail field.
func LogWithDetail(ctx context.Context, action, username, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUsername, username).
		Str(FieldDetail, detail).
		Msg(msg)
}
