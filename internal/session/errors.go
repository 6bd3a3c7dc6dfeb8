package session

import (
	"errors"

	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/database"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/router"
)

var (
	ErrInvalidState     = errors.New("invalid session state")
	ErrIdentityMismatch = errors.New("session is bound to another user")
	ErrPersistence      = errors.New("persistence failed")
	ErrDirectory        = errors.New("directory unavailable")
)

// ErrorCode 把错误映射为 error 帧中的稳定错误码
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidState):
		return protocol.CodeInvalidState
	case errors.Is(err, ErrIdentityMismatch):
		return protocol.CodeIdentityMismatch
	case errors.Is(err, ErrPersistence):
		return protocol.CodePersistenceFailed
	case errors.Is(err, ErrDirectory):
		return protocol.CodeDirectoryFailed
	case errors.Is(err, router.ErrInvalidEvent), errors.Is(err, database.ErrEmptyField):
		return protocol.CodeInvalidEvent
	case errors.Is(err, protocol.ErrUnknownEvent):
		return protocol.CodeUnknownEvent
	case errors.Is(err, protocol.ErrMalformedFrame):
		return protocol.CodeMalformedFrame
	default:
		return protocol.CodeInternal
	}
}
