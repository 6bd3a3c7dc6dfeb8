package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrMalformedFrame = errors.New("malformed frame")
)

// 错误码，随 error 帧返回给客户端
const (
	CodeInvalidState      = "invalid_state"
	CodeInvalidEvent      = "invalid_event"
	CodeIdentityMismatch  = "identity_mismatch"
	CodeUnknownEvent      = "unknown_event"
	CodeMalformedFrame    = "malformed_frame"
	CodePersistenceFailed = "persistence_failed"
	CodeDirectoryFailed   = "directory_failed"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal"
)

// Inbound 是解码后的入站事件
type Inbound struct {
	Type         EventType
	UserID       string
	RoomID       string
	SenderID     string
	TargetUserID string
	Text         string
	With         string
	Limit        int
}

type wireInbound struct {
	Type         string `json:"type"`
	UserID       string `json:"userId"`
	RoomID       string `json:"roomId"`
	GroupID      string `json:"groupId"`
	SenderID     string `json:"senderId"`
	TargetUserID string `json:"targetUserId"`
	ReceiverID   string `json:"receiverId"`
	Text         string `json:"text"`
	Message      string `json:"message"`
	With         string `json:"with"`
	Limit        int    `json:"limit"`
}

// Decode 解析一帧入站 JSON
func Decode(raw []byte) (Inbound, error) {
	var w wireInbound
	if err := json.Unmarshal(raw, &w); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	name := strings.TrimSpace(w.Type)
	if name == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	t, ok := ParseInbound(name)
	if !ok {
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	in := Inbound{
		Type:         t,
		UserID:       w.UserID,
		RoomID:       firstNonEmpty(w.RoomID, w.GroupID),
		SenderID:     w.SenderID,
		TargetUserID: firstNonEmpty(w.TargetUserID, w.ReceiverID),
		Text:         firstNonEmpty(w.Text, w.Message),
		With:         w.With,
		Limit:        w.Limit,
	}

	// 旧客户端用 join{userId} 声明身份
	if t == JOIN && in.RoomID == "" && in.UserID != "" {
		in.Type = ANNOUNCE
	}
	return in, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type Record struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Group struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"`
}

// Outbound 是服务器推送给客户端的事件帧
type Outbound struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"userId,omitempty"`
	SenderID   string    `json:"senderId,omitempty"`
	RoomID     string    `json:"roomId,omitempty"`
	Text       string    `json:"text,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Recipients int       `json:"recipients,omitempty"`
	ChatID     string    `json:"chatId,omitempty"`
	Records    []Record  `json:"records,omitempty"`
	Users      []User    `json:"users,omitempty"`
	Groups     []Group   `json:"groups,omitempty"`
	Online     []string  `json:"online,omitempty"`
	Rooms      []string  `json:"rooms,omitempty"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
}

func Encode(o Outbound) ([]byte, error) {
	if o.Type.Inbound() {
		return nil, fmt.Errorf("%w: %s is not an outbound event", ErrUnknownEvent, o.Type)
	}
	return json.Marshal(o)
}

func Announced(userID string) Outbound {
	return Outbound{Type: ANNOUNCED, UserID: userID}
}

func Joined(roomID string) Outbound {
	return Outbound{Type: JOINED, RoomID: roomID}
}

func Left(roomID string) Outbound {
	return Outbound{Type: LEFT, RoomID: roomID}
}

func DeliverDirect(senderID, text string) Outbound {
	return Outbound{Type: DELIVER_DIRECT, SenderID: senderID, Text: text}
}

func DeliverGroup(senderID, roomID, text string) Outbound {
	return Outbound{Type: DELIVER_GROUP, SenderID: senderID, RoomID: roomID, Text: text}
}

func Sent(outcome string, recipients int) Outbound {
	return Outbound{Type: SENT, Outcome: outcome, Recipients: recipients}
}

func History(chatID string, records []Record) Outbound {
	if records == nil {
		records = []Record{}
	}
	return Outbound{Type: HISTORY_RESULT, ChatID: chatID, Records: records}
}

func Users(users []User) Outbound {
	return Outbound{Type: USERS, Users: users}
}

func Groups(groups []Group) Outbound {
	return Outbound{Type: GROUPS, Groups: groups}
}

func Online(users []string) Outbound {
	return Outbound{Type: ONLINE, Online: users}
}

func Rooms(rooms []string) Outbound {
	return Outbound{Type: ROOMS_RESULT, Rooms: rooms}
}

func Error(code, message string) Outbound {
	return Outbound{Type: ERROR, Code: code, Message: message}
}
