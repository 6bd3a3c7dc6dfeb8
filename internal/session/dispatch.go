package session

import (
	"context"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/database"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/protocol"
)

// HandleFrame 解码并处理一帧入站数据，错误以 error 帧同步返回给客户端，连接保持打开
func (s *Session) HandleFrame(ctx context.Context, raw []byte) {
	in, err := protocol.Decode(raw)
	if err == nil {
		err = s.Dispatch(ctx, in)
	}
	if err != nil {
		logger.DebugF("Event from connection %s rejected: %v", s.handle.ID(), err)
		_ = s.reply(protocol.Error(ErrorCode(err), err.Error()))
	}
}

// Dispatch 按事件类型执行对应操作
func (s *Session) Dispatch(ctx context.Context, in protocol.Inbound) error {
	if in.Type.RequiresIdentity() {
		if _, err := s.identity(); err != nil {
			return err
		}
	}

	switch in.Type {
	case protocol.ANNOUNCE:
		return s.Announce(in.UserID)
	case protocol.JOIN:
		return s.Join(in.RoomID)
	case protocol.LEAVE:
		return s.Leave(in.RoomID)
	case protocol.SEND_DIRECT:
		_, err := s.SendDirect(ctx, in.SenderID, in.TargetUserID, in.Text)
		return err
	case protocol.SEND_GROUP:
		_, err := s.SendGroup(ctx, in.SenderID, in.RoomID, in.Text)
		return err
	case protocol.HISTORY:
		chat, records, err := s.History(ctx, in.With, in.RoomID, in.Limit)
		if err != nil {
			return err
		}
		return s.reply(protocol.History(chat.String(), toWireRecords(records)))
	case protocol.LIST_USERS:
		users, err := s.ListUsers(ctx)
		if err != nil {
			return err
		}
		return s.reply(protocol.Users(toWireUsers(users)))
	case protocol.LIST_GROUPS:
		groups, err := s.ListGroups(ctx)
		if err != nil {
			return err
		}
		return s.reply(protocol.Groups(toWireGroups(groups)))
	case protocol.LIST_ONLINE:
		return s.reply(protocol.Online(s.manager.registry.Online()))
	case protocol.ROOMS:
		return s.reply(protocol.Rooms(s.manager.membership.RoomsOf(s.handle)))
	case protocol.LOGOUT:
		s.Close("logout")
		return nil
	default:
		return fmt.Errorf("%w: %s", protocol.ErrUnknownEvent, in.Type)
	}
}

func toWireRecords(records []database.Record) []protocol.Record {
	out := make([]protocol.Record, 0, len(records))
	for _, r := range records {
		out = append(out, protocol.Record{
			ID:        r.ID,
			Sender:    r.Sender,
			Receiver:  r.Receiver,
			Kind:      r.Kind,
			Content:   r.Content,
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}

func toWireUsers(users []database.User) []protocol.User {
	out := make([]protocol.User, 0, len(users))
	for _, u := range users {
		out = append(out, protocol.User{ID: u.ID, Username: u.Username})
	}
	return out
}

func toWireGroups(groups []database.Group) []protocol.Group {
	out := make([]protocol.Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, protocol.Group{ID: g.ID, Name: g.Name, Members: g.Members})
	}
	return out
}
