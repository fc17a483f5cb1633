package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/d60-Lab/live-commerce/pkg/logger"
)

// Session 房间成员句柄，由传输层实现（websocket 连接或测试替身）
type Session interface {
	ID() string
	UserID() string
	// Send 非阻塞投递；缓冲区满时实现方可以断开慢连接
	Send(payload []byte) error
}

// Registry 维护直播间 -> 在线会话集合，是在线人数的唯一来源。
// 所有成员变更在同一把锁内完成，并在锁内投递人数广播，保证成员看到的人数与变更顺序一致。
type Registry struct {
	mu           sync.Mutex
	rooms        map[string]map[string]Session // roomID -> sessionID -> session
	sessionRooms map[string]map[string]struct{} // sessionID -> roomIDs
	userSessions map[string]map[string]Session // userID -> sessionID -> session
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:        make(map[string]map[string]Session),
		sessionRooms: make(map[string]map[string]struct{}),
		userSessions: make(map[string]map[string]Session),
	}
}

// Register 记录用户的在线会话，用于按用户推送通知
func (r *Registry) Register(s Session) {
	if s.UserID() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.userSessions[s.UserID()]
	if set == nil {
		set = make(map[string]Session)
		r.userSessions[s.UserID()] = set
	}
	set[s.ID()] = s
}

// Join 加入房间（同一会话重复加入是幂等的），返回最新人数并广播给房间全体成员
func (r *Registry) Join(roomID string, s Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[roomID]
	if room == nil {
		room = make(map[string]Session)
		r.rooms[roomID] = room
	}
	room[s.ID()] = s

	joined := r.sessionRooms[s.ID()]
	if joined == nil {
		joined = make(map[string]struct{})
		r.sessionRooms[s.ID()] = joined
	}
	joined[roomID] = struct{}{}

	count := len(room)
	r.broadcastCountLocked(roomID, count, nil)
	return count
}

// Leave 离开房间，返回最新人数；确实在房间内的离开者也会收到新的人数
func (r *Registry) Leave(roomID string, s Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, removed := r.leaveLocked(roomID, s.ID())
	var leaver Session
	if removed {
		leaver = s
	}
	r.broadcastCountLocked(roomID, count, leaver)
	return count
}

// Disconnect 连接断开：等同于对所有已加入房间执行 Leave
func (r *Registry) Disconnect(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID := range r.sessionRooms[s.ID()] {
		count, _ := r.leaveLocked(roomID, s.ID())
		r.broadcastCountLocked(roomID, count, nil)
	}
	delete(r.sessionRooms, s.ID())

	if set := r.userSessions[s.UserID()]; set != nil {
		delete(set, s.ID())
		if len(set) == 0 {
			delete(r.userSessions, s.UserID())
		}
	}
}

// ViewerCount 当前房间人数，未知房间为 0
func (r *Registry) ViewerCount(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomID])
}

// Broadcast 向房间全体成员投递，返回成功投递数
func (r *Registry) Broadcast(roomID string, payload []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sendLocked(r.rooms[roomID], payload)
}

// NotifyUser 推送给用户的所有在线会话
func (r *Registry) NotifyUser(userID string, payload []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sendLocked(r.userSessions[userID], payload)
}

// Rooms 当前有成员的房间数
func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Close 关闭所有在线连接并清空状态，用于停机
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make(map[string]Session)
	for _, room := range r.rooms {
		for id, s := range room {
			sessions[id] = s
		}
	}
	for _, set := range r.userSessions {
		for id, s := range set {
			sessions[id] = s
		}
	}
	r.rooms = make(map[string]map[string]Session)
	r.sessionRooms = make(map[string]map[string]struct{})
	r.userSessions = make(map[string]map[string]Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if c, ok := s.(interface{ Close(code int, reason string) }); ok {
			c.Close(websocket.CloseGoingAway, "server shutdown")
		}
	}
}

// leaveLocked 返回剩余人数，以及会话此前是否在房间内
func (r *Registry) leaveLocked(roomID, sessionID string) (int, bool) {
	room := r.rooms[roomID]
	if room == nil {
		return 0, false
	}
	if _, ok := room[sessionID]; !ok {
		return len(room), false
	}
	delete(room, sessionID)
	count := len(room)
	if count == 0 {
		delete(r.rooms, roomID)
	}
	if joined, ok := r.sessionRooms[sessionID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.sessionRooms, sessionID)
		}
	}
	return count, true
}

func (r *Registry) broadcastCountLocked(roomID string, count int, extra Session) {
	payload, err := Encode(EventViewerCount, count)
	if err != nil {
		logger.Error("encode viewer count", zap.Error(err))
		return
	}
	r.sendLocked(r.rooms[roomID], payload)
	if extra != nil {
		_ = extra.Send(payload)
	}
	logger.Debug("viewer count", zap.String("room", roomID), zap.Int("count", count))
}

func (r *Registry) sendLocked(members map[string]Session, payload []byte) int {
	delivered := 0
	for _, s := range members {
		if err := s.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}
