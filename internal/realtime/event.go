package realtime

import "encoding/json"

// 服务端 -> 客户端事件名
const (
	EventViewerCount    = "viewer-count"
	EventNewMessage     = "new-message"
	EventMessageDeleted = "message-deleted"
	EventError          = "error"
	EventNotification   = "notification"
	EventLiveEnded      = "live-ended"
)

// 客户端 -> 服务端事件名
const (
	EventJoinLive      = "join-live"
	EventLeaveLive     = "leave-live"
	EventSendMessage   = "send-message"
	EventDeleteMessage = "delete-message"
)

// Frame 线上传输格式 {"event": "...", "data": ...}
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode 编码一个服务端事件
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
