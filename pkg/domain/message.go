package domain

// ChatMessage is a single posted room message. ID is assigned by the
// Room on accept. Direct messages are not wrapped in a ChatMessage; their
// payload is forwarded as given.
type ChatMessage struct {
	ID          uint64         `json:"id,omitempty"`
	Timestamp   int64          `json:"timestamp"`
	Author      string         `json:"author"`
	TextMessage string         `json:"textMessage"`
	Extensions  map[string]any `json:"extensions,omitempty"`
}

// ListName is one of the three per-room access lists, or one of the two
// per-user direct-message lists.
type ListName string

const (
	ListWhitelist ListName = "whitelist"
	ListBlacklist ListName = "blacklist"
	ListAdminlist ListName = "adminlist"
)

// RoomListNames are the lists a Room exposes to roomAddToList/roomRemoveFromList.
var RoomListNames = map[ListName]bool{
	ListWhitelist: true,
	ListBlacklist: true,
	ListAdminlist: true,
}

// DirectListNames are the lists DirectMessaging exposes to directAddToList/directRemoveFromList.
var DirectListNames = map[ListName]bool{
	ListWhitelist: true,
	ListBlacklist: true,
}

// UserSeen reports when a user was last seen joining or leaving a room.
type UserSeen struct {
	Joined    bool   `json:"joined"`
	Timestamp *int64 `json:"timestamp"`
}

// HistoryInfo summarizes a room's message history for roomHistoryInfo.
type HistoryInfo struct {
	LastID                uint64 `json:"lastId"`
	HistoryMaxGetMessages int    `json:"historyMaxGetMessages"`
	HistoryMaxSize        int    `json:"historyMaxSize"`
}
