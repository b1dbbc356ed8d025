package domain

// CommandName identifies one of the fixed vocabulary of client commands.
type CommandName string

const (
	CmdDirectAddToList        CommandName = "directAddToList"
	CmdDirectGetAccessList    CommandName = "directGetAccessList"
	CmdDirectGetWhitelistMode CommandName = "directGetWhitelistMode"
	CmdDirectMessage          CommandName = "directMessage"
	CmdDirectRemoveFromList   CommandName = "directRemoveFromList"
	CmdDirectSetWhitelistMode CommandName = "directSetWhitelistMode"
	CmdListJoinedSockets      CommandName = "listJoinedSockets"
	CmdListRooms              CommandName = "listRooms"
	CmdRoomAddToList          CommandName = "roomAddToList"
	CmdRoomCreate             CommandName = "roomCreate"
	CmdRoomDelete             CommandName = "roomDelete"
	CmdRoomGetAccessList      CommandName = "roomGetAccessList"
	CmdRoomGetOwner           CommandName = "roomGetOwner"
	CmdRoomGetWhitelistMode   CommandName = "roomGetWhitelistMode"
	CmdRoomHistoryGet         CommandName = "roomHistoryGet"
	CmdRoomHistoryInfo        CommandName = "roomHistoryInfo"
	CmdRoomRecentHistory      CommandName = "roomRecentHistory"
	CmdRoomJoin               CommandName = "roomJoin"
	CmdRoomLeave              CommandName = "roomLeave"
	CmdRoomMessage            CommandName = "roomMessage"
	CmdRoomRemoveFromList     CommandName = "roomRemoveFromList"
	CmdRoomSetWhitelistMode   CommandName = "roomSetWhitelistMode"
	CmdRoomUserSeen           CommandName = "roomUserSeen"
	CmdSystemMessage          CommandName = "systemMessage"
)

// AllCommands lists every command in the fixed vocabulary, used by the
// ArgumentsValidator to ensure every command carries a schema.
var AllCommands = []CommandName{
	CmdDirectAddToList, CmdDirectGetAccessList, CmdDirectGetWhitelistMode,
	CmdDirectMessage, CmdDirectRemoveFromList, CmdDirectSetWhitelistMode,
	CmdListJoinedSockets, CmdListRooms, CmdRoomAddToList, CmdRoomCreate,
	CmdRoomDelete, CmdRoomGetAccessList, CmdRoomGetOwner, CmdRoomGetWhitelistMode,
	CmdRoomHistoryGet, CmdRoomHistoryInfo, CmdRoomRecentHistory, CmdRoomJoin,
	CmdRoomLeave, CmdRoomMessage, CmdRoomRemoveFromList, CmdRoomSetWhitelistMode,
	CmdRoomUserSeen, CmdSystemMessage,
}

// NotificationName identifies a server-to-client notification.
type NotificationName string

const (
	NotifyDirectMessage      NotificationName = "directMessage"
	NotifyDirectMessageEcho  NotificationName = "directMessageEcho"
	NotifyLoginConfirmed     NotificationName = "loginConfirmed"
	NotifyLoginRejected      NotificationName = "loginRejected"
	NotifyRoomAccessRemoved  NotificationName = "roomAccessRemoved"
	NotifyRoomAccessAdded    NotificationName = "roomAccessListAdded"
	NotifyRoomAccessDeleted  NotificationName = "roomAccessListRemoved"
	NotifyRoomModeChanged    NotificationName = "roomModeChanged"
	NotifyRoomJoinedEcho     NotificationName = "roomJoinedEcho"
	NotifyRoomLeftEcho       NotificationName = "roomLeftEcho"
	NotifyRoomMessage        NotificationName = "roomMessage"
	NotifyRoomUserJoined     NotificationName = "roomUserJoined"
	NotifyRoomUserLeft       NotificationName = "roomUserLeft"
	NotifySocketConnectEcho  NotificationName = "socketConnectEcho"
	NotifySocketDisconnect   NotificationName = "socketDisconnectEcho"
	NotifySystemMessage      NotificationName = "systemMessage"
	NotifyDisconnect         NotificationName = "disconnect"
)
