package napcat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kanocence/napcat-go/segment"
)

// --------------------------------------------------------------------------
// Wire Envelopes
// --------------------------------------------------------------------------

// Request is the outbound API envelope. Echo is the correlation token the
// server reflects back in the matching APIResponse.
type Request struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

// APIResponse is the inbound envelope answering a Request. Retcode zero
// means success; Data then holds the action-specific payload.
type APIResponse struct {
	Status  string          `json:"status"`
	Retcode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
	Wording string          `json:"wording,omitempty"`
	Echo    string          `json:"echo"`
}

// APIError is returned by Send when the server answers with a nonzero
// retcode, or synthesized locally when no socket is available. It carries
// the full response so callers can inspect status and wording.
// ErrNotConnected reports a write attempted without a live socket.
var ErrNotConnected = errors.New("socket is not connected")

type APIError struct {
	Response *APIResponse
}

func (e *APIError) Error() string {
	r := e.Response
	if r.Message != "" {
		return fmt.Sprintf("api %s (retcode %d): %s", r.Status, r.Retcode, r.Message)
	}
	return fmt.Sprintf("api %s (retcode %d)", r.Status, r.Retcode)
}

// newNotConnectedError builds the synthetic rejection used when a send is
// attempted without a live socket.
func newNotConnectedError() *APIError {
	return &APIError{Response: &APIResponse{
		Status:  "failed",
		Retcode: -1,
		Data:    json.RawMessage("null"),
		Message: "api socket is not connected",
		Echo:    "",
	}}
}

// --------------------------------------------------------------------------
// Event Names
// --------------------------------------------------------------------------

// Event names form a dotted hierarchy: a handler registered on "message"
// also fires for "message.group" and "message.private". The socket.* and
// api.* names are client-local observability events, never wire traffic.
const (
	EventMessage        = "message"
	EventMessagePrivate = "message.private"
	EventMessageGroup   = "message.group"

	EventNotice  = "notice"
	EventRequest = "request"
	EventMeta    = "meta_event"

	EventAPIPreSend         = "api.preSend"
	EventAPIResponseSuccess = "api.response.success"
	EventAPIResponseFailure = "api.response.failure"

	EventSocketConnecting = "socket.connecting"
	EventSocketOpen       = "socket.open"
	EventSocketClose      = "socket.close"
	EventSocketError      = "socket.error"
)

// --------------------------------------------------------------------------
// Protocol Events
// --------------------------------------------------------------------------

// Sender identifies the account that produced a message event.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card,omitempty"`
	Role     string `json:"role,omitempty"`
}

// MessageEvent is a received chat message, already normalized: Message is
// always in the structured-array form regardless of the wire encoding, and
// MessageFormat reads "array" after normalization.
type MessageEvent struct {
	Time          int64            `json:"time"`
	SelfID        int64            `json:"self_id"`
	PostType      string           `json:"post_type"`
	MessageType   string           `json:"message_type"` // "private" or "group"
	SubType       string           `json:"sub_type,omitempty"`
	MessageID     int64            `json:"message_id"`
	UserID        int64            `json:"user_id"`
	GroupID       int64            `json:"group_id,omitempty"`
	Message       segment.Segments `json:"message"`
	MessageFormat string           `json:"message_format"`
	RawMessage    string           `json:"raw_message"`
	Font          int              `json:"font,omitempty"`
	Sender        Sender           `json:"sender"`
}

// NoticeEvent is a push notification about group or friend state changes.
type NoticeEvent struct {
	Time       int64  `json:"time"`
	SelfID     int64  `json:"self_id"`
	PostType   string `json:"post_type"`
	NoticeType string `json:"notice_type"`
	SubType    string `json:"sub_type,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	GroupID    int64  `json:"group_id,omitempty"`
	OperatorID int64  `json:"operator_id,omitempty"`
	TargetID   int64  `json:"target_id,omitempty"`
	MessageID  int64  `json:"message_id,omitempty"`
	Duration   int64  `json:"duration,omitempty"`
}

// RequestEvent is an approval request (friend add, group join/invite).
// Flag must be passed back to the corresponding set_*_add_request action.
type RequestEvent struct {
	Time        int64  `json:"time"`
	SelfID      int64  `json:"self_id"`
	PostType    string `json:"post_type"`
	RequestType string `json:"request_type"`
	SubType     string `json:"sub_type,omitempty"`
	UserID      int64  `json:"user_id"`
	GroupID     int64  `json:"group_id,omitempty"`
	Comment     string `json:"comment,omitempty"`
	Flag        string `json:"flag"`
}

// MetaEvent is a lifecycle or heartbeat event from the bot host.
type MetaEvent struct {
	Time          int64           `json:"time"`
	SelfID        int64           `json:"self_id"`
	PostType      string          `json:"post_type"`
	MetaEventType string          `json:"meta_event_type"` // "lifecycle" or "heartbeat"
	SubType       string          `json:"sub_type,omitempty"`
	Status        json.RawMessage `json:"status,omitempty"`
	Interval      int64           `json:"interval,omitempty"`
}

// --------------------------------------------------------------------------
// Lifecycle Events
// --------------------------------------------------------------------------

// SocketConnecting is emitted before a dial attempt. ReconnectCount is the
// reconnection policy's current attempt counter.
type SocketConnecting struct {
	Channel        string `json:"channel"`
	ReconnectCount int    `json:"reconnect_count"`
}

// SocketOpen is emitted once a socket is established.
type SocketOpen struct {
	Channel string `json:"channel"`
}

// SocketClose is emitted when a socket closes, with the close frame's
// status code and reason when the peer supplied them.
type SocketClose struct {
	Channel string `json:"channel"`
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
}

// SocketError is emitted on a transport-level error. It does not imply the
// socket closed; a close event follows separately if it did.
type SocketError struct {
	Channel string `json:"channel"`
	Err     error  `json:"-"`
}

// --------------------------------------------------------------------------
// API Data Types
// --------------------------------------------------------------------------

// MessageID is returned by the send_*_msg family of actions.
type MessageID struct {
	MessageID int64 `json:"message_id"`
}

// MsgDetail is returned by get_msg.
type MsgDetail struct {
	Time        int64            `json:"time"`
	MessageType string           `json:"message_type"`
	MessageID   int64            `json:"message_id"`
	RealID      int64            `json:"real_id"`
	Sender      Sender           `json:"sender"`
	Message     segment.Segments `json:"message"`
}

// ForwardMsg is returned by get_forward_msg.
type ForwardMsg struct {
	Message segment.Segments `json:"message"`
}

// LoginInfo is returned by get_login_info.
type LoginInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

// StrangerInfo is returned by get_stranger_info.
type StrangerInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Sex      string `json:"sex"`
	Age      int    `json:"age"`
}

// FriendInfo is one entry of get_friend_list.
type FriendInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Remark   string `json:"remark,omitempty"`
}

// GroupInfo is returned by get_group_info and get_group_list.
type GroupInfo struct {
	GroupID        int64  `json:"group_id"`
	GroupName      string `json:"group_name"`
	MemberCount    int    `json:"member_count,omitempty"`
	MaxMemberCount int    `json:"max_member_count,omitempty"`
}

// GroupMemberInfo is returned by get_group_member_info and one entry of
// get_group_member_list.
type GroupMemberInfo struct {
	GroupID         int64  `json:"group_id"`
	UserID          int64  `json:"user_id"`
	Nickname        string `json:"nickname"`
	Card            string `json:"card,omitempty"`
	Sex             string `json:"sex,omitempty"`
	Age             int    `json:"age,omitempty"`
	JoinTime        int64  `json:"join_time,omitempty"`
	LastSentTime    int64  `json:"last_sent_time,omitempty"`
	Role            string `json:"role,omitempty"` // "owner", "admin" or "member"
	Unfriendly      bool   `json:"unfriendly,omitempty"`
	Title           string `json:"title,omitempty"`
	CardChangeable  bool   `json:"card_changeable,omitempty"`
	ShutUpTimestamp int64  `json:"shut_up_timestamp,omitempty"`
}

// Status is returned by get_status.
type Status struct {
	Online bool `json:"online"`
	Good   bool `json:"good"`
}

// VersionInfo is returned by get_version_info.
type VersionInfo struct {
	AppName         string `json:"app_name"`
	AppVersion      string `json:"app_version"`
	ProtocolVersion string `json:"protocol_version"`
}

// capability is the shared shape of the can_send_* responses.
type capability struct {
	Yes bool `json:"yes"`
}
