package napcat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kanocence/napcat-go/segment"
)

// Typed helpers for the OneBot 11 standard action set. Everything funnels
// through Client.Send; use Send directly for extended actions these helpers
// don't cover.

// call issues an action and decodes the response data field into T.
func call[T any](c *Client, ctx context.Context, action string, params any) (*T, error) {
	data, err := c.Send(ctx, action, params)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", action, err)
	}
	return &out, nil
}

// callVoid issues an action whose response data carries nothing useful.
func callVoid(c *Client, ctx context.Context, action string, params any) error {
	_, err := c.Send(ctx, action, params)
	return err
}

// --------------------------------------------------------------------------
// Messages
// --------------------------------------------------------------------------

// SendPrivateMsg sends a private message and returns the new message ID.
func (c *Client) SendPrivateMsg(ctx context.Context, userID int64, message segment.Segments) (*MessageID, error) {
	return call[MessageID](c, ctx, "send_private_msg", map[string]any{
		"user_id": userID,
		"message": message,
	})
}

// SendGroupMsg sends a group message and returns the new message ID.
func (c *Client) SendGroupMsg(ctx context.Context, groupID int64, message segment.Segments) (*MessageID, error) {
	return call[MessageID](c, ctx, "send_group_msg", map[string]any{
		"group_id": groupID,
		"message":  message,
	})
}

// SendMsg sends a message routed by messageType ("private" or "group").
func (c *Client) SendMsg(ctx context.Context, messageType string, userID, groupID int64, message segment.Segments) (*MessageID, error) {
	params := map[string]any{
		"message_type": messageType,
		"message":      message,
	}
	if userID != 0 {
		params["user_id"] = userID
	}
	if groupID != 0 {
		params["group_id"] = groupID
	}
	return call[MessageID](c, ctx, "send_msg", params)
}

// Reply answers a received message on whichever channel it arrived from.
func (c *Client) Reply(ctx context.Context, ev *MessageEvent, message segment.Segments) (*MessageID, error) {
	return c.SendMsg(ctx, ev.MessageType, ev.UserID, ev.GroupID, message)
}

// DeleteMsg recalls a previously sent message.
func (c *Client) DeleteMsg(ctx context.Context, messageID int64) error {
	return callVoid(c, ctx, "delete_msg", map[string]any{"message_id": messageID})
}

// GetMsg fetches a single message by ID.
func (c *Client) GetMsg(ctx context.Context, messageID int64) (*MsgDetail, error) {
	return call[MsgDetail](c, ctx, "get_msg", map[string]any{"message_id": messageID})
}

// GetForwardMsg fetches the content of a forwarded-messages node.
func (c *Client) GetForwardMsg(ctx context.Context, id string) (*ForwardMsg, error) {
	return call[ForwardMsg](c, ctx, "get_forward_msg", map[string]any{"id": id})
}

// SendLike sends profile likes to a user (at most 10 per day).
func (c *Client) SendLike(ctx context.Context, userID int64, times int) error {
	return callVoid(c, ctx, "send_like", map[string]any{"user_id": userID, "times": times})
}

// --------------------------------------------------------------------------
// Group Administration
// --------------------------------------------------------------------------

// SetGroupKick removes a member from a group.
func (c *Client) SetGroupKick(ctx context.Context, groupID, userID int64, rejectAddRequest bool) error {
	return callVoid(c, ctx, "set_group_kick", map[string]any{
		"group_id":           groupID,
		"user_id":            userID,
		"reject_add_request": rejectAddRequest,
	})
}

// SetGroupBan mutes a member for the given number of seconds; 0 unmutes.
func (c *Client) SetGroupBan(ctx context.Context, groupID, userID, duration int64) error {
	return callVoid(c, ctx, "set_group_ban", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"duration": duration,
	})
}

// SetGroupWholeBan mutes or unmutes the whole group.
func (c *Client) SetGroupWholeBan(ctx context.Context, groupID int64, enable bool) error {
	return callVoid(c, ctx, "set_group_whole_ban", map[string]any{
		"group_id": groupID,
		"enable":   enable,
	})
}

// SetGroupAdmin grants or revokes a member's admin role.
func (c *Client) SetGroupAdmin(ctx context.Context, groupID, userID int64, enable bool) error {
	return callVoid(c, ctx, "set_group_admin", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"enable":   enable,
	})
}

// SetGroupCard sets a member's group display card; empty clears it.
func (c *Client) SetGroupCard(ctx context.Context, groupID, userID int64, card string) error {
	return callVoid(c, ctx, "set_group_card", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"card":     card,
	})
}

// SetGroupName renames a group.
func (c *Client) SetGroupName(ctx context.Context, groupID int64, name string) error {
	return callVoid(c, ctx, "set_group_name", map[string]any{
		"group_id":   groupID,
		"group_name": name,
	})
}

// SetGroupLeave leaves a group; isDismiss additionally dissolves it when
// the bot is the owner.
func (c *Client) SetGroupLeave(ctx context.Context, groupID int64, isDismiss bool) error {
	return callVoid(c, ctx, "set_group_leave", map[string]any{
		"group_id":   groupID,
		"is_dismiss": isDismiss,
	})
}

// --------------------------------------------------------------------------
// Request Handling
// --------------------------------------------------------------------------

// SetFriendAddRequest answers a friend request by its event flag.
func (c *Client) SetFriendAddRequest(ctx context.Context, flag string, approve bool, remark string) error {
	return callVoid(c, ctx, "set_friend_add_request", map[string]any{
		"flag":    flag,
		"approve": approve,
		"remark":  remark,
	})
}

// SetGroupAddRequest answers a group join request or invite by its flag.
func (c *Client) SetGroupAddRequest(ctx context.Context, flag, subType string, approve bool, reason string) error {
	return callVoid(c, ctx, "set_group_add_request", map[string]any{
		"flag":     flag,
		"sub_type": subType,
		"approve":  approve,
		"reason":   reason,
	})
}

// --------------------------------------------------------------------------
// Account & Contact Queries
// --------------------------------------------------------------------------

// GetLoginInfo returns the bot account's own ID and nickname.
func (c *Client) GetLoginInfo(ctx context.Context) (*LoginInfo, error) {
	return call[LoginInfo](c, ctx, "get_login_info", struct{}{})
}

// GetStrangerInfo fetches profile info for an arbitrary user.
func (c *Client) GetStrangerInfo(ctx context.Context, userID int64, noCache bool) (*StrangerInfo, error) {
	return call[StrangerInfo](c, ctx, "get_stranger_info", map[string]any{
		"user_id":  userID,
		"no_cache": noCache,
	})
}

// GetFriendList returns the bot's friend roster.
func (c *Client) GetFriendList(ctx context.Context) ([]FriendInfo, error) {
	out, err := call[[]FriendInfo](c, ctx, "get_friend_list", struct{}{})
	if err != nil {
		return nil, err
	}
	return *out, nil
}

// GetGroupInfo fetches info about one group.
func (c *Client) GetGroupInfo(ctx context.Context, groupID int64, noCache bool) (*GroupInfo, error) {
	return call[GroupInfo](c, ctx, "get_group_info", map[string]any{
		"group_id": groupID,
		"no_cache": noCache,
	})
}

// GetGroupList returns all groups the bot is in.
func (c *Client) GetGroupList(ctx context.Context) ([]GroupInfo, error) {
	out, err := call[[]GroupInfo](c, ctx, "get_group_list", struct{}{})
	if err != nil {
		return nil, err
	}
	return *out, nil
}

// GetGroupMemberInfo fetches one member's info within a group.
func (c *Client) GetGroupMemberInfo(ctx context.Context, groupID, userID int64, noCache bool) (*GroupMemberInfo, error) {
	return call[GroupMemberInfo](c, ctx, "get_group_member_info", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"no_cache": noCache,
	})
}

// GetGroupMemberList returns all members of a group.
func (c *Client) GetGroupMemberList(ctx context.Context, groupID int64) ([]GroupMemberInfo, error) {
	out, err := call[[]GroupMemberInfo](c, ctx, "get_group_member_list", map[string]any{
		"group_id": groupID,
	})
	if err != nil {
		return nil, err
	}
	return *out, nil
}

// --------------------------------------------------------------------------
// Host Status
// --------------------------------------------------------------------------

// GetStatus reports whether the bot host is online and healthy.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	return call[Status](c, ctx, "get_status", struct{}{})
}

// GetVersionInfo reports the host application and protocol versions.
func (c *Client) GetVersionInfo(ctx context.Context) (*VersionInfo, error) {
	return call[VersionInfo](c, ctx, "get_version_info", struct{}{})
}

// CanSendImage reports whether the host supports sending images.
func (c *Client) CanSendImage(ctx context.Context) (bool, error) {
	out, err := call[capability](c, ctx, "can_send_image", struct{}{})
	if err != nil {
		return false, err
	}
	return out.Yes, nil
}

// CanSendRecord reports whether the host supports sending voice records.
func (c *Client) CanSendRecord(ctx context.Context) (bool, error) {
	out, err := call[capability](c, ctx, "can_send_record", struct{}{})
	if err != nil {
		return false, err
	}
	return out.Yes, nil
}
