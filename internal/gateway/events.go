// Package gateway implements the real-time session relay: the WebSocket
// endpoint browsers connect to, the session registry mapping connections
// to authenticated agents, the chat relay, history replay, and the
// per-agent telemetry broadcaster.
package gateway

import (
	"time"
)

// Client → server event names.
const (
	EventLogin      = "login"
	EventChat       = "chat"
	EventFileUpdate = "fileUpdate"
	EventLogout     = "logout"
)

// Server → client event names.
const (
	EventLoginSuccess           = "loginSuccess"
	EventLoginError             = "loginError"
	EventLogoutSuccess          = "logoutSuccess"
	EventChatMessage            = "chatMessage"
	EventContainerStats         = "containerStats"
	EventFileUpdateNotification = "fileUpdateNotification"
	EventError                  = "error"
)

// Stable error codes for UI branching. Every other failure degrades
// silently instead of reaching the client.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeLoginError         = "LOGIN_ERROR"
	CodeChatError          = "CHAT_ERROR"
	CodeFileUpdateError    = "FILE_UPDATE_ERROR"
)

// ErrorBody is the error half of the event envelope.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Frame is one server → client event with its envelope. Every frame
// carries success, exactly one of data/error, and an ISO timestamp.
type Frame struct {
	Event     string     `json:"event"`
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp string     `json:"timestamp"`
}

// LoginSuccessData acknowledges a successful login.
type LoginSuccessData struct {
	Message   string `json:"message"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
}

// LogoutSuccessData acknowledges a logout. Agent fields are null when
// the connection was never authenticated.
type LogoutSuccessData struct {
	Message   string  `json:"message"`
	AgentID   *string `json:"agentId"`
	AgentName *string `json:"agentName"`
}

// ChatMessageData is one chat turn pushed to viewers. User turns carry
// Text; agent turns carry Response, which is either the parsed structured
// reply or the literal reply string.
type ChatMessageData struct {
	From      string `json:"from"`
	Text      string `json:"text,omitempty"`
	Response  any    `json:"response,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ContainerStatsData is one telemetry sample pushed to viewers.
type ContainerStatsData struct {
	Stats     any    `json:"stats"`
	Timestamp string `json:"timestamp"`
}

// FileUpdateData announces a file change made through one connection.
type FileUpdateData struct {
	SocketID  string `json:"socketId"`
	FilePath  string `json:"filePath"`
	Timestamp string `json:"timestamp"`
}

func successFrame(event string, data any) Frame {
	return Frame{
		Event:     event,
		Success:   true,
		Data:      data,
		Timestamp: isoNow(),
	}
}

func errorFrame(event, message, code string) Frame {
	return Frame{
		Event:     event,
		Success:   false,
		Error:     &ErrorBody{Message: message, Code: code},
		Timestamp: isoNow(),
	}
}

func isoNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Emitter delivers frames to live connections. Sending to a connection
// that is already gone is a logged no-op, never an error.
type Emitter interface {
	Send(connID string, frame Frame)
}
