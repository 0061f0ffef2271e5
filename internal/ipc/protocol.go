package ipc

import (
	"encoding/json"

	"github.com/austinkregel/local-media/playlistd/internal/player"
	"github.com/austinkregel/local-media/playlistd/internal/types"
	"github.com/cockroachdb/errors"
)

// CommandType represents the type of IPC command
type CommandType string

const (
	CmdPlay          CommandType = "play"
	CmdPause         CommandType = "pause"
	CmdResume        CommandType = "resume"
	CmdPlayPause     CommandType = "playPause"
	CmdStop          CommandType = "stop"
	CmdNext          CommandType = "next"
	CmdPrev          CommandType = "prev"
	CmdSeek          CommandType = "seek"
	CmdSeekBy        CommandType = "seekBy"
	CmdVolume        CommandType = "volume"
	CmdSetCollection CommandType = "setCollection"
	CmdSetPolicy     CommandType = "setPolicy"
	CmdStatus        CommandType = "status"

	// Library commands
	CmdCollections CommandType = "collections"
	CmdTracks      CommandType = "tracks"

	// Status streaming
	CmdSubscribe   CommandType = "subscribe"
	CmdUnsubscribe CommandType = "unsubscribe"
)

// PushStatus is the type of push message carrying a player.Status
const PushStatus = "status"

// PushMessage represents a server-initiated message (no request needed)
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request represents a client request
type Request struct {
	Cmd  CommandType     `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// PlayRequest is the data for a play command. An empty ID resumes or starts
// the current queue.
type PlayRequest struct {
	ID string `json:"id,omitempty"`
}

// SeekRequest is the data for a seek command
type SeekRequest struct {
	Position int64 `json:"position"` // milliseconds
}

// SeekByRequest is the data for a seekBy command
type SeekByRequest struct {
	Delta int64 `json:"delta"` // milliseconds, negative seeks backwards
}

// VolumeRequest is the data for a volume command
type VolumeRequest struct {
	Level float64 `json:"level"` // 0.0 - 1.0
}

// CollectionRequest is the data for a setCollection command
type CollectionRequest struct {
	Name string `json:"name"`
}

// PolicyRequest is the data for a setPolicy command
type PolicyRequest struct {
	Policy string `json:"policy"`
}

// StatusResponse is the response to the status command and the payload of
// status push messages
type StatusResponse = player.Status

// CollectionsResponse lists the collections the library offers
type CollectionsResponse struct {
	Collections []string `json:"collections"`
}

// TracksResponse lists the tracks of the active collection
type TracksResponse struct {
	Collection string        `json:"collection"`
	Tracks     []types.Track `json:"tracks"`
}

// SubscribeResponse acknowledges a subscribe or unsubscribe command
type SubscribeResponse struct {
	Subscribed bool `json:"subscribed"`
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errors.Wrap(err, "failed to decode request")
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}
	return &resp, nil
}

// NewRequest creates a request, encoding data as its payload
func NewRequest(cmd CommandType, data interface{}) (*Request, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return &Request{Cmd: cmd, Data: raw}, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (*Response, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return &Response{
		Success: true,
		Data:    raw,
	}, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage creates a push message for streaming data
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(PushMessage{
		Type: msgType,
		Data: raw,
	})
}

func marshalData(data interface{}) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode payload")
	}
	return raw, nil
}

// envelope decodes any line the server writes: responses carry "success",
// push messages carry "type".
type envelope struct {
	Type    string          `json:"type,omitempty"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e envelope) isPush() bool {
	return e.Type != ""
}
