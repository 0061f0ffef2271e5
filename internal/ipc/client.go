package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/austinkregel/local-media/playlistd/internal/player"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrCommandFailed marks errors reported by the server for a command
var ErrCommandFailed = errors.New("command failed")

// ErrClosed is returned by calls on a client whose connection is gone
var ErrClosed = errors.New("connection closed")

const pushBacklog = 64

// Client talks to a running Server. Calls are serialized; status pushes are
// delivered on the channel Subscribe returns.
type Client struct {
	conn   net.Conn
	callMu sync.Mutex
	wmu    sync.Mutex

	responses chan *Response
	statuses  chan player.Status
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the server listening on socketPath
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", socketPath)
	}
	c := &Client{
		conn:      conn,
		responses: make(chan *Response, 1),
		statuses:  make(chan player.Status, pushBacklog),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close closes the connection
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Call sends cmd with data and decodes the response payload into out, if out
// is not nil. Cancelling ctx mid-call closes the client.
func (c *Client) Call(ctx context.Context, cmd CommandType, data, out interface{}) error {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	req, err := NewRequest(cmd, data)
	if err != nil {
		return err
	}
	encoded, err := EncodeRequest(req)
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}

	c.wmu.Lock()
	_, err = c.conn.Write(append(encoded, '\n'))
	c.wmu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "failed to send %s", cmd)
	}

	var resp *Response
	select {
	case resp = <-c.responses:
	case <-c.done:
		return errors.Wrapf(ErrClosed, "no response to %s", cmd)
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}

	if !resp.Success {
		return errors.Mark(errors.Newf("%s: %s", cmd, resp.Error), ErrCommandFailed)
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return errors.Wrapf(err, "failed to decode %s response", cmd)
		}
	}
	return nil
}

// Status returns the current player status
func (c *Client) Status(ctx context.Context) (player.Status, error) {
	var st player.Status
	err := c.Call(ctx, CmdStatus, nil, &st)
	return st, err
}

// Collections returns the names of the library's collections
func (c *Client) Collections(ctx context.Context) ([]string, error) {
	var resp CollectionsResponse
	if err := c.Call(ctx, CmdCollections, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Collections, nil
}

// Tracks returns the active collection and its tracks
func (c *Client) Tracks(ctx context.Context) (TracksResponse, error) {
	var resp TracksResponse
	err := c.Call(ctx, CmdTracks, nil, &resp)
	return resp, err
}

// Subscribe asks the server for status pushes and returns the channel they
// arrive on. The channel is closed with the connection.
func (c *Client) Subscribe(ctx context.Context) (<-chan player.Status, error) {
	if err := c.Call(ctx, CmdSubscribe, nil, nil); err != nil {
		return nil, err
	}
	return c.statuses, nil
}

func (c *Client) readLoop() {
	defer func() {
		close(c.done)
		close(c.statuses)
	}()

	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			zlog.Debug().Err(err).Msg("[IPC] Dropping malformed message")
			continue
		}

		if env.isPush() {
			if env.Type != PushStatus {
				continue
			}
			var st player.Status
			if err := json.Unmarshal(env.Data, &st); err != nil {
				zlog.Debug().Err(err).Msg("[IPC] Dropping malformed status push")
				continue
			}
			select {
			case c.statuses <- st:
			default:
				// slow consumer
			}
			continue
		}

		select {
		case c.responses <- &Response{Success: env.Success, Error: env.Error, Data: env.Data}:
		default:
			zlog.Debug().Msg("[IPC] Dropping unsolicited response")
		}
	}
}
