package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/austinkregel/local-media/playlistd/internal/player"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Server handles IPC communication with clients over a Unix socket. Requests
// and responses are newline-delimited JSON; subscribed clients additionally
// receive status push messages on the same connection.
type Server struct {
	socketPath string
	ctrl       *player.Controller
	listener   net.Listener
	mu         sync.Mutex
	clients    map[net.Conn]*client
	ready      chan struct{}
}

// client is one connection. Responses and pushes share the connection, so
// every write goes through wmu.
type client struct {
	conn        net.Conn
	wmu         sync.Mutex
	unsubscribe func()
}

func (c *client) write(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write(append(data, '\n'))
	return err
}

// NewServer creates a new IPC server
func NewServer(socketPath string, ctrl *player.Controller) *Server {
	return &Server{
		socketPath: socketPath,
		ctrl:       ctrl,
		clients:    make(map[net.Conn]*client),
		ready:      make(chan struct{}),
	}
}

// Ready is closed once the socket accepts connections
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Start listens on the socket and serves clients until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	// Remove a socket left behind by a previous run
	if err := os.RemoveAll(s.socketPath); err != nil {
		return errors.Wrap(err, "failed to remove existing socket")
	}

	zlog.Info().Msgf("[IPC] Creating socket at %s", s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errors.Wrap(err, "failed to listen on socket")
	}
	s.listener = listener

	// Socket is user-only
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return errors.Wrap(err, "failed to set socket permissions")
	}

	zlog.Info().Msg("[IPC] Server listening, waiting for connections...")
	close(s.ready)

	go s.acceptLoop(ctx)

	<-ctx.Done()

	zlog.Info().Msg("[IPC] Shutting down server...")

	s.mu.Lock()
	clientCount := len(s.clients)
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	zlog.Info().Msgf("[IPC] Closed %d client connections", clientCount)

	listener.Close()
	os.RemoveAll(s.socketPath)

	zlog.Info().Msg("[IPC] Server stopped")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			zlog.Warn().Err(err).Msg("[IPC] Accept error")
			continue
		}

		c := &client{conn: conn}
		s.mu.Lock()
		s.clients[conn] = c
		clientCount := len(s.clients)
		s.mu.Unlock()

		zlog.Debug().Msgf("[IPC] New client connection (active clients: %d)", clientCount)

		go s.handleConnection(ctx, c)
	}
}

func (s *Server) handleConnection(ctx context.Context, c *client) {
	defer func() {
		s.unsubscribe(c)
		s.mu.Lock()
		delete(s.clients, c.conn)
		s.mu.Unlock()
		c.conn.Close()
		zlog.Debug().Msg("[IPC] Client disconnected")
	}()

	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				zlog.Debug().Err(err).Msg("[IPC] Read error")
			}
			return
		}
		if len(line) <= 1 {
			continue
		}

		req, err := DecodeRequest(line)
		if err != nil {
			zlog.Warn().Err(err).Msg("[IPC] Invalid request format")
			if err := s.send(c, NewErrorResponse("invalid request format")); err != nil {
				return
			}
			continue
		}

		start := time.Now()
		RequestLogger(req)
		resp := s.handleRequest(ctx, c, req)
		ResponseLogger(req, resp, time.Since(start))

		if err := s.send(c, resp); err != nil {
			zlog.Debug().Err(err).Msg("[IPC] Send error")
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, c *client, req *Request) *Response {
	switch req.Cmd {
	case CmdPlay:
		var play PlayRequest
		if err := decodeOptional(req, &play); err != nil {
			return NewErrorResponse("invalid play request")
		}
		return s.result(s.ctrl.Play(play.ID))
	case CmdPause:
		return s.result(s.ctrl.Pause())
	case CmdResume:
		return s.result(s.ctrl.Resume())
	case CmdPlayPause:
		return s.result(s.ctrl.PlayPause())
	case CmdStop:
		return s.result(s.ctrl.Stop())
	case CmdNext:
		return s.result(s.ctrl.Next())
	case CmdPrev:
		return s.result(s.ctrl.Previous())
	case CmdSeek:
		var seek SeekRequest
		if err := decodeRequired(req, &seek); err != nil {
			return NewErrorResponse("invalid seek request")
		}
		return s.result(s.ctrl.Seek(time.Duration(seek.Position) * time.Millisecond))
	case CmdSeekBy:
		var seek SeekByRequest
		if err := decodeRequired(req, &seek); err != nil {
			return NewErrorResponse("invalid seekBy request")
		}
		return s.result(s.ctrl.SeekBy(time.Duration(seek.Delta) * time.Millisecond))
	case CmdVolume:
		var vol VolumeRequest
		if err := decodeRequired(req, &vol); err != nil {
			return NewErrorResponse("invalid volume request")
		}
		return s.result(s.ctrl.SetVolume(vol.Level))
	case CmdSetCollection:
		var coll CollectionRequest
		if err := decodeRequired(req, &coll); err != nil || coll.Name == "" {
			return NewErrorResponse("collection name is required")
		}
		return s.result(s.ctrl.SetCollection(ctx, coll.Name))
	case CmdSetPolicy:
		var pol PolicyRequest
		if err := decodeRequired(req, &pol); err != nil {
			return NewErrorResponse("invalid policy request")
		}
		p, err := player.ParsePolicy(pol.Policy)
		if err != nil {
			return s.result(err)
		}
		return s.result(s.ctrl.SetPolicy(p))
	case CmdStatus:
		return s.success(s.ctrl.Query())
	case CmdCollections:
		names, err := s.ctrl.Collections(ctx)
		if err != nil {
			return s.result(err)
		}
		return s.success(CollectionsResponse{Collections: names})
	case CmdTracks:
		return s.success(TracksResponse{
			Collection: s.ctrl.Query().Collection,
			Tracks:     s.ctrl.Tracks(),
		})
	case CmdSubscribe:
		s.subscribe(c)
		return s.success(SubscribeResponse{Subscribed: true})
	case CmdUnsubscribe:
		s.unsubscribe(c)
		return s.success(SubscribeResponse{Subscribed: false})
	default:
		return NewErrorResponse("unknown command")
	}
}

// subscribe starts pushing status updates to c. The first push carries the
// current status.
func (s *Server) subscribe(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.unsubscribe != nil {
		return
	}
	updates, cancel := s.ctrl.Subscribe()
	c.unsubscribe = cancel
	go s.pushLoop(c, updates)
}

func (s *Server) unsubscribe(c *client) {
	s.mu.Lock()
	cancel := c.unsubscribe
	c.unsubscribe = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Server) pushLoop(c *client, updates <-chan player.Status) {
	for st := range updates {
		msg, err := NewPushMessage(PushStatus, st)
		if err != nil {
			zlog.Error().Err(err).Msg("[IPC] Failed to encode status push")
			continue
		}
		if err := c.write(msg); err != nil {
			// The connection handler notices the broken connection and
			// cancels the subscription.
			return
		}
	}
}

func (s *Server) send(c *client, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (s *Server) result(err error) *Response {
	if err != nil {
		if errors.Is(err, player.ErrInvalidCommand) {
			zlog.Warn().Msgf("[IPC] Rejected command: %v", err)
		} else {
			zlog.Error().Err(err).Msg("[IPC] Command failed")
		}
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) success(data interface{}) *Response {
	resp, err := NewSuccessResponse(data)
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func decodeOptional(req *Request, v interface{}) error {
	if len(req.Data) == 0 || string(req.Data) == "null" {
		return nil
	}
	return json.Unmarshal(req.Data, v)
}

func decodeRequired(req *Request, v interface{}) error {
	if len(req.Data) == 0 {
		return errors.New("missing request data")
	}
	return json.Unmarshal(req.Data, v)
}
