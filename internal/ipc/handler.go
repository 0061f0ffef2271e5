package ipc

import (
	"time"

	zlog "github.com/rs/zerolog/log"
)

// polling reports commands that clients send often enough to drown the log
func polling(cmd CommandType) bool {
	return cmd == CmdStatus || cmd == CmdTracks
}

// RequestLogger logs incoming requests
func RequestLogger(req *Request) {
	if polling(req.Cmd) {
		return
	}
	zlog.Debug().Str("cmd", string(req.Cmd)).Msg("[IPC] Command")
}

// ResponseLogger logs outgoing responses
func ResponseLogger(req *Request, resp *Response, duration time.Duration) {
	if polling(req.Cmd) {
		return
	}
	if resp.Success {
		zlog.Debug().Str("cmd", string(req.Cmd)).Dur("duration", duration).Msg("[IPC] Response: success")
	} else {
		zlog.Debug().Str("cmd", string(req.Cmd)).Dur("duration", duration).Msgf("[IPC] Response: error=%q", resp.Error)
	}
}
