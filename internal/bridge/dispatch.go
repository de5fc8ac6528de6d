package bridge

import (
	"fmt"
	"wc3-bridge/internal/protocol"

	"github.com/rs/zerolog"
)

type Handler func(env protocol.Envelope) error

// BestEffortDispatch routes decoded frames to handlers. Nothing a frame or a
// handler does can escape it: decode failures are dropped, handler errors and
// panics are logged, unknown tags are ignored.
type BestEffortDispatch struct {
	handlers map[string]Handler
	logger   zerolog.Logger
}

func NewBestEffortDispatch(logger zerolog.Logger) *BestEffortDispatch {
	return &BestEffortDispatch{
		handlers: make(map[string]Handler),
		logger:   logger.With().Str("component", "dispatch").Logger(),
	}
}

func (d *BestEffortDispatch) Register(kind string, h Handler) {
	d.handlers[kind] = h
}

// Dispatch handles one raw frame and reports whether a handler ran to completion.
func (d *BestEffortDispatch) Dispatch(raw []byte) bool {
	env, err := protocol.Decode(raw)
	if err != nil {
		d.logger.Debug().Err(err).Int("bytes", len(raw)).Msg("dropping undecodable frame")
		return false
	}

	h, ok := d.handlers[env.Kind]
	if !ok {
		d.logger.Trace().Str("kind", env.Kind).Msg("ignoring unhandled message")
		return false
	}

	if err := d.run(env, h); err != nil {
		d.logger.Warn().Err(err).Str("kind", env.Kind).Msg("message handler failed")
		return false
	}
	return true
}

func (d *BestEffortDispatch) run(env protocol.Envelope, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(env)
}
