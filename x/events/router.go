package events

import (
	"errors"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/decoder"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/rs/zerolog"
)

// Router decodes unsolicited payloads and dispatches them to a Registry.
type Router struct {
	chain    *decoder.Chain
	registry *Registry
	log      zerolog.Logger
}

func NewRouter(log zerolog.Logger, chain *decoder.Chain, registry *Registry) *Router {
	return &Router{
		chain:    chain,
		registry: registry,
		log:      log.With().Str("component", "event-router").Logger(),
	}
}

// Route decodes the payload at c for code and dispatches the value. Unknown
// codes and decode failures are logged and dropped; the error is returned
// for accounting only.
func (r *Router) Route(code protocol.EventCode, c *codec.Cursor, issuer decoder.Issuer) (Disposition, error) {
	value, err := r.chain.Decode(decoder.KindEvent, int32(code), c, issuer)
	if err != nil {
		if errors.Is(err, decoder.ErrUnknownCode) {
			r.log.Debug().Err(err).Int32("code", int32(code)).Msg("Dropping event with unknown code")
			return Unknown, err
		}
		r.log.Error().Err(err).Str("code", code.String()).Msg("Failed to decode event, dropping frame")
		return DecodeFailed, err
	}

	d := r.registry.Dispatch(code, value)
	if d == Dropped {
		r.log.Debug().Str("code", code.String()).Msg("Dropping event with no subscriber")
	}
	return d, nil
}

func (r *Router) Registry() *Registry { return r.registry }

func (r *Router) Chain() *decoder.Chain { return r.chain }
