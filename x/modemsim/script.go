package modemsim

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/compose-network/radiolink/x/vendor"
	"gopkg.in/yaml.v3"
)

var ErrInvalidScript = errors.New("modemsim: invalid script")

// Payload is one frame body. At most one field may be set; none means empty.
type Payload struct {
	Strings []string       `yaml:"strings,omitempty"`
	Ints    []int32        `yaml:"ints,omitempty"`
	String  *string        `yaml:"string,omitempty"`
	RawHex  string         `yaml:"raw_hex,omitempty"`
	OEM     map[string]any `yaml:"oem,omitempty"`
}

// Encode renders the payload in wire format.
func (p Payload) Encode() ([]byte, error) {
	switch {
	case p.Strings != nil:
		return codec.Encode(p.Strings)
	case p.Ints != nil:
		return codec.Encode(p.Ints)
	case p.String != nil:
		return codec.Encode(*p.String)
	case p.RawHex != "":
		raw, err := hex.DecodeString(p.RawHex)
		if err != nil {
			return nil, fmt.Errorf("failed to decode raw_hex: %w", err)
		}
		return codec.Encode(raw)
	case p.OEM != nil:
		raw, err := vendor.EncodeOEMStruct(p.OEM)
		if err != nil {
			return nil, fmt.Errorf("failed to encode oem struct: %w", err)
		}
		return codec.Encode(raw)
	default:
		return nil, nil
	}
}

func (p Payload) fieldsSet() int {
	n := 0
	if p.Strings != nil {
		n++
	}
	if p.Ints != nil {
		n++
	}
	if p.String != nil {
		n++
	}
	if p.RawHex != "" {
		n++
	}
	if p.OEM != nil {
		n++
	}
	return n
}

// Event is an unsolicited frame the simulator emits.
type Event struct {
	Code    protocol.EventCode `yaml:"code"`
	Payload `yaml:",inline"`
}

// Response is how the simulator answers one request code.
type Response struct {
	Error   protocol.ErrorCode `yaml:"error,omitempty"`
	Delay   time.Duration      `yaml:"delay,omitempty"`
	Silent  bool               `yaml:"silent,omitempty"`
	Payload `yaml:",inline"`
	// Events are emitted after the response.
	Events []Event `yaml:"events,omitempty"`
}

// Script drives a simulated modem.
type Script struct {
	Name      string                            `yaml:"name"`
	OnConnect []Event                           `yaml:"on_connect,omitempty"`
	Responses map[protocol.RequestCode]Response `yaml:"responses,omitempty"`
	// Default answers request codes missing from Responses. Nil means
	// REQUEST_NOT_SUPPORTED.
	Default *Response `yaml:"default,omitempty"`
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every payload sets at most one field and encodes.
func (s *Script) Validate() error {
	check := func(where string, p Payload) error {
		if p.fieldsSet() > 1 {
			return fmt.Errorf("%w: %s sets more than one payload field", ErrInvalidScript, where)
		}
		if _, err := p.Encode(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidScript, where, err)
		}
		return nil
	}
	for i, ev := range s.OnConnect {
		if err := check(fmt.Sprintf("on_connect[%d]", i), ev.Payload); err != nil {
			return err
		}
	}
	for code, r := range s.Responses {
		if err := check(code.String(), r.Payload); err != nil {
			return err
		}
		for i, ev := range r.Events {
			if err := check(fmt.Sprintf("%s.events[%d]", code, i), ev.Payload); err != nil {
				return err
			}
		}
	}
	if s.Default != nil {
		if err := check("default", s.Default.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Marshal renders the script back to YAML.
func (s *Script) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

func (s *Script) responseFor(code protocol.RequestCode) Response {
	if r, ok := s.Responses[code]; ok {
		return r
	}
	if s.Default != nil {
		return *s.Default
	}
	return Response{Error: protocol.ErrorRequestNotSupported}
}

// DefaultScript answers the common SIM and radio requests of a healthy modem
// and announces itself on connect.
func DefaultScript() *Script {
	imsi := "001010123456789"
	baseband := "SIM-BASEBAND-1.0"
	info := "8901260000000000001,310,260"
	return &Script{
		Name: "default",
		OnConnect: []Event{
			{Code: protocol.EventRILConnected, Payload: Payload{Ints: []int32{15}}},
			{Code: protocol.EventRadioStateChanged, Payload: Payload{Ints: []int32{10}}},
			{Code: protocol.EventCustomSIMInfo, Payload: Payload{String: &info}},
		},
		Responses: map[protocol.RequestCode]Response{
			protocol.RequestGetSIMStatus:           {Payload: Payload{Ints: []int32{1, 0}}},
			protocol.RequestEnterSIMPIN:            {Payload: Payload{Strings: []string{"3"}}},
			protocol.RequestGetIMSI:                {Payload: Payload{String: &imsi}},
			protocol.RequestBasebandVersion:        {Payload: Payload{String: &baseband}},
			protocol.RequestSignalStrength:         {Payload: Payload{Ints: []int32{20, 99}}},
			protocol.RequestSetUnsolResponseFilter: {},
			protocol.RequestRadioPower: {Events: []Event{
				{Code: protocol.EventRadioStateChanged, Payload: Payload{Ints: []int32{10}}},
			}},
		},
	}
}
