package decoder

import (
	"fmt"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/protocol"
)

// BaseName is the name of the root chain returned by Base.
const BaseName = "base"

// Call is one entry of a GET_CURRENT_CALLS response.
type Call struct {
	Index  int32  `json:"index"`
	State  int32  `json:"state"`
	Number string `json:"number"`
}

// BaseTable returns the decoders for the standard request and event codes.
func BaseTable() *Table {
	t := NewTable()

	t.InstallResponse(protocol.RequestGetSIMStatus, Int32s)
	t.InstallResponse(protocol.RequestEnterSIMPIN, FirstString)
	t.InstallResponse(protocol.RequestEnterSIMPUK, FirstString)
	t.InstallResponse(protocol.RequestEnterSIMPIN2, FirstString)
	t.InstallResponse(protocol.RequestEnterSIMPUK2, FirstString)
	t.InstallResponse(protocol.RequestGetCurrentCalls, decodeCalls)
	t.InstallResponse(protocol.RequestDial, Void)
	t.InstallResponse(protocol.RequestGetIMSI, String)
	t.InstallResponse(protocol.RequestSignalStrength, Int32s)
	t.InstallResponse(protocol.RequestRadioPower, Void)
	t.InstallResponse(protocol.RequestBasebandVersion, String)
	t.InstallResponse(protocol.RequestOEMHookRaw, Raw)
	t.InstallResponse(protocol.RequestOEMHookStrings, Strings)
	t.InstallResponse(protocol.RequestSetUnsolResponseFilter, Void)

	t.InstallEvent(protocol.EventRadioStateChanged, Int32s)
	t.InstallEvent(protocol.EventCallStateChanged, Void)
	t.InstallEvent(protocol.EventVoiceNetworkStateChanged, Void)
	t.InstallEvent(protocol.EventNewSMS, String)
	t.InstallEvent(protocol.EventNITZTimeReceived, String)
	t.InstallEvent(protocol.EventSignalStrength, Int32s)
	t.InstallEvent(protocol.EventSTKSessionEnd, Void)
	t.InstallEvent(protocol.EventSTKProactiveCommand, String)
	t.InstallEvent(protocol.EventSTKEventNotify, String)
	t.InstallEvent(protocol.EventOEMHookRaw, Raw)
	t.InstallEvent(protocol.EventRILConnected, Int32s)
	t.InstallEvent(protocol.EventCustomSIMInfo, String)

	return t
}

// Base builds the root chain.
func Base() *Chain {
	return NewChain(BaseName, BaseTable(), nil)
}

func decodeCalls(_ *Context, c *codec.Cursor) (any, error) {
	n, err := c.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > c.Limits().MaxArrayLen {
		return nil, fmt.Errorf("%w: call count %d", codec.ErrMalformed, n)
	}

	calls := make([]Call, 0, n)
	for i := int32(0); i < n; i++ {
		var call Call
		if call.Index, err = c.ReadInt32(); err != nil {
			return nil, err
		}
		if call.State, err = c.ReadInt32(); err != nil {
			return nil, err
		}
		if call.Number, err = c.ReadString(); err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}
