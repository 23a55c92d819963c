package protocol

import "fmt"

// RequestCode identifies an outbound command. Responses are decoded by the
// code of the request they answer.
type RequestCode int32

const (
	RequestGetSIMStatus           RequestCode = 1
	RequestEnterSIMPIN            RequestCode = 2
	RequestEnterSIMPUK            RequestCode = 3
	RequestEnterSIMPIN2           RequestCode = 4
	RequestEnterSIMPUK2           RequestCode = 5
	RequestGetCurrentCalls        RequestCode = 9
	RequestDial                   RequestCode = 10
	RequestGetIMSI                RequestCode = 11
	RequestSignalStrength         RequestCode = 19
	RequestRadioPower             RequestCode = 23
	RequestBasebandVersion        RequestCode = 51
	RequestOEMHookRaw             RequestCode = 59
	RequestOEMHookStrings         RequestCode = 60
	RequestSetUnsolResponseFilter RequestCode = 139
)

var requestNames = map[RequestCode]string{
	RequestGetSIMStatus:           "GET_SIM_STATUS",
	RequestEnterSIMPIN:            "ENTER_SIM_PIN",
	RequestEnterSIMPUK:            "ENTER_SIM_PUK",
	RequestEnterSIMPIN2:           "ENTER_SIM_PIN2",
	RequestEnterSIMPUK2:           "ENTER_SIM_PUK2",
	RequestGetCurrentCalls:        "GET_CURRENT_CALLS",
	RequestDial:                   "DIAL",
	RequestGetIMSI:                "GET_IMSI",
	RequestSignalStrength:         "SIGNAL_STRENGTH",
	RequestRadioPower:             "RADIO_POWER",
	RequestBasebandVersion:        "BASEBAND_VERSION",
	RequestOEMHookRaw:             "OEM_HOOK_RAW",
	RequestOEMHookStrings:         "OEM_HOOK_STRINGS",
	RequestSetUnsolResponseFilter: "SET_UNSOL_RESPONSE_FILTER",
}

func (c RequestCode) String() string {
	if n, ok := requestNames[c]; ok {
		return n
	}
	return fmt.Sprintf("REQUEST_%d", int32(c))
}

// EventCode identifies an unsolicited frame.
type EventCode int32

const (
	EventRadioStateChanged        EventCode = 1000
	EventCallStateChanged         EventCode = 1001
	EventVoiceNetworkStateChanged EventCode = 1002
	EventNewSMS                   EventCode = 1003
	EventNITZTimeReceived         EventCode = 1008
	EventSignalStrength           EventCode = 1009
	EventSTKSessionEnd            EventCode = 1012
	EventSTKProactiveCommand      EventCode = 1013
	EventSTKEventNotify           EventCode = 1014
	EventOEMHookRaw               EventCode = 1028
	EventRILConnected             EventCode = 1034

	// EventCustomSIMInfo is a vendor extension outside the base range.
	EventCustomSIMInfo EventCode = 1550
)

var eventNames = map[EventCode]string{
	EventRadioStateChanged:        "RADIO_STATE_CHANGED",
	EventCallStateChanged:         "CALL_STATE_CHANGED",
	EventVoiceNetworkStateChanged: "VOICE_NETWORK_STATE_CHANGED",
	EventNewSMS:                   "NEW_SMS",
	EventNITZTimeReceived:         "NITZ_TIME_RECEIVED",
	EventSignalStrength:           "SIGNAL_STRENGTH",
	EventSTKSessionEnd:            "STK_SESSION_END",
	EventSTKProactiveCommand:      "STK_PROACTIVE_COMMAND",
	EventSTKEventNotify:           "STK_EVENT_NOTIFY",
	EventOEMHookRaw:               "OEM_HOOK_RAW",
	EventRILConnected:             "RIL_CONNECTED",
	EventCustomSIMInfo:            "CUSTOM_SIM_INFO",
}

func (c EventCode) String() string {
	if n, ok := eventNames[c]; ok {
		return n
	}
	return fmt.Sprintf("EVENT_%d", int32(c))
}

// DefaultReplayCodes are the events whose latest occurrence is kept until
// someone subscribes. They carry handshake state that must not be lost.
func DefaultReplayCodes() []EventCode {
	return []EventCode{
		EventNITZTimeReceived,
		EventSTKProactiveCommand,
		EventSTKEventNotify,
		EventRILConnected,
		EventCustomSIMInfo,
	}
}

// ErrorCode is the error field of a solicited frame.
type ErrorCode int32

const (
	ErrorNone                ErrorCode = 0
	ErrorRadioNotAvailable   ErrorCode = 1
	ErrorGenericFailure      ErrorCode = 2
	ErrorPasswordIncorrect   ErrorCode = 3
	ErrorSIMPIN2             ErrorCode = 4
	ErrorSIMPUK2             ErrorCode = 5
	ErrorRequestNotSupported ErrorCode = 6
	ErrorCancelled           ErrorCode = 7
	ErrorInvalidArguments    ErrorCode = 44
)

var errorNames = map[ErrorCode]string{
	ErrorNone:                "NONE",
	ErrorRadioNotAvailable:   "RADIO_NOT_AVAILABLE",
	ErrorGenericFailure:      "GENERIC_FAILURE",
	ErrorPasswordIncorrect:   "PASSWORD_INCORRECT",
	ErrorSIMPIN2:             "SIM_PIN2",
	ErrorSIMPUK2:             "SIM_PUK2",
	ErrorRequestNotSupported: "REQUEST_NOT_SUPPORTED",
	ErrorCancelled:           "CANCELLED",
	ErrorInvalidArguments:    "INVALID_ARGUMENTS",
}

func (c ErrorCode) String() string {
	if n, ok := errorNames[c]; ok {
		return n
	}
	return fmt.Sprintf("ERROR_%d", int32(c))
}
