package codec

// Absent is the length sentinel for a null string, byte array or array.
const Absent int32 = -1

// Limits bounds the lengths a cursor accepts and a writer produces.
type Limits struct {
	MaxFieldBytes int `mapstructure:"max_field_bytes" yaml:"max_field_bytes"`
	MaxArrayLen   int `mapstructure:"max_array_len" yaml:"max_array_len"`
}

// DefaultLimits returns limits suited for modem payloads.
func DefaultLimits() Limits {
	return Limits{
		MaxFieldBytes: 1 << 20,
		MaxArrayLen:   1 << 14,
	}
}

func (l Limits) normalized() Limits {
	d := DefaultLimits()
	if l.MaxFieldBytes <= 0 {
		l.MaxFieldBytes = d.MaxFieldBytes
	}
	if l.MaxArrayLen <= 0 {
		l.MaxArrayLen = d.MaxArrayLen
	}
	return l
}
