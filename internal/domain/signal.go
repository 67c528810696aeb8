package domain

import "fmt"

// SignalStatus is the lamp currently lit on a traffic light.
type SignalStatus int

const (
	SignalRed SignalStatus = iota
	SignalGreen
	SignalYellow
)

var signalNames = [...]string{
	SignalRed:    "red",
	SignalGreen:  "green",
	SignalYellow: "yellow",
}

// Next returns the status that follows s in the red→green→yellow→red cycle.
func (s SignalStatus) Next() SignalStatus {
	switch s {
	case SignalRed:
		return SignalGreen
	case SignalGreen:
		return SignalYellow
	default:
		return SignalRed
	}
}

func (s SignalStatus) String() string {
	if s < 0 || int(s) >= len(signalNames) {
		return fmt.Sprintf("SignalStatus(%d)", int(s))
	}
	return signalNames[s]
}

// Valid reports whether s is one of the three known statuses.
func (s SignalStatus) Valid() bool {
	return s >= 0 && int(s) < len(signalNames)
}

// ParseSignalStatus maps "red", "yellow" or "green" to a SignalStatus.
func ParseSignalStatus(value string) (SignalStatus, error) {
	for i, name := range signalNames {
		if name == value {
			return SignalStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown signal status %q", value)
}

func (s SignalStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid signal status %d", int(s))
	}
	return []byte(signalNames[s]), nil
}

func (s *SignalStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseSignalStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
