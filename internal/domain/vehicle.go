package domain

import "fmt"

// VehicleType is the detector class assigned to a vehicle.
type VehicleType int

const (
	VehicleCar VehicleType = iota
	VehicleBus
	VehicleTruck
	VehicleMotorcycle
	VehicleBicycle
)

var vehicleNames = [...]string{
	VehicleCar:        "car",
	VehicleBus:        "bus",
	VehicleTruck:      "truck",
	VehicleMotorcycle: "motorcycle",
	VehicleBicycle:    "bicycle",
}

// VehicleTypes returns every vehicle type in display order.
func VehicleTypes() []VehicleType {
	return []VehicleType{VehicleCar, VehicleBus, VehicleTruck, VehicleMotorcycle, VehicleBicycle}
}

func (t VehicleType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("VehicleType(%d)", int(t))
	}
	return vehicleNames[t]
}

// Valid reports whether t is one of the five known vehicle types.
func (t VehicleType) Valid() bool {
	return t >= 0 && int(t) < len(vehicleNames)
}

// ParseVehicleType maps a lowercase class name to a VehicleType.
func ParseVehicleType(value string) (VehicleType, error) {
	for i, name := range vehicleNames {
		if name == value {
			return VehicleType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown vehicle type %q", value)
}

func (t VehicleType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid vehicle type %d", int(t))
	}
	return []byte(vehicleNames[t]), nil
}

func (t *VehicleType) UnmarshalText(text []byte) error {
	parsed, err := ParseVehicleType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// CongestionLevel is a coarse classification of intersection load.
type CongestionLevel int

const (
	CongestionLow CongestionLevel = iota
	CongestionMedium
	CongestionHigh
)

var congestionNames = [...]string{
	CongestionLow:    "low",
	CongestionMedium: "medium",
	CongestionHigh:   "high",
}

func (c CongestionLevel) String() string {
	if !c.Valid() {
		return fmt.Sprintf("CongestionLevel(%d)", int(c))
	}
	return congestionNames[c]
}

// Valid reports whether c is low, medium or high.
func (c CongestionLevel) Valid() bool {
	return c >= 0 && int(c) < len(congestionNames)
}

// ParseCongestionLevel maps "low", "medium" or "high" to a CongestionLevel.
func ParseCongestionLevel(value string) (CongestionLevel, error) {
	for i, name := range congestionNames {
		if name == value {
			return CongestionLevel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown congestion level %q", value)
}

func (c CongestionLevel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid congestion level %d", int(c))
	}
	return []byte(congestionNames[c]), nil
}

func (c *CongestionLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseCongestionLevel(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
