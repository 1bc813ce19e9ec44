package controller

// Power source values of the Basic cluster.
const (
	PowerSourceMains   uint8 = 0x01
	PowerSourceBattery uint8 = 0x03
)

// Attributes are the locally cached application attribute values.
type Attributes struct {
	OnOff        bool
	PowerSource  uint8
	IdentifyTime uint16
	BatteryAlarm uint32
}

// DefaultAttributes returns the factory values.
func DefaultAttributes() Attributes {
	return Attributes{PowerSource: PowerSourceBattery}
}

// Reset restores the factory values.
func (a *Attributes) Reset() {
	*a = DefaultAttributes()
}
