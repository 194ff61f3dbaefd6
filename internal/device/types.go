package device

import (
	"slices"
	"time"
)

// Device is a registered piece of hardware that connects to the hub over
// the tunnel. Its ID doubles as the tunnel username.
type Device struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Type   Type   `json:"type"`

	// Traits lists what the device can do. Order is preserved.
	Traits []Trait `json:"traits"`

	Room string `json:"room,omitempty"`

	// PasswordHash is the Argon2 PHC hash of the device secret.
	PasswordHash string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a copy that shares no slices with d.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	c.Traits = slices.Clone(d.Traits)
	return &c
}

// HasTrait reports whether the device declares trait t.
func (d *Device) HasTrait(t Trait) bool {
	return slices.Contains(d.Traits, t)
}

// Type classifies a device for smart-home integrations.
type Type string

const (
	TypeLight      Type = "light"
	TypeOutlet     Type = "outlet"
	TypeSwitch     Type = "switch"
	TypeGarage     Type = "garage"
	TypeGate       Type = "gate"
	TypeThermostat Type = "thermostat"
	TypeSensor     Type = "sensor"
)

// AllTypes returns every known device type.
func AllTypes() []Type {
	return []Type{TypeLight, TypeOutlet, TypeSwitch, TypeGarage, TypeGate, TypeThermostat, TypeSensor}
}

// Trait is a capability a device exposes.
type Trait string

const (
	TraitOnOff              Trait = "on_off"
	TraitBrightness         Trait = "brightness"
	TraitOpenClose          Trait = "open_close"
	TraitTemperatureSetting Trait = "temperature_setting"
	TraitSensorState        Trait = "sensor_state"
)

// AllTraits returns every known trait.
func AllTraits() []Trait {
	return []Trait{TraitOnOff, TraitBrightness, TraitOpenClose, TraitTemperatureSetting, TraitSensorState}
}
