package fulfillment

import "github.com/houseflow/lighthouse/internal/device"

const (
	typePrefix  = "action.devices.types."
	traitPrefix = "action.devices.traits."
)

var typeNames = map[device.Type]string{
	device.TypeLight:      "LIGHT",
	device.TypeOutlet:     "OUTLET",
	device.TypeSwitch:     "SWITCH",
	device.TypeGarage:     "GARAGE",
	device.TypeGate:       "GATE",
	device.TypeThermostat: "THERMOSTAT",
	device.TypeSensor:     "SENSOR",
}

var traitNames = map[device.Trait]string{
	device.TraitOnOff:              "OnOff",
	device.TraitBrightness:         "Brightness",
	device.TraitOpenClose:          "OpenClose",
	device.TraitTemperatureSetting: "TemperatureSetting",
	device.TraitSensorState:        "SensorState",
}

// AssistantType returns the assistant's name for t.
func AssistantType(t device.Type) string {
	if name, ok := typeNames[t]; ok {
		return typePrefix + name
	}
	return typePrefix + "SWITCH"
}

// AssistantTraits returns the assistant's names for traits, skipping any it
// does not know.
func AssistantTraits(traits []device.Trait) []string {
	out := make([]string, 0, len(traits))
	for _, t := range traits {
		if name, ok := traitNames[t]; ok {
			out = append(out, traitPrefix+name)
		}
	}
	return out
}

func syncDevice(d *device.Device) SyncDevice {
	return SyncDevice{
		ID:       d.ID,
		Type:     AssistantType(d.Type),
		Traits:   AssistantTraits(d.Traits),
		Name:     DeviceName{Name: d.Name},
		RoomHint: d.Room,
	}
}
