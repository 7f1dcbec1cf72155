package bridge

// Semantic actions accepted from the user-facing surfaces.
const (
	ActionTurnOn         = "TurnOn"
	ActionTurnOff        = "TurnOff"
	ActionSetBrightness  = "SetBrightness"
	ActionSetTemperature = "SetTemperature"
)

// actionVocabulary maps semantic actions to the firmware's wire names.
var actionVocabulary = map[string]string{
	ActionTurnOn:         "turn_on",
	ActionTurnOff:        "turn_off",
	ActionSetBrightness:  "set_brightness",
	ActionSetTemperature: "set_temperature",
}

// Command is the wire payload published to a device's command topic.
type Command struct {
	Action string `json:"action"`

	// Value carries the parameter for set_brightness / set_temperature.
	Value *int `json:"value,omitempty"`

	// Original preserves the source action when it was not recognised.
	Original string `json:"original,omitempty"`
}

// TranslateAction converts a semantic action to the firmware vocabulary.
//
// Unrecognised actions are not dropped: they translate to an "unknown"
// command carrying the original name, so newer app verbs still reach
// devices whose firmware may understand them. The caller is expected to
// log these.
//
// Parameters:
//   - action: Semantic action name
//   - value: Optional parameter (brightness percent, temperature)
//
// Returns:
//   - Command: Wire payload
//   - bool: false when the action was not recognised
func TranslateAction(action string, value *int) (Command, bool) {
	wire, ok := actionVocabulary[action]
	if !ok {
		return Command{Action: "unknown", Original: action, Value: value}, false
	}
	return Command{Action: wire, Value: value}, true
}
