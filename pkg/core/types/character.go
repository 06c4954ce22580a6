package types

import "fmt"

// VoiceType is the voice a character speaks with.
type VoiceType string

const (
	VoiceMalePidgin   VoiceType = "Male Pidgin (Deep)"
	VoiceFemalePidgin VoiceType = "Female Pidgin (Energetic)"
	VoiceChild        VoiceType = "Child (Friendly)"
	VoiceRobotic      VoiceType = "Robotic AI (Standard)"
)

// Prebuilt voice names understood by the speech models.
const (
	PrebuiltKore   = "Kore"
	PrebuiltPuck   = "Puck"
	PrebuiltZephyr = "Zephyr"
	PrebuiltCharon = "Charon"
)

var voiceMap = map[VoiceType]string{
	VoiceMalePidgin:   PrebuiltKore,
	VoiceFemalePidgin: PrebuiltPuck,
	VoiceChild:        PrebuiltZephyr,
	VoiceRobotic:      PrebuiltCharon,
}

// VoiceTypes lists every supported voice type in display order.
func VoiceTypes() []VoiceType {
	return []VoiceType{VoiceMalePidgin, VoiceFemalePidgin, VoiceChild, VoiceRobotic}
}

// Valid reports whether v is one of the supported voice types.
func (v VoiceType) Valid() bool {
	_, ok := voiceMap[v]
	return ok
}

// PrebuiltVoice returns the prebuilt voice for v, or fallback when v is unknown.
func (v VoiceType) PrebuiltVoice(fallback string) string {
	if name, ok := voiceMap[v]; ok {
		return name
	}
	return fallback
}

// Character is a persona applied to generation prompts, chat and live sessions.
type Character struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Personality string    `json:"personality"`
	VoiceType   VoiceType `json:"voice_type"`
	Style       string    `json:"style"`
}

// Validate checks the fields required to store a character.
func (c *Character) Validate() error {
	if c == nil {
		return fmt.Errorf("character is nil")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Role == "" {
		return fmt.Errorf("role is required")
	}
	if c.Personality == "" {
		return fmt.Errorf("personality is required")
	}
	if !c.VoiceType.Valid() {
		return fmt.Errorf("unsupported voice_type %q", c.VoiceType)
	}
	return nil
}
