package types

import "fmt"

// DefaultChatInstruction is used when a chat request carries no system instruction.
const DefaultChatInstruction = "You are a helpful and creative assistant."

// CharacterPrompt decorates prompt with the character's persona. A nil
// character returns prompt unchanged.
func CharacterPrompt(prompt string, c *Character) string {
	if c == nil {
		return prompt
	}
	return fmt.Sprintf("Generate for a character named %s, who is a %s %s. The desired style is %s. User prompt: %s",
		c.Name, c.Personality, c.Role, c.Style, prompt)
}

// PersonaInstruction builds the system instruction for conversations held in
// character. instruction falls back to DefaultChatInstruction.
func PersonaInstruction(instruction string, c *Character) string {
	if instruction == "" {
		instruction = DefaultChatInstruction
	}
	if c == nil {
		return instruction
	}
	return fmt.Sprintf("You are playing the role of %s, a %s %s. Your speech style should reflect this. The user is talking to you as this character. Keep your responses in character. Original system instruction: %s",
		c.Name, c.Personality, c.Role, instruction)
}

// SpeechText builds the TTS instruction for text spoken by c.
func SpeechText(text string, c *Character) string {
	if c != nil && c.VoiceType == VoiceRobotic {
		return "In a robotic voice, say: " + text
	}
	return "Say: " + text
}

// SpeechVoice returns the prebuilt voice for c, defaulting to Kore.
func SpeechVoice(c *Character) string {
	if c == nil {
		return PrebuiltKore
	}
	return c.VoiceType.PrebuiltVoice(PrebuiltKore)
}

// LiveVoice returns the prebuilt voice for a live conversation with c,
// defaulting to Zephyr.
func LiveVoice(c *Character) string {
	if c == nil {
		return PrebuiltZephyr
	}
	return c.VoiceType.PrebuiltVoice(PrebuiltZephyr)
}
