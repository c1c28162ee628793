package zentrobot

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

type contextKey string

// ticketSuffixMax bounds the random channel-name suffix.
var ticketSuffixMax = 1000000

var hexColorPattern = regexp.MustCompile(`^#?[0-9A-Fa-f]{6}$`)

// truncate shortens the input string to a specified number of characters.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// ticketRandomSuffix returns the random number appended to ticket channel
// names. Not unique, just noise to keep names distinct.
func ticketRandomSuffix() int {
	return rand.Intn(ticketSuffixMax)
}

// parseHexColor parses a hex color string like "#FFA500" (leading '#'
// optional, case-insensitive) into its integer value.
func parseHexColor(s string) (int, error) {
	if !hexColorPattern.MatchString(s) {
		return 0, fmt.Errorf("invalid hex color: %q", s)
	}
	v, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex color: %q", s)
	}
	return int(v), nil
}

// ephemeralResponse returns an interaction response only the invoking user
// can see.
func ephemeralResponse(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: truncate(content, discordMaxMessageLength),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

// commandOptions maps an application command's options by name.
func commandOptions(
	data discordgo.ApplicationCommandInteractionData,
) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := make(
		map[string]*discordgo.ApplicationCommandInteractionDataOption,
		len(data.Options),
	)
	for _, opt := range data.Options {
		opts[opt.Name] = opt
	}
	return opts
}

// modalTextValue extracts the value of the text input with the given custom
// ID from a modal submission, or "" if it isn't present.
func modalTextValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		actionRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, component := range actionRow.Components {
			input, ok := component.(*discordgo.TextInput)
			if !ok {
				continue
			}
			if input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}

// discordModalResponse returns a discordgo.InteractionResponse containing
// a modal with the given text input components.
func discordModalResponse(
	customID string,
	title string,
	inputs ...discordgo.TextInput,
) *discordgo.InteractionResponse {
	components := make([]discordgo.MessageComponent, 0, len(inputs))
	for _, input := range inputs {
		components = append(
			components,
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{input},
			},
		)
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID,
			Title:      title,
			Components: components,
		},
	}
}
