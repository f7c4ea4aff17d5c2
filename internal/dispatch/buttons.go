package dispatch

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rodge1109/pagebot/internal/models"
)

// buttonTokenPattern matches [Label] (postback) and [Label](url) (link)
// tokens embedded in reply text.
var buttonTokenPattern = regexp.MustCompile(`\[([^\]]+)\](?:\(([^)]+)\))?`)

var payloadSanitizer = regexp.MustCompile(`[^A-Z0-9]+`)

// chooseOptionText replaces reply text that was nothing but tokens.
const chooseOptionText = "Please choose an option:"

// ExtractButtons lifts up to three bracket tokens out of the text into
// buttons, strips the token substrings and collapses the remaining
// whitespace. Text that collapses to nothing becomes a generic chooser
// prompt.
func ExtractButtons(text string) (string, []models.Button) {
	matches := buttonTokenPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil
	}
	if len(matches) > models.MaxReplyButtons {
		matches = matches[:models.MaxReplyButtons]
	}

	buttons := make([]models.Button, 0, len(matches))
	for i, m := range matches {
		title := strings.TrimSpace(m[1])
		if url := strings.TrimSpace(m[2]); url != "" {
			buttons = append(buttons, models.Button{Type: models.ButtonURL, Title: title, URL: url})
			continue
		}
		buttons = append(buttons, models.Button{Type: models.ButtonPostback, Title: title, Payload: buttonPayload(title, i)})
	}

	clean := buttonTokenPattern.ReplaceAllString(text, "")
	clean = strings.TrimSpace(strings.Join(strings.Fields(clean), " "))
	if clean == "" {
		clean = chooseOptionText
	}
	return clean, buttons
}

// buttonPayload derives a stable postback payload from the button title.
func buttonPayload(title string, idx int) string {
	sanitized := payloadSanitizer.ReplaceAllString(strings.ToUpper(title), "_")
	sanitized = strings.Trim(sanitized, "_")
	return "BTN_" + sanitized + "_" + strconv.Itoa(idx)
}
