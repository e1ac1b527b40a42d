package generation

import "github.com/studydeck/studydeck-api/models"

const proposalSchemaName = "flashcard_proposals"

const systemPrompt = `You are a flashcard author. Read the user's text and ` +
	`produce between 3 and 10 flashcards covering its key facts. Each card ` +
	`has a short question or term on the front and a concise answer on the ` +
	`back. Fronts must be at most 200 characters and backs at most 500. ` +
	`Respond only with JSON matching the provided schema.`

// proposalSchema constrains the completion service to a strict
// {"flashcards": [{front, back}...]} payload mirroring the card limits the
// rest of the app enforces.
func proposalSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"flashcards": map[string]any{
				"type":     "array",
				"minItems": 3,
				"maxItems": 10,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"front": map[string]any{
							"type":      "string",
							"minLength": 1,
							"maxLength": models.MaxFrontLen,
						},
						"back": map[string]any{
							"type":      "string",
							"minLength": 1,
							"maxLength": models.MaxBackLen,
						},
					},
					"required":             []string{"front", "back"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"flashcards"},
		"additionalProperties": false,
	}
}
