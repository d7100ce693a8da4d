package llm

// recommendationSchema mirrors the shape the recommendation consumer asks for.
var recommendationSchema = &Schema{
	Name:        "learning-recommendation",
	Description: "A next-step suggestion for a learner",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recommendation": map[string]any{"type": "string"},
		},
		"required":             []any{"recommendation"},
		"additionalProperties": false,
	},
}

// verdictSchema mirrors the grading consumer's response shape.
var verdictSchema = &Schema{
	Name:        "project-feedback",
	Description: "Grading verdict for a project submission",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"isCorrect":           map[string]any{"type": "boolean"},
			"positiveFeedback":    map[string]any{"type": "string"},
			"areasForImprovement": map[string]any{"type": "string"},
			"keyTakeaways": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"suggestedSolution": map[string]any{"type": "string"},
			"confidence":        map[string]any{"type": "string", "enum": []any{"low", "medium", "high"}},
		},
		"required": []any{"isCorrect", "positiveFeedback", "areasForImprovement", "keyTakeaways", "suggestedSolution"},
	},
}
