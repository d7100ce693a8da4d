package grading

import "github.com/abhisek/deeplearn/internal/llm"

// Schema is the structured output contract for project grading.
var Schema = &llm.Schema{
	Name:        "project-feedback",
	Description: "Evaluation of a project submission against the reference solution",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"isCorrect": map[string]any{
				"type":        "boolean",
				"description": "Whether the submitted code is functionally equivalent to the reference solution",
			},
			"positiveFeedback": map[string]any{
				"type":        "string",
				"description": "Specific, encouraging feedback on what the learner did well",
			},
			"areasForImprovement": map[string]any{
				"type":        "string",
				"description": "Constructive feedback on errors or better practices",
			},
			"keyTakeaways": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Two or three of the most important points",
			},
			"suggestedSolution": map[string]any{
				"type":        "string",
				"description": "Corrected or improved version of the submitted code, code only",
			},
		},
		"required":             []any{"isCorrect", "positiveFeedback", "areasForImprovement", "keyTakeaways", "suggestedSolution"},
		"additionalProperties": false,
	},
}
