package extractor

import "fmt"

const systemPrompt = "You are an expert business analyst specialized in extracting software requirements from meeting transcriptions. You answer with a single JSON object and nothing else."

const promptTemplate = `Analyze the following transcription and identify all actionable software requirements.

Follow these instructions carefully:
1. Identify all explicit and implicit requirements. Look for phrases like "we need to", "the system should", "let's add", "it would be great if".
2. For each requirement, create a clear, concise summary that can be used as a Jira ticket title.
3. Provide a detailed description suitable for a developer.
4. Categorize the requirement type as one of: "feature", "bug", "task", "story", or "epic". Default to "task" if unsure.
5. Determine the priority as one of: "Low", "Medium", "High", or "Critical". Default to "Medium".
6. Extract any relevant labels.
7. List any acceptance criteria mentioned.
8. Provide a confidence score from 0.0 to 1.0 on how certain you are that this is an actionable requirement.

Return a single valid JSON object without markdown formatting. The object must have a single key "requirements" holding a list of requirement objects shaped like:
{
  "text": "The original text from the transcript that implies the requirement.",
  "summary": "A clear, concise title for the requirement.",
  "description": "A detailed description for developers, including context.",
  "type": "feature|bug|task|story|epic",
  "priority": "Low|Medium|High|Critical",
  "labels": ["label1", "label2"],
  "acceptance_criteria": ["criteria1", "criteria2"],
  "confidence": 0.9,
  "timestamp": "The approximate time mentioned in the transcript (e.g., [00:15:32]) if available."
}

--- TRANSCRIPT ---
%s
--- END TRANSCRIPT ---`

func buildPrompt(transcript string) string {
	return fmt.Sprintf(promptTemplate, transcript)
}
