// Package extract turns chunks into entity and relationship candidates via
// LLM extraction with JSON repair and heuristic fallbacks.
package extract

import "strings"

// Entity type labels the extraction prompt allows.
var EntityTypes = []string{
	"ORGANIZATION", "PERSON", "DOCUMENT", "LOCATION", "CONCEPT",
}

// Relation type labels the extraction prompt allows. Unknown labels are
// normalised to RELATED_TO during validation.
var RelationTypes = []string{
	"RELATED_TO", "PARTY_TO", "LOCATED_IN", "MENTIONS",
	"DEFINES", "FOUND_IN", "REFERENCES",
}

// RawEntity is one entity candidate as returned by the model.
type RawEntity struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

// RawRelation is one relationship candidate as returned by the model.
type RawRelation struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// rawExtraction is the JSON envelope the prompt asks for.
type rawExtraction struct {
	Entities  []RawEntity   `json:"entities"`
	Relations []RawRelation `json:"relations"`
}

const extractionSystemPrompt = `You extract entities and relationships from document text.

Return ONLY a JSON object with this shape:
{"entities": [{"name": "...", "type": "...", "description": "...", "aliases": ["..."]}],
 "relations": [{"source": "...", "target": "...", "type": "...", "description": "..."}]}

Rules:
- Entity types: ORGANIZATION, PERSON, DOCUMENT, LOCATION, CONCEPT.
- Relation types: RELATED_TO, PARTY_TO, LOCATED_IN, MENTIONS, DEFINES, FOUND_IN, REFERENCES.
- Use the full formal name as "name" and list shortened forms as aliases.
  Example: name "Fabrikam Construction Inc." with aliases ["Fabrikam", "Fabrikam Construction"].
- Every relation source and target must exactly match an extracted entity name.
- Relation descriptions are one short factual sentence stating how the two are connected.
- Extract only what the text states. No outside knowledge.`

// BuildPrompt renders the extraction prompt for one chunk of text.
func BuildPrompt(text string) string {
	var b strings.Builder
	b.WriteString(extractionSystemPrompt)
	b.WriteString("\n\nText:\n\"\"\"\n")
	b.WriteString(text)
	b.WriteString("\n\"\"\"\n\nJSON:")
	return b.String()
}

func validEntityType(t string) bool {
	for _, v := range EntityTypes {
		if v == t {
			return true
		}
	}
	return false
}

func normalizeRelationType(t string) string {
	t = strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(t, " ", "_")))
	for _, v := range RelationTypes {
		if v == t {
			return t
		}
	}
	return "RELATED_TO"
}
