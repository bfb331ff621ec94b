package classifier

import (
	"fmt"
	"strings"
)

const defaultInstructions = `You are a halal food screening assistant supporting certification staff.

Split the supplied ingredient list into individual ingredients, keeping the order in which they appear. For each ingredient, assess its halal status from common sourcing and processing knowledge:
- HALAL when the ingredient is permissible regardless of source
- HARAM when the ingredient is prohibited (pork derivatives, alcohol as an ingredient, blood)
- MASHBOOH when the status depends on an unknown source or process (gelatin, emulsifiers, enzymes, glycerin, natural flavors)

Your confidence should reflect how certain the label is without further information from the supplier.`

const responseSpec = `Respond with a JSON object matching this exact structure:

{
  "ingredients": [
    {
      "name": "<ingredient as written>",
      "label": "HALAL | HARAM | MASHBOOH",
      "confidence": <0-100>,
      "category": "<ingredient category>",
      "reasoning": "<brief explanation>",
      "alternatives": ["<halal alternative>"],
      "references": ["<source>"]
    }
  ]
}

Field constraints:
- name: Unique within the response. Do not merge or split differently than the list.
- label: Exactly one of the listed values.
- confidence: Number from 0 to 100.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing
- Include every ingredient in the list, even common ones`

// ComposePrompt joins the classifier instructions with the fixed response
// format. A non-empty override replaces the default instructions.
func ComposePrompt(override string) string {
	instructions := defaultInstructions
	if s := strings.TrimSpace(override); s != "" {
		instructions = s
	}
	return instructions + "\n\n" + responseSpec
}

// userMessage renders the product portion of a request.
func userMessage(req Request) string {
	var b strings.Builder
	if req.ProductName != "" {
		fmt.Fprintf(&b, "Product: %s\n", req.ProductName)
	}
	if req.IngredientsText != "" {
		fmt.Fprintf(&b, "Ingredients: %s\n", strings.TrimSpace(req.IngredientsText))
	} else if req.IngredientsFile != nil {
		fmt.Fprintf(&b, "The ingredient list is in the attached file %q.\n", req.IngredientsFile.Filename)
	}
	return b.String()
}
