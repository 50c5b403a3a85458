package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/leadflow/internal/channels"
	"github.com/wolfman30/leadflow/internal/leads"
)

const (
	toolSaveTaxID = "save_customer_tax_id"
	maxToolRounds = 3
)

var saveTaxIDTool = ToolDefinition{
	Name:        toolSaveTaxID,
	Description: "Store the customer's Brazilian tax id (CPF or CNPJ) on their lead record.",
	Parameters: []ToolParameter{
		{Name: "tax_id", Description: "CPF (11 digits) or CNPJ (14 digits), punctuation allowed", Required: true},
	},
}

// toolbox executes tool calls for one turn.
type toolbox struct {
	leads  leads.Repository
	leadID string
}

func (t *toolbox) definitions() []ToolDefinition {
	if t.leads == nil || t.leadID == "" {
		return nil
	}
	return []ToolDefinition{saveTaxIDTool}
}

// execute runs one call and returns the text handed back to the model.
// Validation problems are reported to the model rather than failing the turn.
func (t *toolbox) execute(ctx context.Context, call ToolCall) (string, error) {
	switch call.Name {
	case toolSaveTaxID:
		var args struct {
			TaxID string `json:"tax_id"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "invalid arguments: expected {\"tax_id\": \"...\"}", nil
		}
		digits := channels.DigitsOnly(args.TaxID)
		if !ValidTaxID(digits) {
			return "the tax id is not a valid CPF or CNPJ; ask the customer to check it", nil
		}
		if err := t.leads.SetTaxID(ctx, t.leadID, digits); err != nil {
			return "", fmt.Errorf("conversation: save tax id: %w", err)
		}
		return "saved", nil
	default:
		return fmt.Sprintf("unknown tool %q", call.Name), nil
	}
}

// ValidTaxID reports whether digits is a CPF or CNPJ with valid check digits.
func ValidTaxID(digits string) bool {
	switch len(digits) {
	case 11:
		return validCPF(digits)
	case 14:
		return validCNPJ(digits)
	default:
		return false
	}
}

func validCPF(d string) bool {
	if allSame(d) {
		return false
	}
	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(d[i]-'0') * (n + 1 - i)
		}
		check := sum * 10 % 11
		if check == 10 {
			check = 0
		}
		if check != int(d[n]-'0') {
			return false
		}
	}
	return true
}

func validCNPJ(d string) bool {
	if allSame(d) {
		return false
	}
	weights := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	for _, n := range []int{12, 13} {
		w := weights[13-n:]
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(d[i]-'0') * w[i]
		}
		check := sum % 11
		if check < 2 {
			check = 0
		} else {
			check = 11 - check
		}
		if check != int(d[n]-'0') {
			return false
		}
	}
	return true
}

func allSame(s string) bool {
	return strings.Count(s, s[:1]) == len(s)
}
