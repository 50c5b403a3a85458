package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPhone(t *testing.T) {
	h1 := HashPhone("5511988887777")
	h2 := HashPhone("5511988887777")
	h3 := HashPhone("5511977776666")

	assert.Equal(t, h1, h2, "same input should produce same hash")
	assert.NotEqual(t, h1, h3, "different input should produce different hash")
	assert.Len(t, h1, 64, "SHA-256 hex should be 64 chars")
}

func TestScrubPII(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"email", "contact me at john@example.com please", "contact me at [EMAIL] please"},
		{"cpf", "my cpf is 529.982.247-25", "my cpf is [TAX_ID]"},
		{"cnpj", "cnpj 11.222.333/0001-81 ok", "cnpj [TAX_ID] ok"},
		{"phone", "call me at +55 11 98888-7777", "call me at [PHONE]"},
		{"no pii", "I want to book a cleaning", "I want to book a cleaning"},
		{"name kept", "My name is Ana Souza", "My name is Ana Souza"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ScrubPII(tt.input))
		})
	}
}
