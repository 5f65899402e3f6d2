package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "whitespace only", input: "   ", expected: nil},
		{name: "single value", input: "http://localhost:3000", expected: []string{"http://localhost:3000"}},
		{name: "two values", input: "http://a, http://b", expected: []string{"http://a", "http://b"}},
		{name: "empty entries dropped", input: ",a,, b ,", expected: []string{"a", "b"}},
		{name: "only separators", input: ", ,", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}

func TestParseList_CustomSeparator(t *testing.T) {
	assert.Equal(t, []string{"alice", "bob"}, ParseList("alice | bob|", "|"))
	assert.Nil(t, ParseList("", "|"))
}
