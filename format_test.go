package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/salesforce-mcp-go/internal/salesforce"
)

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NAME", "TYPE"}, [][]string{
		{"Id", "id"},
		{"AnnualRevenue", "currency"},
	})

	assert.Equal(t, "NAME           TYPE\nId             id\nAnnualRevenue  currency\n", buf.String())
}

func TestRecordColumns(t *testing.T) {
	records := []salesforce.Record{
		{"attributes": map[string]any{"type": "Account"}, "Name": "Acme", "Id": "001"},
		{"Industry": "Banking", "Id": "002"},
	}

	assert.Equal(t, []string{"Id", "Industry", "Name"}, recordColumns(records))
	assert.Empty(t, recordColumns(nil))
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "Acme", "Acme"},
		{"number", float64(42), "42"},
		{"bool", true, "true"},
		{"relationship", map[string]any{"Name": "Parent"}, `{"Name":"Parent"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCell(tt.in))
		})
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}

func TestStatusf_Quiet(t *testing.T) {
	var buf bytes.Buffer

	cc := &CLIContext{Stderr: &buf}
	cc.Statusf("shown %d\n", 1)

	cc.Flags.Quiet = true
	cc.Statusf("hidden\n")

	assert.Equal(t, "shown 1\n", buf.String())
}

func TestPicklistSummary(t *testing.T) {
	assert.Equal(t, "Agriculture, Energy", picklistSummary([]salesforce.PicklistValue{
		{Value: "Agriculture", Active: true},
		{Value: "Banking", Active: false},
		{Value: "Energy", Active: true},
	}))
}
