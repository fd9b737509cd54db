package main

import (
	"collab-lab/domain/event"
	"encoding/json"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line  string
		event string
		data  any
		ok    bool
	}{
		{line: "hello", event: "messageSend", data: map[string]string{"message": "hello"}, ok: true},
		{line: "  ", ok: false},
		{line: "/run python", event: "executeCode", data: map[string]string{"lang": "python"}, ok: true},
		{line: "/run", event: "executeCode", data: map[string]string{"lang": ""}, ok: false},
		{line: "/code c int main(){}", event: "changedCode", data: map[string]string{"lang": "c", "code": "int main(){}"}, ok: true},
		{line: "/get java", event: "codeRequest", data: map[string]string{"lang": "java"}, ok: true},
		{line: "/files", event: "filesList", data: map[string]string{}, ok: true},
		{line: "/search build", event: "searchMessages", data: map[string]string{"query": "build"}, ok: true},
		{line: "/quit", event: "explicitDisconnect", data: map[string]string{}, ok: true},
		{line: "/dance", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			name, data, ok := parseLine(tt.line)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.event, name)
				require.Equal(t, tt.data, data)
			}
		})
	}
}

func TestRender(t *testing.T) {
	req := require.New(t)
	color.Disable()

	data, err := json.Marshal(event.CodeOutput{Stdout: "hi\n"})
	req.NoError(err)
	req.Equal("output:\nhi\n", render(event.Envelope{Event: "codeOutput", Data: data}))

	req.Equal("newFilesList []", render(event.Envelope{Event: "newFilesList", Data: json.RawMessage(`[]`)}))
}
