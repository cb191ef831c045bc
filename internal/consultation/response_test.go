package consultation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantMessage  string
		wantComplete *bool
		wantErr      bool
	}{
		{
			name:         "json object",
			raw:          `{"message": "How severe is it?", "assessment_complete": false}`,
			wantMessage:  "How severe is it?",
			wantComplete: new(bool),
		},
		{
			name:        "fenced with language tag",
			raw:         "```json\n{\"message\": \"How severe is it?\"}\n```",
			wantMessage: "How severe is it?",
		},
		{
			name:        "fenced without language tag",
			raw:         "```\n{\"message\": \"How severe is it?\"}\n```",
			wantMessage: "How severe is it?",
		},
		{
			name:        "prose",
			raw:         "  How severe is it?  ",
			wantMessage: "How severe is it?",
		},
		{
			name:    "empty",
			raw:     "   ",
			wantErr: true,
		},
		{
			name:    "truncated json",
			raw:     `{"message": "How sev`,
			wantErr: true,
		},
		{
			name:    "json without message",
			raw:     `{"assessment_complete": true}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := parseReply(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, errMalformedReply)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMessage, reply.Message)
			assert.Equal(t, tt.wantComplete, reply.AssessmentComplete)
		})
	}
}
