package consultation

import (
	"encoding/json"
	"errors"
	"strings"
)

var errMalformedReply = errors.New("unparseable provider reply")

// providerReply is the JSON shape the provider is asked for. Only the
// message is trusted; completion claims are checked against the engine.
type providerReply struct {
	Message            string `json:"message"`
	AssessmentComplete *bool  `json:"assessment_complete"`
}

// parseReply extracts the patient-facing message from raw provider output.
// Plain prose is used verbatim. Text that looks like JSON but does not
// decode, or decodes without a message, is malformed.
func parseReply(raw string) (providerReply, error) {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return providerReply{}, errMalformedReply
	}

	if !strings.HasPrefix(text, "{") {
		return providerReply{Message: text}, nil
	}

	var reply providerReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return providerReply{}, errors.Join(errMalformedReply, err)
	}
	reply.Message = strings.TrimSpace(reply.Message)
	if reply.Message == "" {
		return providerReply{}, errMalformedReply
	}
	return reply, nil
}

// stripFences unwraps a markdown code block such as ```json ... ```.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	body := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], "{") {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	return strings.TrimSpace(body)
}
