package consultation

import (
	"fmt"
	"strings"

	"medical-intake-agent/internal/assessment"
	"medical-intake-agent/internal/memory"
)

const (
	// attendantGuidelines is the fixed behavioural brief sent with every turn.
	attendantGuidelines = `You are a professional medical intake attendant conducting a structured neurological and hearing assessment.
Your job is to collect information for a clinician's report. You never diagnose and never recommend treatment.

Guidelines:
- Be professional, warm and supportive.
- Briefly acknowledge what the patient just told you before asking anything new.
- Ask exactly one focused follow-up question per reply.
- Do not repeat questions the patient has already answered.
- If the patient goes off-topic, gently steer the conversation back to their health.
- If the patient describes an emergency, tell them to contact emergency services immediately.`

	// FallbackMessage is returned when the generation provider cannot be
	// reached. The conversation continues with the next patient turn.
	FallbackMessage = "I apologize, but I'm having trouble processing your request right now. Could you please repeat that or tell me a bit more about your symptoms?"

	// CompletionNote is appended to the reply of the turn that completes
	// the assessment.
	CompletionNote = "Thank you, I have gathered enough information for a comprehensive assessment. Your report can now be generated for review by a clinician."

	jsonReplyFormat = `Respond with ONLY a JSON object, without markdown or any other text:
{"message": "your reply to the patient", "assessment_complete": false}
Set "assessment_complete" to true only when every key area has been covered.`

	plainReplyFormat = `Respond with only your reply to the patient as plain text.`
)

var stageGuidance = map[assessment.Stage]string{
	assessment.StageInitial: `Current stage: initial assessment.
- Find out the main reason the patient is seeking help.
- Start collecting basic information about their symptoms.`,
	assessment.StageSymptomCollection: `Current stage: symptom collection.
- Gather detailed symptom descriptions: severity, duration and frequency.
- Ask about triggers and patterns, and how the symptoms affect daily life.`,
	assessment.StageMedicalHistory: `Current stage: medical history.
- Ask about previous conditions, especially neurological ones.
- Ask about current medications, past treatments and family medical history.`,
	assessment.StageRiskAssessment: `Current stage: risk assessment.
- Ask about lifestyle, environmental and occupational risk factors.
- Explore stress levels and hearing-related exposure such as noise.`,
	assessment.StageReadyForSummary: `Current stage: final review.
- Ask any remaining clarifying questions about areas not yet covered.
- Let the patient add anything they feel is important.`,
	assessment.StageComplete: `Current stage: complete.
- Thank the patient and let them know the information will be summarised for a clinician.`,
}

type turnPrompt struct {
	Window        []memory.Turn
	UserContext   assessment.UserContext
	Progress      assessment.Progress
	NextQuestions []string
	JSONReply     bool
}

func buildTurnPrompt(p turnPrompt) string {
	var sb strings.Builder

	sb.WriteString(attendantGuidelines)
	sb.WriteString("\n\n")
	sb.WriteString(stageGuidance[p.Progress.Stage])
	sb.WriteString("\n\n")

	if profile := formatUserContext(p.UserContext); profile != "" {
		sb.WriteString("Patient profile:\n")
		sb.WriteString(profile)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Assessment progress: %d/100.\n", p.Progress.CompletionScore)
	if len(p.Progress.MissingAreas) > 0 {
		fmt.Fprintf(&sb, "Areas not yet covered: %s.\n", strings.Join(p.Progress.MissingAreas, ", "))
	}
	if len(p.NextQuestions) > 0 {
		sb.WriteString("Suggested follow-up questions (pick at most one):\n")
		for _, q := range p.NextQuestions {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
	}

	sb.WriteString("\nConversation so far:\n")
	for _, t := range p.Window {
		fmt.Fprintf(&sb, "%s: %s\n", speaker(Role(t.Role)), t.Content)
	}

	sb.WriteString("\n")
	if p.JSONReply {
		sb.WriteString(jsonReplyFormat)
	} else {
		sb.WriteString(plainReplyFormat)
	}
	return sb.String()
}

func speaker(r Role) string {
	if r == RoleAttendant {
		return "Attendant"
	}
	return "Patient"
}

func formatUserContext(uc assessment.UserContext) string {
	if uc.IsEmpty() {
		return ""
	}

	var sb strings.Builder
	if uc.Name != "" {
		fmt.Fprintf(&sb, "- Name: %s\n", uc.Name)
	}
	if uc.Age > 0 {
		fmt.Fprintf(&sb, "- Age: %d\n", uc.Age)
	}
	if uc.Gender != "" {
		fmt.Fprintf(&sb, "- Gender: %s\n", uc.Gender)
	}
	if len(uc.MedicalHistory) > 0 {
		fmt.Fprintf(&sb, "- Known history: %s\n", strings.Join(uc.MedicalHistory, "; "))
	}
	if uc.Notes != "" {
		fmt.Fprintf(&sb, "- Notes: %s\n", uc.Notes)
	}
	return sb.String()
}
