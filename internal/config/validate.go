package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hay-kot/criterio"

	"medical-intake-agent/internal/assessment"
)

// Allowed transcript window sizes, in turns.
const (
	minHistoryWindow = 8
	maxHistoryWindow = 15
)

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("server.port", c.Server.Port, required),
		criterio.Run("database.url", c.Database.URL, required),
		criterio.Run("openai.chat_model", c.OpenAI.ChatModel, required),
		criterio.Run("memory.driver", c.Memory.Driver, oneOf("memory", "redis")),
		c.validateMemory(),
		c.validateTelegram(),
		c.Engine.Validate(),
	)
}

func (c *Config) validateMemory() error {
	var errs criterio.FieldErrorsBuilder
	if c.Memory.Driver == "redis" && c.Memory.RedisURL == "" {
		errs = errs.Append("memory.redis_url", errors.New("required for the redis driver"))
	}
	if c.Memory.TTL < 0 {
		errs = errs.Append("memory.ttl", errors.New("must not be negative"))
	}
	return errs.ToError()
}

func (c *Config) validateTelegram() error {
	if c.Telegram.Token == "" {
		return nil
	}
	if c.Telegram.DoctorChatID == 0 {
		return criterio.NewFieldErrors("telegram.doctor_chat_id", errors.New("required when a bot token is set"))
	}
	return nil
}

// Validate checks the engine tunables.
func (e EngineConfig) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if e.TurnCeiling < 1 {
		errs = errs.Append("engine.turn_ceiling", errors.New("must be at least 1"))
	}
	if e.HistoryWindow < minHistoryWindow || e.HistoryWindow > maxHistoryWindow {
		errs = errs.Append("engine.history_window",
			fmt.Errorf("must be between %d and %d", minHistoryWindow, maxHistoryWindow))
	}
	if e.MinReportTurns < 1 || e.MinReportTurns > e.TurnCeiling {
		errs = errs.Append("engine.min_report_turns", errors.New("must be between 1 and turn_ceiling"))
	}
	if e.ProviderTimeout <= 0 {
		errs = errs.Append("engine.provider_timeout", errors.New("must be positive"))
	}

	for _, fe := range validateRules(e.Rules) {
		errs = errs.Append(fe.field, fe.err)
	}
	return errs.ToError()
}

type fieldErr struct {
	field string
	err   error
}

func validateRules(r assessment.Rules) []fieldErr {
	var out []fieldErr
	add := func(field string, err error) {
		out = append(out, fieldErr{"engine.rules." + field, err})
	}

	if r.PointsPerTurn < 0 || r.BaseCap < 0 || r.ContentCap < 0 {
		add("base", errors.New("points and caps must not be negative"))
	}

	weights := r.Weights.All()
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if weights[name] < 0 {
			add("weights."+name, errors.New("must not be negative"))
		}
	}

	w := r.Weights
	if w.OneSymptom > w.TwoSymptoms || w.TwoSymptoms > w.ThreeSymptoms {
		add("weights", errors.New("symptom weights must not decrease with more symptoms"))
	}

	prev := 0
	for _, t := range r.Stages.Ordered() {
		if t <= prev || t > 100 {
			add("stages", errors.New("thresholds must be strictly increasing within 1..100"))
			break
		}
		prev = t
	}

	if r.CompletionThreshold < 1 || r.CompletionThreshold > 100 {
		add("completion_threshold", errors.New("must be between 1 and 100"))
	}
	if r.AdvisorMidScore >= r.AdvisorHighScore {
		add("advisor", errors.New("advisor_mid_score must be below advisor_high_score"))
	}
	return out
}

func required(s string) error {
	if s == "" {
		return errors.New("is required")
	}
	return nil
}

func oneOf(allowed ...string) func(string) error {
	return func(s string) error {
		if !slices.Contains(allowed, s) {
			return fmt.Errorf("must be one of %v", allowed)
		}
		return nil
	}
}
