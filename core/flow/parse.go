package flow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFlowName names a flow stored as a bare step list.
const DefaultFlowName = "custom"

type rawOption struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// UnmarshalJSON accepts either "label" or {"text": "label", "value": "v"}.
func (o *rawOption) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Text = s
		return nil
	}
	type plain rawOption
	return json.Unmarshal(data, (*plain)(o))
}

type rawStep struct {
	Type      string      `json:"type"`
	Command   string      `json:"command"`
	Trigger   string      `json:"trigger"`
	AutoStart bool        `json:"auto_start"`
	Text      string      `json:"text"`
	Message   string      `json:"message"`
	Question  string      `json:"question"`
	Variable  string      `json:"variable"`
	Options   []rawOption `json:"options"`
	Operator  string      `json:"operator"`
	Value     string      `json:"value"`
	Then      *int        `json:"then"`
	Else      *int        `json:"else"`
}

type rawFlow struct {
	Name              string    `json:"name"`
	Steps             []rawStep `json:"steps"`
	CompletionMessage string    `json:"completion_message"`
}

type rawDefinition struct {
	Flows []rawFlow `json:"flows"`
	rawFlow
}

// Parse decodes a stored definition. Three shapes are accepted: an object
// with a "flows" list, a single flow object with "steps", or a bare step list.
// A flow with an invalid step is left out of the result and reported in the
// returned error while the other flows are still returned.
func Parse(data []byte) (Definition, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Definition{}, nil
	}

	var flows []rawFlow
	if data[0] == '[' {
		var steps []rawStep
		if err := json.Unmarshal(data, &steps); err != nil {
			return Definition{}, fmt.Errorf("flow: decode steps: %w", err)
		}
		flows = []rawFlow{{Name: DefaultFlowName, Steps: steps}}
	} else {
		var raw rawDefinition
		if err := json.Unmarshal(data, &raw); err != nil {
			return Definition{}, fmt.Errorf("flow: decode definition: %w", err)
		}
		flows = raw.Flows
		if len(flows) == 0 && len(raw.Steps) > 0 {
			flows = []rawFlow{raw.rawFlow}
		}
	}

	def := Definition{Flows: make([]Flow, 0, len(flows))}
	var errs []error
	for i, rf := range flows {
		f, err := buildFlow(rf)
		if err != nil {
			errs = append(errs, fmt.Errorf("flow %d (%s): %w", i, rf.Name, err))
			continue
		}
		if f.Name == "" {
			f.Name = fmt.Sprintf("%s_%d", DefaultFlowName, i+1)
			if len(flows) == 1 {
				f.Name = DefaultFlowName
			}
		}
		def.Flows = append(def.Flows, f)
	}
	return def, errors.Join(errs...)
}

// ParseYAML decodes a definition authored in YAML with the same field names.
func ParseYAML(data []byte) (Definition, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Definition{}, fmt.Errorf("flow: decode yaml: %w", err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return Definition{}, fmt.Errorf("flow: convert yaml: %w", err)
	}
	return Parse(js)
}

func buildFlow(rf rawFlow) (Flow, error) {
	f := Flow{
		Name:              strings.TrimSpace(rf.Name),
		CompletionMessage: rf.CompletionMessage,
		Steps:             make([]Step, 0, len(rf.Steps)),
	}
	n := len(rf.Steps)
	for i, rs := range rf.Steps {
		s, err := buildStep(rs, n)
		if err != nil {
			return Flow{}, fmt.Errorf("step %d: %w", i, err)
		}
		f.Steps = append(f.Steps, s)
	}
	return f, nil
}

func buildStep(rs rawStep, n int) (Step, error) {
	switch Kind(strings.TrimSpace(rs.Type)) {
	case KindTrigger:
		cmd := strings.TrimSpace(firstNonEmpty(rs.Command, rs.Trigger, rs.Text))
		if cmd == "" && !rs.AutoStart {
			return nil, fmt.Errorf("trigger needs a command or auto_start")
		}
		return Trigger{Command: cmd, AutoStart: rs.AutoStart}, nil
	case KindSendMessage:
		return SendMessage{Text: firstNonEmpty(rs.Text, rs.Message)}, nil
	case KindAskQuestion:
		if rs.Variable == "" {
			return nil, fmt.Errorf("ask_question needs a variable")
		}
		return AskQuestion{Question: firstNonEmpty(rs.Question, rs.Text), Variable: rs.Variable}, nil
	case KindMultipleChoice:
		if rs.Variable == "" {
			return nil, fmt.Errorf("multiple_choice needs a variable")
		}
		if len(rs.Options) == 0 {
			return nil, fmt.Errorf("multiple_choice needs options")
		}
		opts := make([]Option, 0, len(rs.Options))
		for _, o := range rs.Options {
			opts = append(opts, Option{Text: o.Text, Value: o.Value})
		}
		return MultipleChoice{Question: firstNonEmpty(rs.Question, rs.Text), Variable: rs.Variable, Options: opts}, nil
	case KindConditional:
		op := Operator(strings.ToLower(strings.TrimSpace(rs.Operator)))
		switch op {
		case OpEquals, OpNotEquals, OpContains:
		default:
			return nil, fmt.Errorf("unsupported operator %q", rs.Operator)
		}
		if rs.Then == nil || rs.Else == nil {
			return nil, fmt.Errorf("conditional needs then and else targets")
		}
		for _, target := range []int{*rs.Then, *rs.Else} {
			if target < 0 || target > n {
				return nil, fmt.Errorf("jump target %d out of range [0,%d]", target, n)
			}
		}
		return Conditional{Variable: rs.Variable, Operator: op, Value: rs.Value, Then: *rs.Then, Else: *rs.Else}, nil
	default:
		return Unknown{Type: rs.Type}, nil
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
