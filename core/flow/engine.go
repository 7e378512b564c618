package flow

import (
	"errors"
	"maps"
	"regexp"
	"strings"
)

// ErrLoop is returned when conditionals jump without ever awaiting input.
var ErrLoop = errors.New("flow: step limit exceeded")

// maxTransitions bounds the steps executed for one inbound event.
const maxTransitions = 256

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// State is the per-user cursor into one flow.
type State struct {
	Flow string
	Step int
	Data map[string]string
}

// Output is one outbound message. Options, when set, are rendered as buttons.
type Output struct {
	Text    string
	Options []Option
}

// Result describes what one engine call produced.
type Result struct {
	State   State
	Outputs []Output
	// Done is set when the flow ran past its last step; the session ends.
	Done bool
	// Completion is the substituted completion message, if the flow has one.
	Completion string
	// Reprompted is set when input did not match a multiple choice step.
	Reprompted bool
	// Skipped lists the types of unknown steps passed over.
	Skipped []string
}

// Start begins f at its first step and runs until input is needed.
func Start(f Flow) (Result, error) {
	return run(f, State{Flow: f.Name, Data: map[string]string{}})
}

// Advance feeds one inbound text to the step st waits on.
func Advance(f Flow, st State, input string) (Result, error) {
	if st.Step < 0 || st.Step >= len(f.Steps) {
		return run(f, st)
	}
	next := State{Flow: st.Flow, Step: st.Step, Data: maps.Clone(st.Data)}
	if next.Data == nil {
		next.Data = map[string]string{}
	}

	switch s := f.Steps[st.Step].(type) {
	case AskQuestion:
		next.Data[s.Variable] = input
		next.Step++
	case MultipleChoice:
		opt, ok := choose(s.Options, strings.TrimSpace(input))
		if !ok {
			return Result{
				State:      st,
				Outputs:    []Output{prompt(s, st.Data)},
				Reprompted: true,
			}, nil
		}
		next.Data[s.Variable] = opt.Stored()
		next.Step++
	}
	return run(f, next)
}

func choose(opts []Option, text string) (Option, bool) {
	for _, o := range opts {
		if o.Match(text) {
			return o, true
		}
	}
	return Option{}, false
}

func prompt(s MultipleChoice, data map[string]string) Output {
	return Output{Text: Substitute(s.Question, data), Options: s.Options}
}

func run(f Flow, st State) (Result, error) {
	res := Result{}
	for i := 0; ; i++ {
		if i >= maxTransitions {
			return Result{}, ErrLoop
		}
		if st.Step < 0 || st.Step >= len(f.Steps) {
			res.State = st
			res.Done = true
			if f.CompletionMessage != "" {
				res.Completion = Substitute(f.CompletionMessage, st.Data)
			}
			return res, nil
		}

		switch s := f.Steps[st.Step].(type) {
		case Trigger:
			st.Step++
		case SendMessage:
			res.Outputs = append(res.Outputs, Output{Text: Substitute(s.Text, st.Data)})
			st.Step++
		case AskQuestion:
			res.Outputs = append(res.Outputs, Output{Text: Substitute(s.Question, st.Data)})
			res.State = st
			return res, nil
		case MultipleChoice:
			res.Outputs = append(res.Outputs, prompt(s, st.Data))
			res.State = st
			return res, nil
		case Conditional:
			if s.Eval(st.Data) {
				st.Step = s.Then
			} else {
				st.Step = s.Else
			}
		case Unknown:
			res.Skipped = append(res.Skipped, s.Type)
			st.Step++
		}
	}
}

// Eval applies the comparison to the stored variable. A missing variable compares as "".
func (c Conditional) Eval(data map[string]string) bool {
	got := data[c.Variable]
	switch c.Operator {
	case OpEquals:
		return got == c.Value
	case OpNotEquals:
		return got != c.Value
	case OpContains:
		return strings.Contains(got, c.Value)
	}
	return false
}

// Substitute replaces {key} with data[key]. Unknown keys are left as written.
func Substitute(text string, data map[string]string) string {
	if len(data) == 0 || !strings.Contains(text, "{") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		if v, ok := data[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}
