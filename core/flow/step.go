// Package flow interprets declarative custom-command flows.
package flow

// Kind names a step variant in stored definitions.
type Kind string

const (
	KindTrigger        Kind = "trigger"
	KindSendMessage    Kind = "send_message"
	KindAskQuestion    Kind = "ask_question"
	KindMultipleChoice Kind = "multiple_choice"
	KindConditional    Kind = "conditional"
)

// Step is one instruction of a flow. The set of implementations is closed:
// Trigger, SendMessage, AskQuestion, MultipleChoice, Conditional and Unknown.
type Step interface {
	Kind() Kind
	sealed()
}

// Trigger starts the flow when inbound text equals Command.
type Trigger struct {
	Command   string
	AutoStart bool
}

// SendMessage emits Text after {key} substitution.
type SendMessage struct {
	Text string
}

// AskQuestion emits Question and stores the next reply under Variable.
type AskQuestion struct {
	Question string
	Variable string
}

// Option is one answer of a multiple choice step.
type Option struct {
	Text  string
	Value string
}

// MultipleChoice offers Options and stores the chosen value under Variable.
type MultipleChoice struct {
	Question string
	Variable string
	Options  []Option
}

// Operator compares a stored variable with a literal.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpContains  Operator = "contains"
)

// Conditional jumps to Then when the comparison holds and to Else otherwise.
type Conditional struct {
	Variable string
	Operator Operator
	Value    string
	Then     int
	Else     int
}

// Unknown keeps a step whose type this version does not understand.
// It is skipped at run time.
type Unknown struct {
	Type string
}

func (Trigger) Kind() Kind        { return KindTrigger }
func (SendMessage) Kind() Kind    { return KindSendMessage }
func (AskQuestion) Kind() Kind    { return KindAskQuestion }
func (MultipleChoice) Kind() Kind { return KindMultipleChoice }
func (Conditional) Kind() Kind    { return KindConditional }
func (u Unknown) Kind() Kind      { return Kind(u.Type) }

func (Trigger) sealed()        {}
func (SendMessage) sealed()    {}
func (AskQuestion) sealed()    {}
func (MultipleChoice) sealed() {}
func (Conditional) sealed()    {}
func (Unknown) sealed()        {}

// Match reports whether text selects option o.
func (o Option) Match(text string) bool {
	return text == o.Text || (o.Value != "" && text == o.Value)
}

// Stored returns the value recorded when o is chosen.
func (o Option) Stored() string {
	if o.Value != "" {
		return o.Value
	}
	return o.Text
}

// Flow is a named, ordered list of steps.
type Flow struct {
	Name              string
	Steps             []Step
	CompletionMessage string
}

// Trigger returns the first trigger step of the flow.
func (f Flow) Trigger() (Trigger, bool) {
	for _, s := range f.Steps {
		if t, ok := s.(Trigger); ok {
			return t, true
		}
	}
	return Trigger{}, false
}

// Definition is the full custom-flow configuration of one bot.
type Definition struct {
	Flows []Flow
}

// Match returns the flow whose trigger command equals text.
func (d Definition) Match(text string) (Flow, bool) {
	for _, f := range d.Flows {
		if t, ok := f.Trigger(); ok && t.Command != "" && t.Command == text {
			return f, true
		}
	}
	return Flow{}, false
}

// AutoStart returns the first flow marked to start on bot entry.
func (d Definition) AutoStart() (Flow, bool) {
	for _, f := range d.Flows {
		if t, ok := f.Trigger(); ok && t.AutoStart {
			return f, true
		}
	}
	return Flow{}, false
}

// Lookup finds a flow by name.
func (d Definition) Lookup(name string) (Flow, bool) {
	for _, f := range d.Flows {
		if f.Name == name {
			return f, true
		}
	}
	return Flow{}, false
}

// Commands lists the trigger commands of every flow.
func (d Definition) Commands() []string {
	var out []string
	for _, f := range d.Flows {
		if t, ok := f.Trigger(); ok && t.Command != "" {
			out = append(out, t.Command)
		}
	}
	return out
}
