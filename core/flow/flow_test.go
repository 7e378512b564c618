package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func surveyFlow() Flow {
	return Flow{
		Name: "survey",
		Steps: []Step{
			Trigger{Command: "/survey"},
			AskQuestion{Question: "What's your name?", Variable: "name"},
			SendMessage{Text: "Hi {name}!"},
		},
	}
}

func TestSurveyScenario(t *testing.T) {
	f := surveyFlow()

	res, err := Start(f)
	require.NoError(t, err)
	require.False(t, res.Done)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "What's your name?", res.Outputs[0].Text)
	assert.Equal(t, 1, res.State.Step)

	res, err = Advance(f, res.State, "Ada")
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, "Ada", res.State.Data["name"])
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "Hi Ada!", res.Outputs[0].Text)
}

func TestAskCapturesExactText(t *testing.T) {
	f := surveyFlow()
	res, err := Start(f)
	require.NoError(t, err)

	res, err = Advance(f, res.State, "  Ada Lovelace \n")
	require.NoError(t, err)
	assert.Equal(t, "  Ada Lovelace \n", res.State.Data["name"])
}

func colorFlow() Flow {
	return Flow{
		Name: "color",
		Steps: []Step{
			Trigger{Command: "/color"},
			MultipleChoice{
				Question: "Pick one",
				Variable: "color",
				Options:  []Option{{Text: "Red", Value: "red"}, {Text: "Blue"}},
			},
			SendMessage{Text: "You chose {color}"},
		},
		CompletionMessage: "Thanks, {color} noted. {missing}",
	}
}

func TestMultipleChoiceRejectsUnknownInput(t *testing.T) {
	f := colorFlow()
	res, err := Start(f)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)
	assert.Len(t, res.Outputs[0].Options, 2)
	before := res.State

	res, err = Advance(f, before, "green")
	require.NoError(t, err)
	assert.True(t, res.Reprompted)
	assert.False(t, res.Done)
	assert.Equal(t, before.Step, res.State.Step)
	assert.Empty(t, res.State.Data)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "Pick one", res.Outputs[0].Text)
}

func TestMultipleChoiceAcceptsTextOrValue(t *testing.T) {
	f := colorFlow()
	start, err := Start(f)
	require.NoError(t, err)

	res, err := Advance(f, start.State, "Red")
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, "red", res.State.Data["color"])
	assert.Equal(t, "Thanks, red noted. {missing}", res.Completion)

	res, err = Advance(f, start.State, "red")
	require.NoError(t, err)
	assert.Equal(t, "red", res.State.Data["color"])

	res, err = Advance(f, start.State, "Blue")
	require.NoError(t, err)
	assert.Equal(t, "Blue", res.State.Data["color"])
	assert.Empty(t, start.State.Data, "advance must not mutate the previous state")
}

func TestConditionalBranches(t *testing.T) {
	cases := []struct {
		op     Operator
		value  string
		answer string
		want   string
	}{
		{OpEquals, "yes", "yes", "then"},
		{OpEquals, "yes", "no", "else"},
		{OpNotEquals, "yes", "no", "then"},
		{OpNotEquals, "yes", "yes", "else"},
		{OpContains, "cat", "concatenate", "then"},
		{OpContains, "dog", "concatenate", "else"},
	}
	for _, tc := range cases {
		t.Run(string(tc.op)+"_"+tc.answer, func(t *testing.T) {
			f := Flow{
				Name: "branch",
				Steps: []Step{
					AskQuestion{Question: "?", Variable: "a"},
					Conditional{Variable: "a", Operator: tc.op, Value: tc.value, Then: 2, Else: 3},
					SendMessage{Text: "then"},
					SendMessage{Text: "else"},
				},
			}
			res, err := Start(f)
			require.NoError(t, err)
			res, err = Advance(f, res.State, tc.answer)
			require.NoError(t, err)
			require.NotEmpty(t, res.Outputs)
			assert.Equal(t, tc.want, res.Outputs[0].Text)
		})
	}
}

func TestUnknownStepIsSkipped(t *testing.T) {
	f := Flow{
		Name: "x",
		Steps: []Step{
			Trigger{Command: "/x"},
			Unknown{Type: "send_sticker"},
			SendMessage{Text: "after"},
		},
	}
	res, err := Start(f)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, []string{"send_sticker"}, res.Skipped)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "after", res.Outputs[0].Text)
}

func TestConditionalLoopIsBounded(t *testing.T) {
	f := Flow{
		Name: "loop",
		Steps: []Step{
			Conditional{Variable: "a", Operator: OpEquals, Value: "", Then: 0, Else: 0},
		},
	}
	_, err := Start(f)
	assert.ErrorIs(t, err, ErrLoop)
}

func TestDefinitionMatch(t *testing.T) {
	def := Definition{Flows: []Flow{surveyFlow(), colorFlow(), {
		Name:  "welcome",
		Steps: []Step{Trigger{AutoStart: true}, SendMessage{Text: "hello"}},
	}}}

	f, ok := def.Match("/color")
	require.True(t, ok)
	assert.Equal(t, "color", f.Name)

	_, ok = def.Match("/colour")
	assert.False(t, ok)
	_, ok = def.Match("")
	assert.False(t, ok)

	f, ok = def.AutoStart()
	require.True(t, ok)
	assert.Equal(t, "welcome", f.Name)

	assert.Equal(t, []string{"/survey", "/color"}, def.Commands())
}

func TestSubstitute(t *testing.T) {
	data := map[string]string{"name": "Ada", "n": "3"}
	assert.Equal(t, "Ada has 3 {apples}", Substitute("{name} has {n} {apples}", data))
	assert.Equal(t, "{name}", Substitute("{name}", nil))
	assert.Equal(t, "{ name }", Substitute("{ name }", data))
}
