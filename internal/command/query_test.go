package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/chronod/internal/task"
)

func strPtr(s string) *string {
	return &s
}

func TestQueryMarshalOk(t *testing.T) {
	data, err := json.Marshal(Query{Kind: QueryOk})
	require.NoError(t, err)
	assert.Equal(t, `"Ok"`, string(data))
}

func TestQueryRoundTripNewTaskGroup(t *testing.T) {
	group := task.GroupConfig{
		Name:     "wired",
		StartsAt: strPtr("****-**-**T**:**:**Z"),
		Period:   strPtr("0000-00-00 00:30:00"),
		Processes: []task.TaskConfig{
			{Command: task.Command{Program: "/bin/echo", Args: []string{"hi"}}},
		},
	}

	data, err := json.Marshal(Query{Kind: QueryNewTaskGroup, Group: &group})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"NewTaskGroup"`)
	assert.Contains(t, string(data), `"program":"/bin/echo"`)

	var back Query
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, QueryNewTaskGroup, back.Kind)
	require.NotNil(t, back.Group)
	assert.Equal(t, "wired", back.Group.Name)
	assert.Equal(t, "****-**-**T**:**:**Z", *back.Group.StartsAt)
	assert.Equal(t, "0000-00-00 00:30:00", *back.Group.Period)
	require.Len(t, back.Group.Processes, 1)
	assert.Equal(t, []string{"hi"}, back.Group.Processes[0].Args)
}

func TestQueryUnmarshalOk(t *testing.T) {
	var q Query
	require.NoError(t, json.Unmarshal([]byte(`"Ok"`), &q))
	assert.Equal(t, QueryOk, q.Kind)
	assert.Nil(t, q.Group)
}

func TestQueryUnmarshalRejectsUnknown(t *testing.T) {
	inputs := []string{
		`"Nope"`,
		`{"DeleteTaskGroup": {}}`,
		`{"NewTaskGroup": {}, "Ok": null}`,
		`{}`,
		`42`,
		`not json at all`,
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			var q Query
			assert.Error(t, json.Unmarshal([]byte(input), &q))
		})
	}
}

func TestQueryMarshalRejectsBadValues(t *testing.T) {
	_, err := json.Marshal(Query{Kind: QueryNewTaskGroup})
	assert.Error(t, err, "NewTaskGroup without payload")

	_, err = json.Marshal(Query{Kind: QueryKind("Bogus")})
	assert.Error(t, err)
}
