package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogFromBuffer(t *testing.T) {
	l := logFromBuffer([]byte("data"))
	assert.Equal(t, LogBuffer, l.State)
	assert.Equal(t, []byte("data"), l.Buffer)

	l = logFromBuffer(nil)
	assert.Equal(t, LogNothing, l.State)
	assert.Empty(t, l.Buffer)
}

func TestTaskOutputIsError(t *testing.T) {
	assert.False(t, waiting().IsError())
	assert.False(t, noError(&CommandOutcome{}).IsError())
	assert.True(t, ioError(errors.New("disk full")).IsError())
	assert.True(t, threadError("panic payload").IsError())
	assert.True(t, tooManyThreads().IsError())
	assert.True(t, TaskOutput{State: StatePoisonError}.IsError())
}

func TestTaskOutputSummary(t *testing.T) {
	assert.Equal(t, "Waiting", waiting().Summary())
	assert.Equal(t, "NoError", noError(&CommandOutcome{}).Summary())
	assert.Equal(t, "IOError (disk full)", ioError(errors.New("disk full")).Summary())
	assert.Equal(t, "ThreadError", threadError(nil).Summary())
	assert.Equal(t, "TooManyThreadsError", tooManyThreads().Summary())
	assert.Equal(t, "PoisonError", TaskOutput{State: StatePoisonError}.Summary())
}
