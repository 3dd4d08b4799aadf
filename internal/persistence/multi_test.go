package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	saved []string
	err   error
}

func (s *recordingSink) Save(_ context.Context, rec Record) error {
	s.saved = append(s.saved, rec.RunID)
	return s.err
}

func TestMultiSink_SavesToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := MultiSink{a, nil, b}

	require.NoError(t, sink.Save(context.Background(), sampleRecord("run-1")))
	assert.Equal(t, []string{"run-1"}, a.saved)
	assert.Equal(t, []string{"run-1"}, b.saved)
}

func TestMultiSink_ContinuesPastFailures(t *testing.T) {
	boom := errors.New("disk full")
	failing, ok := &recordingSink{err: boom}, &recordingSink{}

	err := MultiSink{failing, ok}.Save(context.Background(), sampleRecord("run-2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"run-2"}, ok.saved)
}
