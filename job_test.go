package exq

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeJobRoundTrip(t *testing.T) {
	job := &Job{
		Jid:        generateJid(),
		Class:      "SendEmail",
		Args:       []interface{}{float64(1), "hi"},
		Queue:      "default",
		EnqueuedAt: 100.5,
		Retry:      RetryBudget{Enabled: true, Max: 5},
	}

	raw, err := encodeJob(job)
	require.NoError(t, err)

	decoded, err := decodeJob(raw)
	require.NoError(t, err)

	assert.Equal(t, job.Jid, decoded.Jid)
	assert.Equal(t, job.Class, decoded.Class)
	assert.Equal(t, job.Queue, decoded.Queue)
	assert.Equal(t, job.Retry, decoded.Retry)
}

func TestDecodeJobMissingJid(t *testing.T) {
	raw := []byte(`{"class":"Foo","args":[]}`)
	_, err := decodeJob(raw)
	require.Error(t, err)

	exqErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrMalformedJob, exqErr.Kind)
}

func TestDecodeJobMissingClass(t *testing.T) {
	raw := []byte(`{"jid":"abc","args":[]}`)
	_, err := decodeJob(raw)
	require.Error(t, err)

	exqErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrMalformedJob, exqErr.Kind)
}

func TestDecodeJobInvalidJSON(t *testing.T) {
	_, err := decodeJob([]byte(`not json`))
	require.Error(t, err)
}

func TestRetryBudgetMarshalBoolForm(t *testing.T) {
	b, err := json.Marshal(RetryBudget{Enabled: false})
	require.NoError(t, err)
	assert.Equal(t, "false", string(b))

	b, err = json.Marshal(RetryBudget{Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, "true", string(b))
}

func TestRetryBudgetMarshalIntForm(t *testing.T) {
	b, err := json.Marshal(RetryBudget{Enabled: true, Max: 10})
	require.NoError(t, err)
	assert.Equal(t, "10", string(b))
}

func TestRetryBudgetUnmarshalBothForms(t *testing.T) {
	var r RetryBudget
	require.NoError(t, json.Unmarshal([]byte("true"), &r))
	assert.True(t, r.Enabled)
	assert.Equal(t, 0, r.Max)

	require.NoError(t, json.Unmarshal([]byte("25"), &r))
	assert.True(t, r.Enabled)
	assert.Equal(t, 25, r.Max)

	require.NoError(t, json.Unmarshal([]byte("0"), &r))
	assert.False(t, r.Enabled)
}

func TestRetryBudgetEffectiveValue(t *testing.T) {
	assert.Equal(t, 0, RetryBudget{Enabled: false}.budget(25))
	assert.Equal(t, 25, RetryBudget{Enabled: true}.budget(25))
	assert.Equal(t, 7, RetryBudget{Enabled: true, Max: 7}.budget(25))
}

func TestJobSerializeCachesRaw(t *testing.T) {
	job := &Job{Jid: generateJid(), Class: "Foo", Queue: "default", Retry: defaultRetryBudget()}
	raw1, err := job.Serialize()
	require.NoError(t, err)
	raw2, err := job.Serialize()
	require.NoError(t, err)
	assert.Equal(t, raw1, raw2)
}
