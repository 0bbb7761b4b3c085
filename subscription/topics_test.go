package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ledpush/errors"
)

func TestValidateDestination(t *testing.T) {
	tests := []struct {
		destination string
		valid       bool
	}{
		{"/topic/system", true},
		{"/topic/org/3", true},
		{"/queue/user/7", true},
		{"/user/7/queue/notifications", true},
		{"/topic/device/dev-01.a_b", true},
		{"/topic", false},
		{"/topic/", false},
		{"topic/system", false},
		{"/app/message/ack", false},
		{"/topic/org//3", false},
		{"/topic/org/{orgId}", false},
		{"/topic/has space", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.destination, func(t *testing.T) {
			err := ValidateDestination(tt.destination)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindInvalidTopic))
			assert.ErrorIs(t, err, errors.ErrInvalidTopic)
		})
	}
}

func TestRender(t *testing.T) {
	got, err := Render("/topic/device/{deviceId}", map[string]string{ParamDeviceID: "42"})
	require.NoError(t, err)
	assert.Equal(t, "/topic/device/42", got)

	got, err = Render("/user/{userId}/queue/{orgId}", map[string]string{ParamUserID: "7", ParamOrgID: "3"})
	require.NoError(t, err)
	assert.Equal(t, "/user/7/queue/3", got)

	_, err = Render("/topic/device/{deviceId}", nil)
	assert.True(t, errors.IsKind(err, errors.KindInvalidTopic), "missing value")

	_, err = Render("/topic/device/{deviceId}", map[string]string{ParamDeviceID: "a/b"})
	assert.True(t, errors.IsKind(err, errors.KindInvalidTopic), "value with a slash")

	_, err = Render("/bogus/{deviceId}", map[string]string{ParamDeviceID: "1"})
	assert.True(t, errors.IsKind(err, errors.KindInvalidTopic), "result outside the grammar")
}

func TestTopics_Validate(t *testing.T) {
	require.NoError(t, DefaultTopics().Validate())

	bad := DefaultTopics()
	bad.TaskTopic = "/topic/task/{task}"
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	bad = DefaultTopics()
	bad.AckDestination = "ack"
	assert.Error(t, bad.Validate())
}

func TestAutoDestinations(t *testing.T) {
	dests, err := DefaultTopics().AutoDestinations(User{UID: 7, OID: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"/queue/user/7", "/topic/org/3", "/topic/system"}, dests)
}
