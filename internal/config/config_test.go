package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvIntDefault(t *testing.T) {
	assert.Equal(t, 30, envInt("UNSET_TEST_KEY", 30))

	t.Setenv("SET_TEST_KEY", "7")
	assert.Equal(t, 7, envInt("SET_TEST_KEY", 30))
}

func TestEnvMillis(t *testing.T) {
	t.Setenv("TTL_TEST_KEY", "180000")
	assert.Equal(t, 3*time.Minute, envMillis("TTL_TEST_KEY", 1))
	assert.Equal(t, time.Second, envMillis("UNSET_TTL_KEY", 1000))
}

func TestEnvBool(t *testing.T) {
	assert.True(t, envBool("UNSET_BOOL_KEY", true))
	assert.False(t, envBool("UNSET_BOOL_KEY", false))

	for _, v := range []string{"1", "true", "yes", "on"} {
		t.Setenv("BOOL_TEST_KEY", v)
		assert.True(t, envBool("BOOL_TEST_KEY", false), v)
	}
	for _, v := range []string{"0", "false", "no", "off"} {
		t.Setenv("BOOL_TEST_KEY", v)
		assert.False(t, envBool("BOOL_TEST_KEY", true), v)
	}
}

func TestRabbitURLFallback(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "")
	assert.Empty(t, rabbitURL())

	t.Setenv("AMQP_URL", "amqp://fallback")
	assert.Equal(t, "amqp://fallback", rabbitURL())

	t.Setenv("RABBITMQ_URL", "amqp://primary")
	assert.Equal(t, "amqp://primary", rabbitURL())
}
