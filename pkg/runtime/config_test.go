package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("AWS_LAMBDA_RUNTIME_API", "127.0.0.1:9001")
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "my-function")
	t.Setenv("AWS_LAMBDA_FUNCTION_VERSION", "$LATEST")
	t.Setenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE", "256")
	t.Setenv("AWS_LAMBDA_LOG_GROUP_NAME", "/aws/lambda/my-function")
	t.Setenv("AWS_LAMBDA_LOG_STREAM_NAME", "2026/08/26/[$LATEST]abc")

	cfg := ConfigFromEnv()

	assert.Equal(t, "127.0.0.1:9001", cfg.RuntimeAPI)
	assert.Equal(t, "my-function", cfg.FunctionName)
	assert.Equal(t, "$LATEST", cfg.FunctionVersion)
	assert.Equal(t, "256", cfg.MemoryLimitMB)
	assert.Equal(t, "/aws/lambda/my-function", cfg.LogGroupName)
	assert.Equal(t, "2026/08/26/[$LATEST]abc", cfg.LogStreamName)
}

func TestConfigFromEnvMissingRuntimeAPI(t *testing.T) {
	t.Setenv("AWS_LAMBDA_RUNTIME_API", "")

	cfg := ConfigFromEnv()
	assert.Empty(t, cfg.RuntimeAPI)
}
