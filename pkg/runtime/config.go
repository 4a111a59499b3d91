package runtime

import "os"

// Config holds the process-wide runtime configuration. It is built once at
// startup and never mutated afterwards; every invocation context copies its
// static metadata fields verbatim.
type Config struct {
	// RuntimeAPI is the host:port of the runtime API endpoint
	// (AWS_LAMBDA_RUNTIME_API). It is the only required field: without it
	// the process is not running inside a Lambda execution environment.
	RuntimeAPI string

	FunctionName    string
	FunctionVersion string
	MemoryLimitMB   string
	LogGroupName    string
	LogStreamName   string
}

// ConfigFromEnv reads the standard AWS_LAMBDA_* environment variables set by
// the Lambda execution environment.
func ConfigFromEnv() Config {
	return Config{
		RuntimeAPI:      os.Getenv("AWS_LAMBDA_RUNTIME_API"),
		FunctionName:    os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
		FunctionVersion: os.Getenv("AWS_LAMBDA_FUNCTION_VERSION"),
		MemoryLimitMB:   os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE"),
		LogGroupName:    os.Getenv("AWS_LAMBDA_LOG_GROUP_NAME"),
		LogStreamName:   os.Getenv("AWS_LAMBDA_LOG_STREAM_NAME"),
	}
}
