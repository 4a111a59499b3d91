package main

import (
	"encoding/json"
	"time"

	"github.com/atty303/aws-lambda-runtime-go/pkg/runtime"
)

func main() {
	runtime.Start(handler)
}

// this function fails every invocation on purpose
func handler(ctx *runtime.Context, event json.RawMessage) (any, error) {
	time.Sleep(2 * time.Second)
	panic("crash")
}
