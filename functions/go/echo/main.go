package main

import (
	"encoding/json"

	"github.com/atty303/aws-lambda-runtime-go/pkg/runtime"
)

func main() {
	runtime.Start(handler)
}

func handler(ctx *runtime.Context, event json.RawMessage) (any, error) {
	return event, nil
}
