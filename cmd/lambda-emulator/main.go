package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goforj/godump"
	"github.com/urfave/cli/v3"

	"github.com/atty303/aws-lambda-runtime-go/pkg/emulator"
	"github.com/atty303/aws-lambda-runtime-go/pkg/utils"
)

const invokePath = "/2015-03-31/functions/function/invocations"

var addressFlag = &cli.StringFlag{
	Name:    "address",
	Usage:   "address the emulator listens on",
	Value:   "localhost:9001",
	Aliases: []string{"a"},
}

func main() {
	cmd := &cli.Command{
		Name:  "lambda-emulator",
		Usage: "run a local Lambda runtime API and invoke functions against it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "log level (debug, info, warn, error)"},
			&cli.StringFlag{Name: "log-format", Value: "dev", Usage: "log format (text, json, dev)"},
			&cli.StringFlag{Name: "log-file", Value: "", Usage: "log file path (defaults to stdout)"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve the runtime API for a locally started bootstrap binary",
				Flags: []cli.Flag{
					addressFlag,
					&cli.StringFlag{
						Name:  "function-name",
						Value: "test_function",
						Usage: "function name surfaced to the runtime",
					},
					&cli.DurationFlag{
						Name:  "function-timeout",
						Value: 30 * time.Second,
						Usage: "deadline communicated per invocation, example: 30s, 1m",
					},
					&cli.StringFlag{
						Name:  "function-arn",
						Value: "",
						Usage: "invoked function ARN surfaced to the runtime",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					logger := utils.SetupLogger(cmd.String("log-level"), cmd.String("log-format"), cmd.String("log-file"))

					sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
					defer stop()

					server := emulator.New(emulator.Config{
						Address:            cmd.String("address"),
						FunctionName:       cmd.String("function-name"),
						InvokedFunctionARN: cmd.String("function-arn"),
						FunctionTimeout:    cmd.Duration("function-timeout"),
					}, logger)
					return server.Run(sigCtx)
				},
			},
			{
				Name:  "invoke",
				Usage: "invoke the function served by a running emulator",
				Flags: []cli.Flag{
					addressFlag,
					&cli.StringFlag{
						Name:    "data",
						Usage:   "JSON event to be passed to the function",
						Value:   "{}",
						Aliases: []string{"d"},
					},
					&cli.DurationFlag{
						Name:    "timeout",
						Usage:   "example: 30s, 1m, 1h",
						Value:   30 * time.Second,
						Aliases: []string{"t"},
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					url := fmt.Sprintf("http://%s%s", cmd.String("address"), invokePath)
					data := []byte(cmd.String("data"))

					callCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
					defer cancel()

					// The emulator may still be starting up.
					resp, err := utils.CallWithRetry(callCtx, func() (*http.Response, error) {
						req, rerr := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(data))
						if rerr != nil {
							return nil, rerr
						}
						req.Header.Set("Content-Type", "application/json")
						return http.DefaultClient.Do(req)
					}, 5, 200*time.Millisecond)
					if err != nil {
						return err
					}
					defer resp.Body.Close()

					body, err := io.ReadAll(resp.Body)
					if err != nil {
						return err
					}

					if resp.Header.Get("X-Amz-Function-Error") != "" {
						fmt.Println("function error:")
						godump.Dump(string(body))
						return cli.Exit("invocation failed", 1)
					}

					godump.Dump(string(body))
					return nil
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
