package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/taskmachine/internal/domain"
	"github.com/shaiso/taskmachine/internal/flows"
)

// NewPublishCmd создаёт команду публикации начального конверта.
func NewPublishCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var state string
	var payloadPairs []string
	var payloadJSON string
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "publish WORKER SUBJECT_ID",
		Short: "Publish an initial task envelope",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			worker, subject := args[0], args[1]
			if _, err := flows.Lookup(worker); err != nil {
				return err
			}

			payload, err := parsePayload(payloadJSON, payloadPairs)
			if err != nil {
				return err
			}

			env := domain.NewEnvelope(domain.State(state), subject, payload)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := clientFn().Publish(ctx, worker, env, delay); err != nil {
				return err
			}

			out := outputFn()
			out.Success("Envelope published: %s", env.ID)
			return out.Print(
				[]string{"ID", "WORKER", "SUBJECT_ID", "STATE", "DELAY"},
				[][]string{{env.ID.String(), worker, env.SubjectID, string(env.State), delay.String()}},
				env,
			)
		},
	}

	cmd.Flags().StringVar(&state, "state", string(domain.StateStarted), "Initial state")
	cmd.Flags().StringSliceVar(&payloadPairs, "payload", nil, "Payload values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&payloadJSON, "payload-json", "", "Payload as a JSON object")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Publish through the delayed queue")

	return cmd
}

// parsePayload собирает payload из JSON-объекта и пар KEY=VALUE (пары перекрывают JSON).
func parsePayload(raw string, pairs []string) (map[string]any, error) {
	payload := make(map[string]any)

	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("invalid --payload-json: %w", err)
		}
	}

	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid payload format %q, expected KEY=VALUE", kv)
		}
		payload[parts[0]] = parts[1]
	}

	return payload, nil
}
