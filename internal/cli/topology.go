package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/taskmachine/internal/flows"
)

// NewTopologyCmd создаёт команду описания и объявления топологии.
func NewTopologyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var declare bool

	cmd := &cobra.Command{
		Use:   "topology WORKER",
		Short: "Describe (and optionally declare) the broker topology of a worker type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			worker := args[0]
			if _, err := flows.Lookup(worker); err != nil {
				return err
			}

			client := clientFn()
			out := outputFn()
			topo := client.Topology(worker)

			if declare {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()

				var err error
				if topo, err = client.Declare(ctx, worker); err != nil {
					return err
				}
				out.Success("Topology declared: %s", worker)
			}

			headers := []string{"DELAY", "EXCHANGE", "QUEUE", "ROUTING_KEY"}
			rows := [][]string{{"-", string(topo.Exchange()), string(topo.Queue()), string(topo.RoutingKey())}}
			for _, class := range topo.Classes() {
				rows = append(rows, []string{
					class.String(),
					string(topo.DelayedExchange()),
					string(topo.DelayedQueue(class)),
					string(topo.DelayedRoutingKey(class)),
				})
			}

			return out.Print(headers, rows, topologyJSON(topo.Info(), rows))
		},
	}

	cmd.Flags().BoolVar(&declare, "declare", false, "Declare exchanges and queues on the broker")

	return cmd
}

func topologyJSON(info string, rows [][]string) map[string]any {
	queues := make([]map[string]string, len(rows))
	for i, r := range rows {
		queues[i] = map[string]string{"delay": r[0], "exchange": r[1], "queue": r[2], "routing_key": r[3]}
	}
	return map[string]any{"info": info, "queues": queues}
}
