package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/taskmachine/internal/flows"
)

// WorkerInfo — описание типа воркера для вывода.
type WorkerInfo struct {
	Name     string   `json:"name"`
	Prefetch int      `json:"prefetch"`
	States   []string `json:"states"`
}

// NewWorkersCmd создаёт команду списка типов воркеров.
func NewWorkersCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List registered worker types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := listWorkers()

			rows := make([][]string, len(infos))
			for i, w := range infos {
				rows[i] = []string{w.Name, strconv.Itoa(w.Prefetch), strings.Join(w.States, ", ")}
			}

			return outputFn().Print([]string{"NAME", "PREFETCH", "STATES"}, rows, infos)
		},
	}
}

func listWorkers() []WorkerInfo {
	var infos []WorkerInfo
	for _, name := range flows.Names() {
		def, _ := flows.Lookup(name)

		var states []string
		for _, s := range def.Build().States() {
			states = append(states, string(s))
		}
		infos = append(infos, WorkerInfo{Name: def.Name, Prefetch: def.Prefetch, States: states})
	}
	return infos
}
