// Taskmachine CLI — инструмент оператора: публикация задач,
// топология брокера и журнал задач.
//
// Использование:
//
//	taskmachine [--config FILE] [--json] <command> [flags]
//
// Команды:
//
//	publish   Публикация начального конверта
//	topology  Топология типа воркера
//	workers   Зарегистрированные типы воркеров
//	task      Журнал задач
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/taskmachine/internal/cli"
	"github.com/shaiso/taskmachine/internal/config"
	"github.com/shaiso/taskmachine/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configFile string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "taskmachine",
		Short:         "Taskmachine CLI — broker-driven task state machines",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "Path to TOML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client {
		cfg, err := config.Load(configFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		return cli.NewClient(cfg, telemetry.NewCLILogger())
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput, os.Stdout, os.Stderr) }

	rootCmd.AddCommand(
		cli.NewPublishCmd(clientFn, outputFn),
		cli.NewTopologyCmd(clientFn, outputFn),
		cli.NewWorkersCmd(outputFn),
		cli.NewTaskCmd(clientFn, outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
