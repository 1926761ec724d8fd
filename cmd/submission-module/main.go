// main.go — точка входа Submission Module.
// Подкоманды: serve (HTTP API) и migrate (миграции PostgreSQL).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/submission-module/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "submission-module",
	Short: "Submission Module — приём клинических данных и файлов sequencing",
	Long: `Submission Module принимает TSV/CSV файлы категорий, валидирует их
по словарю Submission Registry, регистрирует анализы sequencing в Analysis Service
и фиксирует submission. Конфигурация читается из переменных окружения SM_*.`,
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}
