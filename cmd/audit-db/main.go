package main

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/setavenger/utxo-audit/internal/config"
	"github.com/setavenger/utxo-audit/internal/dbarchive"
	"github.com/setavenger/utxo-audit/internal/logging"
	"github.com/setavenger/utxo-audit/internal/types"
)

var (
	Version = "0.0.0"

	// Global flags
	datadir    string
	configFile string
	dbPath     string
)

func init() {
	rootCmd.PersistentFlags().StringVar(
		&datadir,
		"datadir",
		config.DefaultBaseDirectory,
		"Set the base directory for utxo-audit. Default directory is ~/.utxo-audit",
	)
	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Path to config file (default: datadir/utxo-audit.toml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&dbPath,
		"db",
		"",
		"Path to the archive database directory (default: datadir/archive)",
	)

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(diffCmd)
}

var rootCmd = &cobra.Command{
	Use:   "audit-db",
	Short: "UTXO Audit Archive Explorer",
	Long: `UTXO Audit Archive Explorer provides tools to inspect archived
verification runs and compare the digests of independent runs.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.BaseDirectory = datadir
		config.SetDirectories()

		if configFile == "" {
			configFile = path.Join(config.BaseDirectory, config.ConfigFileName)
		}
		config.LoadConfigs(configFile)

		if dbPath == "" {
			dbPath = config.ArchivePath
		}
	},
}

func openStore() *dbarchive.Store {
	store, err := dbarchive.Open(dbPath)
	if err != nil {
		logging.L.Fatal().Err(err).Msg("error opening archive database")
	}
	return store
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs",
	Long:  `List every archived verification run, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore()
		defer store.Close()

		runs, err := store.ListRuns()
		if err != nil {
			return fmt.Errorf("error listing runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("no archived runs")
			return nil
		}
		for _, run := range runs {
			fmt.Printf("%s  %-14s %8d utxos  %4d findings  %s\n",
				run.CreatedAt.Format("2006-01-02 15:04:05"),
				run.Source,
				run.Counts.Utxos,
				len(run.Findings),
				run.Digests.Combined,
			)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <combined-digest>",
	Short: "Show one archived run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore()
		defer store.Close()

		run, err := getRunByDigest(store, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("source:      %s\n", run.Source)
		fmt.Printf("network:     %s\n", run.Network)
		fmt.Printf("tip height:  %d\n", run.TipHeight)
		fmt.Printf("created at:  %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Println()
		fmt.Printf("utxos:          %d\n", run.Counts.Utxos)
		fmt.Printf("address utxos:  %d\n", run.Counts.AddressUtxos)
		fmt.Printf("balances:       %d\n", run.Counts.Balances)
		fmt.Printf("headers:        %d\n", run.Counts.Headers)
		fmt.Printf("heights:        %d\n", run.Counts.Heights)
		fmt.Println()
		printDigests(run.Digests)

		if len(run.Findings) == 0 {
			fmt.Println("\nconsistency: ok")
			return nil
		}
		fmt.Printf("\nconsistency: %d findings\n", len(run.Findings))
		for _, finding := range run.Findings {
			fmt.Printf("  %s: %s\n", finding.Kind, finding.Key)
		}
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <combined-digest> <combined-digest>",
	Short: "Compare two archived runs",
	Long: `Compare the per-dataset digests of two archived runs and report
which datasets agree and which diverge.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore()
		defer store.Close()

		a, err := getRunByDigest(store, args[0])
		if err != nil {
			return err
		}
		b, err := getRunByDigest(store, args[1])
		if err != nil {
			return err
		}

		rows := []struct {
			name string
			a, b types.Digest
		}{
			{"utxo set", a.Digests.UtxoSet, b.Digests.UtxoSet},
			{"address utxos", a.Digests.AddressUtxos, b.Digests.AddressUtxos},
			{"address balance", a.Digests.AddressBalances, b.Digests.AddressBalances},
			{"block headers", a.Digests.BlockHeaders, b.Digests.BlockHeaders},
			{"block heights", a.Digests.BlockHeights, b.Digests.BlockHeights},
			{"combined", a.Digests.Combined, b.Digests.Combined},
		}
		diverged := 0
		for _, row := range rows {
			status := "match"
			if row.a != row.b {
				status = "DIVERGED"
				diverged++
			}
			fmt.Printf("%-16s %s\n", row.name+":", status)
		}
		if diverged > 0 {
			fmt.Printf("\n%d datasets diverge\n", diverged)
			os.Exit(1)
		}
		fmt.Println("\nruns match")
		return nil
	},
}

func getRunByDigest(store *dbarchive.Store, arg string) (*dbarchive.Run, error) {
	digest, err := types.ParseDigest(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid digest %q: %w", arg, err)
	}
	run, err := store.GetRun(digest)
	if err != nil {
		return nil, fmt.Errorf("error loading run %s: %w", arg, err)
	}
	return run, nil
}

func printDigests(digests types.Digests) {
	fmt.Printf("utxo set:         %s\n", digests.UtxoSet)
	fmt.Printf("address utxos:    %s\n", digests.AddressUtxos)
	fmt.Printf("address balance:  %s\n", digests.AddressBalances)
	fmt.Printf("block headers:    %s\n", digests.BlockHeaders)
	fmt.Printf("block heights:    %s\n", digests.BlockHeights)
	fmt.Printf("combined:         %s\n", digests.Combined)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
