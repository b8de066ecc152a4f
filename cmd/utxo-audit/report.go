package main

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/setavenger/utxo-audit/internal/types"
	"github.com/setavenger/utxo-audit/internal/validate"
)

func printReport(snap *types.StateSnapshot, report validate.Report) {
	fmt.Printf("source:      %s\n", snap.Source)
	if snap.Meta.Network != "" {
		fmt.Printf("network:     %s\n", snap.Meta.Network)
	}
	fmt.Printf("tip height:  %d\n", snap.Meta.TipHeight)
	if snap.Meta.TipHash != (chainhash.Hash{}) {
		fmt.Printf("tip hash:    %s\n", snap.Meta.TipHash)
	}
	fmt.Println()

	var total uint64
	classes := make(map[types.ScriptClass]int)
	for i := range snap.Utxos {
		total += snap.Utxos[i].TxOut.Value
		classes[snap.Utxos[i].ScriptClass()]++
	}

	fmt.Printf("utxos:          %d (small %d, medium %d, large %d)\n",
		len(snap.Utxos), classes[types.ScriptSmall], classes[types.ScriptMedium], classes[types.ScriptLarge])
	fmt.Printf("total amount:   %s\n", btcutil.Amount(total))
	fmt.Printf("address utxos:  %d\n", len(snap.AddressUtxos))
	fmt.Printf("balances:       %d\n", len(snap.Balances))
	fmt.Printf("headers:        %d\n", len(snap.Headers))
	fmt.Printf("heights:        %d\n", len(snap.Heights))
	fmt.Println()

	fmt.Printf("utxo set:         %s\n", snap.Digests.UtxoSet)
	fmt.Printf("address utxos:    %s\n", snap.Digests.AddressUtxos)
	fmt.Printf("address balance:  %s\n", snap.Digests.AddressBalances)
	fmt.Printf("block headers:    %s\n", snap.Digests.BlockHeaders)
	fmt.Printf("block heights:    %s\n", snap.Digests.BlockHeights)
	fmt.Printf("combined:         %s\n", snap.Digests.Combined)
	fmt.Println()

	if report.OK() {
		fmt.Println("consistency: ok")
		return
	}
	fmt.Printf("consistency: %d findings\n", len(report.Findings))
	for _, finding := range report.Findings {
		fmt.Printf("  %s\n", finding)
	}
}
