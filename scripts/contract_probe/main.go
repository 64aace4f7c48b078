package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/swipe-markets/backend/internal/chain"
	"github.com/swipe-markets/backend/internal/config"
	"github.com/swipe-markets/backend/internal/registry"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: contract_probe <predictionId> [userAddress]")
		os.Exit(2)
	}
	predictionID := os.Args[1]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Println("=== Contract Probe ===")
	fmt.Printf("RPC URL: %s\n", cfg.Chain.RPCURL)
	fmt.Printf("Legacy contract: %s\n", statusString(cfg.Chain.LegacyContract))
	fmt.Printf("USDC contract: %s\n", statusString(cfg.Chain.USDCContract))
	fmt.Println()

	static, err := registry.NewStaticRegistryFromConfig(cfg)
	if err != nil {
		log.Fatalf("❌ Invalid routing config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	route, err := static.Resolve(ctx, predictionID)
	if err != nil {
		log.Fatalf("❌ Cannot route %s: %v", predictionID, err)
	}
	fmt.Printf("Route: %s contract %s, on-chain id %s\n", route.Version, route.Address.Hex(), route.OnchainID)

	client, err := chain.Dial(cfg)
	if err != nil {
		log.Fatalf("❌ RPC dial failed: %v", err)
	}
	defer client.Close()

	state, err := client.GetPrediction(ctx, route.Target())
	if err != nil {
		log.Fatalf("❌ getPrediction failed: %v", err)
	}
	dump("Prediction", state)

	if !state.Registered {
		fmt.Println("⚠️ Prediction is not registered on this contract")
		return
	}

	participants, err := client.GetParticipants(ctx, route.Target())
	if err != nil {
		log.Fatalf("❌ getParticipants failed: %v", err)
	}
	fmt.Printf("Participants: %d\n", len(participants))

	if len(os.Args) > 2 {
		if !common.IsHexAddress(os.Args[2]) {
			log.Fatalf("❌ %q is not an address", os.Args[2])
		}
		position, err := client.GetPosition(ctx, route.Target(), common.HexToAddress(os.Args[2]))
		if err != nil {
			log.Fatalf("❌ position read failed: %v", err)
		}
		dump("Position", position)
	}

	fmt.Println("✅ Probe completed")
}

func dump(label string, v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode %s: %v", label, err)
	}
	fmt.Printf("%s:\n%s\n", label, raw)
}

func statusString(addr string) string {
	if addr == "" {
		return "❌ NOT SET"
	}
	return "✅ " + addr
}
