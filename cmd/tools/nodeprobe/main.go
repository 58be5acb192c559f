package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/lavapool/lavapool/internal/client"
	"github.com/lavapool/lavapool/internal/config"
	"github.com/lavapool/lavapool/internal/node"
)

// nodeprobe connects the configured nodes, waits for their first stats
// frames and prints the pool ranked by penalty.
func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	wait := flag.Duration("wait", 10*time.Second, "How long to wait for stats frames")
	watch := flag.Bool("watch", false, "Keep printing the ranking until interrupted")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if len(cfg.Nodes) == 0 {
		fmt.Fprintln(os.Stderr, "No nodes configured")
		os.Exit(1)
	}

	c, err := client.New(*cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build client: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect nodes: %v\n", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-time.After(*wait):
	case <-quit:
		return
	}

	printRanking(c)

	if *watch {
		ticker := time.NewTicker(*wait)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				printRanking(c)
			case <-quit:
				return
			}
		}
	}
}

func printRanking(c *client.Client) {
	nodes := c.Nodes().Nodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Penalty().Total < nodes[j].Penalty().Total
	})

	fmt.Printf("%-24s %-8s %-12s %-9s %10s %10s %10s %10s %12s\n",
		"NODE", "REGION", "STATE", "AVAILABLE", "PLAYERS", "CPU", "NULL", "DEFICIT", "TOTAL")

	for _, n := range nodes {
		p := n.Penalty()
		total := fmt.Sprintf("%.2f", p.Total)
		if p.Total >= node.UnavailablePenalty {
			total = "unavailable"
		}

		fmt.Printf("%-24s %-8s %-12s %-9t %10.0f %10.2f %10.2f %10.2f %12s\n",
			n.Name(), n.Region(), n.SessionState(), n.Available(),
			p.Player, p.CPU, p.NullFrame, p.DeficitFrame, total)
	}
	fmt.Println()
}
