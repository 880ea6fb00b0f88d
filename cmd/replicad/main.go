// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command replicad is an illustrative operator-surface wiring for a
// single replica process: start, backup, and restore, each a thin cobra
// subcommand over a replica.Pipeline. It is not a production deployment
// tool — member discovery, inter-process transport, and config-file
// formats are left to the embedding driver — it exists to give the
// core's operator surface a runnable shape.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxfi/ids"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/veritasdb/vsmraft/config"
	nooplog "github.com/veritasdb/vsmraft/log"
	"github.com/veritasdb/vsmraft/replica"
	"github.com/veritasdb/vsmraft/transport"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "replicad:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "replicad",
		Short: "Run and operate a single verified-state-machine replica",
	}
	root.AddCommand(startCmd(), backupCmd(), restoreCmd())
	return root
}

func startCmd() *cobra.Command {
	var dataDir, self string
	var members []string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a replica process and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			selfID, memberIDs, err := parseNodeIDs(self, members)
			if err != nil {
				return err
			}

			cfg := config.DefaultReplicaConfig(selfID, memberIDs, dataDir)
			if err := cfg.Validate(); err != nil {
				return err
			}

			net := transport.NewNetwork()
			tr := net.NewTransport(selfID)

			p, err := replica.Open(cfg, tr, prometheus.NewRegistry(), nooplog.NewNoOpLogger())
			if err != nil {
				return fmt.Errorf("open replica: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			return p.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory this replica owns exclusively")
	cmd.Flags().StringVar(&self, "self", "", "this replica's node id")
	cmd.Flags().StringArrayVar(&members, "member", nil, "a replica set member's node id (repeatable, self included)")
	_ = cmd.MarkFlagRequired("data-dir")
	_ = cmd.MarkFlagRequired("self")
	_ = cmd.MarkFlagRequired("member")

	return cmd
}

func backupCmd() *cobra.Command {
	var dataDir, out string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive a data directory's WAL and snapshots to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			w := bufio.NewWriter(f)
			if err := replica.BackupDataDir(dataDir, w); err != nil {
				return err
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "data directory to archive")
	cmd.Flags().StringVar(&out, "out", "", "archive output path")
	_ = cmd.MarkFlagRequired("data-dir")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func restoreCmd() *cobra.Command {
	var dataDir, in string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Install a backup archive into an empty data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(in)
			if err != nil {
				return err
			}
			defer f.Close()
			return replica.Restore(dataDir, bufio.NewReader(f))
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "target data directory, must be empty")
	cmd.Flags().StringVar(&in, "in", "", "archive input path")
	_ = cmd.MarkFlagRequired("data-dir")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func parseNodeIDs(self string, members []string) (ids.NodeID, []ids.NodeID, error) {
	selfID, err := ids.NodeIDFromString(self)
	if err != nil {
		return ids.EmptyNodeID, nil, fmt.Errorf("parse --self: %w", err)
	}
	memberIDs := make([]ids.NodeID, 0, len(members))
	for _, m := range members {
		id, err := ids.NodeIDFromString(m)
		if err != nil {
			return ids.EmptyNodeID, nil, fmt.Errorf("parse --member %q: %w", m, err)
		}
		memberIDs = append(memberIDs, id)
	}
	return selfID, memberIDs, nil
}
