package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/AnchorSync/pkg/anchorsync"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List anchors persisted in the store",
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <anchor-id>",
	Short: "Delete a persisted anchor",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove anchors whose expiration has passed",
	RunE:  runPurge,
}

func openStore() (anchorsync.Storage, error) {
	store, err := anchorsync.NewSQLiteStorage(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open anchor store: %w", err)
	}
	return store, nil
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	anchors, err := store.ListAnchors()
	if err != nil {
		return fmt.Errorf("failed to list anchors: %w", err)
	}
	if len(anchors) == 0 {
		fmt.Println("📭 No anchors stored")
		return nil
	}

	now := time.Now()
	fmt.Printf("📚 %d anchor(s):\n\n", len(anchors))
	fmt.Printf("%-36s  %-28s  %-14s  %s\n", "ID", "POSITION", "CREATED", "EXPIRES")
	for _, a := range anchors {
		expires := "never"
		if a.Expiration != nil {
			expires = humanize.RelTime(*a.Expiration, now, "ago", "from now")
			if a.Expired(now) {
				expires += " (expired)"
			}
		}
		fmt.Printf("%-36s  %-28s  %-14s  %s\n", a.ID, a.Pose, humanize.Time(a.CreatedAt), expires)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteAnchor(args[0]); err != nil {
		if anchorsync.IsNotFound(err) {
			return fmt.Errorf("anchor %s does not exist", args[0])
		}
		return fmt.Errorf("failed to delete anchor: %w", err)
	}
	fmt.Printf("🗑️  Deleted anchor %s\n", args[0])
	return nil
}

func runPurge(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.PurgeExpired()
	if err != nil {
		return fmt.Errorf("failed to purge anchors: %w", err)
	}
	fmt.Printf("🧹 Removed %s expired anchor(s)\n", humanize.Comma(removed))
	return nil
}
