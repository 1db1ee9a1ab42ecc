package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/AnchorSync/pkg/anchorsync"
	"github.com/himanishpuri/AnchorSync/pkg/models"
	"github.com/spf13/cobra"
)

var (
	posFlag       string
	locateTimeout time.Duration
	keepObject    bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Place, save, then re-locate an anchor in a second session",
	Long: `Runs the full round trip:
  1. Start a session and place an object at --pos
  2. Save it as a cloud anchor once the environment is captured
  3. Stop and reset the session
  4. Locate the saved anchor and re-bind the object to it`,
	RunE: runDemo,
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Place an object at --pos and save it as a cloud anchor",
	RunE:  runSave,
}

var locateCmd = &cobra.Command{
	Use:   "locate <anchor-id> [anchor-id...]",
	Short: "Locate saved anchors and place the object on the first one found",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLocate,
}

func init() {
	for _, cmd := range []*cobra.Command{demoCmd, saveCmd} {
		cmd.Flags().StringVar(&posFlag, "pos", "0,0,1", "World position x,y,z of the placed object")
	}
	demoCmd.Flags().BoolVar(&keepObject, "keep", true, "Keep the saved anchor in the store after the demo")
	for _, cmd := range []*cobra.Command{demoCmd, locateCmd} {
		cmd.Flags().DurationVar(&locateTimeout, "timeout", 30*time.Second, "How long to wait for anchors to be located")
	}
}

func parsePose(s string) (models.Pose, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return models.Pose{}, fmt.Errorf("position must be x,y,z, got %q", s)
	}
	var xyz [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.Pose{}, fmt.Errorf("invalid coordinate %q: %w", p, err)
		}
		xyz[i] = v
	}
	return models.NewPose(xyz[0], xyz[1], xyz[2]), nil
}

func runSave(cmd *cobra.Command, args []string) error {
	pose, err := parsePose(posFlag)
	if err != nil {
		return err
	}

	obs := newObserver(false)
	return withClient(cmd.Context(), obs, func(ctx context.Context, client *anchorsync.Client) error {
		rec, err := startPlaceSave(ctx, client, pose)
		if err != nil {
			return err
		}
		printRecord("✅ Saved anchor", rec)
		return nil
	})
}

func runLocate(cmd *cobra.Command, args []string) error {
	obs := newObserver(false)
	return withClient(cmd.Context(), obs, func(ctx context.Context, client *anchorsync.Client) error {
		snap, err := locate(ctx, client, obs, args)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Object %s placed at %s (anchor %s)\n", snap.ID, snap.Pose, snap.Record.ID)
		return nil
	})
}

func runDemo(cmd *cobra.Command, args []string) error {
	pose, err := parsePose(posFlag)
	if err != nil {
		return err
	}

	obs := newObserver(false)
	return withClient(cmd.Context(), obs, func(ctx context.Context, client *anchorsync.Client) error {
		rec, err := startPlaceSave(ctx, client, pose)
		if err != nil {
			return err
		}
		printRecord("✅ Saved anchor", rec)

		fmt.Println("\n🔄 Stopping and resetting the session...")
		client.Stop()
		if err := client.Reset(ctx); err != nil {
			return err
		}

		fmt.Printf("\n🔍 Locating anchor %s...\n", rec.ID)
		snap, err := locate(ctx, client, obs, []string{rec.ID})
		if err != nil {
			return err
		}
		fmt.Printf("✅ Object %s re-bound to %s at %s\n", snap.ID, snap.Record.ID, snap.Pose)

		if !keepObject {
			client.EndQuery()
			if _, err := client.Delete(ctx); err != nil {
				return err
			}
			fmt.Printf("🗑️  Deleted anchor %s\n", rec.ID)
		}
		return client.Cleanup(ctx)
	})
}

func startPlaceSave(ctx context.Context, client *anchorsync.Client, pose models.Pose) (*models.CloudAnchorRecord, error) {
	fmt.Println("🔧 Starting session...")
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	snap, err := client.Place(ctx, pose)
	if err != nil {
		return nil, fmt.Errorf("place object: %w", err)
	}
	fmt.Printf("📍 Placed object %s at %s\n", snap.ID, snap.Pose)

	fmt.Println("💾 Saving...")
	attempt, err := client.Save(ctx)
	if err != nil {
		var timeout *anchorsync.ReadinessTimeoutError
		if errors.As(err, &timeout) {
			return nil, fmt.Errorf("environment capture stalled at %.0f%%: %w", timeout.LastFraction*100, err)
		}
		return nil, err
	}
	return attempt.Record(), nil
}

func locate(ctx context.Context, client *anchorsync.Client, obs *observer, ids []string) (anchorsync.ObjectSnapshot, error) {
	if err := client.Query(ctx, ids); err != nil {
		return anchorsync.ObjectSnapshot{}, fmt.Errorf("query anchors: %w", err)
	}
	defer client.EndQuery()

	timer := time.NewTimer(locateTimeout)
	defer timer.Stop()
	select {
	case snap := <-obs.placedCh:
		return snap, nil
	case <-obs.completed:
		// A located anchor's placement is queued behind the completion signal.
		// Flushing the dispatcher once lets it land first.
		if err := client.Dispatcher().Call(ctx, func(context.Context) error { return nil }); err != nil {
			return anchorsync.ObjectSnapshot{}, err
		}
		select {
		case snap := <-obs.placedCh:
			return snap, nil
		default:
		}
		return anchorsync.ObjectSnapshot{}, fmt.Errorf("none of %v could be located", ids)
	case <-timer.C:
		return anchorsync.ObjectSnapshot{}, fmt.Errorf("timed out after %s locating %v", locateTimeout, ids)
	case <-ctx.Done():
		return anchorsync.ObjectSnapshot{}, ctx.Err()
	}
}

func printRecord(title string, rec *models.CloudAnchorRecord) {
	fmt.Printf("%s\n", title)
	fmt.Printf("   ID:       %s\n", rec.ID)
	fmt.Printf("   Position: %s\n", rec.Pose)
	if rec.Expiration != nil {
		fmt.Printf("   Expires:  %s\n", rec.Expiration.Format(time.RFC3339))
	}
}
