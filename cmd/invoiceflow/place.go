package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invoiceflow/invoiceflow/pkg/config"
	"github.com/invoiceflow/invoiceflow/pkg/place"
)

var placeUser string

var placeCmd = &cobra.Command{
	Use:   "place",
	Short: "Manage default unloading places",
	Long: `Get or set a user's default unloading place.

The place backend comes from configuration; the memory backend only lives
for one process, so these commands are mostly useful with redis.

Examples:
  invoiceflow place get --user aziz
  invoiceflow place set --user aziz SIRDARYO`,
}

var placeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show a user's default place",
	RunE:  runPlaceGet,
}

var placeSetCmd = &cobra.Command{
	Use:   "set [place]",
	Short: "Set a user's default place",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlaceSet,
}

func init() {
	placeCmd.PersistentFlags().StringVar(&placeUser, "user", "", "User the place belongs to (required)")
	placeCmd.MarkPersistentFlagRequired("user")

	placeCmd.AddCommand(placeGetCmd)
	placeCmd.AddCommand(placeSetCmd)
	rootCmd.AddCommand(placeCmd)
}

// newPlaceStore builds the place backend selected by configuration.
func newPlaceStore(cfg *config.Config) (place.Store, error) {
	switch cfg.Places.Backend {
	case "", "memory":
		return place.NewMemoryStore(), nil
	case "redis":
		return place.NewRedisStore(place.RedisConfig{
			Address:  cfg.Places.Redis.Address,
			Password: cfg.Places.Redis.Password,
			Database: cfg.Places.Redis.Database,
			Prefix:   cfg.Places.Redis.Prefix,
			Timeout:  cfg.Places.Redis.Timeout,
			PoolSize: cfg.Places.Redis.PoolSize,
		})
	default:
		return nil, fmt.Errorf("unknown places backend: %s", cfg.Places.Backend)
	}
}

func runPlaceGet(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	store, err := newPlaceStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	value, ok, err := store.Get(context.Background(), placeUser)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("No place set for %s\n", placeUser)
		return nil
	}
	fmt.Printf("%s: %s\n", placeUser, value)
	return nil
}

func runPlaceSet(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	store, err := newPlaceStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Set(context.Background(), placeUser, args[0]); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", placeUser, args[0])
	return nil
}
