package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/antoniostano/navi/internal/audio/portaudio"
	"github.com/antoniostano/navi/internal/config"
	"github.com/antoniostano/navi/internal/memory"
)

func sayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say <text...>",
		Short: "Speak text through the configured voice",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			speaker, err := newSpeaker(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return speaker.Speak(cmd.Context(), strings.Join(args, " "))
		},
	}
}

func memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and seed the memory store",
	}
	cmd.AddCommand(memoryExportCmd())
	cmd.AddCommand(memoryContextCmd())
	cmd.AddCommand(memorySeedCmd())
	cmd.AddCommand(memoryRestoreCmd())
	return cmd
}

func memoryExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the whole memory document as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := openCLIStore(cmd)
			if err != nil {
				return err
			}
			doc, err := store.ExportAll(cmd.Context())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

func memoryContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "context [user-id]",
		Short: "Print the context digest handed to the completion engine",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openCLIStore(cmd)
			if err != nil {
				return err
			}
			userID := cfg.UserID
			if len(args) == 1 {
				userID = args[0]
			}
			digest, err := store.GetContext(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if digest == "" {
				digest = "(nothing known about " + userID + ")"
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), digest)
			return err
		},
	}
}

func memorySeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Apply a YAML fixture of people and facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openCLIStore(cmd)
			if err != nil {
				return err
			}
			if err := memory.SeedFile(cmd.Context(), store, args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s from %s\n", store.Path(), args[0])
			return err
		},
	}
}

func memoryRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Replace the memory file with the latest PostgreSQL snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, cfg, err := openCLIStore(cmd)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("memory restore needs DATABASE_URL")
			}
			pg, err := memory.NewPostgresArchiver(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pg.Close()

			doc, takenAt, err := pg.Latest(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Restore(cmd.Context(), doc); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Restored %s from snapshot taken %s (%d people, %d interactions)\n",
				store.Path(), takenAt.Format(time.RFC3339), len(doc.People), len(doc.Interactions))
			return err
		},
	}
}

// openCLIStore opens the configured store alongside the loaded config.
func openCLIStore(cmd *cobra.Command) (*memory.Store, config.Config, error) {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return nil, config.Config{}, err
	}
	store, err := memory.Open(cfg.MemoryPath,
		memory.WithLogger(logger),
		memory.WithMaxInteractions(cfg.MaxInteractions),
		memory.WithDigestSizes(cfg.DigestRecentFacts, cfg.DigestGlobalFacts),
	)
	return store, cfg, err
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices usable as NAVI_MIC_DEVICE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := portaudio.ListInputDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "No capture devices found.")
				return err
			}
			for _, d := range devices {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), d); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
