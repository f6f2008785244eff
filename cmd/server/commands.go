package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nutri-practice/internal/access"
	"nutri-practice/internal/record"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations for the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Opening a SQL store applies its migrations.
			_, closer, err := openRepository(cmd.Context(), cfg, zerolog.Nop())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			defer closer.Close()
			fmt.Printf("Store %q is up to date.\n", cfg.StoreDriver)
			return nil
		},
	}
}

func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and maintain patient records",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, _ := cmd.Flags().GetString("query")
			repo, closer, err := cliRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()

			all, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}
			if query != "" {
				all = record.FilterRecords(all, query)
			}
			fmt.Printf("%-36s %-8s %-16s %s\n", "ID", "CODE", "DATE", "NAME")
			for _, r := range all {
				fmt.Printf("%-36s %-8s %-16s %s\n", r.ID, r.AccessCode, r.Date.Format("2006-01-02 15:04"), r.Profile.Name)
			}
			return nil
		},
	}
	listCmd.Flags().StringP("query", "q", "", "Filter by patient name or access code")
	cmd.AddCommand(listCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one record by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			repo, closer, err := cliRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()

			rec, err := repo.FindByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !yes && !confirm(fmt.Sprintf("Delete %s (%s, code %s)?", rec.ID, rec.Profile.Name, rec.AccessCode)) {
				fmt.Println("Aborted.")
				return nil
			}
			remaining, err := repo.DeleteByID(cmd.Context(), rec.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted. %d record(s) remain.\n", len(remaining))
			return nil
		},
	}
	deleteCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	cmd.AddCommand(deleteCmd)

	return cmd
}

func hashSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret <secret>",
		Short: "Print the bcrypt hash to use as PROFESSIONAL_SECRET_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := access.HashSecret(args[0])
			if err != nil {
				return err
			}
			fmt.Println(h)
			return nil
		},
	}
}

func cliRepository(ctx context.Context) (*record.Repository, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	repo, closer, err := openRepository(ctx, cfg, zerolog.Nop())
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { closer.Close() }, nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "sim":
		return true
	}
	return false
}
