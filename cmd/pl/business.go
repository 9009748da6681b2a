package main

import (
	"context"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"partnerline/internal/domain"
	"partnerline/internal/engine"
	"partnerline/internal/repo"
)

func businessCmd() *cobra.Command {
	b := &cobra.Command{Use: "business", Aliases: []string{"b"}, Short: "Manage the business directory"}
	b.AddCommand(businessAddCmd())
	b.AddCommand(businessListCmd())
	b.AddCommand(businessShowCmd())
	b.AddCommand(businessBlocksCmd())
	return b
}

func businessAddCmd() *cobra.Command {
	var id, name, industry, location string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or update a business",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.UpsertBusiness(ctx, operator(), domain.Business{ID: id, Name: name, Industry: industry, Location: location})
				if err != nil {
					return err
				}
				return printBusinesses([]domain.Business{b})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "business id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&industry, "industry", "", "industry")
	cmd.Flags().StringVar(&location, "location", "", "location")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func businessListCmd() *cobra.Command {
	var f repo.BusinessFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Discover businesses",
		Long:  "Lists the directory. With --actor-id set, the actor and businesses it blocked are left out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListBusinesses(ctx, actorID(), f)
				if err != nil {
					return err
				}
				return printBusinesses(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.Industry, "industry", "", "exact industry")
	cmd.Flags().StringVar(&f.Location, "location", "", "exact location")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "name substring")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func businessShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a business",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.GetBusiness(ctx, args[0])
				if err != nil {
					return err
				}
				return printBusinesses([]domain.Business{b})
			})
		},
	}
}

func businessBlocksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blocks",
		Short: "Businesses the acting business has blocked",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				blocks, err := e.ListBlocks(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(blocks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Blocked", "Proposal", "Since"})
				for _, b := range blocks {
					tw.AppendRow(table.Row{b.BlockedID, b.ProposalID, b.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func printBusinesses(items []domain.Business) error {
	if viper.GetBool("json") {
		if len(items) == 1 {
			return printJSON(items[0])
		}
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Industry", "Location", "Updated"})
	for _, b := range items {
		tw.AppendRow(table.Row{b.ID, b.Name, b.Industry, b.Location, b.UpdatedAt})
	}
	tw.Render()
	return nil
}
