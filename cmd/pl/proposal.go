package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"partnerline/internal/domain"
	"partnerline/internal/engine"
)

func proposalCmd() *cobra.Command {
	p := &cobra.Command{Use: "proposal", Aliases: []string{"p"}, Short: "Send and negotiate proposals"}
	p.AddCommand(proposalCreateCmd())
	p.AddCommand(proposalShowCmd())
	p.AddCommand(proposalListCmd())
	p.AddCommand(proposalCountsCmd())
	for _, action := range []domain.Action{domain.ActionAccept, domain.ActionDecline, domain.ActionCancel} {
		p.AddCommand(proposalActCmd(action))
	}
	p.AddCommand(proposalNegotiateCmd())
	p.AddCommand(proposalMessageCmd())
	p.AddCommand(proposalReportCmd())
	p.AddCommand(proposalReportsCmd())
	p.AddCommand(proposalBlockCmd())
	p.AddCommand(proposalUnblockCmd())
	p.AddCommand(proposalExpireCmd())
	p.AddCommand(proposalRevisionsCmd())
	p.AddCommand(proposalPreviewCmd())
	return p
}

func proposalCreateCmd() *cobra.Command {
	var id, to, title, summary, message, contentPath string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a proposal to another business",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(contentPath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Create(ctx, engine.CreateOptions{
					ID:          id,
					ActorID:     actorID(),
					RecipientID: to,
					Title:       title,
					Summary:     summary,
					Content:     content,
					Message:     message,
				})
				if err != nil {
					return err
				}
				return printProposal(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "proposal id (generated when empty)")
	cmd.Flags().StringVar(&to, "to", "", "recipient business id")
	cmd.Flags().StringVar(&title, "title", "", "proposal title")
	cmd.Flags().StringVar(&summary, "summary", "", "summary (defaults to the outline summary)")
	cmd.Flags().StringVar(&message, "message", "", "first thread message")
	cmd.Flags().StringVar(&contentPath, "content", "", "content JSON file, - for stdin")
	return cmd
}

func proposalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a proposal and its thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Get(ctx, actorID(), args[0])
				if err != nil {
					return err
				}
				return printProposal(p)
			})
		},
	}
}

func proposalListCmd() *cobra.Command {
	var tab, q string
	var includeBlocked bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals of the acting business",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := domain.ParseTab(tab)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.List(ctx, engine.ListOptions{UserID: actorID(), Tab: t, Search: q, IncludeBlocked: includeBlocked, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Partner", "Role", "Status", "Awaiting", "Unread", "Updated"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Title, it.PartnerName, it.Role, it.Status, rolePtr(it.AwaitingParty), unreadMark(it.Unread), it.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tab, "tab", "all", "all|sent|received|awaiting|negotiating|accepted|declined")
	cmd.Flags().StringVarP(&q, "query", "q", "", "case-insensitive search on title and partner name")
	cmd.Flags().BoolVar(&includeBlocked, "include-blocked", false, "include proposals with blocked businesses")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows (0 uses the configured default)")
	return cmd
}

func proposalCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Per-tab totals and unread count",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Counts(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Tab", "Count"})
				for _, t := range domain.Tabs() {
					tw.AppendRow(table.Row{t, counts.Tabs[t]})
				}
				tw.AppendFooter(table.Row{"unread", counts.Unread})
				tw.Render()
				return nil
			})
		},
	}
}

func proposalActCmd(action domain.Action) *cobra.Command {
	var note string
	var ifMatch int64
	cmd := &cobra.Command{
		Use:   string(action) + " <id>",
		Short: strings.ToUpper(string(action[:1])) + string(action[1:]) + " a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Act(ctx, engine.ActOptions{
					ProposalID:      args[0],
					ActorID:         actorID(),
					ActorName:       actorName(),
					Action:          action,
					Note:            note,
					ExpectedVersion: ifMatch,
				})
				if err != nil {
					return err
				}
				return printProposal(p)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "thread message (defaults to the configured phrase)")
	cmd.Flags().Int64Var(&ifMatch, "if-match", 0, "fail unless the proposal is at this version")
	return cmd
}

func proposalNegotiateCmd() *cobra.Command {
	var contentPath, summary string
	var ifMatch int64
	cmd := &cobra.Command{
		Use:   "negotiate <id>",
		Short: "Submit revised terms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(contentPath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Negotiate(ctx, engine.NegotiateOptions{
					ProposalID:      args[0],
					ActorID:         actorID(),
					ActorName:       actorName(),
					Content:         content,
					Summary:         summary,
					ExpectedVersion: ifMatch,
				})
				if err != nil {
					return err
				}
				return printProposal(p)
			})
		},
	}
	cmd.Flags().StringVar(&contentPath, "content", "", "content JSON file, - for stdin")
	cmd.Flags().StringVar(&summary, "summary", "", "thread message describing the change")
	cmd.Flags().Int64Var(&ifMatch, "if-match", 0, "fail unless the proposal is at this version")
	return cmd
}

func proposalMessageCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "message <id>",
		Short: "Post a chat message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SendMessage(ctx, engine.MessageOptions{ProposalID: args[0], ActorID: actorID(), ActorName: actorName(), Content: text})
				if err != nil {
					return err
				}
				return printProposal(p)
			})
		},
	}
	cmd.Flags().StringVarP(&text, "text", "m", "", "message text")
	return cmd
}

func proposalReportCmd() *cobra.Command {
	var reason, details string
	cmd := &cobra.Command{
		Use:   "report <id>",
		Short: "Report a proposal to moderators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.Report(ctx, engine.ReportOptions{ProposalID: args[0], ActorID: actorID(), ActorName: actorName(), Reason: reason, Details: details})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				fmt.Printf("report %s filed\n", rep.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "report reason")
	cmd.Flags().StringVar(&details, "details", "", "free-text details")
	return cmd
}

func proposalReportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reports <id>",
		Short: "List reports on a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reps, err := e.ListReports(ctx, operator(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reps)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Reporter", "Reason", "Details", "Created"})
				for _, r := range reps {
					tw.AppendRow(table.Row{r.ID, r.ReporterName, r.Reason, r.Details, r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func proposalBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <id>",
		Short: "Block the other party of a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.Block(ctx, actorID(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(b)
				}
				fmt.Printf("blocked %s\n", b.BlockedID)
				return nil
			})
		},
	}
}

func proposalUnblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <business-id>",
		Short: "Remove a block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Unblock(ctx, actorID(), args[0]); err != nil {
					return err
				}
				fmt.Printf("unblocked %s\n", args[0])
				return nil
			})
		},
	}
}

func proposalExpireCmd() *cobra.Command {
	var due bool
	cmd := &cobra.Command{
		Use:   "expire [<id>]",
		Short: "Expire one open proposal, or all idle ones with --due",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if due == (len(args) == 1) {
				return fmt.Errorf("give a proposal id or --due")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if due {
					res, err := e.ExpireDue(ctx, operator())
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(res)
					}
					if res.Cutoff == "" {
						fmt.Println("expiry disabled: proposals.expire_after is 0")
						return nil
					}
					fmt.Printf("expired %d, skipped %d (idle since before %s)\n", len(res.Expired), len(res.Skipped), res.Cutoff)
					return nil
				}
				p, err := e.Expire(ctx, operator(), args[0])
				if err != nil {
					return err
				}
				return printProposal(p)
			})
		},
	}
	cmd.Flags().BoolVar(&due, "due", false, "expire every proposal idle longer than proposals.expire_after")
	return cmd
}

func proposalRevisionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revisions <id>",
		Short: "Content history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				revs, err := e.ListRevisions(ctx, operator(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(revs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Rev", "Author", "Role", "Changed", "Created"})
				for _, r := range revs {
					changed := make([]string, 0, len(r.ChangedSections))
					for _, s := range r.ChangedSections {
						changed = append(changed, string(s))
					}
					tw.AppendRow(table.Row{r.Revision, r.AuthorID, r.AuthorRole, strings.Join(changed, ", "), r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func proposalPreviewCmd() *cobra.Command {
	var contentPath, proposerName string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Compute end date, KPI validity and outline summary for a draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(contentPath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSON(e.Preview(content, proposerName))
			})
		},
	}
	cmd.Flags().StringVar(&contentPath, "content", "", "content JSON file, - for stdin")
	cmd.Flags().StringVar(&proposerName, "proposer-name", "", "name used in the outline summary")
	return cmd
}

func printProposal(p domain.Proposal) error {
	if viper.GetBool("json") {
		return printJSON(p)
	}
	fmt.Printf("%s  %s\n", p.ID, p.Title)
	fmt.Printf("  %s -> %s\n", p.ProposerName, p.RecipientName)
	fmt.Printf("  status %s", p.Status)
	if p.AwaitingParty != nil {
		fmt.Printf(" (awaiting %s)", *p.AwaitingParty)
	}
	fmt.Printf("  version %d  revision %d\n", p.Version, p.Revision)
	if end := p.Content.Terms.EndDate; end != nil {
		fmt.Printf("  runs %s to %s\n", p.Content.Terms.StartDate, *end)
	} else if p.Content.Terms.Duration.Ongoing {
		fmt.Printf("  runs from %s, ongoing\n", p.Content.Terms.StartDate)
	}
	if p.Summary != "" {
		fmt.Printf("  %s\n", p.Summary)
	}
	if len(p.Messages) == 0 {
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "From", "Kind", "Message", "At"})
	for _, m := range p.Messages {
		tw.AppendRow(table.Row{m.Seq, m.SenderName, m.Kind, m.Content, m.CreatedAt})
	}
	tw.Render()
	return nil
}

func rolePtr(r *domain.Role) string {
	if r == nil {
		return ""
	}
	return string(*r)
}

func unreadMark(unread bool) string {
	if unread {
		return "*"
	}
	return ""
}
