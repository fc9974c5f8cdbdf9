package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/pkg/ticketclient"
)

type globalOptions struct {
	baseURL string
	token   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "ticketctl",
		Short:         "Command line client for the support desk API",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("TICKETCTL_URL", "http://localhost:8080/api/v1/support"), "API base URL including the prefix")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("TICKETCTL_TOKEN"), "bearer token")

	client := func() *ticketclient.Client {
		return ticketclient.New(ticketclient.NewHTTPRequester(opts.baseURL, ticketclient.WithToken(opts.token)))
	}

	root.AddCommand(
		newTokenCmd(),
		newTicketsCmd(client),
		newStatsCmd(client),
		newMineCmd(client),
		newEventsCmd(),
	)
	return root
}

func newTokenCmd() *cobra.Command {
	var actor domain.Actor
	var actorType string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token with the server's AUTH_* settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			actor.Type = domain.ActorType(actorType)
			tm := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL())
			token, _, err := tm.GenerateToken(actor)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&actor.ID, "id", "", "actor id (required)")
	cmd.Flags().StringVar(&actorType, "type", string(domain.ActorTypeStaff), "actor type: staff or user")
	cmd.Flags().StringVar(&actor.Email, "email", "", "actor email")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newTicketsCmd(client func() *ticketclient.Client) *cobra.Command {
	cmd := &cobra.Command{Use: "tickets", Short: "Work with tickets"}
	cmd.AddCommand(
		newListCmd(client),
		newGetCmd(client),
		newCreateCmd(client),
		newAssignCmd(client),
		newReplyCmd(client),
		newEscalateCmd(client),
		newStatusCmd(client, "resolve", "Resolve a ticket", (*ticketclient.Client).ResolveTicket),
		newStatusCmd(client, "close", "Close a ticket", (*ticketclient.Client).CloseTicket),
		newStatusCmd(client, "reopen", "Reopen a resolved or closed ticket", (*ticketclient.Client).ReopenTicket),
		newPriorityCmd(client),
		newRateCmd(client),
		newHistoryCmd(client),
	)
	return cmd
}

func newListCmd(client func() *ticketclient.Client) *cobra.Command {
	var status, priority, category, assignedTo, search, sortBy, sortOrder string
	var page, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets (staff)",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := map[string]string{
				"status": status, "priority": priority, "category": category, "assignedTo": assignedTo,
				"search": search, "sortBy": sortBy, "sortOrder": sortOrder,
			}
			values := url.Values{}
			for k, v := range q {
				if v != "" {
					values[k] = []string{v}
				}
			}
			if page > 0 {
				values["page"] = []string{strconv.Itoa(page)}
			}
			if limit > 0 {
				values["limit"] = []string{strconv.Itoa(limit)}
			}
			filter, err := domain.ParseTicketFilter(values)
			if err != nil {
				return err
			}
			list, err := client().ListTickets(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
	f := cmd.Flags()
	f.StringVar(&status, "status", "", "filter by status")
	f.StringVar(&priority, "priority", "", "filter by priority")
	f.StringVar(&category, "category", "", "filter by category")
	f.StringVar(&assignedTo, "assigned-to", "", "filter by assignee")
	f.StringVar(&search, "search", "", "search subject, description, email and name")
	f.StringVar(&sortBy, "sort-by", "", "createdAt, updatedAt, priority or dueDate")
	f.StringVar(&sortOrder, "order", "", "asc or desc")
	f.IntVar(&page, "page", 0, "page number")
	f.IntVar(&limit, "limit", 0, "page size")
	return cmd
}

func newGetCmd(client func() *ticketclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get TICKET_ID",
		Short: "Show one ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := client().GetTicket(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newCreateCmd(client func() *ticketclient.Client) *cobra.Command {
	var req domain.CreateTicketRequest
	var category, priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Category = domain.TicketCategory(category)
			req.Priority = domain.TicketPriority(priority)
			view, err := client().CreateTicket(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.UserEmail, "email", "", "requester email (required)")
	f.StringVar(&category, "category", string(domain.TicketCategoryOther), "ticket category")
	f.StringVar(&priority, "priority", "", "ticket priority (default normal)")
	f.StringVar(&req.Subject, "subject", "", "subject (required)")
	f.StringVar(&req.Description, "description", "", "description (required)")
	f.StringSliceVar(&req.Tags, "tag", nil, "tag, repeatable")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newAssignCmd(client func() *ticketclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "assign TICKET_ID STAFF_ID",
		Short: "Assign a ticket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := client().AssignTicket(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newReplyCmd(client func() *ticketclient.Client) *cobra.Command {
	var req domain.AddResponseRequest
	cmd := &cobra.Command{
		Use:   "reply TICKET_ID",
		Short: "Add a response to a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := client().Reply(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&req.Content, "content", "", "response text (required)")
	cmd.Flags().BoolVar(&req.IsInternal, "internal", false, "staff-only note")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newEscalateCmd(client func() *ticketclient.Client) *cobra.Command {
	var to, reason string
	cmd := &cobra.Command{
		Use:   "escalate TICKET_ID",
		Short: "Escalate a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := client().EscalateTicket(cmd.Context(), args[0], to, reason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "escalation target (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the ticket is escalated (required)")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

type statusCall func(c *ticketclient.Client, ctx context.Context, id string, notes *string) (ticketclient.TicketView, error)

func newStatusCmd(client func() *ticketclient.Client, use, short string, call statusCall) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   use + " TICKET_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p *string
			if cmd.Flags().Changed("notes") {
				p = &notes
			}
			view, err := call(client(), cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "internal notes")
	return cmd
}

func newPriorityCmd(client func() *ticketclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "priority TICKET_ID PRIORITY",
		Short: "Change a ticket's priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := client().SetPriority(cmd.Context(), args[0], domain.TicketPriority(args[1]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newRateCmd(client func() *ticketclient.Client) *cobra.Command {
	var feedback string
	cmd := &cobra.Command{
		Use:   "rate TICKET_ID RATING",
		Short: "Rate a resolved or closed ticket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("rating must be an integer: %w", err)
			}
			var p *string
			if feedback != "" {
				p = &feedback
			}
			view, err := client().RateTicket(cmd.Context(), args[0], rating, p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&feedback, "feedback", "", "free-text feedback")
	return cmd
}

func newHistoryCmd(client func() *ticketclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "history TICKET_ID",
		Short: "Show a ticket's audit trail (staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := client().History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
}

func newStatsCmd(client func() *ticketclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics (staff)",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snapshot)
		},
	}
}

func newMineCmd(client func() *ticketclient.Client) *cobra.Command {
	var page, limit int
	var status string
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List tickets assigned to or opened by the caller",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := client().MyTickets(cmd.Context(), domain.TicketStatus(status), page, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only tickets in this status")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	return cmd
}

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "events", Short: "Observe the ticket event stream"}
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print events mirrored to Redis until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rdb := persistence.NewRedis(cmd.Context(), cfg.Redis, zap.NewNop())
			if !rdb.Enabled() {
				return errors.New("REDIS_ADDR is not set")
			}
			defer rdb.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			out := json.NewEncoder(cmd.OutOrStdout())
			return events.Listen(ctx, rdb.Client, cfg.Redis.EventsChannel, func(_ context.Context, e events.Event) error {
				return out.Encode(e)
			})
		},
	})
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
