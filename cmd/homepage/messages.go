package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yanachan-dev/homepage/pkg/api"
)

func messagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "messages",
		Aliases: []string{"msg"},
		Short:   "Read and write the guestbook",
		Long: `List guestbook messages, or post, reply to and delete them as the
signed-in user.

Examples:
  homepage messages
  homepage messages send "hello!"
  homepage messages reply 12 "thanks"
  homepage messages delete 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSite(cmd, func(ctx context.Context, s *site) error {
				list, err := s.client.Messages(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUSER\tDATE\tMESSAGE")
				for _, m := range list {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", m.ID, m.Username, m.Date, m.Content)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "send <text>",
			Short: "Post a message",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSite(cmd, func(ctx context.Context, s *site) error {
					res, err := s.client.SendMessage(ctx, args[0])
					return printResult(cmd, res, err)
				})
			},
		},
		&cobra.Command{
			Use:   "reply <id> <text>",
			Short: "Reply to a message",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid message id %q", args[0])
				}
				return withSite(cmd, func(ctx context.Context, s *site) error {
					res, err := s.client.ReplyToMessage(ctx, id, args[1])
					return printResult(cmd, res, err)
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a message (administrators only)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid message id %q", args[0])
				}
				return withSite(cmd, func(ctx context.Context, s *site) error {
					res, err := s.client.DeleteMessage(ctx, id)
					return printResult(cmd, res, err)
				})
			},
		},
	)
	return cmd
}

// printResult reports a backend Result. An unsuccessful result is an error.
func printResult(cmd *cobra.Command, res api.Result, err error) error {
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s", res.Message)
	}
	msg := res.Message
	if msg == "" {
		msg = "ok"
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}
