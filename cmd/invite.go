package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/meow-io/go-hush/contentid"
	"github.com/meow-io/go-hush/invite"
	"github.com/spf13/cobra"
)

type inviteView struct {
	ConversationID string `json:"conversationId"`
	Chain          int    `json:"chain"`
	Contract       string `json:"contract"`
	Provider       string `json:"provider"`
	ClassType      string `json:"classType"`
}

func newInviteCmd() *cobra.Command {
	inviteCmd := &cobra.Command{
		Use:   "invite",
		Short: "Encode and decode chat invites",
	}
	inviteCmd.AddCommand(newInviteDecodeCmd(), newInviteEncodeCmd())
	return inviteCmd
}

func newInviteDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <invite>",
		Short: "Print the chat an invite points at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := invite.Parse(args[0])
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(inviteView{
				ConversationID: inv.ID.ConversationID(),
				Chain:          inv.ID.Chain,
				Contract:       inv.ID.Contract,
				Provider:       inv.ID.Provider,
				ClassType:      inv.ClassType,
			}, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}

func newInviteEncodeCmd() *cobra.Command {
	var (
		chain     int
		contract  string
		provider  string
		classType string
	)
	encodeCmd := &cobra.Command{
		Use:   "encode",
		Short: "Build an invite for a chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := contentid.New(chain, contract, provider)
			if err != nil {
				return err
			}
			s, err := invite.Serialize(invite.Invite{ID: id, ClassType: classType})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), s)
			return err
		},
	}
	encodeCmd.Flags().IntVar(&chain, "chain", 0, "chain id")
	encodeCmd.Flags().StringVar(&contract, "contract", "", "contract address")
	encodeCmd.Flags().StringVar(&provider, "provider", "", "storage provider url")
	encodeCmd.Flags().StringVar(&classType, "class", "", "conversation class type")
	_ = encodeCmd.MarkFlagRequired("chain")
	_ = encodeCmd.MarkFlagRequired("contract")
	_ = encodeCmd.MarkFlagRequired("provider")
	return encodeCmd
}
