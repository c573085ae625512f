package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	hush "github.com/meow-io/go-hush"
	"github.com/meow-io/go-hush/store"
	"github.com/spf13/cobra"
)

type stateOptions struct {
	global   *globalOptions
	password string
}

func newStateCmd(global *globalOptions) *cobra.Command {
	opts := &stateOptions{global: global}
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect persisted session state",
	}
	stateCmd.PersistentFlags().StringVar(&opts.password, "password", "", "database password")
	_ = stateCmd.MarkPersistentFlagRequired("password")
	stateCmd.AddCommand(newStateShowCmd(opts), newStateKeysCmd(opts))
	return stateCmd
}

func (o *stateOptions) open() (*store.KV, error) {
	c, err := o.global.config()
	if err != nil {
		return nil, err
	}
	key, err := store.NewKey(o.password, c.RootDir)
	if err != nil {
		return nil, err
	}
	return store.Open(c, filepath.Join(c.RootDir, store.DefaultFile), key)
}

func newStateShowCmd(opts *stateOptions) *cobra.Command {
	var chain int
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted state of the session on a chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kv, err := opts.open()
			if err != nil {
				return err
			}
			defer kv.Close()

			id := hush.SessionID(chain)
			raw, ok, err := kv.Read(id)
			if err != nil {
				return err
			}
			if !ok || raw == "" {
				return fmt.Errorf("no state for session %s", id)
			}
			var out bytes.Buffer
			if err := json.Indent(&out, []byte(raw), "", "  "); err != nil {
				return fmt.Errorf("state for session %s is not valid JSON: %w", id, err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out.String())
			return err
		},
	}
	showCmd.Flags().IntVar(&chain, "chain", 0, "chain id")
	_ = showCmd.MarkFlagRequired("chain")
	return showCmd
}

func newStateKeysCmd(opts *stateOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List persisted session keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kv, err := opts.open()
			if err != nil {
				return err
			}
			defer kv.Close()

			keys, err := kv.Keys()
			if err != nil {
				return err
			}
			for _, k := range keys {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), k); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
