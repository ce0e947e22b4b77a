package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SnowCait/user-notes-search/internal/discovery"
	"github.com/SnowCait/user-notes-search/internal/identity"
	"github.com/SnowCait/user-notes-search/internal/relay"
	"github.com/SnowCait/user-notes-search/internal/util"
)

const aboutWidth = 80

func newResolveCmd(opts *options, factory relay.Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <npub|nprofile|hex>",
		Short: "Show the profile and relays of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, factory)
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			ptr, res, err := e.newSession(ctx).Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			printResolved(cmd.OutOrStdout(), ptr.Identity, res)
			return nil
		},
	}
}

func printResolved(w io.Writer, id identity.Identity, res *discovery.Result) {
	row := func(label, value string) {
		fmt.Fprintf(w, "%-9s %s\n", label, value)
	}
	row("pubkey", id.Hex())
	row("npub", id.Npub())
	if snap := res.Profile(id.Hex()); snap != nil {
		row("name", snap.Profile.BestName())
		if about := strings.Join(strings.Fields(snap.Profile.About), " "); about != "" {
			row("about", util.TruncateStringRunes(about, aboutWidth))
		}
	}
	row("read", strings.Join(res.Relays.Read, " "))
	row("write", strings.Join(res.Relays.Write, " "))
	content := strings.Join(res.ContentRelays, " ")
	if res.UsedFallback {
		content += " (defaults)"
	}
	row("content", content)
}
