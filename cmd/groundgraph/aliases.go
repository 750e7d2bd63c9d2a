package groundgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soundprediction/groundgraph/pkg/resolver"
)

var aliasesCmd = &cobra.Command{
	Use:   "aliases [NAME...]",
	Short: "Show the alias table or resolve names against it",
	Long: `Without arguments, list every canonical entity with its aliases and
print resolver statistics. With names, resolve each one and show which
canonical entity it maps to and how.`,
	RunE: runAliases,
}

func init() {
	rootCmd.AddCommand(aliasesCmd)
}

func runAliases(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, _, err := openClient(ctx, cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	res := client.Resolver()

	if len(args) > 0 {
		for _, name := range args {
			r, err := res.Resolve(ctx, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s -> %s [%s %.2f]", name, r.CanonicalName, r.Method, r.Score)
			if r.Ambiguity != nil {
				fmt.Fprintf(out, " ambiguous: %v", r.Ambiguity)
			}
			fmt.Fprintln(out)
		}
		return nil
	}

	for _, rec := range res.Records() {
		fmt.Fprintf(out, "%s\t%s\t%s\n", rec.ID, rec.CanonicalName, strings.Join(rec.Aliases, ", "))
	}

	stats := res.Stats()
	fmt.Fprintf(out, "entities: %d  aliases: %d  version: %d  ambiguities: %d\n",
		stats.UniqueEntities, stats.TotalAliases, stats.Version, stats.Ambiguities)
	methods := make([]string, 0, len(stats.ByMethod))
	for m := range stats.ByMethod {
		methods = append(methods, string(m))
	}
	sort.Strings(methods)
	for _, m := range methods {
		fmt.Fprintf(out, "  %s: %d\n", m, stats.ByMethod[resolver.Method(m)])
	}
	return nil
}
