package groundgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soundprediction/groundgraph"
	"github.com/soundprediction/groundgraph/pkg/ingest"
	"github.com/soundprediction/groundgraph/pkg/types"
)

var askCmd = &cobra.Command{
	Use:   "ask [flags] QUESTION",
	Short: "Answer a question from the graph",
	Long: `Answer a question from the graph and print the report as markdown.

The memory store starts empty on every run; use --seed to load records first,
or the neo4j driver to query what earlier runs ingested.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askMaxHops int
	askSeed    []string
	askJSON    bool
	askTrace   bool
)

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().IntVar(&askMaxHops, "max-hops", 0, "tighten the configured hop bound")
	askCmd.Flags().StringSliceVar(&askSeed, "seed", nil, "record files to ingest before asking")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full answer as JSON")
	askCmd.Flags().BoolVar(&askTrace, "transitions", false, "print state transitions")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, _, err := openClient(ctx, cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, path := range askSeed {
		records, err := ingest.ReadRecordsFile(path, nil)
		if err != nil {
			return err
		}
		if _, err := client.IngestBatch(ctx, "", records, nil); err != nil {
			return fmt.Errorf("seed %s: %w", path, err)
		}
	}

	question := strings.Join(args, " ")
	answer, askErr := client.Ask(ctx, question, &groundgraph.AskOptions{MaxHops: askMaxHops})
	if askErr != nil && !errors.Is(askErr, types.ErrLiveSearchUnavailable) {
		return askErr
	}

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	if answer.Report != nil {
		fmt.Fprintln(out, answer.Report.Markdown())
	} else {
		fmt.Fprintln(out, answer.Text)
	}
	fmt.Fprintf(out, "route: %s (%s)  outcome: %s  confidence: %.2f  path confidence: %.2f\n",
		answer.Route, answer.RouteStage, answer.Outcome, answer.Confidence, answer.PathConfidence)
	if askTrace {
		for _, t := range answer.Transitions {
			fmt.Fprintf(out, "  %s\n", t)
		}
	}
	if askErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", askErr)
	}
	return nil
}
