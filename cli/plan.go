package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"
	"gopkg.in/yaml.v3"

	"github.com/petal-labs/petalmatch/colltype"
	"github.com/petal-labs/petalmatch/core"
	"github.com/petal-labs/petalmatch/loader"
	"github.com/petal-labs/petalmatch/matching"
	petalotel "github.com/petal-labs/petalmatch/otel"
	"github.com/petal-labs/petalmatch/request"
	"github.com/petal-labs/petalmatch/structure"
)

// NewPlanCmd creates the "plan" subcommand.
func NewPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Match a request's collection inputs and print the resulting plan",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlan,
	}

	cmd.Flags().String("format", "text", "Output format: text | json | yaml")
	cmd.Flags().String("store-path", "", "Path to SQLite collection store for collections not defined inline")
	cmd.Flags().String("when", "", "Comma-separated when values overriding the request (e.g. true,false)")
	cmd.Flags().String("plan-id", "", "Plan ID to use in logs and spans (default: random UUID)")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP endpoint URL to export plan spans to")

	return cmd
}

func runPlan(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	format, _ := cmd.Flags().GetString("format")
	planID, _ := cmd.Flags().GetString("plan-id")
	endpoint, _ := cmd.Flags().GetString("otlp-endpoint")

	switch format {
	case "text", "json", "yaml":
	default:
		return exitError(exitInputParse, "unsupported format %q", format)
	}

	when, err := parseWhenFlag(cmd)
	if err != nil {
		return exitError(exitInputParse, "%v", err)
	}

	collections, err := resolveStore(cmd, false)
	if err != nil {
		return exitError(exitRuntime, "opening collection store: %v", err)
	}
	var source request.CollectionSource
	if collections != nil {
		defer collections.Close()
		source = collections
	}

	def, err := loader.LoadRequest(filePath, request.ValidateOptions{AllowExternalCollections: source != nil})
	if err != nil {
		return loadError(cmd, filePath, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	tracer, shutdown, err := setupTracing(ctx, endpoint)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

	metrics, err := petalotel.NewMetricsHandler(otelapi.GetMeterProvider().Meter(instrumentationName))
	if err != nil {
		return exitError(exitRuntime, "creating metrics: %v", err)
	}
	tracing := petalotel.NewTracingHandler(ctx, tracer)

	report, err := BuildPlan(ctx, def, PlanOptions{
		Source:  source,
		Logger:  newLogger(cmd),
		Handler: matching.MultiEventHandler(tracing.Handle, metrics.Handle),
		PlanID:  planID,
		When:    when,
	})
	if err != nil {
		switch {
		case errors.Is(err, matching.ErrCannotMatch):
			return exitError(exitRuntime, "%v", err)
		case errors.Is(err, structure.ErrInvalidWhenValues):
			return exitError(exitValidation, "%v", err)
		default:
			return exitError(exitRuntime, "planning: %v", err)
		}
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(report)
	default:
		writePlanText(out, report)
		return nil
	}
}

// loadError maps loader failures to exit codes, printing diagnostics for
// validation failures.
func loadError(cmd *cobra.Command, filePath string, err error) error {
	var diagErr *loader.DiagnosticError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return exitError(exitFileNotFound, "file not found: %s", filePath)
	case errors.As(err, &diagErr):
		printDiagnosticsText(cmd.ErrOrStderr(), diagErr.Diagnostics)
		return exitError(exitValidation, "validation failed")
	default:
		return exitError(exitInputParse, "loading request: %v", err)
	}
}

func parseWhenFlag(cmd *cobra.Command) ([]bool, error) {
	raw, _ := cmd.Flags().GetString("when")
	if !cmd.Flags().Changed("when") {
		return nil, nil
	}
	values := []bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseBool(part)
		if err != nil {
			return nil, fmt.Errorf("invalid --when value %q", part)
		}
		values = append(values, v)
	}
	return values, nil
}

// PlanOptions configures BuildPlan.
type PlanOptions struct {
	Types   *colltype.DescriptionFactory
	Source  request.CollectionSource
	Logger  *slog.Logger
	Handler matching.EventHandler
	PlanID  string

	// When overrides the request's when values when non-nil.
	When []bool
}

// PlanReport is the printable outcome of matching a request.
type PlanReport struct {
	PlanID    string             `json:"plan_id" yaml:"plan_id"`
	RequestID string             `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	Inputs    []InputReport      `json:"inputs" yaml:"inputs"`
	Structure *structure.Summary `json:"structure,omitempty" yaml:"structure,omitempty"`
	Slices    []SliceReport      `json:"slices,omitempty" yaml:"slices,omitempty"`
	Outputs   []OutputReport     `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	structureText string
}

// InputReport describes one collection input.
type InputReport struct {
	Name              string             `json:"name" yaml:"name"`
	CollectionType    string             `json:"collection_type" yaml:"collection_type"`
	Linked            bool               `json:"linked" yaml:"linked"`
	SubcollectionType string             `json:"subcollection_type,omitempty" yaml:"subcollection_type,omitempty"`
	ActionTuples      []core.ActionTuple `json:"action_tuples,omitempty" yaml:"action_tuples,omitempty"`
}

// SliceReport is one lock-step execution: the element identifier each
// linked input contributes.
type SliceReport struct {
	Index    int               `json:"index" yaml:"index"`
	When     *bool             `json:"when,omitempty" yaml:"when,omitempty"`
	Elements map[string]string `json:"elements" yaml:"elements"`
}

// OutputReport is the full structure of a declared output.
type OutputReport struct {
	Name      string            `json:"name" yaml:"name"`
	Structure structure.Summary `json:"structure" yaml:"structure"`

	text string
}

// BuildPlan matches the request's inputs and resolves its output
// structures.
func BuildPlan(ctx context.Context, def *request.Definition, opts PlanOptions) (*PlanReport, error) {
	types := opts.Types
	if types == nil {
		types = colltype.NewFactory(nil)
	}
	planID := opts.PlanID
	if planID == "" {
		planID = uuid.NewString()
	}

	toMatch, err := def.CollectionsToMatch(ctx, opts.Source)
	if err != nil {
		return nil, err
	}

	matchOpts := []matching.Option{matching.WithPlanID(planID)}
	if opts.Logger != nil {
		matchOpts = append(matchOpts, matching.WithLogger(opts.Logger))
	}
	if opts.Handler != nil {
		matchOpts = append(matchOpts, matching.WithEventHandler(opts.Handler))
	}
	m, err := matching.ForCollections(toMatch, types, matchOpts...)
	if err != nil {
		return nil, err
	}

	report := &PlanReport{PlanID: planID, RequestID: def.ID, Inputs: []InputReport{}}
	when := def.When
	if opts.When != nil {
		when = opts.When
	}

	if m != nil {
		if err := m.SetWhenValues(when); err != nil {
			return nil, err
		}
		if err := report.addMatching(m, toMatch); err != nil {
			return nil, err
		}
	} else if len(when) > 1 {
		return nil, fmt.Errorf("%w: %d values without collection inputs", structure.ErrInvalidWhenValues, len(when))
	}

	resolve := func(name string) (structure.Structure, error) {
		if m != nil && m.IsMappedOver(name) {
			return m.SlicedInputStructure(name, types)
		}
		if entry, ok := toMatch.Get(name); ok {
			if entry.SubcollectionType == "" {
				return structure.Leaf{}, nil
			}
			return structure.NewUninitializedTree(types.ForCollectionType(entry.SubcollectionType)), nil
		}
		return nil, fmt.Errorf("%w %q", matching.ErrUnknownInput, name)
	}

	for _, out := range def.Outputs {
		var s structure.Structure
		if m != nil {
			s, err = m.MappedOutputStructure(out, resolve, types)
		} else {
			s, err = structure.ToolOutputToStructure(resolve, out, types)
		}
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", out.Name, err)
		}
		report.Outputs = append(report.Outputs, OutputReport{
			Name:      out.Name,
			Structure: structure.Summarize(s),
			text:      structure.Describe(s),
		})
	}
	return report, nil
}

func (r *PlanReport) addMatching(m *matching.MatchingCollections, toMatch *matching.CollectionsToMatch) error {
	for name, entry := range toMatch.Items() {
		in := InputReport{
			Name:              name,
			CollectionType:    entry.Handle.DatasetCollection().CollectionType,
			Linked:            entry.Linked,
			SubcollectionType: entry.SubcollectionType,
		}
		if m.IsMappedOver(name) {
			tuples, err := m.MapOverActionTuples(name)
			if err != nil {
				return err
			}
			in.ActionTuples = tuples
		}
		r.Inputs = append(r.Inputs, in)
	}

	combined, err := m.Structure()
	if err != nil {
		return err
	}
	if combined != nil {
		sum := structure.Summarize(combined)
		r.Structure = &sum
		r.structureText = structure.Describe(combined)
	}

	if _, ok := m.LinkedStructure().(*structure.Tree); !ok {
		return nil
	}
	slices, err := m.SliceCollections()
	if err != nil {
		return err
	}
	for s := range slices {
		sr := SliceReport{Index: len(r.Slices), When: s.When, Elements: make(map[string]string, len(s.Elements))}
		for name, el := range s.Elements {
			sr.Elements[name] = el.Identifier
		}
		r.Slices = append(r.Slices, sr)
	}
	return nil
}

func writePlanText(w io.Writer, r *PlanReport) {
	fmt.Fprintf(w, "Plan %s\n", r.PlanID)
	if r.RequestID != "" {
		fmt.Fprintf(w, "Request: %s\n", r.RequestID)
	}

	if len(r.Inputs) == 0 {
		fmt.Fprintln(w, "\nNo collection inputs; the step runs once.")
	} else {
		fmt.Fprintln(w, "\nInputs:")
		tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tTYPE\tLINKED\tMAPS OVER")
		for _, in := range r.Inputs {
			over := in.SubcollectionType
			if over == "" {
				over = "datasets"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%t\t%s\n", in.Name, in.CollectionType, in.Linked, over)
		}
		_ = tw.Flush()
	}

	if r.structureText != "" {
		fmt.Fprintln(w, "\nStructure:")
		writeIndented(w, r.structureText)
	}

	if len(r.Slices) > 0 {
		fmt.Fprintln(w, "\nSlices:")
		for _, s := range r.Slices {
			fmt.Fprintf(w, "  [%d]", s.Index)
			if s.When != nil {
				fmt.Fprintf(w, " when=%t", *s.When)
			}
			for _, in := range r.Inputs {
				if id, ok := s.Elements[in.Name]; ok {
					fmt.Fprintf(w, " %s=%s", in.Name, id)
				}
			}
			fmt.Fprintln(w)
		}
	}

	for i, out := range r.Outputs {
		if i == 0 {
			fmt.Fprintln(w, "\nOutputs:")
		}
		fmt.Fprintf(w, "  %s:\n", out.Name)
		writeIndented(w, out.text, "  ")
	}
}

func writeIndented(w io.Writer, text string, extra ...string) {
	prefix := "  " + strings.Join(extra, "")
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(w, "%s%s\n", prefix, line)
	}
}
