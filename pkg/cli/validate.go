package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/crm-e2e/pkg/steps"
	"github.com/devicelab-dev/crm-e2e/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check feature files for syntax errors and undefined steps",
	ArgsUsage: "<feature-file-or-folder>...",
	Description: `Parse feature files and match every step against the built-in step
definitions without opening any session.

Examples:
  crm-e2e validate features/
  crm-e2e validate features/ --include-tags smoke`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only check scenarios with any of these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Skip scenarios with these tags",
		},
	},
	Action: runValidate,
}

func runValidate(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		ws, err := loadWorkspace(c)
		if err != nil {
			return err
		}
		paths = ws.Features
	}
	if len(paths) == 0 {
		return fmt.Errorf("at least one feature file or folder is required")
	}

	out := c.App.Writer
	result := validator.New(steps.NewRegistry(), c.StringSlice("include-tags"), c.StringSlice("exclude-tags")).Validate(paths...)

	fmt.Fprintf(out, "  %d feature(s), %d scenario(s), %d step(s)\n",
		result.Features, result.Scenarios, result.Steps)
	if result.IsValid() {
		fmt.Fprintf(out, "  %s✓ all steps are defined%s\n", color(colorGreen), color(colorReset))
		return nil
	}

	fmt.Fprintln(out)
	for _, err := range result.Errors {
		fmt.Fprintf(out, "  %s✗%s %v\n", color(colorRed), color(colorReset), err)
	}

	// Snippet hints: the closest registered phrases by shared words.
	if len(result.Undefined) > 0 {
		defs := steps.NewRegistry().Definitions()
		fmt.Fprintf(out, "\n  %sClosest step definitions%s\n", color(colorBold), color(colorReset))
		seen := map[string]bool{}
		for _, ref := range result.Undefined {
			if seen[ref.Text] {
				continue
			}
			seen[ref.Text] = true
			fmt.Fprintf(out, "    %s\n", ref.Text)
			for _, d := range closestDefinitions(ref.Text, defs, 3) {
				fmt.Fprintf(out, "      %s~%s %s\n", color(colorGray), color(colorReset), d.Pattern)
			}
		}
	}
	return cli.Exit("", 1)
}

// closestDefinitions ranks definitions by the number of words their pattern
// shares with text.
func closestDefinitions(text string, defs []steps.Definition, n int) []steps.Definition {
	words := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		words[w] = true
	}

	type scored struct {
		def   steps.Definition
		score int
	}
	var ranked []scored
	for _, d := range defs {
		score := 0
		for _, w := range strings.Fields(strings.ToLower(d.Pattern)) {
			if words[w] {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{d, score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var out []steps.Definition
	for i := 0; i < len(ranked) && i < n; i++ {
		out = append(out, ranked[i].def)
	}
	return out
}

var stepsCommand = &cli.Command{
	Name:  "steps",
	Usage: "List the available step definitions",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "group",
			Usage: "Only list one group (ui, api, db, common, mobile)",
		},
	},
	Action: func(c *cli.Context) error {
		out := c.App.Writer
		group := strings.ToLower(c.String("group"))
		last := ""
		for _, d := range steps.NewRegistry().Definitions() {
			if group != "" && !strings.HasPrefix(strings.ToLower(d.Group), group) {
				continue
			}
			if d.Group != last {
				fmt.Fprintf(out, "\n  %s%s%s\n", color(colorBold), d.Group, color(colorReset))
				last = d.Group
			}
			fmt.Fprintf(out, "    %s\n", d.Pattern)
		}
		return nil
	},
}
