package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/m-mizutani/hoist/pkg/domain/model"
)

var (
	okMark   = color.New(color.FgGreen, color.Bold).SprintFunc()
	failMark = color.New(color.FgRed, color.Bold).SprintFunc()
	dim      = color.New(color.Faint).SprintFunc()
)

// PrintSummary writes a per-asset report of a run
func PrintSummary(w io.Writer, repository string, result *model.PublishResult, runErr error) {
	if result == nil || result.Release == nil {
		fmt.Fprintf(w, "%s %s: release was not published\n", failMark("✗"), repository)
		if runErr != nil {
			fmt.Fprintf(w, "  %s\n", dim(runErr.Error()))
		}
		return
	}

	state := "reused"
	if result.ReleaseCreated {
		state = "created"
	}
	fmt.Fprintf(w, "%s %s %s (%s) %s\n",
		okMark("✓"), repository, result.Release.TagName, state, dim(result.Release.HTMLURL))

	for _, asset := range result.Assets {
		if asset == nil {
			continue
		}
		if asset.Done() {
			fmt.Fprintf(w, "  %s %s: %s %s\n",
				okMark("✓"), asset.Name, asset.Outcome, dim(attempts(asset.Attempts)))
			continue
		}

		fmt.Fprintf(w, "  %s %s: failed %s\n",
			failMark("✗"), asset.Name, dim(attempts(asset.Attempts)))
		if asset.Err != nil {
			fmt.Fprintf(w, "      %s\n", dim(asset.Err.Error()))
		}
	}

	if runErr != nil {
		fmt.Fprintf(w, "%s %s\n", failMark("failed:"), runErr.Error())
	}
}

func attempts(n int) string {
	if n == 1 {
		return "(1 attempt)"
	}
	return fmt.Sprintf("(%d attempts)", n)
}
